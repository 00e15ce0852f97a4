package gossip

import "github.com/rattab/slick/pkg/slick"

// The typed cross-thread operations funneled through
// transport.Poller.Defer. Per the design notes, these replace what a
// closure-capture design would do: each call site from an arbitrary
// application goroutine builds one of these and hands it to Defer,
// and Engine's OnDefer handler applies it on the poll goroutine.

type publishOp struct {
	key     string
	payload []byte
}

type retractOp struct {
	key string
}

type discoverOp struct {
	key    string
	handle slick.WatchHandle
	fn     slick.WatchFunc
}

type forgetOp struct {
	key    string
	handle slick.WatchHandle
}

type lostOp struct {
	key string
	id  slick.KeyId
}
