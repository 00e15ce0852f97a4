package transport

import (
	"time"

	"github.com/rattab/slick/pkg/slick"
)

// connectOp and sendOp are the two kinds of cross-thread work items
// funneled through the control and payload defer queues respectively.
type connectOp struct {
	addr slick.Address
	mode Mode
	// fetch carries the already-encoded Fetch message body to
	// piggy-back on the handshake frame when mode == ModeFetch.
	fetch []byte
}

type disconnectOp struct {
	id slick.ConnId
}

type sendOp struct {
	id      slick.ConnId // zero value broadcasts to every gossip-mode connection
	payload []byte
}

// Poller drives one node's socket I/O on a single goroutine. Connect,
// Disconnect and Send are safe to call from any goroutine; they simply
// enqueue onto the poller's defer queues and return once the item is
// queued (or dropped), not once the operation has taken effect.
type Poller interface {
	// Run blocks the calling goroutine, servicing I/O and defer queues
	// until Close is called or an unrecoverable error occurs.
	Run(h *Handlers) error

	// Connect asks the poll goroutine to open an outbound connection.
	Connect(addr slick.Address, mode Mode) error

	// ConnectFetch is Connect for a fetch-mode connection, piggy-backing
	// an already-encoded Fetch message on the handshake frame.
	ConnectFetch(addr slick.Address, fetchBody []byte) error

	// Disconnect asks the poll goroutine to close a connection.
	Disconnect(id slick.ConnId) error

	// Defer funnels an application-typed operation onto the poll
	// goroutine, where it surfaces through Handlers.OnDefer. Used by
	// the gossip engine for publish/retract/discover/forget/lost, each
	// its own typed struct rather than a captured closure.
	Defer(op any) error

	// Send enqueues payload for connection id, or for every open
	// gossip-mode connection when id is the zero ConnId.
	Send(id slick.ConnId, payload []byte) error

	// Tick returns a channel that fires on a jittered period, for the
	// gossip engine's timer-driven maintenance tasks. The channel is
	// owned by the poller; it is not closed by Close, and ticks stop
	// once Run returns.
	Tick() <-chan time.Time

	// Close tears down every connection and stops Run.
	Close() error
}

// New constructs the platform Poller: epoll-backed on Linux, a
// goroutine-per-connection fallback elsewhere. Both honor the same
// Handlers and Config contract.
func New(cfg Config, period time.Duration) (Poller, error) {
	return newPoller(cfg, period)
}
