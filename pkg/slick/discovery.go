package slick

import "time"

// WatchFunc is invoked on the poll goroutine each time a watched key's
// payload becomes available or changes. handle identifies the watcher
// being fired, id is the KeyId of the payload, and payload is never
// empty: an empty reply from the holder (stale or unknown) is not
// delivered and the fetch is retried instead.
type WatchFunc func(handle WatchHandle, id KeyId, payload []byte)

// Discovery is the capability trait every member of this substrate
// implements: publish/discover opaque payloads under string keys, and
// integrate the resulting event loop into a host process. *gossip.Engine
// is the sole production implementation; StaticDiscovery is an
// intentionally incomplete stub for the never-finished static-membership
// variant described in the design notes.
type Discovery interface {
	// Publish replaces any prior publication of key with payload,
	// minting a fresh KeyId. Must be safe to call from any goroutine.
	Publish(key string, payload []byte) error

	// Retract deletes the local publication of key. No wire message is
	// sent; peers learn of the removal only when the advertised Item's
	// TTL lapses.
	Retract(key string) error

	// Discover registers fn to be called whenever a payload for key
	// becomes known, and returns a handle for later Forget. Must be
	// safe to call from any goroutine.
	Discover(key string, fn WatchFunc) (WatchHandle, error)

	// Forget removes a previously registered watcher. When the last
	// watcher for a key is removed, any in-flight fetches for that key
	// are also dropped.
	Forget(key string, handle WatchHandle) error

	// Lost is a hint from the application that a previously observed
	// payload is no longer valid; it removes the matching Item from the
	// local view of key's holders without any wire-level retraction.
	Lost(key string, id KeyId) error

	// Poll drives the event loop for up to timeout and must be called
	// repeatedly by exactly one goroutine.
	Poll(timeout time.Duration) error

	// Shutdown tears down all connections and stops the event loop.
	Shutdown() error

	// ID returns this node's NodeId.
	ID() NodeId

	// Node returns this node's advertised NodeLocation.
	Node() NodeLocation
}
