package slick

import "errors"

var (
	// ErrNotImplemented is returned by every StaticDiscovery method that
	// returns an error (all but ID and Node). The
	// static membership variant was never finished upstream and its
	// intended semantics for full-mesh membership are not specified;
	// this module does not guess at them.
	ErrNotImplemented = errors.New("slick: not implemented")

	// ErrShutdown is returned by public Discovery methods once Shutdown
	// has completed; the poll goroutine is gone and no further state
	// mutation is possible.
	ErrShutdown = errors.New("slick: engine is shut down")

	// ErrProtocolMismatch is passed as the reason to Handlers.OnClosed
	// when a peer's handshake carries an unexpected init tag or version.
	// The connection is dropped; there is no retry on that socket.
	ErrProtocolMismatch = errors.New("slick: protocol mismatch")

	// ErrQueueOverflow is reported via OnDroppedPayload when a
	// connection's send queue is full, and returned to the caller when a
	// cross-thread defer queue is full.
	ErrQueueOverflow = errors.New("slick: queue overflow")

	// ErrKeyNotPublished names the case of a caller referencing a key
	// with no local publication. No function in this module returns it;
	// Retract of an unpublished key succeeds and changes nothing.
	ErrKeyNotPublished = errors.New("slick: key not published")
)
