// Package transport implements the single-threaded, non-blocking socket
// endpoint the gossip engine runs on: one poll goroutine owns every
// connection's state and is the only goroutine allowed to touch it.
// Everything else reaches in through bounded defer queues.
package transport

import (
	"errors"
	"net"
	"time"

	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/codec"
)

// Mode distinguishes a long-lived gossip connection from a one-shot
// fetch-mode connection that closes itself after its Data reply.
type Mode int

const (
	// ModeGossip is a normal bidirectional peer connection: handshake,
	// then an unbounded stream of Keys/Query/Nodes frames.
	ModeGossip Mode = iota
	// ModeFetch is a connection opened solely to resolve one or more
	// (key, KeyId) pairs; it closes itself once the Data reply lands.
	ModeFetch
)

func (m Mode) String() string {
	if m == ModeFetch {
		return "fetch"
	}
	return "gossip"
}

// Direction records which side initiated the connection, for metrics and
// for the random-disconnect rule (spec favors disconnecting outbound
// edges so the overlay doesn't starve a node's inbound fan-in).
type Direction int

const (
	DirOutbound Direction = iota
	DirInbound
)

func (d Direction) String() string {
	if d == DirInbound {
		return "inbound"
	}
	return "outbound"
}

// ConnState is what the poll goroutine knows about one connection. It is
// never touched outside that goroutine.
type ConnState struct {
	ID        slick.ConnId
	Mode      Mode
	Dir       Direction
	Remote    slick.NodeLocation
	PeerID    slick.NodeId
	Connected bool // handshake completed

	conn net.Conn
	fd   int // raw descriptor, OS-specific pollers key off this

	recvBuf []byte // accumulates partial frames
	sendQ   [][]byte

	openedAt time.Time
}

// Handlers are the callbacks the gossip engine supplies; all are invoked
// on the poll goroutine and must not block.
type Handlers struct {
	// OnHandshake fires once a peer's handshake frame has been decoded.
	// Returning false closes the connection (protocol mismatch).
	OnHandshake func(c *ConnState, tag string, version uint32, peer slick.NodeId) bool

	// OnMessage fires for every frame after the handshake, with the
	// frame's body including its leading u16 type tag.
	OnMessage func(c *ConnState, body []byte)

	// OnClosed fires once a connection is fully torn down.
	OnClosed func(c *ConnState, reason error)

	// OnDroppedPayload fires when a connection's send queue is full (or
	// a payload cannot be framed) and a payload had to be discarded
	// instead of queued, per the module's back-pressure policy of
	// dropping data rather than blocking the poll loop. A full defer
	// queue does not fire it; Push returns ErrQueueOverflow instead.
	OnDroppedPayload func(reason error)

	// OnTick fires once per jittered timer period, inline on the poll
	// goroutine, driving the gossip engine's periodic maintenance.
	OnTick func()

	// OnDefer fires for every item pushed through Poller.Defer once it
	// reaches the poll goroutine. It is the typed-operation escape
	// hatch the gossip layer uses for publish/retract/discover/forget/
	// lost: the transport layer neither knows nor cares about their
	// shape, it only guarantees they run on the same goroutine as every
	// other state mutation.
	OnDefer func(op any)
}

// Config tunes the endpoint's resource limits.
type Config struct {
	// ListenAddr is the local TCP address to accept gossip and fetch
	// connections on.
	ListenAddr string

	// LocalID is this node's identity, sent as the NodeId field of
	// every outbound handshake.
	LocalID slick.NodeId

	// MaxSendQueue caps the number of unsent frames buffered per
	// connection before further payloads for that connection are
	// dropped.
	MaxSendQueue int

	// ControlQueueCap bounds the cross-thread defer queue used for
	// control operations (connect, disconnect, broadcast-control).
	ControlQueueCap int

	// PayloadQueueCap bounds the cross-thread defer queue used for
	// payload-bearing operations (publish, fetch replies).
	PayloadQueueCap int
}

// DefaultConfig matches the values the original implementation hard
// coded for its defer queues.
func DefaultConfig() Config {
	return Config{
		MaxSendQueue:    256,
		ControlQueueCap: 16,
		PayloadQueueCap: 64,
	}
}

var (
	// ErrEndpointClosed is returned by Endpoint methods once Close has
	// run; no further connections can be opened.
	ErrEndpointClosed = errors.New("transport: endpoint is closed")

	// ErrNotConnected is returned when a send targets a ConnId the
	// poller no longer recognizes.
	ErrNotConnected = errors.New("transport: connection not found")
)

// queueFrame appends payload to c's send queue, dropping it instead if
// the queue is already at capacity.
func (c *ConnState) queueFrame(payload []byte, maxQueue int) error {
	if len(c.sendQ) >= maxQueue {
		return slick.ErrQueueOverflow
	}
	framed, err := codec.AppendFrame(nil, payload)
	if err != nil {
		return err
	}
	c.sendQ = append(c.sendQ, framed)
	return nil
}

// takeFrames drains complete frames out of recvBuf, leaving any trailing
// partial frame in place for the next read.
func (c *ConnState) takeFrames() [][]byte {
	var out [][]byte
	for {
		if len(c.recvBuf) < codec.FrameHeaderSize {
			break
		}
		n := codec.FrameHeader(c.recvBuf)
		total := codec.FrameHeaderSize + n
		if len(c.recvBuf) < total {
			break
		}
		body := make([]byte, n)
		copy(body, c.recvBuf[codec.FrameHeaderSize:total])
		out = append(out, body)
		c.recvBuf = c.recvBuf[total:]
	}
	return out
}
