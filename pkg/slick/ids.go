// Package slick implements a peer-to-peer service-discovery substrate:
// nodes publish opaque payloads under string keys, discover payloads
// published by other nodes, and maintain swarm membership without a
// central registry. See the gossip subpackage for the engine and the
// transport subpackage for the framed endpoint it runs on.
package slick

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// idSize is the width in bytes of a NodeId or KeyId (128 bits).
const idSize = 16

// NodeId identifies a node for the lifetime of its process. It is drawn
// from a cryptographically random source at startup.
type NodeId [idSize]byte

// NewNodeId mints a fresh, cryptographically random NodeId.
func NewNodeId() NodeId { return NodeId(uuid.New()) }

func (id NodeId) String() string { return uuid.UUID(id).String() }

// ParseNodeId parses the canonical string form of a NodeId, as produced
// by String. Used when reloading persisted node history from disk.
func ParseNodeId(s string) (NodeId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeId{}, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return NodeId(u), nil
}

// IsZero reports whether id is the zero value (used as a "no peer yet"
// sentinel on connections that haven't completed their handshake).
func (id NodeId) IsZero() bool { return id == NodeId{} }

// KeyId identifies one published version of a key. Republishing a key
// mints a fresh KeyId, so stale fetches can be told apart from current
// ones even though they share a key name.
type KeyId [idSize]byte

// NewKeyId mints a fresh, cryptographically random KeyId.
func NewKeyId() KeyId { return KeyId(uuid.New()) }

func (id KeyId) String() string { return uuid.UUID(id).String() }

func (id KeyId) IsZero() bool { return id == KeyId{} }

// WatchHandle identifies one registered watcher within a process. It is
// monotonically increasing and never reused.
type WatchHandle uint64

// ConnId disambiguates descriptor reuse: a ConnId is paired with an OS
// file descriptor so that a stale reference to a closed-then-reopened fd
// can be detected instead of silently acting on the wrong connection.
type ConnId uint64

var (
	nextWatchHandle atomic.Uint64
	nextConnId      atomic.Uint64
)

// NewWatchHandle returns the next process-wide WatchHandle. Safe to call
// from any goroutine.
func NewWatchHandle() WatchHandle {
	return WatchHandle(nextWatchHandle.Add(1))
}

// NewConnId returns the next process-wide ConnId. Safe to call from any
// goroutine.
func NewConnId() ConnId {
	return ConnId(nextConnId.Add(1))
}

func (h WatchHandle) String() string { return fmt.Sprintf("watch#%d", uint64(h)) }
func (c ConnId) String() string      { return fmt.Sprintf("conn#%d", uint64(c)) }
