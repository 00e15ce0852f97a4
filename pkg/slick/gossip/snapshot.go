package gossip

import (
	"context"
	"time"

	"github.com/rattab/slick/pkg/slick"
)

// NodeSnapshot is one row of a membership table snapshot.
type NodeSnapshot struct {
	ID       slick.NodeId
	Addrs    slick.NodeLocation
	TTLMs    uint64
	Edge     bool
	SelfNode bool

	// ConnectionCount and AvgSessionMs come from this node's local,
	// never-gossiped connection history. Zero when no history exists
	// for the peer yet (e.g. heard about only via the Nodes gossip
	// path, never connected to directly).
	ConnectionCount int
	AvgSessionMs    float64
}

// KeySnapshot is one row of a key table snapshot. Payload bytes are
// never included — only presence and remaining TTL, per the
// introspection API's read-only, non-sensitive contract.
type KeySnapshot struct {
	Key   string
	KeyID slick.KeyId
	TTLMs uint64
	Local bool
}

// WatchSnapshot reports the number of active watchers registered
// against a single key.
type WatchSnapshot struct {
	Key   string
	Count int
}

// Snapshot is a point-in-time, read-only view of an Engine's tables,
// assembled on the poll goroutine and handed back across a channel so
// introspection callers never touch tables directly.
type Snapshot struct {
	Self      slick.NodeId
	SelfLoc   slick.NodeLocation
	StartedAt time.Time

	Nodes           []NodeSnapshot
	Keys            []KeySnapshot
	Watches         []WatchSnapshot
	ConnectionCount int
	EdgeCount       int
}

type snapshotOp struct {
	resultCh chan Snapshot
}

// Snapshot returns a consistent, read-only view of the engine's
// membership, key, and watch tables. It is safe to call from any
// goroutine: the snapshot is assembled on the poll goroutine via the
// same Defer mechanism application-facing mutations use, then handed
// back over a buffered channel.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	if e.closed.Load() {
		return Snapshot{}, slick.ErrShutdown
	}
	op := snapshotOp{resultCh: make(chan Snapshot, 1)}
	if err := e.poller.Defer(op); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-op.resultCh:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-e.closeCh:
		return Snapshot{}, slick.ErrShutdown
	}
}

func (e *Engine) applySnapshot(op snapshotOp) {
	now := e.nowMs()
	t := e.tables

	s := Snapshot{
		Self:            e.self,
		SelfLoc:         e.selfLoc,
		StartedAt:       e.startedAt,
		ConnectionCount: len(t.connections),
		EdgeCount:       len(t.edges),
	}

	s.Nodes = make([]NodeSnapshot, 0, len(t.nodes))
	for id, item := range t.nodes {
		_, isEdge := t.connectedNodes[id]
		ns := NodeSnapshot{
			ID:       id,
			Addrs:    item.Addrs.Clone(),
			TTLMs:    item.TTL(now),
			Edge:     isEdge,
			SelfNode: id == e.self,
		}
		if rec := e.history.Get(id); rec != nil {
			ns.ConnectionCount = rec.ConnectionCount
			ns.AvgSessionMs = rec.AvgSessionMs
		}
		s.Nodes = append(s.Nodes, ns)
	}

	for key, bucket := range t.keys {
		for id, item := range bucket {
			_, local := t.data[key]
			s.Keys = append(s.Keys, KeySnapshot{
				Key:   key,
				KeyID: id,
				TTLMs: item.TTL(now),
				Local: local && id == t.data[key].keyID,
			})
		}
	}

	for key, ws := range t.watches {
		s.Watches = append(s.Watches, WatchSnapshot{Key: key, Count: len(ws)})
	}

	op.resultCh <- s
}
