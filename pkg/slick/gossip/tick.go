package gossip

import (
	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/transport"
)

// maxExpirySamplesPerTick bounds the work a single tick does scanning
// for expired items, so a tick's cost stays roughly constant regardless
// of table size.
const maxExpirySamplesPerTick = 8

// tick runs the periodic maintenance the spec assigns to the
// connection overlay: expire a bounded sample of aged items, retry due
// fetches, trim the overlay toward its target degree, grow it back out,
// and fall back to the seed list when every connection has been lost.
func (e *Engine) tick() {
	e.expireNodes()
	e.expireKeys()
	e.processFetchRetries()
	e.rebalanceOverlay()
	e.recoverFromIsolation()

	if e.metrics != nil {
		e.metrics.NodesKnown.Set(float64(len(e.tables.nodes)))
		e.metrics.KeysKnown.Set(float64(len(e.tables.keys)))
	}
}

func (e *Engine) expireNodes() {
	now := e.nowMs()
	sampled := 0
	for id, item := range e.tables.nodes {
		if sampled >= maxExpirySamplesPerTick {
			break
		}
		sampled++
		if id == e.self {
			continue
		}
		if item.TTL(now) == 0 {
			delete(e.tables.nodes, id)
		}
	}
}

func (e *Engine) expireKeys() {
	now := e.nowMs()
	sampled := 0
	for key, bucket := range e.tables.keys {
		for id, item := range bucket {
			if sampled >= maxExpirySamplesPerTick {
				return
			}
			sampled++
			if item.TTL(now) == 0 {
				delete(bucket, id)
			}
		}
		if len(bucket) == 0 {
			delete(e.tables.keys, key)
		}
	}
}

// targetDegree is the overlay's aim point: ceil(log2(|nodes|)) edges,
// so the gossip diameter stays logarithmic as membership grows.
func (e *Engine) targetDegree() int {
	return ceilLog2(len(e.tables.nodes))
}

// rebalanceOverlay evicts the oldest-eligible outbound edge once the
// overlay is over target degree, and opens a new random edge once it is
// under target degree. Outbound edges are preferred for eviction so a
// node doesn't starve its own inbound fan-in by closing connections
// other nodes are relying on.
func (e *Engine) rebalanceOverlay() {
	target := e.targetDegree()
	now := e.nowMs()

	if len(e.tables.edges) > target {
		e.evictOneEdge(now)
	}
	if len(e.tables.edges) < target {
		e.connectOneRandomNode()
	}
}

func (e *Engine) evictOneEdge(now uint64) {
	var remaining []connExpEntry
	evicted := false
	threshMs := uint64(e.cfg.ConnExpThresh.Milliseconds())

	for _, ent := range e.tables.connExpiration {
		if _, stillOpen := e.tables.edges[ent.id]; !stillOpen {
			continue // already closed, drop the stale entry
		}
		if evicted || now-ent.openedAtMs < threshMs {
			remaining = append(remaining, ent)
			continue
		}
		state, ok := e.tables.connStates[ent.id]
		if ok && state.Dir == transport.DirOutbound {
			e.poller.Disconnect(ent.id)
			evicted = true
			continue
		}
		remaining = append(remaining, ent)
	}
	e.tables.connExpiration = remaining
}

func (e *Engine) connectOneRandomNode() {
	now := e.nowMs()
	candidates := make([]slick.NodeId, 0, len(e.tables.nodes))
	for id, item := range e.tables.nodes {
		if id == e.self {
			continue
		}
		if _, connected := e.tables.connectedNodes[id]; connected {
			continue
		}
		if item == nil || item.TTL(now) == 0 {
			continue
		}
		candidates = append(candidates, id)
	}
	if len(candidates) == 0 {
		return
	}
	pick := candidates[e.rng.Intn(len(candidates))]
	item := e.tables.nodes[pick]
	if item == nil || len(item.Addrs) == 0 {
		return
	}
	e.poller.Connect(item.Addrs[0], transport.ModeGossip)
}

// recoverFromIsolation dials every seed when the node has no gossip
// edges left, the condition the spec calls partition recovery.
func (e *Engine) recoverFromIsolation() {
	if len(e.tables.edges) > 0 {
		return
	}
	for _, seed := range e.tables.seeds {
		e.poller.Connect(seed, transport.ModeGossip)
	}
}
