package gossip

import (
	"math"

	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/codec"
	"github.com/rattab/slick/pkg/slick/transport"
	"github.com/rattab/slick/pkg/slick/wire"
)

func ceilLog2(n int) int {
	if n <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n))))
}

// onHandshake registers the connection and, for gossip-mode
// connections, enforces invariant 2 (at most one gossip edge per peer)
// before sending the initial Query/Keys/Nodes burst.
func (e *Engine) onHandshake(c *transport.ConnState, tag string, version uint32, peer slick.NodeId) bool {
	info := &connInfo{id: c.ID, fetchMode: c.Mode == transport.ModeFetch, peer: peer, identified: true, openedAtMs: e.nowMs()}
	e.tables.connections[c.ID] = info
	e.tables.connStates[c.ID] = c

	if info.fetchMode {
		return true
	}

	if existing, ok := e.tables.connectedNodes[peer]; ok && existing != c.ID {
		delete(e.tables.connections, c.ID)
		delete(e.tables.connStates, c.ID)
		e.poller.Disconnect(c.ID)
		return false
	}

	e.tables.connectedNodes[peer] = c.ID
	e.tables.edges[c.ID] = struct{}{}
	e.tables.connExpiration = append(e.tables.connExpiration, connExpEntry{id: c.ID, openedAtMs: info.openedAtMs})
	e.history.RecordOpen(peer, info.openedAtMs)

	if e.metrics != nil {
		e.metrics.ConnectionsOpened.WithLabelValues(c.Dir.String()).Inc()
		e.metrics.ActiveConnections.Inc()
		e.metrics.ActiveEdges.Inc()
	}

	e.sendInitialBurst(c.ID)
	return true
}

// sendInitialBurst sends, in order, Query (if watches exist), Keys (all
// locally published), and Nodes (self plus a random digest) to a
// freshly identified gossip-mode connection.
func (e *Engine) sendInitialBurst(id slick.ConnId) {
	if len(e.tables.watches) > 0 {
		keys := make([]string, 0, len(e.tables.watches))
		for k := range e.tables.watches {
			keys = append(keys, k)
		}
		q := wire.QueryMessage{SenderLoc: e.selfLoc, Keys: keys}
		e.poller.Send(id, wire.EncodeTyped(wire.TypeQuery, q.Encode()))
	}

	if len(e.tables.data) > 0 {
		items := make([]wire.KeyItem, 0, len(e.tables.data))
		now := e.nowMs()
		for key, pub := range e.tables.data {
			it, ok := e.tables.keys[key][pub.keyID]
			ttl := uint64(e.cfg.TTL.Milliseconds())
			if ok {
				ttl = it.TTL(now)
			}
			items = append(items, wire.KeyItem{Key: key, KeyID: pub.keyID, Loc: e.selfLoc, TTL: ttl})
		}
		km := wire.KeysMessage{Items: items}
		e.poller.Send(id, wire.EncodeTyped(wire.TypeKeys, km.Encode()))
	}

	e.sendNodesDigest(id)
}

// sendNodesDigest sends a Nodes message containing self plus up to
// ceil(log2(|nodes|)) random peers.
func (e *Engine) sendNodesDigest(id slick.ConnId) {
	now := e.nowMs()
	self := e.tables.nodes[e.self]
	items := make([]wire.NodeItem, 0, 1)
	if self != nil {
		items = append(items, wire.NodeItem{NodeID: e.self, Loc: self.Addrs, TTL: self.TTL(now)})
	}

	n := ceilLog2(len(e.tables.nodes))
	if n > 0 {
		others := make([]slick.NodeId, 0, len(e.tables.nodes))
		for nid := range e.tables.nodes {
			if nid != e.self {
				others = append(others, nid)
			}
		}
		e.rng.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })
		if n > len(others) {
			n = len(others)
		}
		for _, nid := range others[:n] {
			it := e.tables.nodes[nid]
			items = append(items, wire.NodeItem{NodeID: nid, Loc: it.Addrs, TTL: it.TTL(now)})
		}
	}

	nm := wire.NodesMessage{Items: items}
	e.poller.Send(id, wire.EncodeTyped(wire.TypeNodes, nm.Encode()))
}

func (e *Engine) onClosed(c *transport.ConnState, reason error) {
	info, ok := e.tables.connections[c.ID]
	if ok {
		delete(e.tables.connections, c.ID)
		if !info.fetchMode {
			if cur, exists := e.tables.connectedNodes[info.peer]; exists && cur == c.ID {
				delete(e.tables.connectedNodes, info.peer)
			}
			if _, wasEdge := e.tables.edges[c.ID]; wasEdge {
				delete(e.tables.edges, c.ID)
				if e.metrics != nil {
					e.metrics.ActiveEdges.Dec()
				}
			}
			e.history.RecordClose(info.peer, float64(e.nowMs()-info.openedAtMs))
			if e.metrics != nil {
				e.metrics.ActiveConnections.Dec()
				e.metrics.ConnectionsClosed.WithLabelValues("closed").Inc()
			}
		}
	}
	delete(e.tables.connStates, c.ID)

	// A rejected handshake reports here before the socket is gone;
	// close it so the peer is actually dropped.
	if reason == slick.ErrProtocolMismatch {
		e.poller.Disconnect(c.ID)
	}

	if ok && info.fetchMode {
		e.onFetchConnClosed(c, info)
	}
}

func (e *Engine) onDroppedPayload(reason error) {
	if e.metrics != nil {
		e.metrics.PayloadsDropped.WithLabelValues("overflow").Inc()
	}
}

func (e *Engine) onTick() {
	e.tick()
}

// onDefer applies a typed application operation; see ops.go.
func (e *Engine) onDefer(op any) {
	switch v := op.(type) {
	case publishOp:
		e.applyPublish(v)
	case retractOp:
		e.applyRetract(v)
	case discoverOp:
		e.applyDiscover(v)
	case forgetOp:
		e.applyForget(v)
	case lostOp:
		e.applyLost(v)
	case snapshotOp:
		e.applySnapshot(v)
	}
}

// onMessage decodes the leading u16 type tag and dispatches to the
// matching gossip handler. Unknown types are a fatal protocol error per
// spec; this module counts the message as dropped and disconnects that
// peer rather than tearing down the whole engine, since one malformed
// peer message should not take down an otherwise-healthy node.
func (e *Engine) onMessage(c *transport.ConnState, body []byte) {
	d := codec.NewDecoder(body)
	tag := wire.Type(d.Uint16())
	rest := body[len(body)-d.Remaining():]

	switch tag {
	case wire.TypeKeys:
		e.handleKeys(c, wire.DecodeKeysMessage(codec.NewDecoder(rest)))
	case wire.TypeQuery:
		e.handleQuery(c, wire.DecodeQueryMessage(codec.NewDecoder(rest)))
	case wire.TypeNodes:
		e.handleNodes(c, wire.DecodeNodesMessage(codec.NewDecoder(rest)))
	case wire.TypeFetch:
		e.handleFetch(c, wire.DecodeFetchMessage(codec.NewDecoder(rest)))
	case wire.TypeData:
		e.handleData(c, wire.DecodeDataMessage(codec.NewDecoder(rest)))
	default:
		if e.metrics != nil {
			e.metrics.PayloadsDropped.WithLabelValues("unknown_type").Inc()
		}
		e.poller.Disconnect(c.ID)
	}
}
