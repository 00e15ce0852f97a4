package gossip

import (
	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/transport"
	"github.com/rattab/slick/pkg/slick/wire"
)

// handleKeys applies the forward rule to each advertised (key, KeyId)
// and re-broadcasts the ones that survive it to every edge except the
// one it arrived on. It also satisfies any local watcher waiting on a
// key it has never seen a holder for by starting a fetch.
func (e *Engine) handleKeys(c *transport.ConnState, m wire.KeysMessage) {
	now := e.nowMs()
	ttlConfigured := uint64(e.cfg.TTL.Milliseconds())
	var toForward []wire.KeyItem

	for _, it := range m.Items {
		item, inserted, before := e.tables.upsertKeyItem(it.Key, it.KeyID, it.Loc, now, it.TTL)
		if e.metrics != nil {
			e.metrics.KeysKnown.Set(float64(len(e.tables.keys)))
		}
		if shouldForward(inserted, before, ttlConfigured, it.TTL) {
			toForward = append(toForward, wire.KeyItem{Key: it.Key, KeyID: it.KeyID, Loc: item.Addrs, TTL: item.TTL(now)})
			if e.metrics != nil {
				e.metrics.ForwardedMessages.WithLabelValues("key").Inc()
			}
		} else if e.metrics != nil {
			e.metrics.SuppressedForwards.WithLabelValues("key").Inc()
		}

		if watchers, ok := e.tables.watches[it.Key]; inserted && ok && len(watchers) > 0 {
			e.ensureFetch(it.Key, it.KeyID, item.Addrs)
		}
	}

	if len(toForward) > 0 {
		km := wire.KeysMessage{Items: toForward}
		e.broadcastExcept(c.ID, wire.EncodeTyped(wire.TypeKeys, km.Encode()))
	}
}

// handleQuery answers with whatever holders this node currently knows
// for each requested key.
func (e *Engine) handleQuery(c *transport.ConnState, m wire.QueryMessage) {
	now := e.nowMs()
	var items []wire.KeyItem
	for _, key := range m.Keys {
		bucket, ok := e.tables.keys[key]
		if !ok {
			continue
		}
		for id, item := range bucket {
			items = append(items, wire.KeyItem{Key: key, KeyID: id, Loc: item.Addrs, TTL: item.TTL(now)})
		}
	}
	if len(items) == 0 {
		return
	}
	km := wire.KeysMessage{Items: items}
	e.poller.Send(c.ID, wire.EncodeTyped(wire.TypeKeys, km.Encode()))
}

// handleNodes applies the forward rule to each advertised node and
// re-broadcasts survivors.
func (e *Engine) handleNodes(c *transport.ConnState, m wire.NodesMessage) {
	now := e.nowMs()
	ttlConfigured := uint64(e.cfg.TTL.Milliseconds())
	var toForward []wire.NodeItem

	for _, it := range m.Items {
		if it.NodeID == e.self {
			continue
		}
		item, inserted, before := e.tables.upsertNodeItem(it.NodeID, it.Loc, now, it.TTL)
		if e.metrics != nil {
			e.metrics.NodesKnown.Set(float64(len(e.tables.nodes)))
		}
		if shouldForward(inserted, before, ttlConfigured, it.TTL) {
			toForward = append(toForward, wire.NodeItem{NodeID: it.NodeID, Loc: item.Addrs, TTL: item.TTL(now)})
			if e.metrics != nil {
				e.metrics.ForwardedMessages.WithLabelValues("node").Inc()
			}
		} else if e.metrics != nil {
			e.metrics.SuppressedForwards.WithLabelValues("node").Inc()
		}
	}

	if len(toForward) > 0 {
		nm := wire.NodesMessage{Items: toForward}
		e.broadcastExcept(c.ID, wire.EncodeTyped(wire.TypeNodes, nm.Encode()))
	}
}

// handleFetch answers a fetch-mode connection's request and then closes
// it: fetch-mode connections are one-shot by design.
func (e *Engine) handleFetch(c *transport.ConnState, m wire.FetchMessage) {
	items := make([]wire.DataItem, 0, len(m.Items))
	for _, fk := range m.Items {
		pub, ok := e.tables.data[fk.Key]
		var payload []byte
		if ok && pub.keyID == fk.KeyID {
			payload = pub.payload
		}
		items = append(items, wire.DataItem{Key: fk.Key, KeyID: fk.KeyID, Payload: payload})
	}
	dm := wire.DataMessage{Items: items}
	e.poller.Send(c.ID, wire.EncodeTyped(wire.TypeData, dm.Encode()))
	e.poller.Disconnect(c.ID)
}

// handleData clears the pending fetch entry for each item and fires
// every watcher registered for its key. An empty payload means the
// remote had nothing for this (key, KeyId) — unknown or stale — and is
// dropped rather than delivered to the application; the fetch stays
// retriable via scheduleFetchRetry while any watcher still wants it.
func (e *Engine) handleData(c *transport.ConnState, m wire.DataMessage) {
	for _, it := range m.Items {
		if len(it.Payload) == 0 {
			// leave the fetches entry in place: scheduleFetchRetry needs
			// it to find the dial target and bump the backoff.
			e.scheduleFetchRetry(it.Key, it.KeyID)
			continue
		}
		if bucket, ok := e.tables.fetches[it.Key]; ok {
			delete(bucket, it.KeyID)
			if len(bucket) == 0 {
				delete(e.tables.fetches, it.Key)
			}
		}
		for _, w := range e.tables.watches[it.Key] {
			w.fn(w.handle, it.KeyID, it.Payload)
		}
	}
	e.poller.Disconnect(c.ID)
}

// broadcastExcept sends payload to every gossip-mode edge other than
// skip, the connection the item arrived on.
func (e *Engine) broadcastExcept(skip slick.ConnId, payload []byte) {
	for id := range e.tables.edges {
		if id == skip {
			continue
		}
		e.poller.Send(id, payload)
	}
}
