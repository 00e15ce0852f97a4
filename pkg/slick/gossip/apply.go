package gossip

import (
	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/wire"
)

// applyPublish mints a fresh KeyId for key, replacing any prior local
// publication, records it in both the data and keys tables, and
// broadcasts it to every current edge.
func (e *Engine) applyPublish(op publishOp) {
	id := slick.NewKeyId()
	e.tables.data[op.key] = publication{keyID: id, payload: op.payload}
	now := e.nowMs()
	ttl := uint64(e.cfg.TTL.Milliseconds())
	item, _, _ := e.tables.upsertKeyItem(op.key, id, e.selfLoc, now, ttl)
	if e.metrics != nil {
		e.metrics.KeysKnown.Set(float64(len(e.tables.keys)))
	}

	km := wire.KeysMessage{Items: []wire.KeyItem{{Key: op.key, KeyID: id, Loc: item.Addrs, TTL: item.TTL(now)}}}
	e.broadcastExcept(0, wire.EncodeTyped(wire.TypeKeys, km.Encode()))
}

// applyRetract removes the local publication. Per the Discovery
// contract no wire message is sent; peers find out when the
// advertised Item's TTL lapses on their side.
func (e *Engine) applyRetract(op retractOp) {
	delete(e.tables.data, op.key)
}

// applyDiscover registers the watcher and starts fetching any holder
// already known locally. The Query broadcast only goes out on the
// first watcher for a key — later watchers on an already-watched key
// ride the outstanding query/fetches instead of re-announcing interest
// to every edge.
func (e *Engine) applyDiscover(op discoverOp) {
	first := len(e.tables.watches[op.key]) == 0
	e.tables.watches[op.key] = append(e.tables.watches[op.key], watcher{handle: op.handle, fn: op.fn})

	if first {
		q := wire.QueryMessage{SenderLoc: e.selfLoc, Keys: []string{op.key}}
		e.broadcastExcept(0, wire.EncodeTyped(wire.TypeQuery, q.Encode()))
	}

	if bucket, ok := e.tables.keys[op.key]; ok {
		for keyID, item := range bucket {
			e.ensureFetch(op.key, keyID, item.Addrs)
		}
	}
}

// applyForget removes the matching watcher. When it was the last
// watcher for the key, any in-flight fetches for that key are dropped
// per the Discovery contract.
func (e *Engine) applyForget(op forgetOp) {
	watchers := e.tables.watches[op.key]
	for i, w := range watchers {
		if w.handle == op.handle {
			watchers = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
	if len(watchers) == 0 {
		delete(e.tables.watches, op.key)
		delete(e.tables.fetches, op.key)
	} else {
		e.tables.watches[op.key] = watchers
	}
}

// applyLost drops the matching Item from the local view of key's
// holders without any wire-level retraction, per the Discovery
// contract's hint semantics.
func (e *Engine) applyLost(op lostOp) {
	bucket, ok := e.tables.keys[op.key]
	if !ok {
		return
	}
	delete(bucket, op.id)
	if len(bucket) == 0 {
		delete(e.tables.keys, op.key)
	}
	if e.metrics != nil {
		e.metrics.KeysKnown.Set(float64(len(e.tables.keys)))
	}
}
