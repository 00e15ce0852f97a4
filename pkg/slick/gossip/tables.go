package gossip

import (
	"github.com/rattab/slick/pkg/slick"
	"github.com/rattab/slick/pkg/slick/transport"
)

// connInfo is the gossip layer's view of a connection, keyed by ConnId.
// transport.ConnState carries the socket-level half of this; connInfo
// adds the gossip-protocol bookkeeping the engine needs once a peer is
// identified.
type connInfo struct {
	id        slick.ConnId
	fetchMode bool
	peer      slick.NodeId
	identified bool
	openedAtMs uint64
}

// publication is the single locally published value for a key.
type publication struct {
	keyID   slick.KeyId
	payload []byte
}

// watcher pairs a registered handle with its callback.
type watcher struct {
	handle slick.WatchHandle
	fn     slick.WatchFunc
}

// fetchState tracks one outstanding (key, KeyId) resolution.
type fetchState struct {
	loc        slick.NodeLocation
	retryCount int
}

// connExpEntry is a connExpiration FIFO entry: a candidate for random
// eviction once it has aged past ConnExpThresh.
type connExpEntry struct {
	id         slick.ConnId
	openedAtMs uint64
}

// fetchExpEntry is a fetchExpiration FIFO entry: a backed-off fetch due
// for retry.
type fetchExpEntry struct {
	key             string
	keyID           slick.KeyId
	retryDeadlineMs uint64
}

// tables holds every piece of state the spec requires to live
// exclusively on the poll goroutine. No field here is ever touched
// from any other goroutine; all external mutation is funneled through
// transport.Poller.Defer.
type tables struct {
	nodes map[slick.NodeId]*slick.Item
	keys  map[string]map[slick.KeyId]*slick.Item
	data  map[string]publication

	watches map[string][]watcher

	connections    map[slick.ConnId]*connInfo
	connStates     map[slick.ConnId]*transport.ConnState
	connectedNodes map[slick.NodeId]slick.ConnId
	edges          map[slick.ConnId]struct{}

	fetches map[string]map[slick.KeyId]*fetchState

	connExpiration  []connExpEntry
	fetchExpiration []fetchExpEntry

	seeds []slick.Address
}

func newTables() *tables {
	return &tables{
		nodes:          make(map[slick.NodeId]*slick.Item),
		keys:           make(map[string]map[slick.KeyId]*slick.Item),
		data:           make(map[string]publication),
		watches:        make(map[string][]watcher),
		connections:    make(map[slick.ConnId]*connInfo),
		connStates:     make(map[slick.ConnId]*transport.ConnState),
		connectedNodes: make(map[slick.NodeId]slick.ConnId),
		edges:          make(map[slick.ConnId]struct{}),
		fetches:        make(map[string]map[slick.KeyId]*fetchState),
	}
}

// edgeIDs returns a snapshot slice of every gossip-mode connection id,
// for multicast fan-out.
func (t *tables) edgeIDs() []slick.ConnId {
	ids := make([]slick.ConnId, 0, len(t.edges))
	for id := range t.edges {
		ids = append(ids, id)
	}
	return ids
}

// upsertNodeItem applies the forward rule's bookkeeping half for the
// nodes table: insert if absent, else extend TTL monotonically. Returns
// the stored item, whether it was newly inserted, and the TTL it had
// before this update (used by the forward rule).
func (t *tables) upsertNodeItem(id slick.NodeId, addrs slick.NodeLocation, nowMs, ttlMs uint64) (item *slick.Item, inserted bool, ttlBefore uint64) {
	existing, ok := t.nodes[id]
	if !ok {
		it := &slick.Item{ID: [16]byte(id), Addrs: addrs.Clone(), ExpirationMs: nowMs + ttlMs}
		t.nodes[id] = it
		return it, true, 0
	}
	before := existing.TTL(nowMs)
	existing.SetTTL(nowMs, ttlMs)
	if len(addrs) > 0 {
		existing.Addrs = addrs.Clone()
	}
	return existing, false, before
}

// upsertKeyItem is upsertNodeItem for one key's holder table.
func (t *tables) upsertKeyItem(key string, id slick.KeyId, addrs slick.NodeLocation, nowMs, ttlMs uint64) (item *slick.Item, inserted bool, ttlBefore uint64) {
	bucket, ok := t.keys[key]
	if !ok {
		bucket = make(map[slick.KeyId]*slick.Item)
		t.keys[key] = bucket
	}
	existing, ok := bucket[id]
	if !ok {
		it := &slick.Item{ID: [16]byte(id), Addrs: addrs.Clone(), ExpirationMs: nowMs + ttlMs}
		bucket[id] = it
		return it, true, 0
	}
	before := existing.TTL(nowMs)
	existing.SetTTL(nowMs, ttlMs)
	if len(addrs) > 0 {
		existing.Addrs = addrs.Clone()
	}
	return existing, false, before
}
