package gossip

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/rattab/slick/pkg/slick"
)

// TestUpsertNodeItem_TTLMonotonic is the property-based half of
// invariant 3 from spec.md §8: an Item's expiration never moves
// earlier, whatever sequence of upserts it goes through.
func TestUpsertNodeItem_TTLMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tbl := newTables()
		id := slick.NewNodeId()

		nowMs := rapid.Uint64Range(0, 1_000_000).Draw(t, "now0")
		ttlMs := rapid.Uint64Range(1, 100_000).Draw(t, "ttl0")
		item, inserted, before := tbl.upsertNodeItem(id, nil, nowMs, ttlMs)
		if !inserted {
			t.Fatalf("first upsert of a fresh id must report inserted=true")
		}
		if before != 0 {
			t.Fatalf("first upsert must report ttlBefore=0, got %d", before)
		}
		prevExpiration := item.ExpirationMs

		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			nowMs += rapid.Uint64Range(0, 10_000).Draw(t, "dt")
			ttlMs = rapid.Uint64Range(0, 100_000).Draw(t, "ttl")
			item, inserted, _ = tbl.upsertNodeItem(id, nil, nowMs, ttlMs)
			if inserted {
				t.Fatalf("an id already present must never report inserted=true again")
			}
			if item.ExpirationMs < prevExpiration {
				t.Fatalf("expiration moved backward: %d -> %d", prevExpiration, item.ExpirationMs)
			}
			prevExpiration = item.ExpirationMs
		}
	})
}

// TestUpsertKeyItem_TTLMonotonic is the same property for the keys
// table, which is bucketed by (key, KeyId) rather than a flat map.
func TestUpsertKeyItem_TTLMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tbl := newTables()
		key := rapid.String().Draw(t, "key")
		id := slick.NewKeyId()

		nowMs := rapid.Uint64Range(0, 1_000_000).Draw(t, "now0")
		ttlMs := rapid.Uint64Range(1, 100_000).Draw(t, "ttl0")
		item, inserted, _ := tbl.upsertKeyItem(key, id, nil, nowMs, ttlMs)
		if !inserted {
			t.Fatalf("first upsert of a fresh (key, id) must report inserted=true")
		}
		prevExpiration := item.ExpirationMs

		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			nowMs += rapid.Uint64Range(0, 10_000).Draw(t, "dt")
			ttlMs = rapid.Uint64Range(0, 100_000).Draw(t, "ttl")
			item, inserted, _ = tbl.upsertKeyItem(key, id, nil, nowMs, ttlMs)
			if inserted {
				t.Fatalf("a (key, id) already present must never report inserted=true again")
			}
			if item.ExpirationMs < prevExpiration {
				t.Fatalf("expiration moved backward: %d -> %d", prevExpiration, item.ExpirationMs)
			}
			prevExpiration = item.ExpirationMs
		}
	})
}

// TestUpsertNodeItem_PreservesAddrsWhenEmpty covers the "keep last
// known address when a refresh carries none" branch.
func TestUpsertNodeItem_PreservesAddrsWhenEmpty(t *testing.T) {
	tbl := newTables()
	id := slick.NewNodeId()
	loc := slick.NodeLocation{{Host: "10.0.0.1", Port: 1888}}

	item, _, _ := tbl.upsertNodeItem(id, loc, 0, 1000)
	if len(item.Addrs) != 1 {
		t.Fatalf("expected initial insert to keep the address")
	}

	item, _, _ = tbl.upsertNodeItem(id, nil, 10, 1000)
	if len(item.Addrs) != 1 || item.Addrs[0] != loc[0] {
		t.Errorf("address was lost on a refresh carrying no new location: %v", item.Addrs)
	}
}
