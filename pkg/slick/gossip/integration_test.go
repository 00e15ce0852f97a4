package gossip

import (
	"sync"
	"testing"
	"time"

	"github.com/rattab/slick/pkg/slick"
)

// TestDiscoverBeforePublish is end-to-end scenario 1 from spec.md §8:
// A registers a watch before B publishes; A's callback must still fire
// once B's advertisement propagates across the one edge between them.
func TestDiscoverBeforePublish(t *testing.T) {
	portA := freePort(t)
	portB := freePort(t)

	a := newTestEngine(t, portA, nil)
	b := newTestEngine(t, portB, []string{"127.0.0.1:" + itoaTest(portA)})

	if !pollBoth(t, a, b, 3*time.Second, func() bool {
		return len(snapshotOf(t, a).Nodes) >= 2 && len(snapshotOf(t, b).Nodes) >= 2
	}) {
		t.Fatal("A and B never formed an edge")
	}

	var mu sync.Mutex
	var got []byte
	var fired int
	if _, err := a.Discover("k0", func(h slick.WatchHandle, id slick.KeyId, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		fired++
		got = payload
	}); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if err := b.Publish("k0", []byte{1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	done := pollBoth(t, a, b, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired > 0
	})
	if !done {
		t.Fatal("A's watcher never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("watcher fired %d times, want exactly 1", fired)
	}
	if len(got) != 1 || got[0] != 1 {
		t.Errorf("payload = %v, want [1]", got)
	}
}

// TestPublishBeforeDiscover is end-to-end scenario 2: A publishes
// first, and B's later discover still resolves it via the query/fetch
// path rather than missing the already-settled advertisement.
func TestPublishBeforeDiscover(t *testing.T) {
	portA := freePort(t)
	portB := freePort(t)

	a := newTestEngine(t, portA, nil)
	b := newTestEngine(t, portB, []string{"127.0.0.1:" + itoaTest(portA)})

	if !pollBoth(t, a, b, 3*time.Second, func() bool {
		return len(snapshotOf(t, a).Nodes) >= 2 && len(snapshotOf(t, b).Nodes) >= 2
	}) {
		t.Fatal("A and B never formed an edge")
	}

	if err := a.Publish("k1", []byte{2}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// let the advertisement settle onto B before B registers its watch
	pollBoth(t, a, b, 2*time.Second, func() bool { return false })

	var mu sync.Mutex
	var got []byte
	if _, err := b.Discover("k1", func(h slick.WatchHandle, id slick.KeyId, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = payload
	}); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	done := pollBoth(t, a, b, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	if !done {
		t.Fatal("B's watcher never resolved A's publication")
	}
	mu.Lock()
	defer mu.Unlock()
	if got[0] != 2 {
		t.Errorf("payload = %v, want [2]", got)
	}
}

// TestSeedRecovery is a bounded version of end-to-end scenario 3: a
// three-node line A-B-C where C seeds only on B. Killing B can leave C
// without edges (isolation itself is not asserted); restarting B lets C
// rejoin without any action on C.
func TestSeedRecovery(t *testing.T) {
	portA := freePort(t)
	portB := freePort(t)
	portC := freePort(t)

	a := newTestEngine(t, portA, []string{"127.0.0.1:" + itoaTest(portB)})
	b := newTestEngine(t, portB, []string{"127.0.0.1:" + itoaTest(portA)})
	c := newTestEngine(t, portC, []string{"127.0.0.1:" + itoaTest(portB)})

	if !pollAll(t, []*Engine{a, b, c}, 3*time.Second, func() bool {
		return snapshotOf(t, c).EdgeCount >= 1
	}) {
		t.Fatal("C never connected to B")
	}

	if err := b.Shutdown(); err != nil {
		t.Fatalf("Shutdown B: %v", err)
	}

	// Give the socket teardown time to propagate; C and A must not
	// crash or wedge while B is unreachable.
	pollAll(t, []*Engine{a, c}, 1*time.Second, func() bool { return false })

	// Restart B on the same address, with no seeds of its own. C's
	// periodic seed retry (recoverFromIsolation, triggered once C has
	// zero edges) or its random-connect overlay rebalancing should
	// reconnect it without any direct action on C.
	b2 := newTestEngine(t, portB, nil)
	if !pollAll(t, []*Engine{a, b2, c}, 5*time.Second, func() bool {
		return snapshotOf(t, c).EdgeCount >= 1
	}) {
		t.Fatal("C never rejoined the swarm after B restarted")
	}
}

// TestTTLExpiry is end-to-end scenario 4: a short-lived publication
// disappears from the remote peer's key table once its TTL lapses,
// with no further action from the publisher.
func TestTTLExpiry(t *testing.T) {
	portA := freePort(t)
	portB := freePort(t)

	const ttl = 100 * time.Millisecond
	a := newTestEngineTTL(t, portA, nil, ttl)
	b := newTestEngineTTL(t, portB, []string{"127.0.0.1:" + itoaTest(portA)}, ttl)

	if err := a.Publish("ephemeral", []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if !pollBoth(t, a, b, 2*time.Second, func() bool {
		return hasKey(snapshotOf(t, b), "ephemeral")
	}) {
		t.Fatal("B never learned of the short-lived key")
	}

	if !pollBoth(t, a, b, 2*time.Second, func() bool {
		return !hasKey(snapshotOf(t, b), "ephemeral")
	}) {
		t.Fatal("B still holds the key long after its TTL should have lapsed")
	}
}

func hasKey(s Snapshot, key string) bool {
	for _, k := range s.Keys {
		if k.Key == key {
			return true
		}
	}
	return false
}

// TestIdempotentRepublish covers the Idempotence property from
// spec.md §8: republishing the same key delivers exactly one more
// callback per watcher, not a duplicate for the unchanged payload and
// not a missed one for the new payload.
func TestIdempotentRepublish(t *testing.T) {
	portA := freePort(t)
	portB := freePort(t)

	a := newTestEngine(t, portA, nil)
	b := newTestEngine(t, portB, []string{"127.0.0.1:" + itoaTest(portA)})

	if !pollBoth(t, a, b, 3*time.Second, func() bool {
		return len(snapshotOf(t, a).Nodes) >= 2 && len(snapshotOf(t, b).Nodes) >= 2
	}) {
		t.Fatal("A and B never formed an edge")
	}

	var mu sync.Mutex
	var payloads [][]byte
	if _, err := b.Discover("rk", func(h slick.WatchHandle, id slick.KeyId, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		payloads = append(payloads, payload)
	}); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if err := a.Publish("rk", []byte{1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !pollBoth(t, a, b, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) >= 1
	}) {
		t.Fatal("first publish never reached the watcher")
	}

	if err := a.Publish("rk", []byte{2}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !pollBoth(t, a, b, 3*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(payloads) >= 2
	}) {
		t.Fatal("second publish never reached the watcher")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(payloads) != 2 {
		t.Fatalf("watcher observed %d payloads, want exactly 2", len(payloads))
	}
	if payloads[0][0] != 1 || payloads[1][0] != 2 {
		t.Errorf("payloads = %v, want [[1] [2]]", payloads)
	}
}

// TestInvariantsThreeNodeSwarm checks what each node's snapshot shows of
// invariants 1 and 2 from spec.md §8 on a live three-node swarm after
// warmup: no node is flagged as an edge twice, the edge-flagged nodes
// match EdgeCount, and EdgeCount never exceeds ConnectionCount.
func TestInvariantsThreeNodeSwarm(t *testing.T) {
	portA := freePort(t)
	portB := freePort(t)
	portC := freePort(t)

	a := newTestEngine(t, portA, nil)
	b := newTestEngine(t, portB, []string{"127.0.0.1:" + itoaTest(portA)})
	c := newTestEngine(t, portC, []string{"127.0.0.1:" + itoaTest(portA)})

	engines := []*Engine{a, b, c}
	if !pollAll(t, engines, 3*time.Second, func() bool {
		for _, e := range engines {
			if len(snapshotOf(t, e).Nodes) < 3 {
				return false
			}
		}
		return true
	}) {
		t.Fatal("the swarm never converged on full membership")
	}
	// let the overlay settle a few more ticks
	pollAll(t, engines, 500*time.Millisecond, func() bool { return false })

	for _, e := range engines {
		s := snapshotOf(t, e)
		seen := map[slick.NodeId]bool{}
		edgeCount := 0
		for _, ns := range s.Nodes {
			if !ns.Edge {
				continue
			}
			edgeCount++
			if seen[ns.ID] {
				t.Errorf("node %s reported as an edge more than once in one snapshot", ns.ID)
			}
			seen[ns.ID] = true
		}
		if edgeCount != s.EdgeCount {
			t.Errorf("edge-flagged nodes (%d) disagree with EdgeCount (%d)", edgeCount, s.EdgeCount)
		}
		if s.EdgeCount > s.ConnectionCount {
			t.Errorf("EdgeCount (%d) exceeds ConnectionCount (%d)", s.EdgeCount, s.ConnectionCount)
		}
	}
}

// TestRandomConnectDegreeBound is end-to-end scenario 6: in a 100-node
// swarm with TTL long enough to keep every node live, each node's
// connection count settles within the spec's bound around
// ceil(log2(100)) after warmup. It spins up 100 real loopback engines
// and is gated behind -short like the teacher's own slower
// integration suites.
func TestRandomConnectDegreeBound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 100-node swarm test in -short mode")
	}

	const n = 100
	engines := make([]*Engine, n)
	ports := make([]int, n)
	for i := 0; i < n; i++ {
		ports[i] = freePort(t)
	}
	seed := "127.0.0.1:" + itoaTest(ports[0])
	for i := 0; i < n; i++ {
		var seeds []string
		if i != 0 {
			seeds = []string{seed}
		}
		engines[i] = newTestEngine(t, ports[i], seeds)
	}

	if !pollAll(t, engines, 60*time.Second, func() bool {
		for _, e := range engines {
			if len(snapshotOf(t, e).Nodes) < n {
				return false
			}
		}
		return true
	}) {
		t.Fatal("the 100-node swarm never converged on full membership")
	}
	// allow the overlay to rebalance toward target degree
	pollAll(t, engines, 20*time.Second, func() bool { return false })

	target := ceilLog2(n)
	lower := target - 2
	upper := target + ceilLog2(target)
	for i, e := range engines {
		got := snapshotOf(t, e).ConnectionCount
		if got < lower || got > upper {
			t.Errorf("node %d: connections = %d, want within [%d, %d]", i, got, lower, upper)
		}
	}
}
