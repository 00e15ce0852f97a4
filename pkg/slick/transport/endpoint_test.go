package transport

import "testing"

// TestQueueFrameOverflow is end-to-end scenario 5 from spec.md §8: once
// a connection's send queue is at capacity, further payloads are
// dropped with ErrQueueOverflow rather than blocking, and everything
// queued before the limit was reached is preserved in order.
func TestQueueFrameOverflow(t *testing.T) {
	const maxQueue = 256

	c := &ConnState{}
	for i := 0; i < maxQueue; i++ {
		if err := c.queueFrame([]byte{byte(i)}, maxQueue); err != nil {
			t.Fatalf("queueFrame(%d): unexpected error %v", i, err)
		}
	}
	if len(c.sendQ) != maxQueue {
		t.Fatalf("sendQ length = %d, want %d", len(c.sendQ), maxQueue)
	}

	overflowed := 0
	const attempts = 10_000 - maxQueue
	for i := 0; i < attempts; i++ {
		if err := c.queueFrame([]byte{0xff}, maxQueue); err != nil {
			overflowed++
		}
	}
	if overflowed != attempts {
		t.Errorf("overflowed = %d, want all %d attempts past the cap to be dropped", overflowed, attempts)
	}
	if len(c.sendQ) != maxQueue {
		t.Errorf("sendQ grew past the cap: len = %d, want %d", len(c.sendQ), maxQueue)
	}

	// the first maxQueue payloads must still be present, in order
	for i := 0; i < maxQueue; i++ {
		frame := c.sendQ[i]
		// codec.AppendFrame prefixes a length header; the payload byte
		// is the last byte of the frame.
		if got := frame[len(frame)-1]; got != byte(i) {
			t.Errorf("sendQ[%d] payload byte = %d, want %d", i, got, i)
		}
	}
}
