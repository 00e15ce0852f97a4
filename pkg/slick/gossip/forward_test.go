package gossip

import "testing"

func TestShouldForward(t *testing.T) {
	const ttlConfigured = 1000

	cases := []struct {
		name       string
		inserted   bool
		ttlBefore  uint64
		incomingTTL uint64
		want       bool
	}{
		{"new item always forwards", true, 0, 50, true},
		{"fresh item below half-life suppressed", false, 900, 900, false},
		{"past half-life forwards", false, 400, 400, true},
		{"past half-life but incoming stale suppressed", false, 400, 50, false},
		{"exactly at half-life not yet past", false, 500, 500, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := shouldForward(tc.inserted, tc.ttlBefore, ttlConfigured, tc.incomingTTL)
			if got != tc.want {
				t.Errorf("shouldForward(%v, %d, %d, %d) = %v, want %v",
					tc.inserted, tc.ttlBefore, ttlConfigured, tc.incomingTTL, got, tc.want)
			}
		})
	}
}
