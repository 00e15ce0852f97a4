package transport

import (
	"math/rand"
	"time"
)

// JitteredPeriod returns a duration within +/-10% of period, so that a
// fleet of nodes started at the same instant does not converge on
// perfectly synchronized ticks.
func JitteredPeriod(period time.Duration) time.Duration {
	if period <= 0 {
		return period
	}
	jitter := period / 10
	if jitter <= 0 {
		return period
	}
	delta := time.Duration(rand.Int63n(int64(2*jitter))) - jitter
	return period + delta
}
