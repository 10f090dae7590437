package browser

import (
	"context"
	"time"
)

// Stabilize polls sample until two consecutive samples agree or maxSamples
// have been taken. LCP candidates can keep growing while late content
// renders, so a single reading is never trusted; two identical consecutive
// readings are. A not-ok reading is a failure to observe, not a new value:
// it is skipped and deliberately does not reset agreement, so a transient
// sampling error between two equal readings still counts as stable. Returns
// the last observed value and whether any candidate was seen at all.
func Stabilize(ctx context.Context, sample func() (float64, bool), interval time.Duration, maxSamples int) (float64, bool) {
	var (
		last float64
		seen bool
	)
	for i := 0; i < maxSamples; i++ {
		v, ok := sample()
		if ok {
			if seen && v == last {
				return v, true
			}
			last, seen = v, true
		}
		if i == maxSamples-1 {
			break
		}
		select {
		case <-ctx.Done():
			return last, seen
		case <-time.After(interval):
		}
	}
	return last, seen
}
