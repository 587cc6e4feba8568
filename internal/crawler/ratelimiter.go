package crawler

import (
	"context"

	"golang.org/x/time/rate"
)

// newGlobalLimiter builds the engine-wide token bucket: it replenishes at
// maxScansPerMinute/60 tokens/second with a burst proportional to the rate.
// A non-positive rate disables limiting (nil limiter).
func newGlobalLimiter(maxScansPerMinute int) *rate.Limiter {
	if maxScansPerMinute <= 0 {
		return nil
	}
	perSecond := rate.Limit(float64(maxScansPerMinute) / 60.0)
	burst := maxScansPerMinute / 6
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(perSecond, burst)
}

// waitForToken blocks until the limiter releases a token, or ctx is
// cancelled. A nil limiter never blocks.
func waitForToken(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
