package cache

import "golang.org/x/time/rate"

// sweepLoop periodically trims entries idle longer than the configured
// timeout, at most TrimBatchSize per sweep.
//
// Sweeps are paced by a token bucket refilled once per SweepInterval. A slow
// listener delays the next sweep; missed sweeps are not queued.
func (c *Cache[K, V]) sweepLoop() {
	defer c.wg.Done()

	limiter := rate.NewLimiter(rate.Every(c.sweepEvery), 1)
	// Spend the initial token so the first sweep waits a full interval.
	limiter.Allow()

	for {
		if err := limiter.Wait(c.ctx); err != nil {
			// Close canceled ctx.
			return
		}

		removed := c.TrimExpired(c.trimBatch, c.idleTimeout)
		if len(removed) > 0 {
			c.log.LogSweep(len(removed), c.ListLen())
		}
	}
}
