package scrape

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces scrape requests inside the configured delay window. The rate
// limiter enforces the minimum gap; a random jitter on top spreads requests
// up to the maximum so traffic does not look metronomic to the tour sites.
type Pacer struct {
	limiter *rate.Limiter

	mu     sync.Mutex
	rng    *rand.Rand
	jitter time.Duration
}

// NewPacer builds a pacer for the [minDelay, maxDelay] window. A
// non-positive minDelay disables rate limiting; maxDelay below minDelay is
// treated as equal to it.
func NewPacer(minDelay, maxDelay time.Duration) *Pacer {
	limit := rate.Inf
	if minDelay > 0 {
		limit = rate.Every(minDelay)
	}

	jitter := maxDelay - minDelay
	if jitter < 0 {
		jitter = 0
	}

	return &Pacer{
		limiter: rate.NewLimiter(limit, 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		jitter:  jitter,
	}
}

// Wait blocks until the next request may proceed, honoring context
// cancellation during both the rate-limit wait and the jitter sleep.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	jitter := p.nextJitter()
	if jitter <= 0 {
		return nil
	}

	timer := time.NewTimer(jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Pacer) nextJitter() time.Duration {
	if p.jitter <= 0 {
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return time.Duration(p.rng.Int63n(int64(p.jitter)))
}
