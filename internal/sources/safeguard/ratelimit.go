package safeguard

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// RateLimiterRegistry holds one shared, singleton limiter per source: every
// call to a given external host passes through the same limiter regardless
// of which request initiated it. Burst is always 1, so requests pace evenly
// at the configured rate instead of front-loading a bucket-refill burst.
type RateLimiterRegistry struct {
	mu       sync.Mutex
	limiters map[domain.SourceName]*rate.Limiter
}

// NewRateLimiterRegistry builds the per-source limiter registry from
// configured requests-per-second values.
func NewRateLimiterRegistry(perSecond map[domain.SourceName]float64) *RateLimiterRegistry {
	reg := &RateLimiterRegistry{limiters: make(map[domain.SourceName]*rate.Limiter, len(perSecond))}
	for source, rps := range perSecond {
		if rps <= 0 {
			rps = 3
		}
		reg.limiters[source] = rate.NewLimiter(rate.Limit(rps), 1)
	}
	return reg
}

// Wait blocks until the source's shared limiter permits the next request,
// or ctx is cancelled.
func (r *RateLimiterRegistry) Wait(ctx context.Context, source domain.SourceName) error {
	r.mu.Lock()
	limiter, ok := r.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(3, 1)
		r.limiters[source] = limiter
	}
	r.mu.Unlock()

	return limiter.Wait(ctx)
}
