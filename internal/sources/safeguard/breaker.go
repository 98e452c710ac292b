// Package safeguard implements the per-adapter resilience primitives every
// source adapter's request path applies: circuit
// breaking, rate limiting, and triple-nested timeouts.
package safeguard

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// BreakerRegistry holds one named gobreaker.CircuitBreaker per source,
// keyed by domain.SourceName, so every adapter's request path shares its
// source's breaker state.
type BreakerRegistry struct {
	breakers map[domain.SourceName]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry builds a circuit breaker for every known source with
// conservative settings: 3 requests before tripping, 60% failure ratio,
// 60s open-to-half-open timeout.
func NewBreakerRegistry() *BreakerRegistry {
	reg := &BreakerRegistry{breakers: make(map[domain.SourceName]*gobreaker.CircuitBreaker)}
	for _, source := range domain.AllSources {
		reg.breakers[source] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        string(source),
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
		})
	}
	return reg
}

// For returns the breaker for a source, creating a default one on the fly
// if the source is not in the static registry (e.g. an uploaded panel
// source identified only at runtime).
func (r *BreakerRegistry) For(source domain.SourceName) *gobreaker.CircuitBreaker {
	if b, ok := r.breakers[source]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: string(source)})
	r.breakers[source] = b
	return b
}

// Execute runs fn through the named source's circuit breaker.
func (r *BreakerRegistry) Execute(source domain.SourceName, fn func() (any, error)) (any, error) {
	return r.For(source).Execute(fn)
}

// IsOpen reports whether fetching would currently trip the circuit.
func (r *BreakerRegistry) IsOpen(source domain.SourceName) bool {
	return r.For(source).State() == gobreaker.StateOpen
}
