package safeguard

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// NewHTTPClient builds an http.Client whose transport enforces the
// connect/read/write legs of the layered timeouts: the outer failsafe
// cancellation is left to the caller wrapping each call in
// context.WithTimeout(ctx, cfg.Failsafe), the usual two-layer composition
// of http.Client{Timeout: ...} plus a context deadline at the call site.
func NewHTTPClient(cfg domain.TimeoutConfig) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout(cfg)}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: cfg.PerRequest,
		IdleConnTimeout:       90 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.PerRequest,
	}
}

func connectTimeout(cfg domain.TimeoutConfig) time.Duration {
	if cfg.PerRequest > 0 && cfg.PerRequest < 30*time.Second {
		return cfg.PerRequest
	}
	return 30 * time.Second
}

// WithFailsafe wraps ctx with the outer cancellation deadline. Its caller,
// getJSON, applies it to one page request, so it bounds that request's
// rate-limit wait and HTTP round trip; each time the orchestrator retries a
// failed page, the retry runs under a new failsafe deadline.
func WithFailsafe(ctx context.Context, cfg domain.TimeoutConfig) (context.Context, context.CancelFunc) {
	failsafe := cfg.Failsafe
	if failsafe <= 0 {
		failsafe = 120 * time.Second
	}
	return context.WithTimeout(ctx, failsafe)
}

// WithPageDeadline bounds a single page fetch+parse cycle, the middle
// layer between the per-request HTTP timeout and the outer failsafe.
func WithPageDeadline(ctx context.Context, cfg domain.TimeoutConfig) (context.Context, context.CancelFunc) {
	perPage := cfg.PerPage
	if perPage <= 0 {
		perPage = 90 * time.Second
	}
	return context.WithTimeout(ctx, perPage)
}
