package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

// baseClient is the shared HTTP+safeguards plumbing every adapter composes:
// a base URL and http.Client wrapped in the per-source rate limiter,
// circuit breaker, and layered timeouts every request path applies.
type baseClient struct {
	source   domain.SourceName
	baseURL  string
	http     *http.Client
	limiters *safeguard.RateLimiterRegistry
	breakers *safeguard.BreakerRegistry
	timeouts domain.TimeoutConfig
}

func newBaseClient(source domain.SourceName, cfg domain.SourceConfig, limiters *safeguard.RateLimiterRegistry, breakers *safeguard.BreakerRegistry) *baseClient {
	return &baseClient{
		source:   source,
		baseURL:  cfg.BaseURL,
		http:     safeguard.NewHTTPClient(cfg.Timeouts),
		limiters: limiters,
		breakers: breakers,
		timeouts: cfg.Timeouts,
	}
}

// getJSON issues a rate-limited, circuit-breaker-wrapped GET request and
// decodes the JSON response body into dst. Each adapter fetches one page
// per getJSON call, so the three timeout layers nest here: the outer hard
// failsafe, the per-page deadline inside it, and the per-request
// http.Client timeout innermost.
func (c *baseClient) getJSON(ctx context.Context, url string, dst any) error {
	ctx, cancelFailsafe := safeguard.WithFailsafe(ctx, c.timeouts)
	defer cancelFailsafe()
	ctx, cancelPage := safeguard.WithPageDeadline(ctx, c.timeouts)
	defer cancelPage()

	if err := c.limiters.Wait(ctx, c.source); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", c.source, err)
	}

	_, err := c.breakers.Execute(c.source, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("%s returned status %d: %s", c.source, resp.StatusCode, string(body))
		}

		return nil, json.NewDecoder(resp.Body).Decode(dst)
	})

	if err != nil {
		return domain.NewCoreError(domain.KindTransientExternal, fmt.Sprintf("fetching from %s", c.source), err)
	}
	return nil
}
