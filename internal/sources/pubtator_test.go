package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

type fakeExistingIDChecker struct {
	existing map[string]bool
}

func (f *fakeExistingIDChecker) ExistingIDs(_ context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = f.existing[id]
	}
	return out, nil
}

func TestPubTatorAdapterFetchPageShapesEvidence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"page": 1,
			"total_pages": 3,
			"results": [
				{"pmid": "111", "score": 9.1, "mentions": [{"gene_symbol": "PKD1", "text": "PKD1 variant"}]},
				{"pmid": "112", "score": 8.5, "mentions": [{"gene_symbol": "PKD1", "text": "PKD1 again"}]}
			]
		}`)
	}))
	defer server.Close()

	limiters := safeguard.NewRateLimiterRegistry(nil)
	breakers := safeguard.NewBreakerRegistry()
	adapter := NewPubTatorAdapter(testSourceConfig(server.URL), limiters, breakers, nil)

	result, err := adapter.FetchPage(context.Background(), 0, ModeFull)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "PKD1", result.Records[0].GeneIdentifier)
	assert.Equal(t, float64(2), result.Records[0].EvidenceData["publication_count"])
	assert.False(t, result.Done)
}

func TestPubTatorAdapterSmartModeComputesDuplicateRate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"page": 1,
			"total_pages": 1,
			"results": [
				{"pmid": "111", "score": 9.1, "mentions": []},
				{"pmid": "112", "score": 8.5, "mentions": []}
			]
		}`)
	}))
	defer server.Close()

	limiters := safeguard.NewRateLimiterRegistry(nil)
	breakers := safeguard.NewBreakerRegistry()
	checker := &fakeExistingIDChecker{existing: map[string]bool{"111": true}}
	adapter := NewPubTatorAdapter(testSourceConfig(server.URL), limiters, breakers, checker)

	result, err := adapter.FetchPage(context.Background(), 0, ModeSmart)
	require.NoError(t, err)
	assert.Equal(t, 0.5, result.DuplicateRate)
}

func TestPubTatorShouldStopSmartAfterConsecutiveHighDuplicatePages(t *testing.T) {
	cfg := testSourceConfig("http://unused")
	cfg.SmartUpdate = domain.SmartUpdateConfig{DuplicateThreshold: 0.9, ConsecutivePages: 3, MaxPages: 500}
	adapter := NewPubTatorAdapter(cfg, safeguard.NewRateLimiterRegistry(nil), safeguard.NewBreakerRegistry(), nil)

	consecutive := 0
	stop, consecutive := adapter.ShouldStopSmart(1, consecutive, 0.95)
	assert.False(t, stop)
	stop, consecutive = adapter.ShouldStopSmart(2, consecutive, 0.95)
	assert.False(t, stop)
	stop, consecutive = adapter.ShouldStopSmart(3, consecutive, 0.95)
	assert.True(t, stop)
	assert.Equal(t, 3, consecutive)
}

func TestPubTatorShouldStopSmartResetsOnLowDuplicatePage(t *testing.T) {
	adapter := NewPubTatorAdapter(testSourceConfig("http://unused"), safeguard.NewRateLimiterRegistry(nil), safeguard.NewBreakerRegistry(), nil)

	stop, consecutive := adapter.ShouldStopSmart(1, 2, 0.2)
	assert.False(t, stop)
	assert.Equal(t, 0, consecutive)
}

func TestPubTatorShouldStopSmartHonorsAbsolutePageCap(t *testing.T) {
	cfg := testSourceConfig("http://unused")
	cfg.SmartUpdate = domain.SmartUpdateConfig{DuplicateThreshold: 0.9, ConsecutivePages: 3, MaxPages: 5}
	adapter := NewPubTatorAdapter(cfg, safeguard.NewRateLimiterRegistry(nil), safeguard.NewBreakerRegistry(), nil)

	stop, _ := adapter.ShouldStopSmart(5, 0, 0.1)
	assert.True(t, stop)
}
