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

func testSourceConfig(baseURL string) domain.SourceConfig {
	return domain.SourceConfig{
		Enabled: true,
		BaseURL: baseURL,
		Timeouts: domain.TimeoutConfig{
			PerRequest: 0,
		},
	}
}

func TestPanelAppAdapterFetchPageAggregatesByGene(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"count": 2,
			"next": "",
			"results": [
				{"entity_name": "PKD1", "panel": {"name": "Renal ciliopathies"}, "confidence_level": "3", "mode_of_inheritance": "AD", "phenotypes": ["Cystic kidney disease"]},
				{"entity_name": "PKD1", "panel": {"name": "Nephrology"}, "confidence_level": "3", "mode_of_inheritance": "AD", "phenotypes": []},
				{"entity_name": "COL4A5", "panel": {"name": "Alport syndrome"}, "confidence_level": "2", "mode_of_inheritance": "XL", "phenotypes": []}
			]
		}`)
	}))
	defer server.Close()

	limiters := safeguard.NewRateLimiterRegistry(nil)
	breakers := safeguard.NewBreakerRegistry()
	adapter := NewPanelAppAdapter(testSourceConfig(server.URL), limiters, breakers)

	result, err := adapter.FetchPage(context.Background(), 0, ModeFull)
	require.NoError(t, err)
	assert.True(t, result.Done)
	assert.Len(t, result.Records, 2)

	var pkd1 *domain.RawRecord
	for i := range result.Records {
		if result.Records[i].GeneIdentifier == "PKD1" {
			pkd1 = &result.Records[i]
		}
	}
	require.NotNil(t, pkd1)
	assert.Equal(t, float64(2), pkd1.EvidenceData["panel_count"])
}

func TestPanelAppAdapterSurfacesTransientErrorOnNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	limiters := safeguard.NewRateLimiterRegistry(nil)
	breakers := safeguard.NewBreakerRegistry()
	adapter := NewPanelAppAdapter(testSourceConfig(server.URL), limiters, breakers)

	_, err := adapter.FetchPage(context.Background(), 0, ModeFull)
	assert.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindTransientExternal))
}
