package sources

import (
	"context"
	"fmt"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

// clinVarSummaryResponse mirrors the subset of ClinVar's gene-level variant
// summary export this adapter consumes.
type clinVarSummaryResponse struct {
	Genes []struct {
		Symbol                string   `json:"gene_symbol"`
		PathogenicCount       int      `json:"pathogenic_count"`
		LikelyPathogenicCount int      `json:"likely_pathogenic_count"`
		VUSCount              int      `json:"vus_count"`
		ConditionsReported    []string `json:"conditions_reported"`
	} `json:"genes"`
	NextPage int `json:"next_page"`
}

// ClinVarAdapter fetches gene-level pathogenic/likely-pathogenic variant
// counts from NCBI ClinVar.
type ClinVarAdapter struct {
	client *baseClient
}

// NewClinVarAdapter creates a new ClinVar adapter.
func NewClinVarAdapter(cfg domain.SourceConfig, limiters *safeguard.RateLimiterRegistry, breakers *safeguard.BreakerRegistry) *ClinVarAdapter {
	return &ClinVarAdapter{client: newBaseClient(domain.SourceClinVar, cfg, limiters, breakers)}
}

// Name implements Adapter.
func (a *ClinVarAdapter) Name() domain.SourceName { return domain.SourceClinVar }

// SupportsIncremental implements Adapter.
func (a *ClinVarAdapter) SupportsIncremental() bool { return false }

// FetchPage implements Adapter.
func (a *ClinVarAdapter) FetchPage(ctx context.Context, fromPage int, _ FetchMode) (*PageResult, error) {
	url := fmt.Sprintf("%s/gene_condition_summary?page=%d", a.client.baseURL, fromPage+1)

	var resp clinVarSummaryResponse
	if err := a.client.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.RawRecord, 0, len(resp.Genes))
	for _, g := range resp.Genes {
		if g.Symbol == "" {
			continue
		}
		conditions := make([]any, 0, len(g.ConditionsReported))
		for _, c := range g.ConditionsReported {
			conditions = append(conditions, c)
		}

		records = append(records, domain.RawRecord{
			GeneIdentifier: g.Symbol,
			RawSource:      domain.SourceClinVar,
			EvidenceData: map[string]any{
				"pathogenic_count":        float64(g.PathogenicCount),
				"likely_pathogenic_count": float64(g.LikelyPathogenicCount),
				"vus_count":               float64(g.VUSCount),
				"conditions_reported":     conditions,
				"count":                   float64(g.PathogenicCount + g.LikelyPathogenicCount),
			},
		})
	}

	return &PageResult{
		Records:    records,
		PageNumber: fromPage + 1,
		TotalPages: fromPage + 1,
		Done:       resp.NextPage == 0,
	}, nil
}
