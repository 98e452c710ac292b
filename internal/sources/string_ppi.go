package sources

import (
	"context"
	"fmt"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

// stringInteractionResponse mirrors the subset of the STRING-db protein
// network REST API's interaction list this adapter consumes.
type stringInteractionResponse []struct {
	PreferredNameA string  `json:"preferredName_A"`
	PreferredNameB string  `json:"preferredName_B"`
	Score          float64 `json:"score"`
}

// StringPPIAdapter fetches protein-protein interaction edges among kidney
// genes from STRING-db, stored as GeneAnnotation rows consumed by the
// network-analysis engine for graph construction.
type StringPPIAdapter struct {
	client         *baseClient
	scoreThreshold float64
}

// NewStringPPIAdapter creates a new STRING PPI adapter. scoreThreshold
// filters low-confidence edges (STRING combined_score is on a 0-1000 scale);
// a threshold of 0 keeps every reported edge.
func NewStringPPIAdapter(cfg domain.SourceConfig, limiters *safeguard.RateLimiterRegistry, breakers *safeguard.BreakerRegistry, scoreThreshold float64) *StringPPIAdapter {
	return &StringPPIAdapter{
		client:         newBaseClient(domain.SourceStringPPI, cfg, limiters, breakers),
		scoreThreshold: scoreThreshold,
	}
}

// Name implements Adapter.
func (a *StringPPIAdapter) Name() domain.SourceName { return domain.SourceStringPPI }

// SupportsIncremental implements Adapter.
func (a *StringPPIAdapter) SupportsIncremental() bool { return false }

// FetchPage implements Adapter. It makes one request to STRING's network
// endpoint, filtered only by required_score; no gene identifiers are sent,
// and fromPage only sets the reported PageNumber/TotalPages. Every returned
// edge comes back in that single page, which is always Done.
func (a *StringPPIAdapter) FetchPage(ctx context.Context, fromPage int, _ FetchMode) (*PageResult, error) {
	url := fmt.Sprintf("%s/api/json/network?required_score=%d", a.client.baseURL, int(a.scoreThreshold))

	var resp stringInteractionResponse
	if err := a.client.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	byGene := map[string]*domain.RawRecord{}
	for _, edge := range resp {
		if edge.Score < a.scoreThreshold {
			continue
		}
		addInteraction(byGene, edge.PreferredNameA, edge.PreferredNameB, edge.Score)
		addInteraction(byGene, edge.PreferredNameB, edge.PreferredNameA, edge.Score)
	}

	records := make([]domain.RawRecord, 0, len(byGene))
	for _, rec := range byGene {
		partners := rec.AnnotationData["interactions"].([]any)
		rec.EvidenceData["interaction_count"] = float64(len(partners))
		records = append(records, *rec)
	}

	return &PageResult{
		Records:    records,
		PageNumber: fromPage + 1,
		TotalPages: fromPage + 1,
		Done:       true,
	}, nil
}

func addInteraction(byGene map[string]*domain.RawRecord, gene, partner string, score float64) {
	if gene == "" || partner == "" {
		return
	}
	rec, ok := byGene[gene]
	if !ok {
		rec = &domain.RawRecord{
			GeneIdentifier: gene,
			RawSource:      domain.SourceStringPPI,
			EvidenceData:   map[string]any{},
			AnnotationData: map[string]any{"interactions": []any{}},
		}
		byGene[gene] = rec
	}
	rec.AnnotationData["interactions"] = append(rec.AnnotationData["interactions"].([]any), map[string]any{
		"partner": partner,
		"score":   score,
	})
}
