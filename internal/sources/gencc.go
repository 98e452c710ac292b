package sources

import (
	"context"
	"fmt"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

// genCCSubmissionResponse mirrors the subset of GenCC's gene-disease
// submission export this adapter consumes.
type genCCSubmissionResponse struct {
	Submissions []struct {
		GeneSymbol        string `json:"gene_symbol"`
		DiseaseLabel      string `json:"disease_title"`
		Classification    string `json:"classification_title"`
		ModeOfInheritance string `json:"moi_title"`
		SubmitterName     string `json:"submitter_title"`
	} `json:"submissions"`
	NextPage int `json:"next_page"`
}

// GenCCAdapter fetches gene-disease validity submissions aggregated across
// multiple curating groups from the Gene Curation Coalition.
type GenCCAdapter struct {
	client *baseClient
}

// NewGenCCAdapter creates a new GenCC adapter.
func NewGenCCAdapter(cfg domain.SourceConfig, limiters *safeguard.RateLimiterRegistry, breakers *safeguard.BreakerRegistry) *GenCCAdapter {
	return &GenCCAdapter{client: newBaseClient(domain.SourceGenCC, cfg, limiters, breakers)}
}

// Name implements Adapter.
func (a *GenCCAdapter) Name() domain.SourceName { return domain.SourceGenCC }

// SupportsIncremental implements Adapter.
func (a *GenCCAdapter) SupportsIncremental() bool { return false }

// FetchPage implements Adapter, grouping per-submitter classifications by
// gene symbol the same way ClinGenAdapter does, using the GenCC-specific
// classification vocabulary (Definitive down to No Known Disease
// Relationship).
func (a *GenCCAdapter) FetchPage(ctx context.Context, fromPage int, _ FetchMode) (*PageResult, error) {
	url := fmt.Sprintf("%s/gene-disease?page=%d", a.client.baseURL, fromPage+1)

	var resp genCCSubmissionResponse
	if err := a.client.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	byGene := map[string]*domain.RawRecord{}
	for _, s := range resp.Submissions {
		if s.GeneSymbol == "" {
			continue
		}
		rec, ok := byGene[s.GeneSymbol]
		if !ok {
			rec = &domain.RawRecord{
				GeneIdentifier: s.GeneSymbol,
				RawSource:      domain.SourceGenCC,
				EvidenceData: map[string]any{
					"classifications": []any{},
					"diseases":        []any{},
					"submitters":      []any{},
				},
			}
			byGene[s.GeneSymbol] = rec
		}
		data := rec.EvidenceData
		data["classifications"] = append(data["classifications"].([]any), s.Classification)
		if s.DiseaseLabel != "" {
			data["diseases"] = append(data["diseases"].([]any), s.DiseaseLabel)
		}
		if s.SubmitterName != "" {
			data["submitters"] = append(data["submitters"].([]any), s.SubmitterName)
		}
	}

	records := make([]domain.RawRecord, 0, len(byGene))
	for _, rec := range byGene {
		records = append(records, *rec)
	}

	return &PageResult{
		Records:    records,
		PageNumber: fromPage + 1,
		TotalPages: fromPage + 1,
		Done:       resp.NextPage == 0,
	}, nil
}
