package sources

import (
	"context"
	"fmt"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

// clinGenValidityResponse mirrors the subset of ClinGen's Gene-Disease
// Validity CSV-derived JSON export this adapter consumes.
type clinGenValidityResponse struct {
	Entries []struct {
		Gene struct {
			Symbol string `json:"GENE SYMBOL"`
		} `json:"gene"`
		Disease struct {
			Label string `json:"DISEASE LABEL"`
		} `json:"disease"`
		Classification string `json:"CLASSIFICATION"`
		MOI            string `json:"MOI"`
	} `json:"entries"`
	NextOffset int `json:"next_offset"`
	Total      int `json:"total"`
}

// ClinGenAdapter fetches gene-disease validity classifications from the
// ClinGen Gene-Disease Validity curation database.
type ClinGenAdapter struct {
	client   *baseClient
	pageSize int
}

// NewClinGenAdapter creates a new ClinGen adapter.
func NewClinGenAdapter(cfg domain.SourceConfig, limiters *safeguard.RateLimiterRegistry, breakers *safeguard.BreakerRegistry) *ClinGenAdapter {
	return &ClinGenAdapter{
		client:   newBaseClient(domain.SourceClinGen, cfg, limiters, breakers),
		pageSize: 100,
	}
}

// Name implements Adapter.
func (a *ClinGenAdapter) Name() domain.SourceName { return domain.SourceClinGen }

// SupportsIncremental implements Adapter.
func (a *ClinGenAdapter) SupportsIncremental() bool { return false }

// FetchPage implements Adapter. ClinGen's validity export groups entries by
// gene, so each page is reduced to one RawRecord per gene symbol carrying a
// classifications[] list (scored by CategoricalNormalizer against the
// strongest reported classification) plus the associated disease labels and
// modes of inheritance.
func (a *ClinGenAdapter) FetchPage(ctx context.Context, fromPage int, _ FetchMode) (*PageResult, error) {
	offset := fromPage * a.pageSize
	url := fmt.Sprintf("%s/api/validity?offset=%d&limit=%d", a.client.baseURL, offset, a.pageSize)

	var resp clinGenValidityResponse
	if err := a.client.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	byGene := map[string]*domain.RawRecord{}
	for _, e := range resp.Entries {
		if e.Gene.Symbol == "" {
			continue
		}
		rec, ok := byGene[e.Gene.Symbol]
		if !ok {
			rec = &domain.RawRecord{
				GeneIdentifier: e.Gene.Symbol,
				RawSource:      domain.SourceClinGen,
				EvidenceData: map[string]any{
					"classifications":      []any{},
					"diseases":             []any{},
					"modes_of_inheritance": []any{},
				},
			}
			byGene[e.Gene.Symbol] = rec
		}
		data := rec.EvidenceData
		data["classifications"] = append(data["classifications"].([]any), e.Classification)
		if e.Disease.Label != "" {
			data["diseases"] = append(data["diseases"].([]any), e.Disease.Label)
		}
		if e.MOI != "" {
			data["modes_of_inheritance"] = append(data["modes_of_inheritance"].([]any), e.MOI)
		}
	}

	records := make([]domain.RawRecord, 0, len(byGene))
	for _, rec := range byGene {
		records = append(records, *rec)
	}

	totalPages := 1
	if resp.Total > 0 {
		totalPages = (resp.Total + a.pageSize - 1) / a.pageSize
	}

	return &PageResult{
		Records:    records,
		PageNumber: fromPage + 1,
		TotalPages: totalPages,
		Done:       resp.NextOffset == 0 || resp.NextOffset >= resp.Total,
	}, nil
}
