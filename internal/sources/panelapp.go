package sources

import (
	"context"
	"fmt"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

// panelAppResponse mirrors the subset of the PanelApp REST API's paginated
// gene-list response this adapter consumes.
type panelAppResponse struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []struct {
		EntityName string `json:"entity_name"`
		Panel      struct {
			Name string `json:"name"`
			ID   int    `json:"id"`
		} `json:"panel"`
		ConfidenceLevel   string   `json:"confidence_level"`
		ModeOfInheritance string   `json:"mode_of_inheritance"`
		Phenotypes        []string `json:"phenotypes"`
	} `json:"results"`
}

// PanelAppAdapter fetches gene-panel membership and evidence level from
// Genomics England PanelApp.
type PanelAppAdapter struct {
	client *baseClient
}

// NewPanelAppAdapter creates a new PanelApp adapter.
func NewPanelAppAdapter(cfg domain.SourceConfig, limiters *safeguard.RateLimiterRegistry, breakers *safeguard.BreakerRegistry) *PanelAppAdapter {
	return &PanelAppAdapter{client: newBaseClient(domain.SourcePanelApp, cfg, limiters, breakers)}
}

// Name implements Adapter.
func (a *PanelAppAdapter) Name() domain.SourceName { return domain.SourcePanelApp }

// SupportsIncremental implements Adapter.
func (a *PanelAppAdapter) SupportsIncremental() bool { return false }

// FetchPage implements Adapter, paginating the PanelApp gene endpoint and
// shaping results into the PanelApp evidence_data keys: panels[],
// evidence_levels[], modes_of_inheritance[], phenotypes[], panel_count.
func (a *PanelAppAdapter) FetchPage(ctx context.Context, fromPage int, _ FetchMode) (*PageResult, error) {
	url := fmt.Sprintf("%s/genes/?page=%d&confidence_level=3", a.client.baseURL, fromPage+1)

	var resp panelAppResponse
	if err := a.client.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	byGene := map[string]*domain.RawRecord{}
	for _, row := range resp.Results {
		rec, ok := byGene[row.EntityName]
		if !ok {
			rec = &domain.RawRecord{
				GeneIdentifier: row.EntityName,
				RawSource:      domain.SourcePanelApp,
				EvidenceData: map[string]any{
					"panels":               []any{},
					"evidence_levels":      []any{},
					"modes_of_inheritance": []any{},
					"phenotypes":           []any{},
				},
			}
			byGene[row.EntityName] = rec
		}
		data := rec.EvidenceData
		if row.ConfidenceLevel == "3" {
			data["panels"] = append(data["panels"].([]any), row.Panel.Name)
		}
		data["evidence_levels"] = append(data["evidence_levels"].([]any), row.ConfidenceLevel)
		data["modes_of_inheritance"] = append(data["modes_of_inheritance"].([]any), row.ModeOfInheritance)
		for _, p := range row.Phenotypes {
			data["phenotypes"] = append(data["phenotypes"].([]any), p)
		}
	}

	records := make([]domain.RawRecord, 0, len(byGene))
	for _, rec := range byGene {
		rec.EvidenceData["panel_count"] = float64(len(rec.EvidenceData["panels"].([]any)))
		records = append(records, *rec)
	}

	totalPages := 1
	if resp.Count > 0 {
		pageSize := 100
		totalPages = (resp.Count + pageSize - 1) / pageSize
	}

	return &PageResult{
		Records:    records,
		PageNumber: fromPage + 1,
		TotalPages: totalPages,
		Done:       resp.Next == "",
	}, nil
}
