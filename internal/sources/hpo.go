package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

// kidneyPhenotypeRoots are the HPO term ids this adapter treats as "kidney
// phenotype" when counting a gene's kidney_phenotype_count,
// rooted at Abnormality of the kidney (HP:0000077) and Abnormal renal
// physiology (HP:0012211).
var kidneyPhenotypeRoots = []string{"HP:0000077", "HP:0012211"}

// hpoGeneResponse mirrors the subset of the HPO gene-to-phenotype export
// this adapter consumes.
type hpoGeneResponse struct {
	Genes []struct {
		GeneSymbol string `json:"gene_symbol"`
		Phenotypes []struct {
			HPOID string `json:"hpo_id"`
			Name  string `json:"hpo_name"`
		} `json:"phenotypes"`
	} `json:"genes"`
	NextPage int `json:"next_page"`
}

// HPOAdapter fetches gene-to-phenotype annotations from the Human
// Phenotype Ontology and derives each gene's kidney-phenotype membership.
type HPOAdapter struct {
	client *baseClient
}

// NewHPOAdapter creates a new HPO adapter.
func NewHPOAdapter(cfg domain.SourceConfig, limiters *safeguard.RateLimiterRegistry, breakers *safeguard.BreakerRegistry) *HPOAdapter {
	return &HPOAdapter{client: newBaseClient(domain.SourceHPO, cfg, limiters, breakers)}
}

// Name implements Adapter.
func (a *HPOAdapter) Name() domain.SourceName { return domain.SourceHPO }

// SupportsIncremental implements Adapter.
func (a *HPOAdapter) SupportsIncremental() bool { return false }

// FetchPage implements Adapter.
func (a *HPOAdapter) FetchPage(ctx context.Context, fromPage int, _ FetchMode) (*PageResult, error) {
	url := fmt.Sprintf("%s/genes-to-phenotype?page=%d", a.client.baseURL, fromPage+1)

	var resp hpoGeneResponse
	if err := a.client.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.RawRecord, 0, len(resp.Genes))
	for _, g := range resp.Genes {
		if g.GeneSymbol == "" {
			continue
		}
		var kidneyCount int
		phenotypes := make([]any, 0, len(g.Phenotypes))
		kidneyPhenotypes := make([]any, 0)
		terms := make([]any, 0, len(g.Phenotypes))
		for _, p := range g.Phenotypes {
			phenotypes = append(phenotypes, p.Name)
			isKidney := isKidneyPhenotype(p.HPOID, p.Name)
			terms = append(terms, map[string]any{
				"id":        p.HPOID,
				"name":      p.Name,
				"is_kidney": isKidney,
			})
			if isKidney {
				kidneyCount++
				kidneyPhenotypes = append(kidneyPhenotypes, p.Name)
			}
		}

		records = append(records, domain.RawRecord{
			GeneIdentifier: g.GeneSymbol,
			RawSource:      domain.SourceHPO,
			EvidenceData: map[string]any{
				"hpo_terms":              terms,
				"phenotypes":             phenotypes,
				"kidney_phenotypes":      kidneyPhenotypes,
				"kidney_phenotype_count": float64(kidneyCount),
			},
			// AnnotationData carries the same term list into GeneAnnotation,
			// the JSONB-indexed home the network enrichment engine reads
			// from when it builds term->gene background sets.
			AnnotationData: map[string]any{
				"hpo_terms": terms,
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

// isKidneyPhenotype reports whether an HPO term is, or its name suggests it
// descends from, one of kidneyPhenotypeRoots. The adapter does not walk the
// full HPO DAG; it uses the term id allowlist plus a name-substring
// fallback, a pragmatic approximation that avoids shipping the full
// ontology DAG with the adapter.
func isKidneyPhenotype(hpoID, name string) bool {
	for _, root := range kidneyPhenotypeRoots {
		if hpoID == root {
			return true
		}
	}
	lower := strings.ToLower(name)
	return strings.Contains(lower, "renal") || strings.Contains(lower, "kidney")
}
