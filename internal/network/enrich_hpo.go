package network

import (
	"context"
	"sort"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// termAgg accumulates one HPO term's name and the set of background genes
// annotated with it.
type termAgg struct {
	name  string
	genes map[int64]bool
}

// hpoBackground is the term->gene index built from every GeneAnnotation row
// of source "hpo", restricted to kidney_phenotypes when useKidneyOnly is
// set. The background set is the union of gene sets across
// every qualifying term — genes with HPO annotations, not the full gene
// universe, which would inflate the without-term counts and wash out real
// enrichment.
type hpoBackground struct {
	terms      map[string]*termAgg
	background map[int64]bool
}

func buildHPOBackground(ctx context.Context, annotations annotationSource, useKidneyOnly bool) (*hpoBackground, error) {
	rows, err := annotations.ListAnnotationsBySource(ctx, domain.SourceHPO)
	if err != nil {
		return nil, err
	}

	idx := &hpoBackground{terms: map[string]*termAgg{}, background: map[int64]bool{}}
	for _, row := range rows {
		raw, ok := row.AnnotationData["hpo_terms"].([]any)
		if !ok {
			continue
		}
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			isKidney, _ := m["is_kidney"].(bool)
			if useKidneyOnly && !isKidney {
				continue
			}
			termID, _ := m["id"].(string)
			name, _ := m["name"].(string)
			if termID == "" {
				continue
			}

			agg, ok := idx.terms[termID]
			if !ok {
				agg = &termAgg{name: name, genes: map[int64]bool{}}
				idx.terms[termID] = agg
			}
			agg.genes[row.GeneID] = true
			idx.background[row.GeneID] = true
		}
	}
	return idx, nil
}

// EnrichHPO runs one-sided Fisher's exact over-representation testing with
// Benjamini-Hochberg FDR correction for every cluster in clustering, against
// the HPO-annotated-gene background. Clusters with no
// background-annotated genes produce no rows rather than a divide-by-zero.
func EnrichHPO(ctx context.Context, annotations annotationSource, clustering *ClusterResult, req EnrichHPORequest) (*HPOEnrichmentResult, error) {
	idx, err := buildHPOBackground(ctx, annotations, req.UseKidneyOnly)
	if err != nil {
		return nil, err
	}

	threshold := req.FDRThreshold
	if threshold <= 0 {
		threshold = 0.05
	}

	backgroundSize := len(idx.background)
	result := &HPOEnrichmentResult{BackgroundSize: backgroundSize, ByCluster: map[int][]EnrichmentRow{}}

	for _, clusterID := range sortedClusterIDs(clustering) {
		geneIDs := clustering.Clusters()[clusterID]

		clusterGenes := map[int64]bool{}
		for _, g := range geneIDs {
			if idx.background[g] {
				clusterGenes[g] = true
			}
		}
		clusterSize := len(clusterGenes)
		if clusterSize == 0 || backgroundSize == 0 {
			continue
		}

		type candidate struct {
			termID string
			row    EnrichmentRow
			p      float64
		}
		var candidates []candidate

		termIDs := make([]string, 0, len(idx.terms))
		for id := range idx.terms {
			termIDs = append(termIDs, id)
		}
		sort.Strings(termIDs)

		for _, termID := range termIDs {
			agg := idx.terms[termID]
			a := 0
			for g := range clusterGenes {
				if agg.genes[g] {
					a++
				}
			}
			if a == 0 {
				continue
			}
			backgroundWithTerm := len(agg.genes)
			b := clusterSize - a
			c := backgroundWithTerm - a
			d := (backgroundSize - clusterSize) - c

			p := fisherExactGreater(a, b, c, d)
			candidates = append(candidates, candidate{
				termID: termID,
				p:      p,
				row: EnrichmentRow{
					TermID:          termID,
					TermName:        agg.name,
					ClusterCount:    a,
					BackgroundCount: backgroundWithTerm,
					OddsRatio:       oddsRatio(a, b, c, d),
					PValue:          p,
				},
			})
		}

		if len(candidates) == 0 {
			continue
		}

		pValues := make([]float64, len(candidates))
		for i, c := range candidates {
			pValues[i] = c.p
		}
		fdrs := benjaminiHochberg(pValues)

		var rows []EnrichmentRow
		for i, c := range candidates {
			c.row.FDR = fdrs[i]
			if c.row.FDR <= threshold {
				rows = append(rows, c.row)
			}
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].PValue != rows[j].PValue {
				return rows[i].PValue < rows[j].PValue
			}
			return rows[i].TermID < rows[j].TermID
		})
		if len(rows) > 0 {
			result.ByCluster[clusterID] = rows
		}
	}

	return result, nil
}
