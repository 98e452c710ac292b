package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/berntpopp/kidney-genetics-core/internal/cache"
	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/evidence"
)

// geneSource is the subset of repository.GeneRepository the query layer
// reads from.
type geneSource interface {
	ListAll(ctx context.Context) ([]*domain.Gene, error)
}

// evidenceSource is the subset of repository.EvidenceRepository the query
// layer reads from. ListAll is used instead of one ListByGene call per gene
// so list_genes stays a two-query operation regardless of gene count.
type evidenceSource interface {
	ListAll(ctx context.Context) ([]*domain.GeneEvidence, error)
}

// resultCache is the subset of cache.Cache the query layer uses to serve
// the filter-metadata and id-list restoration paths.
type resultCache interface {
	Get(ctx context.Context, key cache.Key, dst any) (bool, error)
	Set(ctx context.Context, key cache.Key, value any) error
}

// Service implements list_genes.
type Service struct {
	genes    geneSource
	evidence evidenceSource
	scorer   *evidence.Scorer
	cache    resultCache
}

// NewService creates a new query Service. cache may be nil, in which case
// the metadata/id-list caching paths are skipped and every call recomputes.
func NewService(genes geneSource, evidenceRepo evidenceSource, scorer *evidence.Scorer, resultCache resultCache) *Service {
	return &Service{genes: genes, evidence: evidenceRepo, scorer: scorer, cache: resultCache}
}

// ListGenes implements list_genes: score every gene from its evidence rows,
// apply the filter surface, sort deterministically, and paginate.
func (s *Service) ListGenes(ctx context.Context, filters Filters, sort_ Sort, page Pagination) (*Result, error) {
	if len(filters.IDs) > MaxIDListSize {
		return nil, domain.NewCoreError(domain.KindValidation,
			fmt.Sprintf("filter[ids] accepts at most %d ids, got %d", MaxIDListSize, len(filters.IDs)), nil)
	}

	items, err := s.scoredGenes(ctx)
	if err != nil {
		return nil, err
	}

	filtered, hiddenZero := applyFilters(items, filters)
	sortItems(filtered, sort_)

	total := len(filtered)
	pageSize := page.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	start := (page.Page - 1) * pageSize
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &Result{
		Items:            filtered[start:end],
		Total:            total,
		HiddenZeroScores: hiddenZero,
	}, nil
}

// scoredGenes loads every gene and its evidence rows and computes the
// GeneListItem projection for each, the in-memory equivalent of a
// materialized scoring projection.
func (s *Service) scoredGenes(ctx context.Context) ([]GeneListItem, error) {
	genes, err := s.genes.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing genes: %w", err)
	}

	allEvidence, err := s.evidence.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing gene evidence: %w", err)
	}

	byGene := map[int64][]*domain.GeneEvidence{}
	for _, ev := range allEvidence {
		byGene[ev.GeneID] = append(byGene[ev.GeneID], ev)
	}

	items := make([]GeneListItem, 0, len(genes))
	for _, g := range genes {
		score, err := s.scorer.Score(ctx, g.ID, byGene[g.ID])
		if err != nil {
			return nil, fmt.Errorf("scoring gene %d: %w", g.ID, err)
		}

		sourceNames := make([]domain.SourceName, 0, len(score.SourceScores))
		for name := range score.SourceScores {
			sourceNames = append(sourceNames, name)
		}
		sort.Slice(sourceNames, func(i, j int) bool { return sourceNames[i] < sourceNames[j] })

		items = append(items, GeneListItem{
			ID:              g.ID,
			ApprovedSymbol:  g.ApprovedSymbol,
			HGNCID:          g.HGNCID,
			Aliases:         g.Aliases,
			PercentageScore: score.PercentageScore,
			EvidenceCount:   score.SourceCount,
			EvidenceTier:    score.EvidenceTier,
			SourceScores:    score.SourceScores,
			Sources:         sourceNames,
		})
	}
	return items, nil
}

// applyFilters returns the subset of items matching filters, plus the
// count of insufficient-tier rows excluded by HideZeroScores.
func applyFilters(items []GeneListItem, f Filters) ([]GeneListItem, int) {
	idSet := map[int64]bool{}
	if len(f.IDs) > 0 {
		for _, id := range f.IDs {
			idSet[id] = true
		}
	}
	tierSet := map[domain.EvidenceTier]bool{}
	for _, t := range f.Tiers {
		tierSet[t] = true
	}
	sourceSet := map[domain.SourceName]bool{}
	for _, src := range f.Sources {
		sourceSet[src] = true
	}
	search := strings.ToLower(strings.TrimSpace(f.Search))

	out := make([]GeneListItem, 0, len(items))
	hiddenZero := 0
	for _, item := range items {
		if len(idSet) > 0 && !idSet[item.ID] {
			continue
		}
		if f.HideZeroScores && item.EvidenceTier == domain.TierInsufficient {
			hiddenZero++
			continue
		}
		if f.ScoreMin != nil && item.PercentageScore < *f.ScoreMin {
			continue
		}
		if f.ScoreMax != nil && item.PercentageScore > *f.ScoreMax {
			continue
		}
		if f.EvidenceCountMin != nil && item.EvidenceCount < *f.EvidenceCountMin {
			continue
		}
		if f.EvidenceCountMax != nil && item.EvidenceCount > *f.EvidenceCountMax {
			continue
		}
		if len(tierSet) > 0 && !tierSet[item.EvidenceTier] {
			continue
		}
		if len(sourceSet) > 0 && !hasAnySource(item.Sources, sourceSet) {
			continue
		}
		if search != "" && !matchesSearch(item, search) {
			continue
		}
		out = append(out, item)
	}
	return out, hiddenZero
}

func hasAnySource(sources []domain.SourceName, want map[domain.SourceName]bool) bool {
	for _, s := range sources {
		if want[s] {
			return true
		}
	}
	return false
}

func matchesSearch(item GeneListItem, search string) bool {
	if strings.Contains(strings.ToLower(item.ApprovedSymbol), search) {
		return true
	}
	for _, alias := range item.Aliases {
		if strings.Contains(strings.ToLower(alias), search) {
			return true
		}
	}
	return false
}

// sortItems sorts in place by the requested field, always breaking ties by
// gene id ascending for a deterministic total order.
func sortItems(items []GeneListItem, s Sort) {
	less := func(i, j int) bool {
		a, b := items[i], items[j]
		var primaryLess, primaryEqual bool
		switch s.Field {
		case SortByPercentageScore:
			primaryLess = a.PercentageScore < b.PercentageScore
			primaryEqual = a.PercentageScore == b.PercentageScore
		case SortByEvidenceCount:
			primaryLess = a.EvidenceCount < b.EvidenceCount
			primaryEqual = a.EvidenceCount == b.EvidenceCount
		default:
			primaryLess = a.ApprovedSymbol < b.ApprovedSymbol
			primaryEqual = a.ApprovedSymbol == b.ApprovedSymbol
		}
		if primaryEqual {
			return a.ID < b.ID
		}
		if s.Descending {
			return !primaryLess
		}
		return primaryLess
	}
	sort.SliceStable(items, less)
}

// FilterMetadata is the cached summary the list UI uses to populate filter
// controls: the distinct sources with any evidence, the maximum
// evidence_count across genes, and the count of genes per evidence tier.
type FilterMetadata struct {
	Sources          []domain.SourceName         `json:"sources"`
	MaxEvidenceCount int                         `json:"max_evidence_count"`
	TierCounts       map[domain.EvidenceTier]int `json:"tier_counts"`
}

var filterMetadataCacheKey = cache.NewKey(cache.NamespaceAnnotations, "query", "filter_metadata")

// FilterMetadata returns the cached filter-metadata summary, recomputing
// and caching it on a miss. The entry lives in the annotations namespace and
// expires after that namespace's configured TTL (3600 s by default), the
// same TTL the id-list key uses; no shorter TTL applies to it.
func (s *Service) FilterMetadata(ctx context.Context) (*FilterMetadata, error) {
	if s.cache != nil {
		var cached FilterMetadata
		if hit, err := s.cache.Get(ctx, filterMetadataCacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	items, err := s.scoredGenes(ctx)
	if err != nil {
		return nil, err
	}

	meta := &FilterMetadata{TierCounts: map[domain.EvidenceTier]int{}}
	sourceSet := map[domain.SourceName]bool{}
	for _, item := range items {
		meta.TierCounts[item.EvidenceTier]++
		if item.EvidenceCount > meta.MaxEvidenceCount {
			meta.MaxEvidenceCount = item.EvidenceCount
		}
		for _, src := range item.Sources {
			sourceSet[src] = true
		}
	}
	for src := range sourceSet {
		meta.Sources = append(meta.Sources, src)
	}
	sort.Slice(meta.Sources, func(i, j int) bool { return meta.Sources[i] < meta.Sources[j] })

	if s.cache != nil {
		if err := s.cache.Set(ctx, filterMetadataCacheKey, meta); err != nil {
			return meta, nil
		}
	}
	return meta, nil
}

// IDListCacheKey builds the cache key for the id-list restoration path
// (1-hour TTL): stable across calls with the same id set regardless of
// input order, since URL-state
// restoration round-trips an id list that may be reserialized in a
// different order. cache.NewKey's own canonicalization already sorts a
// []int64 argument, but the ids are sorted here too so a caller comparing
// keys by hand sees the same deterministic order.
func IDListCacheKey(ids []int64) cache.Key {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return cache.NewKey(cache.NamespaceAnnotations, "query", "id_list", sorted)
}
