package sources

import (
	"context"
	"fmt"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

// pubTatorSearchResponse mirrors the subset of the PubTator3 literature
// search API's paginated, relevance-sorted response this adapter consumes.
type pubTatorSearchResponse struct {
	Results []struct {
		PMID      string  `json:"pmid"`
		Relevance float64 `json:"score"`
		Mentions  []struct {
			GeneSymbol string `json:"gene_symbol"`
			Text       string `json:"text"`
		} `json:"mentions"`
	} `json:"results"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

// PubTatorAdapter fetches kidney-gene literature mentions from PubTator3, the
// only source with a database-backed "smart" incremental mode. Both full and
// smart streams use the identical relevance-score-descending sort order the
// upstream API returns; the adapter itself never reorders results, which is
// what lets smart's duplicate-rate check assume it is walking the same prefix
// full already persisted.
type PubTatorAdapter struct {
	client  *baseClient
	checker ExistingIDChecker
	smart   domain.SmartUpdateConfig
}

// NewPubTatorAdapter creates a new PubTator adapter. checker is consulted
// in ModeSmart to compute each page's duplicate_rate against already
// persisted PMIDs; it is not used in ModeFull.
func NewPubTatorAdapter(cfg domain.SourceConfig, limiters *safeguard.RateLimiterRegistry, breakers *safeguard.BreakerRegistry, checker ExistingIDChecker) *PubTatorAdapter {
	return &PubTatorAdapter{
		client:  newBaseClient(domain.SourcePubTator, cfg, limiters, breakers),
		checker: checker,
		smart:   cfg.SmartUpdate,
	}
}

// Name implements Adapter.
func (a *PubTatorAdapter) Name() domain.SourceName { return domain.SourcePubTator }

// SupportsIncremental implements Adapter.
func (a *PubTatorAdapter) SupportsIncremental() bool { return true }

// FetchPage implements Adapter. The page query itself is identical across
// ModeFull and ModeSmart — same query string, same relevance-descending
// sort — so the "critical invariant" that full and smart visit the same
// ordered stream falls out of using one query builder rather than needing
// separate full/smart request paths.
func (a *PubTatorAdapter) FetchPage(ctx context.Context, fromPage int, mode FetchMode) (*PageResult, error) {
	page := fromPage + 1
	url := fmt.Sprintf("%s/search/?text=kidney+OR+renal&sort=score+desc&page=%d", a.client.baseURL, page)

	var resp pubTatorSearchResponse
	if err := a.client.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}

	records := make([]domain.RawRecord, 0)
	byGene := map[string]*domain.RawRecord{}
	pmids := make([]string, 0, len(resp.Results))

	for _, r := range resp.Results {
		pmids = append(pmids, r.PMID)
		for _, m := range r.Mentions {
			if m.GeneSymbol == "" {
				continue
			}
			rec, ok := byGene[m.GeneSymbol]
			if !ok {
				rec = &domain.RawRecord{
					GeneIdentifier: m.GeneSymbol,
					RawSource:      domain.SourcePubTator,
					EvidenceData: map[string]any{
						"pmids":    []any{},
						"mentions": []any{},
					},
				}
				byGene[m.GeneSymbol] = rec
			}
			rec.EvidenceData["pmids"] = append(rec.EvidenceData["pmids"].([]any), r.PMID)
			rec.EvidenceData["mentions"] = append(rec.EvidenceData["mentions"].([]any), m.Text)
		}
	}
	for _, rec := range byGene {
		rec.EvidenceData["publication_count"] = float64(len(dedupeStrings(rec.EvidenceData["pmids"].([]any))))
		rec.EvidenceData["total_mentions"] = float64(len(rec.EvidenceData["mentions"].([]any)))
		records = append(records, *rec)
	}

	totalPages := resp.TotalPages
	if totalPages == 0 {
		totalPages = page
	}

	result := &PageResult{
		Records:    records,
		PageNumber: page,
		TotalPages: totalPages,
		Done:       page >= totalPages,
	}

	if mode == ModeSmart && a.checker != nil {
		rate, err := a.duplicateRate(ctx, pmids)
		if err != nil {
			return nil, err
		}
		result.DuplicateRate = rate
	}

	return result, nil
}

// duplicateRate computes |PMIDs already persisted| / |page PMIDs| via
// batched lookups of up to 100 ids at a time, never
// loading the full existing PMID set into memory.
func (a *PubTatorAdapter) duplicateRate(ctx context.Context, pmids []string) (float64, error) {
	if len(pmids) == 0 {
		return 0, nil
	}

	const batchSize = 100
	existing := 0
	for start := 0; start < len(pmids); start += batchSize {
		end := start + batchSize
		if end > len(pmids) {
			end = len(pmids)
		}
		found, err := a.checker.ExistingIDs(ctx, pmids[start:end])
		if err != nil {
			return 0, fmt.Errorf("checking existing PubTator PMIDs: %w", err)
		}
		for _, id := range pmids[start:end] {
			if found[id] {
				existing++
			}
		}
	}
	return float64(existing) / float64(len(pmids)), nil
}

// ShouldStopSmart implements the smart-mode stopping condition: 3
// consecutive pages with duplicate_rate above the configured threshold, or
// an absolute page cap, whichever comes first. The
// orchestrator calls this after each FetchPage in ModeSmart, passing the
// running count of consecutive high-duplicate pages it maintains.
func (a *PubTatorAdapter) ShouldStopSmart(page, consecutiveHighDuplicatePages int, duplicateRate float64) (stop bool, nextConsecutive int) {
	threshold := a.smart.DuplicateThreshold
	if threshold <= 0 {
		threshold = 0.9
	}
	consecutiveLimit := a.smart.ConsecutivePages
	if consecutiveLimit <= 0 {
		consecutiveLimit = 3
	}
	maxPages := a.smart.MaxPages
	if maxPages <= 0 {
		maxPages = 500
	}

	next := consecutiveHighDuplicatePages
	if duplicateRate > threshold {
		next++
	} else {
		next = 0
	}

	if next >= consecutiveLimit {
		return true, next
	}
	if page >= maxPages {
		return true, next
	}
	return false, next
}
