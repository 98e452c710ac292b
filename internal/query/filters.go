// Package query implements the gene listing query and filter layer
// : the primary user-facing table and the
// network-analysis bootstrap path's id-list restoration.
package query

import "github.com/berntpopp/kidney-genetics-core/internal/domain"

// SortField is the set of columns list_genes may sort by.
type SortField string

const (
	SortByApprovedSymbol  SortField = "approved_symbol"
	SortByPercentageScore SortField = "percentage_score"
	SortByEvidenceCount   SortField = "evidence_count"
)

// Sort is the requested sort order; ties are always broken by gene id
// ascending to guarantee a deterministic total order.
type Sort struct {
	Field      SortField
	Descending bool
}

// MaxIDListSize caps the explicit id-list filter. A request above this is a
// validation error, not a silently truncated list.
const MaxIDListSize = 1000

// Filters is the full list_genes filter surface.
type Filters struct {
	Search           string
	ScoreMin         *float64
	ScoreMax         *float64
	EvidenceCountMin *int
	EvidenceCountMax *int
	Sources          []domain.SourceName
	Tiers            []domain.EvidenceTier
	HideZeroScores   bool
	IDs              []int64
}

// Pagination is a page number (1-based) and page size.
type Pagination struct {
	Page     int
	PageSize int
}

// GeneListItem is one row of the gene listing response.
type GeneListItem struct {
	ID              int64                         `json:"id"`
	ApprovedSymbol  string                        `json:"approved_symbol"`
	HGNCID          string                        `json:"hgnc_id"`
	Aliases         []string                      `json:"aliases"`
	PercentageScore float64                       `json:"percentage_score"`
	EvidenceCount   int                           `json:"evidence_count"`
	EvidenceTier    domain.EvidenceTier           `json:"evidence_tier"`
	SourceScores    map[domain.SourceName]float64 `json:"source_scores"`
	Sources         []domain.SourceName           `json:"sources"`
}

// Result is the list_genes response.
type Result struct {
	Items            []GeneListItem
	Total            int
	HiddenZeroScores int
}
