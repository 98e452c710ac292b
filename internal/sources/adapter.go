// Package sources implements the source adapter layer: one adapter per external
// evidence source, each encapsulating fetch, parse, and evidence-shape
// normalization behind a common interface so the orchestrator
// (internal/ingestion) can drive any of them identically.
package sources

import (
	"context"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// FetchMode selects an adapter's fetch strategy.
type FetchMode string

const (
	ModeFull          FetchMode = "full"
	ModeSmart         FetchMode = "smart"
	ModeUpdateFailed  FetchMode = "update_failed"
	ModeUpdateNew     FetchMode = "update_new"
	ModeUpdateMissing FetchMode = "update_missing"
)

// PageResult is one page of raw records plus the pagination state needed
// to checkpoint and, for adapters supporting it, detect duplicate runs.
type PageResult struct {
	Records       []domain.RawRecord
	PageNumber    int
	TotalPages    int
	DuplicateRate float64 // fraction of Records already present in the store; 0 if not applicable
	Done          bool
}

// Adapter encapsulates one external source's fetch, parse, and
// evidence-shape normalization.
// The orchestrator streams the upstream dataset one FetchPage call at a
// time, restartable from a checkpointed page; in ModeSmart, adapters that
// support it also report a DuplicateRate for the duplicate-rate stopping
// condition.
type Adapter interface {
	// Name identifies the source this adapter serves.
	Name() domain.SourceName

	// SupportsIncremental reports whether ModeSmart's duplicate-rate
	// stopping condition is meaningful for this source (only PubTator today).
	SupportsIncremental() bool

	// FetchPage retrieves and parses one page of records starting at
	// fromPage, honoring ctx cancellation and the adapter's own rate
	// limit/circuit breaker/timeout safeguards.
	FetchPage(ctx context.Context, fromPage int, mode FetchMode) (*PageResult, error)
}

// ExistingIDChecker is implemented by stores the smart-fetch duplicate-rate
// computation consults — batched lookups of up to 100 ids at a time
// , never the full existing set loaded into memory.
type ExistingIDChecker interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
}
