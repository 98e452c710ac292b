package normalizer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/repository"
)

// SnapshotRefresher pulls the HGNC bulk archive and applies it to the
// canonical gene store.
type SnapshotRefresher struct {
	hgnc  *HGNCClient
	db    *pgxpool.Pool
	genes *repository.GeneRepository
	log   *logrus.Logger
}

// NewSnapshotRefresher creates a new HGNC snapshot refresher.
func NewSnapshotRefresher(hgnc *HGNCClient, db *pgxpool.Pool, genes *repository.GeneRepository, logger *logrus.Logger) *SnapshotRefresher {
	return &SnapshotRefresher{hgnc: hgnc, db: db, genes: genes, log: logger}
}

// SnapshotResult summarizes what a refresh changed.
type SnapshotResult struct {
	Created   int
	Updated   int
	Unchanged int
	Obsoleted int
}

// Refresh downloads the current HGNC snapshot and applies every row
// inside a single database transaction: either all mutations commit or
// none do.
//
// The bulk archive is fetched scoped to Approved status, so a gene that
// drops out of the new snapshot — rather than arriving with a non-Approved
// status — is how a withdrawal or merge shows up here. Any existing gene
// not seen in this snapshot is marked withdrawn rather than touched
// further; it is never deleted, since GeneEvidence rows may still
// reference it by internal id.
func (s *SnapshotRefresher) Refresh(ctx context.Context) (*SnapshotResult, error) {
	records, err := s.hgnc.FetchSnapshot(ctx)
	if err != nil {
		return nil, domain.NewCoreError(domain.KindTransientExternal, "failed to fetch hgnc snapshot", err)
	}

	existing, err := s.genes.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading existing gene store: %w", err)
	}
	byHGNCID := make(map[string]*domain.Gene, len(existing))
	for _, g := range existing {
		byHGNCID[g.HGNCID] = g
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	result := &SnapshotResult{}
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Status != "" && rec.Status != "Approved" {
			continue
		}
		seen[rec.HGNCID] = true

		aliases := dedupeStringsKeepOrder(rec.AliasSymbols)
		previous := dedupeStringsKeepOrder(rec.PreviousSymbols)

		current, ok := byHGNCID[rec.HGNCID]
		switch {
		case !ok:
			if _, err := tx.Exec(ctx,
				`INSERT INTO genes (hgnc_id, approved_symbol, aliases, previous_symbols, withdrawn) VALUES ($1, $2, $3, $4, false)`,
				rec.HGNCID, rec.ApprovedSymbol, aliases, previous,
			); err != nil {
				return nil, fmt.Errorf("inserting gene %s: %w", rec.HGNCID, err)
			}
			result.Created++

		case current.Withdrawn || current.ApprovedSymbol != rec.ApprovedSymbol ||
			!sameStringSet(current.Aliases, aliases) || !sameStringSet(current.PreviousSymbols, previous):
			if _, err := tx.Exec(ctx,
				`UPDATE genes SET approved_symbol = $2, aliases = $3, previous_symbols = $4, withdrawn = false, updated_at = NOW() WHERE hgnc_id = $1`,
				rec.HGNCID, rec.ApprovedSymbol, aliases, previous,
			); err != nil {
				return nil, fmt.Errorf("updating gene %s: %w", rec.HGNCID, err)
			}
			result.Updated++

		default:
			result.Unchanged++
		}
	}

	for _, g := range existing {
		if g.Withdrawn || seen[g.HGNCID] {
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE genes SET withdrawn = true, updated_at = NOW() WHERE id = $1`, g.ID); err != nil {
			return nil, fmt.Errorf("marking gene %s withdrawn: %w", g.HGNCID, err)
		}
		result.Obsoleted++
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing snapshot transaction: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"created":   result.Created,
		"updated":   result.Updated,
		"unchanged": result.Unchanged,
		"obsoleted": result.Obsoleted,
	}).Info("hgnc snapshot refresh complete")

	return result, nil
}

func dedupeStringsKeepOrder(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, s := range a {
		set[s] = true
	}
	for _, s := range b {
		if !set[s] {
			return false
		}
	}
	return true
}
