package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// StagingRepository persists unresolved gene identifiers for operator
// review.
type StagingRepository struct {
	db  DB
	log *logrus.Logger
}

// NewStagingRepository creates a new staging repository.
func NewStagingRepository(db DB, logger *logrus.Logger) *StagingRepository {
	return &StagingRepository{db: db, log: logger}
}

// Create inserts a new staging row for an identifier the normalizer could
// not immediately resolve.
func (r *StagingRepository) Create(ctx context.Context, row *domain.GeneNormalizationStaging) (int64, error) {
	query := `
		INSERT INTO gene_normalization_staging (raw_identifier, raw_source, status, normalized_gene_id, reason)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := r.db.QueryRow(ctx, query,
		row.RawIdentifier, row.RawSource, row.Status, row.NormalizedGeneID, row.Reason,
	).Scan(&id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"raw_identifier": row.RawIdentifier,
			"raw_source":     row.RawSource,
			"error":          err,
		}).Error("failed to create staging row")
		return 0, fmt.Errorf("creating staging row: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"staging_id":     id,
		"raw_identifier": row.RawIdentifier,
		"status":         row.Status,
	}).Warn("gene identifier routed to normalization staging")

	return id, nil
}

// Resolve marks a staging row resolved against a canonical gene id.
func (r *StagingRepository) Resolve(ctx context.Context, id int64, geneID int64) error {
	query := `
		UPDATE gene_normalization_staging
		SET status = $2, normalized_gene_id = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, domain.StagingResolved, geneID)
	if err != nil {
		r.log.WithFields(logrus.Fields{"staging_id": id, "error": err}).Error("failed to resolve staging row")
		return fmt.Errorf("resolving staging row: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("staging row not found: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkUnresolvable marks a staging row as permanently unresolvable with a
// human-readable reason, retained for operator review.
func (r *StagingRepository) MarkUnresolvable(ctx context.Context, id int64, reason string) error {
	query := `
		UPDATE gene_normalization_staging
		SET status = $2, reason = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, domain.StagingUnresolvable, reason)
	if err != nil {
		r.log.WithFields(logrus.Fields{"staging_id": id, "error": err}).Error("failed to mark staging row unresolvable")
		return fmt.Errorf("marking staging row unresolvable: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("staging row not found: %w", domain.ErrNotFound)
	}
	return nil
}

// ListPending returns every staging row awaiting resolution, in insertion
// order, optionally scoped to one source.
func (r *StagingRepository) ListPending(ctx context.Context, source domain.SourceName) ([]*domain.GeneNormalizationStaging, error) {
	var rows pgx.Rows
	var err error
	if source != "" {
		rows, err = r.db.Query(ctx, `
			SELECT id, raw_identifier, raw_source, status, normalized_gene_id, reason, created_at, updated_at
			FROM gene_normalization_staging WHERE status = $1 AND raw_source = $2 ORDER BY created_at`,
			domain.StagingPending, source)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT id, raw_identifier, raw_source, status, normalized_gene_id, reason, created_at, updated_at
			FROM gene_normalization_staging WHERE status = $1 ORDER BY created_at`,
			domain.StagingPending)
	}
	if err != nil {
		return nil, fmt.Errorf("listing pending staging rows: %w", err)
	}
	defer rows.Close()

	var out []*domain.GeneNormalizationStaging
	for rows.Next() {
		var s domain.GeneNormalizationStaging
		if err := rows.Scan(
			&s.ID, &s.RawIdentifier, &s.RawSource, &s.Status, &s.NormalizedGeneID, &s.Reason, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning staging row: %w", err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating staging rows: %w", err)
	}
	return out, nil
}
