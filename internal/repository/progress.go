package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// ProgressRepository persists DataSourceProgress rows:
// one row per registered source, exclusively owned by the ingestion
// orchestrator.
type ProgressRepository struct {
	db  DB
	log *logrus.Logger
}

// NewProgressRepository creates a new progress repository.
func NewProgressRepository(db DB, logger *logrus.Logger) *ProgressRepository {
	return &ProgressRepository{db: db, log: logger}
}

// Get returns the progress row for a source, creating it in the idle
// state on first reference (one row per registered source).
func (r *ProgressRepository) Get(ctx context.Context, source domain.SourceName) (*domain.DataSourceProgress, error) {
	query := `
		SELECT source_name, status, current_page, total_pages, items_processed,
			started_at, last_heartbeat_at, error_info
		FROM data_source_progress WHERE source_name = $1`

	var p domain.DataSourceProgress
	var errInfo []byte
	err := r.db.QueryRow(ctx, query, source).Scan(
		&p.SourceName, &p.Status, &p.CurrentPage, &p.TotalPages, &p.ItemsProcessed,
		&p.StartedAt, &p.LastHeartbeatAt, &errInfo,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.createIdle(ctx, source)
		}
		return nil, fmt.Errorf("getting progress for %s: %w", source, err)
	}
	if len(errInfo) > 0 {
		if err := json.Unmarshal(errInfo, &p.ErrorInfo); err != nil {
			return nil, fmt.Errorf("unmarshaling error_info: %w", err)
		}
	}
	return &p, nil
}

func (r *ProgressRepository) createIdle(ctx context.Context, source domain.SourceName) (*domain.DataSourceProgress, error) {
	_, err := r.db.Exec(ctx,
		`INSERT INTO data_source_progress (source_name, status) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		source, domain.RunIdle,
	)
	if err != nil {
		return nil, fmt.Errorf("initializing progress row for %s: %w", source, err)
	}
	return &domain.DataSourceProgress{SourceName: source, Status: domain.RunIdle}, nil
}

// ListAll returns every registered source's progress row, used by the
// orphan reconciler at startup.
func (r *ProgressRepository) ListAll(ctx context.Context) ([]*domain.DataSourceProgress, error) {
	query := `
		SELECT source_name, status, current_page, total_pages, items_processed,
			started_at, last_heartbeat_at, error_info
		FROM data_source_progress`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing progress rows: %w", err)
	}
	defer rows.Close()

	var out []*domain.DataSourceProgress
	for rows.Next() {
		var p domain.DataSourceProgress
		var errInfo []byte
		if err := rows.Scan(
			&p.SourceName, &p.Status, &p.CurrentPage, &p.TotalPages, &p.ItemsProcessed,
			&p.StartedAt, &p.LastHeartbeatAt, &errInfo,
		); err != nil {
			return nil, fmt.Errorf("scanning progress row: %w", err)
		}
		if len(errInfo) > 0 {
			if err := json.Unmarshal(errInfo, &p.ErrorInfo); err != nil {
				return nil, fmt.Errorf("unmarshaling error_info: %w", err)
			}
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating progress rows: %w", err)
	}
	return out, nil
}

// UpdateStatus transitions a source's run status and persists a checkpoint
// (current_page, items_processed) so an interrupted run resumes from its
// last completed page rather than from the start.
func (r *ProgressRepository) UpdateStatus(ctx context.Context, p *domain.DataSourceProgress) error {
	var errInfo []byte
	if p.ErrorInfo != nil {
		var err error
		errInfo, err = json.Marshal(p.ErrorInfo)
		if err != nil {
			return fmt.Errorf("marshaling error_info: %w", err)
		}
	}

	query := `
		UPDATE data_source_progress
		SET status = $2, current_page = $3, total_pages = $4, items_processed = $5,
			started_at = $6, last_heartbeat_at = $7, error_info = $8
		WHERE source_name = $1`

	_, err := r.db.Exec(ctx, query,
		p.SourceName, p.Status, p.CurrentPage, p.TotalPages, p.ItemsProcessed,
		p.StartedAt, p.LastHeartbeatAt, errInfo,
	)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"source": p.SourceName,
			"status": p.Status,
			"error":  err,
		}).Error("failed to update data source progress")
		return fmt.Errorf("updating progress for %s: %w", p.SourceName, err)
	}
	return nil
}

// Heartbeat updates only last_heartbeat_at, called periodically during a
// running fetch so the startup reconciler can distinguish a live run from
// a crashed one.
func (r *ProgressRepository) Heartbeat(ctx context.Context, source domain.SourceName) error {
	_, err := r.db.Exec(ctx,
		`UPDATE data_source_progress SET last_heartbeat_at = NOW() WHERE source_name = $1`,
		source,
	)
	if err != nil {
		return fmt.Errorf("recording heartbeat for %s: %w", source, err)
	}
	return nil
}
