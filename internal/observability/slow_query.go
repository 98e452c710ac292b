package observability

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/repository"
)

// SlowQueryLogger wraps a repository.DB and logs a warning for any query that
// takes longer than threshold, following the timing-and-log pattern every
// repository method already applies to its own error path. It implements
// repository.DB itself, so it can be handed to any repository constructor in
// place of the bare pool.
type SlowQueryLogger struct {
	db        repository.DB
	threshold time.Duration
	log       *logrus.Logger
}

// NewSlowQueryLogger wraps db. A threshold <= 0 falls back to 100ms.
func NewSlowQueryLogger(db repository.DB, threshold time.Duration, logger *logrus.Logger) *SlowQueryLogger {
	if threshold <= 0 {
		threshold = 100 * time.Millisecond
	}
	return &SlowQueryLogger{db: db, threshold: threshold, log: logger}
}

func (s *SlowQueryLogger) logIfSlow(sql string, start time.Time) {
	if elapsed := time.Since(start); elapsed > s.threshold {
		s.log.WithFields(logrus.Fields{
			"query_ms": elapsed.Milliseconds(),
			"sql":      sql,
		}).Warn("slow query")
	}
}

func (s *SlowQueryLogger) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	rows, err := s.db.Query(ctx, sql, args...)
	s.logIfSlow(sql, start)
	return rows, err
}

func (s *SlowQueryLogger) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	start := time.Now()
	row := s.db.QueryRow(ctx, sql, args...)
	s.logIfSlow(sql, start)
	return row
}

func (s *SlowQueryLogger) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	tag, err := s.db.Exec(ctx, sql, args...)
	s.logIfSlow(sql, start)
	return tag, err
}
