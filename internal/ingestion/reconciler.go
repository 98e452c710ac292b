package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// staleRunningThreshold is the default heartbeat staleness window beyond
// which a `running` row is presumed crashed.
const staleRunningThreshold = 5 * time.Minute

// OrphanReport summarizes one reconciliation pass: which sources were
// flagged stale-running-to-failed, and which progress rows belong to a
// source_name no longer in the registry.
// Orphaned rows are reported, never mutated or deleted.
type OrphanReport struct {
	ReconciledStale []domain.SourceName
	OrphanedSources []domain.SourceName
}

// Reconciler runs once at process startup to recover from a crash mid-run
// and to flag orphaned progress rows.
type Reconciler struct {
	progress progressStore
	registry map[domain.SourceName]bool
	log      *logrus.Logger

	report OrphanReport
}

// NewReconciler creates a Reconciler bound to the set of currently
// registered sources.
func NewReconciler(progress progressStore, registeredSources []domain.SourceName, logger *logrus.Logger) *Reconciler {
	registry := make(map[domain.SourceName]bool, len(registeredSources))
	for _, s := range registeredSources {
		registry[s] = true
	}
	return &Reconciler{progress: progress, registry: registry, log: logger}
}

// Report returns the OrphanReport built by the most recent Run call. It is
// the zero value until Run has completed at least once.
func (r *Reconciler) Report() OrphanReport {
	return r.report
}

// Run reconciles stale `running` rows to `failed` (preserving current_page
// for resumption) and logs a warning for any row whose source_name is not
// in the current registry, without deleting it.
func (r *Reconciler) Run(ctx context.Context) error {
	rows, err := r.progress.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("listing progress rows for reconciliation: %w", err)
	}

	report := OrphanReport{}
	now := time.Now()
	for _, row := range rows {
		if !r.registry[row.SourceName] {
			report.OrphanedSources = append(report.OrphanedSources, row.SourceName)
			r.log.WithField("source", row.SourceName).
				Warn("orphaned data_source_progress row: source is not in the current registry")
			continue
		}

		if row.Status != domain.RunRunning {
			continue
		}

		stale := row.LastHeartbeatAt == nil || now.Sub(*row.LastHeartbeatAt) > staleRunningThreshold
		if !stale {
			continue
		}

		row.Status = domain.RunFailed
		row.ErrorInfo = &domain.ErrorInfo{
			Reason:  "stale_heartbeat",
			Message: fmt.Sprintf("no heartbeat since %v, presumed crashed", row.LastHeartbeatAt),
		}
		if err := r.progress.UpdateStatus(ctx, row); err != nil {
			return fmt.Errorf("reconciling stale run for %s: %w", row.SourceName, err)
		}
		report.ReconciledStale = append(report.ReconciledStale, row.SourceName)
		r.log.WithFields(logrus.Fields{
			"source":       row.SourceName,
			"current_page": row.CurrentPage,
		}).Warn("reconciled stale running source to failed; resumable from saved checkpoint")
	}
	r.report = report
	return nil
}
