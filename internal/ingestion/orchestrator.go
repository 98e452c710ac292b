package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/sources"
)

// progressStore is the subset of repository.ProgressRepository the
// orchestrator depends on, accepted as an interface so unit tests can swap
// in an in-memory fake without a live Postgres.
type progressStore interface {
	Get(ctx context.Context, source domain.SourceName) (*domain.DataSourceProgress, error)
	UpdateStatus(ctx context.Context, p *domain.DataSourceProgress) error
	Heartbeat(ctx context.Context, source domain.SourceName) error
	ListAll(ctx context.Context) ([]*domain.DataSourceProgress, error)
}

// geneResolver is the subset of normalizer.Resolver the orchestrator needs
// to turn a raw record's gene_identifier into a canonical gene id.
type geneResolver interface {
	ResolveOrStage(ctx context.Context, identifier string, source domain.SourceName) (*domain.Gene, error)
}

// evidenceWriter is the subset of repository.EvidenceRepository the
// orchestrator writes through.
type evidenceWriter interface {
	Upsert(ctx context.Context, ev *domain.GeneEvidence) (int64, error)
	UpsertAnnotation(ctx context.Context, ann *domain.GeneAnnotation) (int64, error)
	DeleteBySource(ctx context.Context, source domain.SourceName) error
	DeleteAnnotationsBySource(ctx context.Context, source domain.SourceName) error
}

// cacheInvalidator is the subset of cache.Cache the orchestrator uses to
// drop stale query results after a run commits new evidence.
type cacheInvalidator interface {
	PurgeTable(ctx context.Context, table string) error
}

const (
	heartbeatEveryNPages   = 10
	memoryCheckEveryNPages = 50

	// maxConsecutiveFetchFailures is the consecutive-failure circuit
	// breaker: a failed page fetch is retried in place, and only this many
	// failures in a row abort the run. The retries also drive the
	// per-source gobreaker toward its own trip condition, so a persistently
	// down upstream opens the breaker instead of hammering it.
	maxConsecutiveFetchFailures = 3
)

// memoryGuard is the subset of safeguard.MemoryGuard the run loop polls at
// its resource-check cadence.
type memoryGuard interface {
	Exceeded() (fraction float64, exceeded bool)
}

// Orchestrator schedules source runs, tracks progress, and exposes
// trigger/pause/resume/status. One Orchestrator instance owns every
// registered source's run state; the
// per-source mutual exclusion is enforced by Trigger's check of the
// DataSourceProgress row's status, not by a lock held for a run's duration
// (a full PubTator crawl spans tens of thousands of publications and can
// run for hours).
type Orchestrator struct {
	adapters    map[domain.SourceName]sources.Adapter
	progress    progressStore
	resolver    geneResolver
	evidence    evidenceWriter
	cache       cacheInvalidator
	broadcaster Broadcaster
	memory      memoryGuard
	log         *logrus.Logger

	mu         sync.Mutex
	pauseFlags map[domain.SourceName]bool
}

// New creates an Orchestrator. broadcaster may be nil, in which case events
// are discarded via NoopBroadcaster.
func New(adapters map[domain.SourceName]sources.Adapter, progress progressStore, resolver geneResolver, evidence evidenceWriter, cache cacheInvalidator, broadcaster Broadcaster, logger *logrus.Logger) *Orchestrator {
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	return &Orchestrator{
		adapters:    adapters,
		progress:    progress,
		resolver:    resolver,
		evidence:    evidence,
		cache:       cache,
		broadcaster: broadcaster,
		log:         logger,
		pauseFlags:  make(map[domain.SourceName]bool),
	}
}

// SetMemoryGuard installs the resource circuit breaker the run loop polls
// every memoryCheckEveryNPages pages. Without one, runs
// never stop on memory pressure.
func (o *Orchestrator) SetMemoryGuard(g memoryGuard) {
	o.memory = g
}

// Trigger starts a run for source in mode. It refuses to start a second
// concurrent run for the same source; the
// caller is expected to run Trigger in its own goroutine for long sources,
// or await it directly for short ones and in tests.
func (o *Orchestrator) Trigger(ctx context.Context, source domain.SourceName, mode sources.FetchMode) error {
	adapter, ok := o.adapters[source]
	if !ok {
		return fmt.Errorf("no adapter registered for source %s", source)
	}

	current, err := o.progress.Get(ctx, source)
	if err != nil {
		return fmt.Errorf("checking progress before trigger: %w", err)
	}
	if current.Status == domain.RunRunning {
		return domain.NewCoreError(domain.KindValidation, fmt.Sprintf("%s is already running", source), nil)
	}

	o.clearPause(source)

	startPage := 0
	if mode != sources.ModeFull && (current.Status == domain.RunFailed || current.Status == domain.RunPaused) {
		startPage = current.CurrentPage
	}

	// Full-refresh mode deletes all of a source's existing evidence in one
	// transaction before the page loop starts streaming fresh inserts.
	// The delete is a separate, already-committed
	// transaction: a failure partway through the subsequent stream leaves
	// the source in a reduced-but-consistent state with status failed,
	// recoverable by re-trigger, rather than one oversized transaction.
	if mode == sources.ModeFull {
		if err := o.evidence.DeleteBySource(ctx, source); err != nil {
			return fmt.Errorf("clearing existing evidence before full refresh: %w", err)
		}
		if err := o.evidence.DeleteAnnotationsBySource(ctx, source); err != nil {
			return fmt.Errorf("clearing existing annotations before full refresh: %w", err)
		}
	}

	now := time.Now()
	progress := &domain.DataSourceProgress{
		SourceName:      source,
		Status:          domain.RunRunning,
		CurrentPage:     startPage,
		StartedAt:       &now,
		LastHeartbeatAt: &now,
	}
	if err := o.progress.UpdateStatus(ctx, progress); err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}

	runID := uuid.NewString()
	o.log.WithFields(logrus.Fields{
		"source":         source,
		"mode":           mode,
		"correlation_id": runID,
		"start_page":     startPage,
	}).Info("ingestion run started")
	o.broadcaster.Broadcast(Event{Type: EventStart, Source: source, RunID: runID, Mode: string(mode), CurrentPage: startPage})

	return o.run(ctx, adapter, progress, mode, runID)
}

// run drives the page-by-page fetch loop, checkpointing after every page
// and honoring cooperative pause at page boundaries.
func (o *Orchestrator) run(ctx context.Context, adapter sources.Adapter, progress *domain.DataSourceProgress, mode sources.FetchMode, runID string) error {
	source := adapter.Name()
	page := progress.CurrentPage
	itemsProcessed := progress.ItemsProcessed
	consecutiveHighDuplicatePages := 0
	consecutiveFetchFailures := 0

	smartAdapter, _ := adapter.(*sources.PubTatorAdapter)

	for {
		if o.isPaused(source) {
			progress.Status = domain.RunPaused
			if err := o.progress.UpdateStatus(ctx, progress); err != nil {
				return fmt.Errorf("recording pause: %w", err)
			}
			o.broadcaster.Broadcast(Event{Type: EventPaused, Source: source, RunID: runID, CurrentPage: page})
			return nil
		}

		result, err := adapter.FetchPage(ctx, page, mode)
		if err != nil {
			if ctx.Err() != nil {
				return o.fail(ctx, progress, runID, "cancelled", ctx.Err())
			}
			consecutiveFetchFailures++
			if consecutiveFetchFailures >= maxConsecutiveFetchFailures {
				return o.fail(ctx, progress, runID, "transport_or_database_error",
					fmt.Errorf("%d consecutive page fetch failures, last: %w", consecutiveFetchFailures, err))
			}
			o.log.WithFields(logrus.Fields{
				"source":               source,
				"correlation_id":       runID,
				"page":                 page,
				"consecutive_failures": consecutiveFetchFailures,
				"error":                err,
			}).Warn("page fetch failed, retrying")
			continue
		}
		consecutiveFetchFailures = 0

		failedInPage := o.writeRecords(ctx, source, result.Records)

		page = result.PageNumber
		itemsProcessed += len(result.Records)
		progress.CurrentPage = page
		progress.TotalPages = result.TotalPages
		progress.ItemsProcessed = itemsProcessed
		if failedInPage > 0 {
			if progress.ErrorInfo == nil {
				progress.ErrorInfo = &domain.ErrorInfo{}
			}
			progress.ErrorInfo.FailedRecordCount += failedInPage
		}

		if page%heartbeatEveryNPages == 0 {
			if err := o.progress.Heartbeat(ctx, source); err != nil {
				o.log.WithError(err).Warn("heartbeat update failed")
			}
			o.broadcaster.Broadcast(Event{Type: EventHeartbeat, Source: source, RunID: runID, CurrentPage: page, TotalPages: result.TotalPages})
		}
		if err := o.progress.UpdateStatus(ctx, progress); err != nil {
			return fmt.Errorf("checkpointing page %d: %w", page, err)
		}
		o.broadcaster.Broadcast(Event{Type: EventPageComplete, Source: source, RunID: runID, CurrentPage: page, TotalPages: result.TotalPages, ItemsProcessed: itemsProcessed})

		if o.memory != nil && page%memoryCheckEveryNPages == 0 {
			if fraction, exceeded := o.memory.Exceeded(); exceeded {
				progress.Status = domain.RunFailed
				progress.ErrorInfo = &domain.ErrorInfo{
					Reason:  "resource_limit",
					Message: fmt.Sprintf("memory use at %.0f%%, stopping with progress persisted at page %d", fraction*100, page),
				}
				if err := o.progress.UpdateStatus(ctx, progress); err != nil {
					o.log.WithError(err).Error("failed to persist resource-limit stop")
				}
				o.broadcaster.Broadcast(Event{Type: EventFailed, Source: source, RunID: runID, Message: progress.ErrorInfo.Message, CurrentPage: page})
				return domain.NewCoreError(domain.KindResourceExhaustion, progress.ErrorInfo.Message, nil)
			}
		}

		if mode == sources.ModeSmart && smartAdapter != nil {
			stop, next := smartAdapter.ShouldStopSmart(page, consecutiveHighDuplicatePages, result.DuplicateRate)
			consecutiveHighDuplicatePages = next
			if stop {
				break
			}
		}

		if result.Done {
			break
		}
	}

	progress.Status = domain.RunSucceeded
	if err := o.progress.UpdateStatus(ctx, progress); err != nil {
		return fmt.Errorf("recording run completion: %w", err)
	}
	if o.cache != nil {
		if err := o.cache.PurgeTable(ctx, "gene_evidence"); err != nil {
			o.log.WithError(err).Warn("cache invalidation after run failed")
		}
	}
	o.log.WithFields(logrus.Fields{
		"source":          source,
		"correlation_id":  runID,
		"items_processed": itemsProcessed,
	}).Info("ingestion run finished")
	o.broadcaster.Broadcast(Event{Type: EventFinished, Source: source, RunID: runID, CurrentPage: page, ItemsProcessed: itemsProcessed})
	return nil
}

// IngestUpload resolves and persists an operator-submitted batch of raw records
// outside the paginated adapter loop, sharing the same resolve-then-upsert path
// a fetched page goes through, and purges the annotations/evidence cache tables
// afterward so list_genes reflects the upload immediately. It returns the
// number of records that failed to resolve or persist.
func (o *Orchestrator) IngestUpload(ctx context.Context, source domain.SourceName, records []domain.RawRecord) (int, error) {
	failed := o.writeRecords(ctx, source, records)
	if o.cache != nil {
		if err := o.cache.PurgeTable(ctx, "gene_evidence"); err != nil {
			o.log.WithError(err).Warn("cache purge after upload failed")
		}
		if err := o.cache.PurgeTable(ctx, "gene_annotations"); err != nil {
			o.log.WithError(err).Warn("cache purge after upload failed")
		}
	}
	return failed, nil
}

// writeRecords resolves and persists one page's raw records, returning the
// count that failed — a single record's failure never aborts the run.
func (o *Orchestrator) writeRecords(ctx context.Context, source domain.SourceName, records []domain.RawRecord) int {
	failed := 0
	for _, rec := range records {
		gene, err := o.resolver.ResolveOrStage(ctx, rec.GeneIdentifier, source)
		if err != nil || gene == nil {
			failed++
			o.log.WithFields(logrus.Fields{"source": source, "identifier": rec.GeneIdentifier, "error": err}).
				Warn("record could not be resolved to a gene; staged for review")
			continue
		}

		if rec.EvidenceData != nil {
			if _, err := o.evidence.Upsert(ctx, &domain.GeneEvidence{
				GeneID:       gene.ID,
				SourceName:   source,
				EvidenceData: rec.EvidenceData,
			}); err != nil {
				failed++
				o.log.WithFields(logrus.Fields{"source": source, "gene_id": gene.ID, "error": err}).
					Error("evidence upsert failed")
				continue
			}
		}

		if rec.AnnotationData != nil {
			if _, err := o.evidence.UpsertAnnotation(ctx, &domain.GeneAnnotation{
				GeneID:         gene.ID,
				SourceName:     source,
				AnnotationData: rec.AnnotationData,
			}); err != nil {
				failed++
				o.log.WithFields(logrus.Fields{"source": source, "gene_id": gene.ID, "error": err}).
					Error("annotation upsert failed")
			}
		}
	}
	return failed
}

func (o *Orchestrator) fail(ctx context.Context, progress *domain.DataSourceProgress, runID, reason string, cause error) error {
	progress.Status = domain.RunFailed
	progress.ErrorInfo = &domain.ErrorInfo{Reason: reason, Message: cause.Error()}
	if err := o.progress.UpdateStatus(ctx, progress); err != nil {
		o.log.WithError(err).Error("failed to persist run failure")
	}
	o.broadcaster.Broadcast(Event{Type: EventFailed, Source: progress.SourceName, RunID: runID, Message: cause.Error(), CurrentPage: progress.CurrentPage})
	return fmt.Errorf("run failed for %s: %w", progress.SourceName, cause)
}

// Pause cooperatively suspends a running source; the adapter loop checks
// the pause flag at the next page boundary.
func (o *Orchestrator) Pause(source domain.SourceName) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pauseFlags[source] = true
}

// Resume clears a source's pause flag. The caller must re-invoke Trigger to
// actually restart the fetch loop from the saved checkpoint.
func (o *Orchestrator) Resume(ctx context.Context, source domain.SourceName) error {
	o.clearPause(source)
	progress, err := o.progress.Get(ctx, source)
	if err != nil {
		return fmt.Errorf("loading progress before resume: %w", err)
	}
	if progress.Status != domain.RunPaused {
		return domain.NewCoreError(domain.KindValidation, fmt.Sprintf("%s is not paused", source), nil)
	}
	return nil
}

func (o *Orchestrator) clearPause(source domain.SourceName) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.pauseFlags, source)
}

func (o *Orchestrator) isPaused(source domain.SourceName) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pauseFlags[source]
}

// Status returns a source's current DataSourceProgress row.
func (o *Orchestrator) Status(ctx context.Context, source domain.SourceName) (*domain.DataSourceProgress, error) {
	return o.progress.Get(ctx, source)
}
