// Command ingestd is the long-running ingestion daemon: it wires every
// ingestion component together (config, repositories, cache, normalizer,
// adapters, orchestrator) and drives scheduled pipeline
// runs to completion: config load -> component construction -> startup
// reconciliation -> signal-driven graceful shutdown. The HTTP/WebSocket
// serving layer lives outside this repository; the daemon only exposes a
// liveness probe.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/cache"
	"github.com/berntpopp/kidney-genetics-core/internal/config"
	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/ingestion"
	"github.com/berntpopp/kidney-genetics-core/internal/normalizer"
	"github.com/berntpopp/kidney-genetics-core/internal/observability"
	"github.com/berntpopp/kidney-genetics-core/internal/repository"
	"github.com/berntpopp/kidney-genetics-core/internal/sources"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

func main() {
	cfgManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfgManager.Validate(); err != nil {
		log.Fatalf("configuration validation failed: %v", err)
	}
	cfg := cfgManager.GetConfig()

	baseLogger := newLogrus(cfg.Logging)
	structuredLogger := observability.NewLogger(baseLogger)
	structuredLogger.Event("ingestd", "startup", "").Info("starting kidney-genetics ingestion daemon")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := repository.NewPool(ctx, cfgManager.GetDatabaseConnectionString(), cfg.Database.MaxOpenConns)
	if err != nil {
		baseLogger.WithError(err).Fatal("failed to connect to database")
	}
	defer pool.Close()

	db := observability.NewSlowQueryLogger(pool, 100*time.Millisecond, baseLogger)

	geneRepo := repository.NewGeneRepository(db, baseLogger)
	evidenceRepo := repository.NewEvidenceRepository(db, baseLogger)
	progressRepo := repository.NewProgressRepository(db, baseLogger)
	stagingRepo := repository.NewStagingRepository(db, baseLogger)

	memCache, err := cache.New(cfg, baseLogger)
	if err != nil {
		baseLogger.WithError(err).Fatal("failed to initialize cache")
	}
	defer memCache.Close()

	resolver := normalizer.NewResolver(geneRepo, stagingRepo, baseLogger)

	hgncClient := normalizer.NewHGNCClient(normalizer.HGNCClientConfig{Timeout: 120 * time.Second, RateLimit: 3})
	snapshotRefresher := normalizer.NewSnapshotRefresher(hgncClient, pool, geneRepo, baseLogger)

	rps := make(map[domain.SourceName]float64, len(cfg.Sources))
	for name, sc := range cfg.Sources {
		rps[domain.SourceName(name)] = sc.RateLimit.RequestsPerSecond
	}
	limiters := safeguard.NewRateLimiterRegistry(rps)
	breakers := safeguard.NewBreakerRegistry()

	adapters := buildAdapters(cfg, limiters, breakers, evidenceRepo)

	broadcaster := observability.NewWebSocketBroadcaster(baseLogger)
	orchestrator := ingestion.New(adapters, progressRepo, resolver, evidenceRepo, memCache, broadcaster, baseLogger)
	orchestrator.SetMemoryGuard(safeguard.NewMemoryGuard(0.85))

	registeredSources := make([]domain.SourceName, 0, len(adapters))
	for name := range adapters {
		registeredSources = append(registeredSources, name)
	}
	reconciler := ingestion.NewReconciler(progressRepo, registeredSources, baseLogger)
	if err := reconciler.Run(ctx); err != nil {
		baseLogger.WithError(err).Error("startup reconciliation failed")
	}
	report := reconciler.Report()
	if len(report.OrphanedSources) > 0 {
		baseLogger.WithField("orphaned_sources", report.OrphanedSources).Warn("progress rows found for sources no longer registered")
	}
	if len(report.ReconciledStale) > 0 {
		baseLogger.WithField("reconciled_sources", report.ReconciledStale).Warn("stale running rows reconciled to failed")
	}

	// The query and network services are consumed by the external HTTP
	// layer, not by this daemon directly; cmd/curatorctl wires and
	// exercises them for operator use from the command line.

	startHealthServer(ctx, cfg.Server, memCache, baseLogger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runLoop(ctx, sigCh, orchestrator, snapshotRefresher, resolver, registeredSources, cfg.Server.ShutdownTimeout, baseLogger)

	baseLogger.Info("kidney-genetics ingestion daemon stopped")
}

// buildAdapters constructs one Adapter per enabled source in configuration,
// registered into a name-keyed map the orchestrator looks up by
// domain.SourceName.
func buildAdapters(cfg *domain.Config, limiters *safeguard.RateLimiterRegistry, breakers *safeguard.BreakerRegistry, checker sources.ExistingIDChecker) map[domain.SourceName]sources.Adapter {
	adapters := make(map[domain.SourceName]sources.Adapter)

	register := func(name domain.SourceName, build func(domain.SourceConfig) sources.Adapter) {
		sc, ok := cfg.Sources[string(name)]
		if !ok || !sc.Enabled {
			return
		}
		adapters[name] = build(sc)
	}

	register(domain.SourcePanelApp, func(sc domain.SourceConfig) sources.Adapter {
		return sources.NewPanelAppAdapter(sc, limiters, breakers)
	})
	register(domain.SourceClinGen, func(sc domain.SourceConfig) sources.Adapter {
		return sources.NewClinGenAdapter(sc, limiters, breakers)
	})
	register(domain.SourceGenCC, func(sc domain.SourceConfig) sources.Adapter {
		return sources.NewGenCCAdapter(sc, limiters, breakers)
	})
	register(domain.SourceHPO, func(sc domain.SourceConfig) sources.Adapter {
		return sources.NewHPOAdapter(sc, limiters, breakers)
	})
	register(domain.SourceClinVar, func(sc domain.SourceConfig) sources.Adapter {
		return sources.NewClinVarAdapter(sc, limiters, breakers)
	})
	register(domain.SourcePubTator, func(sc domain.SourceConfig) sources.Adapter {
		return sources.NewPubTatorAdapter(sc, limiters, breakers, checker)
	})
	register(domain.SourceStringPPI, func(sc domain.SourceConfig) sources.Adapter {
		return sources.NewStringPPIAdapter(sc, limiters, breakers, 700)
	})
	if sc, ok := cfg.Sources[string(domain.SourceDiagnosticPanels)]; ok && sc.Enabled {
		adapters[domain.SourceDiagnosticPanels] = sources.NewDiagnosticPanelsAdapter()
	}

	return adapters
}

// runLoop refreshes the HGNC snapshot once at startup, triggers a smart run
// for every registered source, then blocks until a shutdown signal arrives.
// On shutdown it drains in-flight pages: every run is paused at its next page
// boundary, and runLoop waits up to shutdownTimeout for the runs to return.
func runLoop(ctx context.Context, sigCh <-chan os.Signal, orchestrator *ingestion.Orchestrator, snapshots *normalizer.SnapshotRefresher, resolver *normalizer.Resolver, registeredSources []domain.SourceName, shutdownTimeout time.Duration, logger *logrus.Logger) {
	if _, err := snapshots.Refresh(ctx); err != nil {
		logger.WithError(err).Warn("initial HGNC snapshot refresh failed; resolution will use the existing snapshot")
	} else {
		resolver.InvalidateMemo()
	}

	var wg sync.WaitGroup
	for _, source := range registeredSources {
		wg.Add(1)
		go func(s domain.SourceName) {
			defer wg.Done()
			if err := orchestrator.Trigger(ctx, s, sources.ModeSmart); err != nil {
				logger.WithError(err).WithField("source", s).Warn("scheduled trigger failed")
			}
		}(source)
	}

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig).Info("shutdown signal received, draining in-flight pages")
	case <-ctx.Done():
	}

	for _, source := range registeredSources {
		orchestrator.Pause(source)
	}
	drained := make(chan struct{})
	go func() { wg.Wait(); close(drained) }()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout reached before in-flight runs drained")
	}
}

// startHealthServer exposes a liveness/readiness probe an orchestration
// platform can poll, without standing up any part of the gene-listing or
// admin API surface.
func startHealthServer(ctx context.Context, cfg domain.ServerConfig, c *cache.Cache, logger *logrus.Logger) {
	if cfg.HealthPort == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := c.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "cache unhealthy: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	srv := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.HealthPort), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server exited unexpectedly")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// newLogrus builds the process-wide structured logger: JSON formatter in
// production, text in development, level from configuration.
func newLogrus(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.Output == "stderr" {
		logger.SetOutput(os.Stderr)
	}

	return logger
}
