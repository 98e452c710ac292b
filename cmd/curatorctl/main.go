// Command curatorctl is the operator CLI for the kidney-genetics curation
// core: trigger/pause/resume/status against the ingestion pipeline, plus a
// read-only gene listing query, driven directly against the same
// components cmd/ingestd wires up. Subcommands are dispatched on os.Args[1]
// rather than standing up any part of the admin HTTP layer, which is served
// elsewhere.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/cache"
	"github.com/berntpopp/kidney-genetics-core/internal/config"
	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/evidence"
	"github.com/berntpopp/kidney-genetics-core/internal/ingestion"
	"github.com/berntpopp/kidney-genetics-core/internal/network"
	"github.com/berntpopp/kidney-genetics-core/internal/normalizer"
	"github.com/berntpopp/kidney-genetics-core/internal/observability"
	"github.com/berntpopp/kidney-genetics-core/internal/query"
	"github.com/berntpopp/kidney-genetics-core/internal/repository"
	"github.com/berntpopp/kidney-genetics-core/internal/sources"
	"github.com/berntpopp/kidney-genetics-core/internal/sources/safeguard"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfgManager, err := config.NewManager()
	if err != nil {
		fatal("failed to load configuration: %v", err)
	}
	if err := cfgManager.Validate(); err != nil {
		fatal("configuration validation failed: %v", err)
	}
	cfg := cfgManager.GetConfig()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // CLI output is the report itself; keep component logs quiet.

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := repository.NewPool(ctx, cfgManager.GetDatabaseConnectionString(), cfg.Database.MaxOpenConns)
	if err != nil {
		fatal("failed to connect to database: %v", err)
	}
	defer pool.Close()

	geneRepo := repository.NewGeneRepository(pool, logger)
	evidenceRepo := repository.NewEvidenceRepository(pool, logger)
	progressRepo := repository.NewProgressRepository(pool, logger)
	stagingRepo := repository.NewStagingRepository(pool, logger)
	resolver := normalizer.NewResolver(geneRepo, stagingRepo, logger)

	memCache, err := cache.New(cfg, logger)
	if err != nil {
		fatal("failed to initialize cache: %v", err)
	}
	defer memCache.Close()

	switch os.Args[1] {
	case "status":
		runStatus(ctx, progressRepo)
	case "trigger":
		runTrigger(ctx, os.Args[2:], cfg, progressRepo, evidenceRepo, resolver, memCache, logger)
	case "pause":
		runPause(os.Args[2:], progressRepo, logger)
	case "resume":
		runResume(ctx, os.Args[2:], progressRepo, logger)
	case "list-genes":
		runListGenes(ctx, os.Args[2:], cfg, geneRepo, evidenceRepo, memCache)
	case "cache-stats":
		runCacheStats(memCache)
	case "cache-purge":
		runCachePurge(ctx, os.Args[2:], memCache)
	case "network-build":
		runNetworkBuild(ctx, os.Args[2:], cfg, geneRepo, evidenceRepo, memCache, logger)
	case "network-enrich-hpo":
		runNetworkEnrichHPO(ctx, os.Args[2:], cfg, geneRepo, evidenceRepo, memCache, logger)
	case "upload":
		runUpload(ctx, os.Args[2:], progressRepo, evidenceRepo, resolver, memCache, logger)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `curatorctl <command> [flags]

Commands:
  status                          list DataSourceProgress for every source
  trigger -source NAME -mode full|smart|update_failed|update_new|update_missing
  pause -source NAME
  resume -source NAME
  list-genes [-tier NAME] [-search TEXT] [-page N] [-page-size N]
  cache-stats
  cache-purge -namespace NAME | -all
  network-build -genes 1,2,3 [-min-string-score N] [-algorithm leiden|louvain|walktrap]
  network-enrich-hpo -genes 1,2,3 [-kidney-only=true] [-fdr 0.05]
  upload -file PATH -format json|csv|tsv [-source diagnostic_panels]`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runStatus(ctx context.Context, progress *repository.ProgressRepository) {
	rows, err := progress.ListAll(ctx)
	if err != nil {
		fatal("listing progress: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rows)
}

func runTrigger(ctx context.Context, args []string, cfg *domain.Config, progress *repository.ProgressRepository, evidenceRepo *repository.EvidenceRepository, resolver *normalizer.Resolver, c *cache.Cache, logger *logrus.Logger) {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	sourceFlag := fs.String("source", "", "source name (e.g. panelapp, pubtator)")
	modeFlag := fs.String("mode", "smart", "full|smart|update_failed|update_new|update_missing")
	_ = fs.Parse(args)

	if *sourceFlag == "" {
		fatal("trigger requires -source")
	}
	source := domain.SourceName(*sourceFlag)

	rps := map[domain.SourceName]float64{source: 3}
	limiters := safeguard.NewRateLimiterRegistry(rps)
	breakers := safeguard.NewBreakerRegistry()

	sc, ok := cfg.Sources[string(source)]
	if !ok {
		fatal("unknown source %s", source)
	}

	adapter := adapterFor(source, sc, limiters, breakers, evidenceRepo)
	if adapter == nil {
		fatal("no adapter available for source %s", source)
	}

	broadcaster := observability.NewWebSocketBroadcaster(logger)
	orchestrator := ingestion.New(map[domain.SourceName]sources.Adapter{source: adapter}, progress, resolver, evidenceRepo, c, broadcaster, logger)
	orchestrator.SetMemoryGuard(safeguard.NewMemoryGuard(0.85))

	mode := sources.FetchMode(*modeFlag)
	if err := orchestrator.Trigger(ctx, source, mode); err != nil {
		fatal("trigger failed: %v", err)
	}
	fmt.Printf("triggered %s in mode %s\n", source, mode)
}

func runPause(args []string, progress *repository.ProgressRepository, logger *logrus.Logger) {
	fs := flag.NewFlagSet("pause", flag.ExitOnError)
	sourceFlag := fs.String("source", "", "source name")
	_ = fs.Parse(args)
	if *sourceFlag == "" {
		fatal("pause requires -source")
	}

	broadcaster := observability.NewWebSocketBroadcaster(logger)
	orchestrator := ingestion.New(nil, progress, nil, nil, nil, broadcaster, logger)
	orchestrator.Pause(domain.SourceName(*sourceFlag))
	fmt.Printf("pause flag set for %s; it takes effect at the next page boundary\n", *sourceFlag)
}

func runResume(ctx context.Context, args []string, progress *repository.ProgressRepository, logger *logrus.Logger) {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	sourceFlag := fs.String("source", "", "source name")
	_ = fs.Parse(args)
	if *sourceFlag == "" {
		fatal("resume requires -source")
	}

	broadcaster := observability.NewWebSocketBroadcaster(logger)
	orchestrator := ingestion.New(nil, progress, nil, nil, nil, broadcaster, logger)
	if err := orchestrator.Resume(ctx, domain.SourceName(*sourceFlag)); err != nil {
		fatal("resume failed: %v", err)
	}
	fmt.Printf("%s cleared for resume; re-trigger to continue from its saved checkpoint\n", *sourceFlag)
}

func runListGenes(ctx context.Context, args []string, cfg *domain.Config, geneRepo *repository.GeneRepository, evidenceRepo *repository.EvidenceRepository, c *cache.Cache) {
	fs := flag.NewFlagSet("list-genes", flag.ExitOnError)
	tierFlag := fs.String("tier", "", "comma-separated evidence tier filter")
	searchFlag := fs.String("search", "", "symbol/alias substring filter")
	pageFlag := fs.Int("page", 1, "page number")
	pageSizeFlag := fs.Int("page-size", cfg.APIDefaults.DefaultPageSize, "page size")
	_ = fs.Parse(args)

	scorer := evidence.NewScorer(cfg.Sources, cfg.EvidenceTiers)
	svc := query.NewService(geneRepo, evidenceRepo, scorer, c)

	var tiers []domain.EvidenceTier
	if *tierFlag != "" {
		for _, t := range strings.Split(*tierFlag, ",") {
			tiers = append(tiers, domain.EvidenceTier(strings.TrimSpace(t)))
		}
	}

	filters := query.Filters{
		Search:         *searchFlag,
		Tiers:          tiers,
		HideZeroScores: cfg.APIDefaults.HideZeroScores,
	}
	sortOrder := query.Sort{Field: query.SortByPercentageScore, Descending: true}
	pagination := query.Pagination{Page: *pageFlag, PageSize: *pageSizeFlag}

	result, err := svc.ListGenes(ctx, filters, sortOrder, pagination)
	if err != nil {
		fatal("list-genes failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

func runCacheStats(c *cache.Cache) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(c.AllStats())
}

func runCachePurge(ctx context.Context, args []string, c *cache.Cache) {
	fs := flag.NewFlagSet("cache-purge", flag.ExitOnError)
	namespaceFlag := fs.String("namespace", "", "namespace to purge")
	allFlag := fs.Bool("all", false, "purge every namespace")
	_ = fs.Parse(args)

	if *allFlag {
		if err := c.PurgeAll(ctx); err != nil {
			fatal("purge all failed: %v", err)
		}
		fmt.Println("purged all namespaces")
		return
	}
	if *namespaceFlag == "" {
		fatal("cache-purge requires -namespace or -all")
	}
	if err := c.PurgeNamespace(ctx, cache.Namespace(*namespaceFlag)); err != nil {
		fatal("purge failed: %v", err)
	}
	fmt.Printf("purged namespace %s\n", *namespaceFlag)
}

func runNetworkBuild(ctx context.Context, args []string, cfg *domain.Config, geneRepo *repository.GeneRepository, evidenceRepo *repository.EvidenceRepository, c *cache.Cache, logger *logrus.Logger) {
	fs := flag.NewFlagSet("network-build", flag.ExitOnError)
	genesFlag := fs.String("genes", "", "comma-separated canonical gene ids")
	algorithmFlag := fs.String("algorithm", cfg.Network.DefaultClusterAlgorithm, "leiden|louvain|walktrap")
	minScoreFlag := fs.Int("min-string-score", 700, "minimum STRING combined score [150,999]")
	_ = fs.Parse(args)

	geneIDs, err := parseGeneIDs(*genesFlag)
	if err != nil {
		fatal("invalid -genes: %v", err)
	}

	goClient := network.NewGOClient("", "9606", cfg.Network.GOEnrichmentMinInterval, cfg.Network.GOEnrichmentTimeout, logger)
	svc := network.NewService(evidenceRepo, geneRepo, c, goClient, cfg.Network.MaxGeneIDs, logger)

	clusterResult, err := svc.Cluster(ctx, network.ClusterRequest{
		GeneIDs:        geneIDs,
		MinStringScore: *minScoreFlag,
		Algorithm:      network.ClusterAlgorithm(*algorithmFlag),
	})
	if err != nil {
		fatal("network build/cluster failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(clusterResult)
}

func runNetworkEnrichHPO(ctx context.Context, args []string, cfg *domain.Config, geneRepo *repository.GeneRepository, evidenceRepo *repository.EvidenceRepository, c *cache.Cache, logger *logrus.Logger) {
	fs := flag.NewFlagSet("network-enrich-hpo", flag.ExitOnError)
	genesFlag := fs.String("genes", "", "comma-separated canonical gene ids")
	algorithmFlag := fs.String("algorithm", cfg.Network.DefaultClusterAlgorithm, "leiden|louvain|walktrap")
	minScoreFlag := fs.Int("min-string-score", 700, "minimum STRING combined score [150,999]")
	kidneyOnlyFlag := fs.Bool("kidney-only", true, "use the kidney_phenotypes subset rather than the full phenotype list")
	fdrFlag := fs.Float64("fdr", cfg.Network.FDRThreshold, "FDR significance threshold")
	_ = fs.Parse(args)

	geneIDs, err := parseGeneIDs(*genesFlag)
	if err != nil {
		fatal("invalid -genes: %v", err)
	}

	goClient := network.NewGOClient("", "9606", cfg.Network.GOEnrichmentMinInterval, cfg.Network.GOEnrichmentTimeout, logger)
	svc := network.NewService(evidenceRepo, geneRepo, c, goClient, cfg.Network.MaxGeneIDs, logger)

	buildReq := network.BuildRequest{GeneIDs: geneIDs, MinStringScore: *minScoreFlag}
	enrichReq := network.EnrichHPORequest{
		GeneIDs:       geneIDs,
		Algorithm:     network.ClusterAlgorithm(*algorithmFlag),
		UseKidneyOnly: *kidneyOnlyFlag,
		FDRThreshold:  *fdrFlag,
	}

	result, err := svc.EnrichHPO(ctx, buildReq, enrichReq)
	if err != nil {
		fatal("HPO enrichment failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
}

// parseGeneIDs parses a comma-separated gene id list into the explicit
// request shape the network operations accept.
func parseGeneIDs(raw string) ([]int64, error) {
	if raw == "" {
		return nil, fmt.Errorf("at least one gene id is required")
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a valid gene id: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// adapterFor constructs a single adapter for the ad hoc single-source
// orchestrator this CLI builds per invocation — the same registration
// logic cmd/ingestd applies to every enabled source at daemon startup,
// narrowed to the one source the operator named.
func adapterFor(name domain.SourceName, sc domain.SourceConfig, limiters *safeguard.RateLimiterRegistry, breakers *safeguard.BreakerRegistry, checker sources.ExistingIDChecker) sources.Adapter {
	switch name {
	case domain.SourcePanelApp:
		return sources.NewPanelAppAdapter(sc, limiters, breakers)
	case domain.SourceClinGen:
		return sources.NewClinGenAdapter(sc, limiters, breakers)
	case domain.SourceGenCC:
		return sources.NewGenCCAdapter(sc, limiters, breakers)
	case domain.SourceHPO:
		return sources.NewHPOAdapter(sc, limiters, breakers)
	case domain.SourceClinVar:
		return sources.NewClinVarAdapter(sc, limiters, breakers)
	case domain.SourcePubTator:
		return sources.NewPubTatorAdapter(sc, limiters, breakers, checker)
	case domain.SourceStringPPI:
		return sources.NewStringPPIAdapter(sc, limiters, breakers, 700)
	case domain.SourceDiagnosticPanels:
		return sources.NewDiagnosticPanelsAdapter()
	default:
		return nil
	}
}

// runUpload parses an operator-submitted diagnostic-panel membership file
// and writes it through the same resolve-then-upsert path a fetched page
// goes through, via Orchestrator.IngestUpload.
func runUpload(ctx context.Context, args []string, progress *repository.ProgressRepository, evidenceRepo *repository.EvidenceRepository, resolver *normalizer.Resolver, c *cache.Cache, logger *logrus.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	fileFlag := fs.String("file", "", "path to the upload file")
	formatFlag := fs.String("format", "json", "json|csv|tsv")
	sourceFlag := fs.String("source", string(domain.SourceDiagnosticPanels), "source name to attribute the upload to")
	_ = fs.Parse(args)

	if *fileFlag == "" {
		fatal("upload requires -file")
	}

	f, err := os.Open(*fileFlag)
	if err != nil {
		fatal("opening upload file: %v", err)
	}
	defer f.Close()

	records, err := sources.ParseUpload(sources.UploadFormat(*formatFlag), f)
	if err != nil {
		fatal("parsing upload: %v", err)
	}

	source := domain.SourceName(*sourceFlag)
	broadcaster := observability.NewWebSocketBroadcaster(logger)
	orchestrator := ingestion.New(map[domain.SourceName]sources.Adapter{}, progress, resolver, evidenceRepo, c, broadcaster, logger)

	failed, err := orchestrator.IngestUpload(ctx, source, records)
	if err != nil {
		fatal("upload ingestion failed: %v", err)
	}
	fmt.Printf("uploaded %d records for %s (%d failed to resolve or persist)\n", len(records), source, failed)
}
