package network

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/berntpopp/kidney-genetics-core/internal/cache"
	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

// Service is the network-analysis facade: build, cluster, and enrich, each
// cached in the network_analysis namespace keyed on sorted gene ids so two
// requests differing only in gene-id order share one cache entry. The
// namespace's TTL configuration lives in the cache namespace config, not
// here.
type Service struct {
	annotations annotationSource
	genes       geneLookup
	cache       *cache.Cache
	goClient    *GOClient
	maxGeneIDs  int
	log         *logrus.Logger
}

// NewService creates a network Service. goClient may be nil, in which case
// EnrichGO always returns an empty result without attempting a call.
// maxGeneIDs enforces network.max_gene_ids; zero disables
// the check.
func NewService(annotations annotationSource, genes geneLookup, c *cache.Cache, goClient *GOClient, maxGeneIDs int, logger *logrus.Logger) *Service {
	return &Service{annotations: annotations, genes: genes, cache: c, goClient: goClient, maxGeneIDs: maxGeneIDs, log: logger}
}

func (s *Service) checkGeneIDLimit(count int) error {
	if s.maxGeneIDs > 0 && count > s.maxGeneIDs {
		return domain.NewCoreError(domain.KindResourceExhaustion,
			fmt.Sprintf("gene id count %d exceeds network.max_gene_ids limit %d", count, s.maxGeneIDs), nil)
	}
	return nil
}

func sortedGeneIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) getCached(ctx context.Context, key cache.Key, dst any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.WithError(err).Warn("network cache read failed, recomputing")
		return false
	}
	return hit
}

func (s *Service) setCached(ctx context.Context, key cache.Key, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		s.log.WithError(err).Warn("network cache write failed")
	}
}

// Build runs (or serves from cache) the graph-build operation.
func (s *Service) Build(ctx context.Context, req BuildRequest) (*Graph, error) {
	if err := s.checkGeneIDLimit(len(req.GeneIDs)); err != nil {
		return nil, err
	}
	req.GeneIDs = sortedGeneIDs(req.GeneIDs)
	key := cache.NewKey(cache.NamespaceNetworkAnalysis, "build", req)

	var cached Graph
	if s.getCached(ctx, key, &cached) {
		return &cached, nil
	}

	g, err := Build(ctx, s.annotations, s.genes, req)
	if err != nil {
		return nil, fmt.Errorf("building network: %w", err)
	}
	s.setCached(ctx, key, g)
	return g, nil
}

// Cluster runs (or serves from cache) graph build + community detection.
func (s *Service) Cluster(ctx context.Context, req ClusterRequest) (*ClusterResult, error) {
	req.GeneIDs = sortedGeneIDs(req.GeneIDs)
	if req.Algorithm == "" {
		req.Algorithm = AlgorithmLeiden
	}
	key := cache.NewKey(cache.NamespaceNetworkAnalysis, "cluster", req)

	var cached ClusterResult
	if s.getCached(ctx, key, &cached) {
		return &cached, nil
	}

	g, err := s.Build(ctx, BuildRequest{GeneIDs: req.GeneIDs, MinStringScore: req.MinStringScore})
	if err != nil {
		return nil, err
	}

	result := Cluster(g, req.Algorithm)
	s.setCached(ctx, key, result)
	return result, nil
}

// EnrichHPO runs (or serves from cache) clustering + HPO over-representation
// enrichment.
func (s *Service) EnrichHPO(ctx context.Context, buildReq BuildRequest, req EnrichHPORequest) (*HPOEnrichmentResult, error) {
	req.GeneIDs = sortedGeneIDs(req.GeneIDs)
	key := cache.NewKey(cache.NamespaceNetworkAnalysis, "enrich_hpo", buildReq, req)

	var cached HPOEnrichmentResult
	if s.getCached(ctx, key, &cached) {
		return &cached, nil
	}

	clustering, err := s.Cluster(ctx, ClusterRequest{
		GeneIDs:        buildReq.GeneIDs,
		MinStringScore: buildReq.MinStringScore,
		Algorithm:      req.Algorithm,
	})
	if err != nil {
		return nil, err
	}

	result, err := EnrichHPO(ctx, s.annotations, clustering, req)
	if err != nil {
		return nil, fmt.Errorf("enriching hpo: %w", err)
	}
	s.setCached(ctx, key, result)
	return result, nil
}

// EnrichGO runs (or serves from cache) GO/KEGG enrichment for one cluster's
// gene set, resolving gene ids to symbols before calling the external
// service. Failures never propagate — an empty result is cached just like a
// successful empty answer, matching the external client's own degrade-to-
// empty contract.
func (s *Service) EnrichGO(ctx context.Context, geneIDs []int64) ([]EnrichmentRow, error) {
	sorted := sortedGeneIDs(geneIDs)
	key := cache.NewKey(cache.NamespaceNetworkAnalysis, "enrich_go", GORequest{GeneIDs: sorted})

	var cached []EnrichmentRow
	if s.getCached(ctx, key, &cached) {
		return cached, nil
	}

	if s.goClient == nil {
		return nil, nil
	}

	symbols := make([]string, 0, len(sorted))
	for _, id := range sorted {
		gene, err := s.genes.GetByID(ctx, id)
		if err != nil {
			continue
		}
		symbols = append(symbols, gene.ApprovedSymbol)
	}

	rows := s.goClient.Enrich(ctx, symbols)
	s.setCached(ctx, key, rows)
	return rows, nil
}
