// Package network implements the network-analysis engine: building a
// STRING protein-interaction graph from a selected gene set, clustering
// it, and running over-representation enrichment of HPO and GO/KEGG
// annotations against a correct background.
package network

import "sort"

// ClusterAlgorithm selects the community-detection algorithm.
type ClusterAlgorithm string

const (
	AlgorithmLeiden   ClusterAlgorithm = "leiden"
	AlgorithmLouvain  ClusterAlgorithm = "louvain"
	AlgorithmWalktrap ClusterAlgorithm = "walktrap"
)

// BuildRequest is the parameter object for the build operation. GeneIDs is
// expected sorted by the caller so two logically identical requests share
// a cache entry; Build itself tolerates unsorted input.
type BuildRequest struct {
	GeneIDs        []int64 `json:"gene_ids"`
	MinStringScore int     `json:"min_string_score"` // [150, 999]
}

// AsMap implements the cache package's toDictable capability so BuildRequest
// can be used directly as a cache-key argument.
func (r BuildRequest) AsMap() map[string]any {
	return map[string]any{"gene_ids": r.GeneIDs, "min_string_score": r.MinStringScore}
}

// Edge is one weighted undirected edge in the built graph.
type Edge struct {
	GeneA       int64   `json:"gene_a"`
	GeneB       int64   `json:"gene_b"`
	StringScore int     `json:"string_score"`
	Weight      float64 `json:"weight"`
}

// Graph is the built protein-interaction graph: every requested gene id is
// a node (even if isolated), plus the STRING edges surviving the score
// threshold among those nodes. Constructed fresh on each request and never
// stored as shared-mutable state.
type Graph struct {
	NodeIDs []int64
	Edges   []Edge
}

// ClusterRequest clusters a previously built graph.
type ClusterRequest struct {
	GeneIDs        []int64          `json:"gene_ids"`
	MinStringScore int              `json:"min_string_score"`
	Algorithm      ClusterAlgorithm `json:"algorithm"`
}

// AsMap implements the cache package's toDictable capability.
func (r ClusterRequest) AsMap() map[string]any {
	return map[string]any{
		"gene_ids":         r.GeneIDs,
		"min_string_score": r.MinStringScore,
		"algorithm":        string(r.Algorithm),
	}
}

// ClusterResult is one clustering run's output.
type ClusterResult struct {
	Algorithm   ClusterAlgorithm `json:"algorithm"`
	Assignments map[int64]int    `json:"assignments"` // gene id -> cluster id
	Modularity  float64          `json:"modularity"`
}

// Clusters groups gene ids by assigned cluster id, each cluster's gene ids
// in ascending order, for callers (enrichment) that need per-cluster gene
// sets rather than a flat assignment map.
func (r *ClusterResult) Clusters() map[int][]int64 {
	out := map[int][]int64{}
	for gene, cluster := range r.Assignments {
		out[cluster] = append(out[cluster], gene)
	}
	for _, genes := range out {
		sort.Slice(genes, func(i, j int) bool { return genes[i] < genes[j] })
	}
	return out
}

// EnrichHPORequest parameterizes one HPO enrichment run.
type EnrichHPORequest struct {
	GeneIDs       []int64          `json:"gene_ids"`
	Algorithm     ClusterAlgorithm `json:"algorithm"`
	UseKidneyOnly bool             `json:"use_kidney_only"`
	FDRThreshold  float64          `json:"fdr_threshold"`
}

// AsMap implements the cache package's toDictable capability.
func (r EnrichHPORequest) AsMap() map[string]any {
	return map[string]any{
		"gene_ids":        r.GeneIDs,
		"algorithm":       string(r.Algorithm),
		"use_kidney_only": r.UseKidneyOnly,
		"fdr_threshold":   r.FDRThreshold,
	}
}

// EnrichmentRow is one over-represented term row.
type EnrichmentRow struct {
	TermID          string  `json:"term_id"`
	TermName        string  `json:"term_name"`
	ClusterCount    int     `json:"cluster_count"`
	BackgroundCount int     `json:"background_count"`
	OddsRatio       float64 `json:"odds_ratio"`
	PValue          float64 `json:"p_value"`
	FDR             float64 `json:"fdr"`
}

// HPOEnrichmentResult is the full HPO enrichment response: per-cluster
// significant terms, plus the background size actually used so callers can
// confirm the background is the HPO-annotated gene set, not the full gene
// universe.
type HPOEnrichmentResult struct {
	BackgroundSize int                     `json:"background_size"`
	ByCluster      map[int][]EnrichmentRow `json:"by_cluster"`
}

// GORequest parameterizes a GO/KEGG enrichment call.
type GORequest struct {
	GeneIDs []int64 `json:"gene_ids"`
}

// AsMap implements the cache package's toDictable capability.
func (r GORequest) AsMap() map[string]any { return map[string]any{"gene_ids": r.GeneIDs} }
