package network

import (
	"context"
	"sort"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// annotationSource is the subset of repository.EvidenceRepository the
// network engine reads STRING PPI edges from.
type annotationSource interface {
	ListAnnotationsBySource(ctx context.Context, source domain.SourceName) ([]*domain.GeneAnnotation, error)
}

// geneLookup is the subset of repository.GeneRepository the network engine
// uses to resolve a STRING interaction partner's symbol to a canonical gene
// id — sources.StringPPIAdapter stores partners as the raw symbols STRING
// returns, so the mapping happens here, at query time, rather than at
// ingestion time.
type geneLookup interface {
	GetByApprovedSymbol(ctx context.Context, symbol string) (*domain.Gene, error)
	GetByID(ctx context.Context, id int64) (*domain.Gene, error)
}

// Build constructs the weighted undirected STRING interaction graph over
// exactly the requested gene ids. Isolated genes (no
// surviving edge) still appear as singleton nodes.
func Build(ctx context.Context, annotations annotationSource, genes geneLookup, req BuildRequest) (*Graph, error) {
	nodeSet := make(map[int64]bool, len(req.GeneIDs))
	for _, id := range req.GeneIDs {
		nodeSet[id] = true
	}

	rows, err := annotations.ListAnnotationsBySource(ctx, domain.SourceStringPPI)
	if err != nil {
		return nil, err
	}

	symbolCache := map[string]int64{}
	seen := map[[2]int64]bool{}
	var edges []Edge

	for _, row := range rows {
		if !nodeSet[row.GeneID] {
			continue
		}
		raw, ok := row.AnnotationData["interactions"].([]any)
		if !ok {
			continue
		}
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			partnerSymbol, _ := m["partner"].(string)
			score, _ := m["score"].(float64)
			if partnerSymbol == "" || int(score) < req.MinStringScore {
				continue
			}

			partnerID, ok := symbolCache[partnerSymbol]
			if !ok {
				gene, err := genes.GetByApprovedSymbol(ctx, partnerSymbol)
				if err != nil || gene == nil {
					symbolCache[partnerSymbol] = 0
					continue
				}
				partnerID = gene.ID
				symbolCache[partnerSymbol] = partnerID
			}
			if partnerID == 0 || !nodeSet[partnerID] || partnerID == row.GeneID {
				continue
			}

			key := edgeKey(row.GeneID, partnerID)
			if seen[key] {
				continue
			}
			seen[key] = true

			edges = append(edges, Edge{
				GeneA:       key[0],
				GeneB:       key[1],
				StringScore: int(score),
				Weight:      score / 1000,
			})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].GeneA != edges[j].GeneA {
			return edges[i].GeneA < edges[j].GeneA
		}
		return edges[i].GeneB < edges[j].GeneB
	})

	nodeIDs := make([]int64, 0, len(nodeSet))
	for id := range nodeSet {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Slice(nodeIDs, func(i, j int) bool { return nodeIDs[i] < nodeIDs[j] })

	return &Graph{NodeIDs: nodeIDs, Edges: edges}, nil
}

func edgeKey(a, b int64) [2]int64 {
	if a < b {
		return [2]int64{a, b}
	}
	return [2]int64{b, a}
}

// toGonum builds the gonum WeightedUndirectedGraph used by the clustering
// stage from the flat node/edge lists.
func (g *Graph) toGonum() *simple.WeightedUndirectedGraph {
	wg := simple.NewWeightedUndirectedGraph(0, 0)
	for _, id := range g.NodeIDs {
		wg.AddNode(simple.Node(id))
	}
	for _, e := range g.Edges {
		wg.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(e.GeneA), T: simple.Node(e.GeneB), W: e.Weight})
	}
	return wg
}

// connectedComponents returns each weakly-connected component's node ids,
// used by the walktrap approximation (see cluster.go).
func connectedComponents(g *simple.WeightedUndirectedGraph) [][]int64 {
	visited := map[int64]bool{}
	var components [][]int64

	nodes := graph.NodesOf(g.Nodes())
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, start := range ids {
		if visited[start] {
			continue
		}
		var component []int64
		queue := []int64{start}
		visited[start] = true
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)

			to := graph.NodesOf(g.From(cur))
			for _, n := range to {
				if !visited[n.ID()] {
					visited[n.ID()] = true
					queue = append(queue, n.ID())
				}
			}
		}
		sort.Slice(component, func(i, j int) bool { return component[i] < component[j] })
		components = append(components, component)
	}
	return components
}
