package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

func hpoAnnotation(geneID int64, terms ...map[string]any) *domain.GeneAnnotation {
	items := make([]any, len(terms))
	for i, term := range terms {
		items[i] = term
	}
	return &domain.GeneAnnotation{
		GeneID:     geneID,
		SourceName: domain.SourceHPO,
		AnnotationData: map[string]any{
			"hpo_terms": items,
		},
	}
}

func hpoTerm(id, name string, isKidney bool) map[string]any {
	return map[string]any{"id": id, "name": name, "is_kidney": isKidney}
}

func TestBuildHPOBackgroundIsUnionOfAnnotatedGenesOnly(t *testing.T) {
	annotations := &fakeAnnotations{bySource: map[domain.SourceName][]*domain.GeneAnnotation{
		domain.SourceHPO: {
			hpoAnnotation(1, hpoTerm("HP:0000113", "Polycystic kidney dysplasia", true)),
			hpoAnnotation(2, hpoTerm("HP:0000822", "Hypertension", false)),
		},
	}}

	bg, err := buildHPOBackground(context.Background(), annotations, false)
	require.NoError(t, err)
	assert.Len(t, bg.background, 2)
	assert.Contains(t, bg.background, int64(1))
	assert.Contains(t, bg.background, int64(2))
}

func TestBuildHPOBackgroundKidneyOnlyExcludesNonKidneyGenes(t *testing.T) {
	annotations := &fakeAnnotations{bySource: map[domain.SourceName][]*domain.GeneAnnotation{
		domain.SourceHPO: {
			hpoAnnotation(1, hpoTerm("HP:0000113", "Polycystic kidney dysplasia", true)),
			hpoAnnotation(2, hpoTerm("HP:0000822", "Hypertension", false)),
		},
	}}

	bg, err := buildHPOBackground(context.Background(), annotations, true)
	require.NoError(t, err)
	assert.Len(t, bg.background, 1)
	assert.Contains(t, bg.background, int64(1))
	assert.NotContains(t, bg.background, int64(2))
}

func TestEnrichHPOFindsOverRepresentedTermInOneCluster(t *testing.T) {
	annotations := &fakeAnnotations{bySource: map[domain.SourceName][]*domain.GeneAnnotation{
		domain.SourceHPO: {
			hpoAnnotation(1, hpoTerm("HP:0000113", "Polycystic kidney dysplasia", true)),
			hpoAnnotation(2, hpoTerm("HP:0000113", "Polycystic kidney dysplasia", true)),
			hpoAnnotation(3, hpoTerm("HP:0000822", "Hypertension", false)),
			hpoAnnotation(4, hpoTerm("HP:0000822", "Hypertension", false)),
		},
	}}

	clustering := &ClusterResult{
		Algorithm:   AlgorithmLouvain,
		Assignments: map[int64]int{1: 0, 2: 0, 3: 1, 4: 1},
	}

	result, err := EnrichHPO(context.Background(), annotations, clustering, EnrichHPORequest{FDRThreshold: 1.0})
	require.NoError(t, err)
	assert.Equal(t, 4, result.BackgroundSize)

	rows, ok := result.ByCluster[0]
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "HP:0000113", rows[0].TermID)
	assert.Equal(t, 2, rows[0].ClusterCount)
}

func TestEnrichHPOEmptyClusterProducesNoRows(t *testing.T) {
	annotations := &fakeAnnotations{bySource: map[domain.SourceName][]*domain.GeneAnnotation{}}
	clustering := &ClusterResult{Assignments: map[int64]int{}}

	result, err := EnrichHPO(context.Background(), annotations, clustering, EnrichHPORequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.BackgroundSize)
	assert.Empty(t, result.ByCluster)
}
