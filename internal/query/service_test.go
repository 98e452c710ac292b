package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
	"github.com/berntpopp/kidney-genetics-core/internal/evidence"
)

type fakeGeneSource struct {
	genes []*domain.Gene
}

func (f *fakeGeneSource) ListAll(ctx context.Context) ([]*domain.Gene, error) {
	return f.genes, nil
}

type fakeEvidenceSource struct {
	rows []*domain.GeneEvidence
}

func (f *fakeEvidenceSource) ListAll(ctx context.Context) ([]*domain.GeneEvidence, error) {
	return f.rows, nil
}

func testSources() map[string]domain.SourceConfig {
	return map[string]domain.SourceConfig{
		"panelapp": {Enabled: true, Weight: 0.6, Normalizer: "count"},
		"clingen":  {Enabled: true, Weight: 0.4, Normalizer: "categorical"},
	}
}

func testTiers() domain.EvidenceTierConfig {
	return domain.EvidenceTierConfig{
		Ranges: []domain.TierRange{
			{Label: domain.TierComprehensiveSupport, Threshold: 70},
			{Label: domain.TierMultiSourceSupport, Threshold: 50},
			{Label: domain.TierEstablishedSupport, Threshold: 30},
			{Label: domain.TierPreliminaryEvidence, Threshold: 20},
			{Label: domain.TierMinimalEvidence, Threshold: 0},
		},
	}
}

func testService() *Service {
	genes := &fakeGeneSource{genes: []*domain.Gene{
		{ID: 1, ApprovedSymbol: "PKD1", HGNCID: "HGNC:9008"},
		{ID: 2, ApprovedSymbol: "PKD2", HGNCID: "HGNC:9009"},
		{ID: 3, ApprovedSymbol: "PKHD1", HGNCID: "HGNC:14010"},
	}}
	ev := &fakeEvidenceSource{rows: []*domain.GeneEvidence{
		{GeneID: 1, SourceName: domain.SourcePanelApp, EvidenceData: map[string]any{"panel_count": 5.0}},
		{GeneID: 2, SourceName: domain.SourcePanelApp, EvidenceData: map[string]any{"panel_count": 1.0}},
	}}
	scorer := evidence.NewScorer(testSources(), testTiers())
	return NewService(genes, ev, scorer, nil)
}

func TestListGenesRejectsIDListAboveCap(t *testing.T) {
	svc := testService()
	ids := make([]int64, MaxIDListSize+1)
	for i := range ids {
		ids[i] = int64(i)
	}

	_, err := svc.ListGenes(context.Background(), Filters{IDs: ids}, Sort{}, Pagination{Page: 1, PageSize: 10})
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestListGenesAcceptsIDListAtCap(t *testing.T) {
	svc := testService()
	ids := make([]int64, MaxIDListSize)
	for i := range ids {
		ids[i] = int64(i)
	}

	_, err := svc.ListGenes(context.Background(), Filters{IDs: ids}, Sort{}, Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
}

func TestListGenesSortsByPercentageScoreDescending(t *testing.T) {
	svc := testService()
	result, err := svc.ListGenes(context.Background(), Filters{}, Sort{Field: SortByPercentageScore, Descending: true}, Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Items, 3)
	assert.Equal(t, "PKD1", result.Items[0].ApprovedSymbol)
}

func TestListGenesHideZeroScoresExcludesInsufficientTier(t *testing.T) {
	svc := testService()
	result, err := svc.ListGenes(context.Background(), Filters{HideZeroScores: true}, Sort{}, Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, result.HiddenZeroScores)
	for _, item := range result.Items {
		assert.NotEqual(t, domain.TierInsufficient, item.EvidenceTier)
	}
}

func TestListGenesSearchMatchesApprovedSymbol(t *testing.T) {
	svc := testService()
	result, err := svc.ListGenes(context.Background(), Filters{Search: "pkhd"}, Sort{}, Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "PKHD1", result.Items[0].ApprovedSymbol)
}

func TestListGenesPaginates(t *testing.T) {
	svc := testService()
	result, err := svc.ListGenes(context.Background(), Filters{}, Sort{Field: SortByApprovedSymbol}, Pagination{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Len(t, result.Items, 1)
}

func TestIDListCacheKeyIsOrderIndependent(t *testing.T) {
	a := IDListCacheKey([]int64{3, 1, 2})
	b := IDListCacheKey([]int64{1, 2, 3})
	assert.Equal(t, a, b)
}

func TestFilterMetadataWithoutCacheRecomputesEachCall(t *testing.T) {
	svc := testService()
	meta, err := svc.FilterMetadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, meta.TierCounts[domain.TierInsufficient])
	assert.Contains(t, meta.Sources, domain.SourcePanelApp)
}
