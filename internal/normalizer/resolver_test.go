package normalizer

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berntpopp/kidney-genetics-core/internal/domain"
)

type fakeGeneStore struct {
	byHGNCID   map[string]*domain.Gene
	bySymbol   map[string]*domain.Gene
	byAlias    map[string][]*domain.Gene
	byPrevious map[string][]*domain.Gene
}

func newFakeGeneStore() *fakeGeneStore {
	return &fakeGeneStore{
		byHGNCID:   map[string]*domain.Gene{},
		bySymbol:   map[string]*domain.Gene{},
		byAlias:    map[string][]*domain.Gene{},
		byPrevious: map[string][]*domain.Gene{},
	}
}

func (f *fakeGeneStore) GetByHGNCID(_ context.Context, hgncID string) (*domain.Gene, error) {
	if g, ok := f.byHGNCID[hgncID]; ok {
		return g, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeGeneStore) GetByApprovedSymbol(_ context.Context, symbol string) (*domain.Gene, error) {
	if g, ok := f.bySymbol[symbol]; ok {
		return g, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeGeneStore) FindByAlias(_ context.Context, alias string) ([]*domain.Gene, error) {
	return f.byAlias[alias], nil
}

func (f *fakeGeneStore) FindByPreviousSymbol(_ context.Context, symbol string) ([]*domain.Gene, error) {
	return f.byPrevious[symbol], nil
}

type fakeStagingStore struct {
	created []*domain.GeneNormalizationStaging
}

func (f *fakeStagingStore) Create(_ context.Context, row *domain.GeneNormalizationStaging) (int64, error) {
	f.created = append(f.created, row)
	return int64(len(f.created)), nil
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestResolverExactSymbolMatch(t *testing.T) {
	store := newFakeGeneStore()
	brca1 := &domain.Gene{ID: 1, HGNCID: "HGNC:1100", ApprovedSymbol: "BRCA1"}
	store.bySymbol["BRCA1"] = brca1

	r := NewResolver(store, &fakeStagingStore{}, testLogger())

	res, err := r.Resolve(context.Background(), "BRCA1")
	require.NoError(t, err)
	assert.False(t, res.Ambiguous)
	assert.Equal(t, brca1, res.Gene)
}

func TestResolverHGNCIDMatch(t *testing.T) {
	store := newFakeGeneStore()
	pkd1 := &domain.Gene{ID: 2, HGNCID: "HGNC:9008", ApprovedSymbol: "PKD1"}
	store.byHGNCID["HGNC:9008"] = pkd1

	r := NewResolver(store, &fakeStagingStore{}, testLogger())

	res, err := r.Resolve(context.Background(), "HGNC:9008")
	require.NoError(t, err)
	assert.Equal(t, pkd1, res.Gene)
}

func TestResolverAliasMatch(t *testing.T) {
	store := newFakeGeneStore()
	pkhd1 := &domain.Gene{ID: 3, HGNCID: "HGNC:14221", ApprovedSymbol: "PKHD1"}
	store.byAlias["ARPKD"] = []*domain.Gene{pkhd1}

	r := NewResolver(store, &fakeStagingStore{}, testLogger())

	res, err := r.Resolve(context.Background(), "ARPKD")
	require.NoError(t, err)
	assert.Equal(t, pkhd1, res.Gene)
}

func TestResolverAmbiguousAlias(t *testing.T) {
	store := newFakeGeneStore()
	geneA := &domain.Gene{ID: 4, ApprovedSymbol: "GENEA"}
	geneB := &domain.Gene{ID: 5, ApprovedSymbol: "GENEB"}
	store.byAlias["AMBIG"] = []*domain.Gene{geneA, geneB}

	r := NewResolver(store, &fakeStagingStore{}, testLogger())

	res, err := r.Resolve(context.Background(), "AMBIG")
	require.NoError(t, err)
	assert.True(t, res.Ambiguous)
	assert.Len(t, res.Candidates, 2)
}

func TestResolverUnresolvedIsStagedNotDropped(t *testing.T) {
	store := newFakeGeneStore()
	staging := &fakeStagingStore{}
	r := NewResolver(store, staging, testLogger())

	_, err := r.ResolveOrStage(context.Background(), "UNKNOWNGENE", domain.SourcePanelApp)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	require.Len(t, staging.created, 1)
	assert.Equal(t, "UNKNOWNGENE", staging.created[0].RawIdentifier)
	assert.Equal(t, domain.StagingPending, staging.created[0].Status)
}

func TestResolverAmbiguousAliasIsStagedAsAmbiguousIdentifier(t *testing.T) {
	store := newFakeGeneStore()
	geneA := &domain.Gene{ID: 6, ApprovedSymbol: "GENEA"}
	geneB := &domain.Gene{ID: 7, ApprovedSymbol: "GENEB"}
	store.byAlias["AMBIG"] = []*domain.Gene{geneA, geneB}
	staging := &fakeStagingStore{}
	r := NewResolver(store, staging, testLogger())

	_, err := r.ResolveOrStage(context.Background(), "AMBIG", domain.SourceGenCC)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindAmbiguousIdentifier))
	require.Len(t, staging.created, 1)
}

func TestResolverEmptyIdentifierIsValidationError(t *testing.T) {
	r := NewResolver(newFakeGeneStore(), &fakeStagingStore{}, testLogger())
	_, err := r.Resolve(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestResolverPreviousSymbolMatch(t *testing.T) {
	store := newFakeGeneStore()
	geneB := &domain.Gene{ID: 8, ApprovedSymbol: "GENEB"}
	store.byPrevious["OLDNAME"] = []*domain.Gene{geneB}

	r := NewResolver(store, &fakeStagingStore{}, testLogger())

	res, err := r.Resolve(context.Background(), "OLDNAME")
	require.NoError(t, err)
	assert.Equal(t, geneB, res.Gene)
	assert.Equal(t, confidencePrevious, res.Confidence)
}

func TestResolverAmbiguousPreviousSymbol(t *testing.T) {
	store := newFakeGeneStore()
	geneA := &domain.Gene{ID: 9, ApprovedSymbol: "GENEA"}
	geneB := &domain.Gene{ID: 10, ApprovedSymbol: "GENEB"}
	store.byPrevious["OLDNAME"] = []*domain.Gene{geneA, geneB}

	r := NewResolver(store, &fakeStagingStore{}, testLogger())

	res, err := r.Resolve(context.Background(), "OLDNAME")
	require.NoError(t, err)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, ReasonAmbiguousAlias, res.Reason)
}

// TestResolverUnambiguousAliasWinsOverPreviousSymbol covers the exact
// scenario the cascade must not collapse: an identifier that is both an
// unambiguous alias of one gene and, independently, a previous symbol of a
// different gene. The alias step must resolve it without ever consulting
// the previous-symbol step.
func TestResolverUnambiguousAliasWinsOverPreviousSymbol(t *testing.T) {
	store := newFakeGeneStore()
	geneA := &domain.Gene{ID: 11, ApprovedSymbol: "GENEA"}
	geneB := &domain.Gene{ID: 12, ApprovedSymbol: "GENEB"}
	store.byAlias["X"] = []*domain.Gene{geneA}
	store.byPrevious["X"] = []*domain.Gene{geneB}

	r := NewResolver(store, &fakeStagingStore{}, testLogger())

	res, err := r.Resolve(context.Background(), "X")
	require.NoError(t, err)
	assert.False(t, res.Ambiguous)
	assert.Equal(t, geneA, res.Gene)
}

func TestResolverWithdrawnHGNCIDIsStagedAsWithdrawn(t *testing.T) {
	store := newFakeGeneStore()
	store.byHGNCID["HGNC:999"] = &domain.Gene{ID: 13, HGNCID: "HGNC:999", ApprovedSymbol: "RETIRED", Withdrawn: true}
	staging := &fakeStagingStore{}
	r := NewResolver(store, staging, testLogger())

	_, err := r.ResolveOrStage(context.Background(), "HGNC:999", domain.SourceClinGen)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindWithdrawn))
	require.Len(t, staging.created, 1)
	assert.Equal(t, string(ReasonWithdrawn), staging.created[0].ReasonCode)
}

func TestResolverMemoizesSuccessfulResolutions(t *testing.T) {
	store := newFakeGeneStore()
	brca1 := &domain.Gene{ID: 14, ApprovedSymbol: "BRCA1"}
	store.bySymbol["BRCA1"] = brca1

	r := NewResolver(store, &fakeStagingStore{}, testLogger())

	first, err := r.Resolve(context.Background(), "BRCA1")
	require.NoError(t, err)
	require.Equal(t, brca1, first.Gene)

	// The backing store forgets the gene; the memo must still answer.
	delete(store.bySymbol, "BRCA1")
	second, err := r.Resolve(context.Background(), "BRCA1")
	require.NoError(t, err)
	assert.Equal(t, brca1, second.Gene)

	r.InvalidateMemo()
	third, err := r.Resolve(context.Background(), "BRCA1")
	require.NoError(t, err)
	assert.Nil(t, third.Gene)
}

func TestResolverDoesNotMemoizeMisses(t *testing.T) {
	store := newFakeGeneStore()
	r := NewResolver(store, &fakeStagingStore{}, testLogger())

	res, err := r.Resolve(context.Background(), "LATER")
	require.NoError(t, err)
	require.Nil(t, res.Gene)

	// The identifier becomes resolvable (as after a snapshot refresh); a
	// fresh resolve must see it without any memo invalidation.
	later := &domain.Gene{ID: 15, ApprovedSymbol: "LATER"}
	store.bySymbol["LATER"] = later

	res, err = r.Resolve(context.Background(), "LATER")
	require.NoError(t, err)
	assert.Equal(t, later, res.Gene)
}

func TestResolverUnknownIdentifierReasonCode(t *testing.T) {
	store := newFakeGeneStore()
	staging := &fakeStagingStore{}
	r := NewResolver(store, staging, testLogger())

	_, err := r.ResolveOrStage(context.Background(), "NOPE", domain.SourcePanelApp)
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindNotFound))
	require.Len(t, staging.created, 1)
	assert.Equal(t, string(ReasonUnknownToHGNC), staging.created[0].ReasonCode)
}
