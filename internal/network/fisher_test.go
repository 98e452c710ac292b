package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFisherExactGreaterMatchesHandComputedValue(t *testing.T) {
	// n=4, successStates=2, draws=2: P(X=1)+P(X=2) = 4/6 + 1/6 = 5/6.
	p := fisherExactGreater(1, 1, 1, 1)
	assert.InDelta(t, 5.0/6.0, p, 1e-9)
}

func TestFisherExactGreaterFullOverlapIsSignificant(t *testing.T) {
	// Every cluster gene carries the term, no background gene outside the
	// cluster does: maximally over-represented.
	p := fisherExactGreater(5, 0, 0, 20)
	assert.Less(t, p, 0.01)
}

func TestFisherExactGreaterNoEnrichmentIsNotSignificant(t *testing.T) {
	p := fisherExactGreater(1, 9, 9, 81)
	assert.Greater(t, p, 0.5)
}

func TestOddsRatioAppliesHaldaneAnscombeCorrection(t *testing.T) {
	ratio := oddsRatio(5, 0, 0, 20)
	assert.False(t, ratio == 0 || ratio != ratio, "ratio must be finite")
	assert.Greater(t, ratio, 1.0)
}

func TestBenjaminiHochbergIsMonotonicAndOrderPreserving(t *testing.T) {
	pValues := []float64{0.5, 0.001, 0.2, 0.001}
	fdr := benjaminiHochberg(pValues)

	assert.Len(t, fdr, 4)
	// fdr for the smallest p-values (indices 1 and 3) must be <= fdr for the
	// larger ones.
	assert.LessOrEqual(t, fdr[1], fdr[0])
	assert.LessOrEqual(t, fdr[3], fdr[2])
	for _, v := range fdr {
		assert.LessOrEqual(t, v, 1.0)
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestBenjaminiHochbergEmptyInput(t *testing.T) {
	assert.Empty(t, benjaminiHochberg(nil))
}
