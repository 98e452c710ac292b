package network

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/combin"
)

// fisherExactGreater computes the one-sided Fisher's exact test p-value for
// over-representation on the 2x2 contingency table:
//
//	                term       no term
//	cluster          a            b
//	background-only  c            d
//
// where background-only excludes the cluster genes already counted in a/b.
// The test sums the hypergeometric tail P(X >= a) over the population of
// size a+b+c+d.
func fisherExactGreater(a, b, c, d int) float64 {
	n := a + b + c + d
	if n == 0 {
		return 1
	}
	successStates := a + c // genes with the term, across the whole background
	draws := a + b         // cluster size

	upper := draws
	if successStates < upper {
		upper = successStates
	}

	logDenom := combin.LogGeneralizedBinomial(float64(n), float64(draws))
	p := 0.0
	for x := a; x <= upper; x++ {
		logNumer := combin.LogGeneralizedBinomial(float64(successStates), float64(x)) +
			combin.LogGeneralizedBinomial(float64(n-successStates), float64(draws-x))
		p += math.Exp(logNumer - logDenom)
	}
	if p > 1 {
		p = 1
	}
	return p
}

// oddsRatio computes the 2x2 table's odds ratio, applying the
// Haldane-Anscombe +0.5 correction when any cell is zero so the ratio stays
// finite.
func oddsRatio(a, b, c, d int) float64 {
	if a == 0 || b == 0 || c == 0 || d == 0 {
		return (float64(a) + 0.5) * (float64(d) + 0.5) / ((float64(b) + 0.5) * (float64(c) + 0.5))
	}
	return float64(a) * float64(d) / (float64(b) * float64(c))
}

// benjaminiHochberg applies the Benjamini-Hochberg FDR correction to a slice of
// p-values, returning the FDR for each input p-value in its original order.
func benjaminiHochberg(pValues []float64) []float64 {
	m := len(pValues)
	fdr := make([]float64, m)
	if m == 0 {
		return fdr
	}

	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return pValues[order[i]] < pValues[order[j]] })

	adjusted := make([]float64, m)
	for rank, idx := range order {
		adjusted[rank] = pValues[idx] * float64(m) / float64(rank+1)
	}
	// Enforce monotonicity: fdr[rank] = min(adjusted[rank:]).
	minSoFar := math.Inf(1)
	for rank := m - 1; rank >= 0; rank-- {
		if adjusted[rank] < minSoFar {
			minSoFar = adjusted[rank]
		}
		if minSoFar > 1 {
			minSoFar = 1
		}
		fdr[order[rank]] = minSoFar
	}
	return fdr
}
