package profile

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// outliersZScore flags rows whose absolute z-score exceeds the
// threshold. The z-score divides by the population standard deviation,
// not the sample one reported in the profile.
func outliersZScore(values []float64, indices []int) ([]int, int) {
	mean := stat.Mean(values, nil)
	popStd := stat.PopStdDev(values, nil)
	if popStd == 0 {
		return nil, 0
	}
	var rows []int
	for i, v := range values {
		if math.Abs(v-mean)/popStd > zScoreThreshold {
			rows = append(rows, indices[i])
		}
	}
	return capIndices(rows)
}

// outliersIQR flags rows strictly outside the Tukey fences
// [Q1 - 1.5*IQR, Q3 + 1.5*IQR].
func outliersIQR(values []float64, indices []int, sorted []float64) ([]int, int) {
	q1 := quantileLinear(0.25, sorted)
	q3 := quantileLinear(0.75, sorted)
	iqr := q3 - q1
	lower := q1 - iqrMultiplier*iqr
	upper := q3 + iqrMultiplier*iqr

	var rows []int
	for i, v := range values {
		if v < lower || v > upper {
			rows = append(rows, indices[i])
		}
	}
	return capIndices(rows)
}

// quantileLinear returns the p-quantile of sorted data, interpolating
// linearly between the two nearest order statistics. gonum's
// stat.Quantile interpolates the empirical CDF instead, which yields a
// different median for odd-length data.
func quantileLinear(p float64, sorted []float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := p * float64(n-1)
	lo := int(math.Floor(h))
	hi := int(math.Ceil(h))
	if lo == hi {
		return sorted[lo]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// capIndices sorts the flagged rows and truncates the slice to the
// reporting cap while preserving the uncapped total.
func capIndices(rows []int) ([]int, int) {
	total := len(rows)
	if total == 0 {
		return nil, 0
	}
	sort.Ints(rows)
	if total > maxOutlierIndices {
		rows = rows[:maxOutlierIndices]
	}
	return rows, total
}
