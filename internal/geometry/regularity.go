package geometry

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	regularityThreshold = 0.1
	filterWindow        = 10
	lowQuantile         = 0.03
	highQuantile        = 0.97
)

// isBlank reports whether face holds exactly one distinct value. NaNs count
// as one value.
func isBlank(values []float64) bool {
	if len(values) == 0 {
		return false
	}
	first := values[0]
	for _, v := range values[1:] {
		if v != first && !(math.IsNaN(v) && math.IsNaN(first)) {
			return false
		}
	}
	return true
}

// regularity scores the edge structure of a rows x cols face stored
// row-major. Row and column mean profiles are rescaled by the 3rd and 97th
// percentiles of the face, run through min and max filters of width 10, and
// the mean spread between the filtered profiles is returned. Faces whose
// percentile range is empty or undefined score 0.
func regularity(values []float64, rows, cols int) float64 {
	if len(values) == 0 || slices.ContainsFunc(values, math.IsNaN) {
		return 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)
	lo := quantile(sorted, lowQuantile)
	hi := quantile(sorted, highQuantile)
	span := hi - lo
	if !(span > 0) || math.IsInf(span, 0) {
		return 0
	}

	colMeans := make([]float64, cols)
	column := make([]float64, rows)
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			column[r] = values[r*cols+c]
		}
		colMeans[c] = (stat.Mean(column, nil) - lo) / span
	}
	rowMeans := make([]float64, rows)
	for r := 0; r < rows; r++ {
		rowMeans[r] = (stat.Mean(values[r*cols:(r+1)*cols], nil) - lo) / span
	}

	maxima := append(maxFilter(colMeans, filterWindow), maxFilter(rowMeans, filterWindow)...)
	minima := append(minFilter(colMeans, filterWindow), minFilter(rowMeans, filterWindow)...)
	floats.Sub(maxima, minima)
	return stat.Mean(maxima, nil)
}

// quantile interpolates linearly between the two closest ranks, placing q at
// position q*(n-1) of the sorted sample.
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	below := math.Floor(pos)
	i := int(below)
	if i >= n-1 {
		return sorted[n-1]
	}
	frac := pos - below
	return sorted[i] + (sorted[i+1]-sorted[i])*frac
}

// minFilter and maxFilter slide a window of the given size over v. For an
// even size the window covers [i-size/2, i+size/2-1]; positions outside v
// reflect about the edge (d c b a | a b c d | d c b a).
func minFilter(v []float64, size int) []float64 {
	return rankFilter(v, size, math.Min)
}

func maxFilter(v []float64, size int) []float64 {
	return rankFilter(v, size, math.Max)
}

func rankFilter(v []float64, size int, pick func(a, b float64) float64) []float64 {
	n := len(v)
	out := make([]float64, n)
	before := size / 2
	after := size - before - 1
	for i := range v {
		acc := v[reflect(i-before, n)]
		for j := i - before + 1; j <= i+after; j++ {
			acc = pick(acc, v[reflect(j, n)])
		}
		out[i] = acc
	}
	return out
}

func reflect(j, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	m := j % period
	if m < 0 {
		m += period
	}
	if m >= n {
		m = period - 1 - m
	}
	return m
}
