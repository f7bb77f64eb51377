package geometry

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestQuantileLinear(t *testing.T) {
	sorted := make([]float64, 100)
	for i := range sorted {
		sorted[i] = float64(i)
	}
	if got := quantile(sorted, 0.03); math.Abs(got-2.97) > 1e-12 {
		t.Fatalf("quantile(0.03) = %v, want 2.97", got)
	}
	if got := quantile([]float64{1, 2, 3, 4}, 0.5); got != 2.5 {
		t.Fatalf("median = %v, want 2.5", got)
	}
	if got := quantile([]float64{7}, 0.97); got != 7 {
		t.Fatalf("single value quantile = %v", got)
	}
}

func TestRankFiltersReflect(t *testing.T) {
	v := []float64{5, 1, 4, 2, 3}
	if diff := cmp.Diff([]float64{1, 1, 1, 2, 2}, minFilter(v, 3)); diff != "" {
		t.Fatalf("min filter mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{5, 5, 4, 4, 3}, maxFilter(v, 3)); diff != "" {
		t.Fatalf("max filter mismatch (-want +got):\n%s", diff)
	}
	// Window 10 over 3 samples reflects back and forth and sees everything.
	if diff := cmp.Diff([]float64{1, 1, 1}, minFilter([]float64{3, 1, 2}, 10)); diff != "" {
		t.Fatalf("wide min filter mismatch (-want +got):\n%s", diff)
	}
}

func TestReflectIndex(t *testing.T) {
	n := 4
	want := map[int]int{-1: 0, -4: 3, -5: 3, 4: 3, 7: 0, 8: 0, 9: 1}
	for j, w := range want {
		if got := reflect(j, n); got != w {
			t.Fatalf("reflect(%d, %d) = %d, want %d", j, n, got, w)
		}
	}
}

func TestRegularityFlatAndRamp(t *testing.T) {
	flat := []float64{0, 1, 0, 1, 1, 0, 1, 0}
	if got := regularity(flat, 2, 4); got != 0 {
		t.Fatalf("checkerboard regularity = %v, want 0", got)
	}
	ramp := make([]float64, 24)
	for i := range ramp {
		ramp[i] = float64(i % 12)
	}
	if got := regularity(ramp, 2, 12); got <= regularityThreshold {
		t.Fatalf("ramp regularity = %v, want > %v", got, regularityThreshold)
	}
	if got := regularity([]float64{1, math.NaN(), 2, 3}, 2, 2); got != 0 {
		t.Fatalf("NaN face regularity = %v, want 0", got)
	}
	if !isBlank([]float64{math.NaN(), math.NaN()}) || isBlank([]float64{1, math.NaN()}) {
		t.Fatal("NaNs must collapse to one distinct value")
	}
}

func TestRegularityMatchesReferenceScore(t *testing.T) {
	// One row holding 0..11. The 3rd/97th percentiles are 0.33 and 10.67.
	// With a window of 10 each column position spans [i-5, i+4] reflected, so
	// max-min over the column profile sums to 83 index steps; the single-row
	// profile contributes 0. Same value as np.quantile followed by
	// scipy.ndimage minimum_filter/maximum_filter(size=10).
	ramp := make([]float64, 12)
	for i := range ramp {
		ramp[i] = float64(i)
	}
	want := 83.0 / 13.0 / (10.67 - 0.33)
	if got := regularity(ramp, 1, 12); math.Abs(got-want) > 1e-9 {
		t.Fatalf("regularity = %.12f, want %.12f", got, want)
	}

	// Two constant rows: only the row profile moves, spanning the full range.
	steps := []float64{0, 0, 0, 10, 10, 10}
	if got := regularity(steps, 2, 3); math.Abs(got-0.4) > 1e-12 {
		t.Fatalf("step regularity = %.12f, want 0.4", got)
	}
}
