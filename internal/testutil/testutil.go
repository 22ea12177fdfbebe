// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic event generation to reduce code
// duplication across test files and improve test maintainability.
package testutil

import (
	"math/rand"
	"testing"

	"github.com/fabbondanza/cytogate/events"
)

// Blob returns n x/y values normally distributed around (cx, cy).
func Blob(rng *rand.Rand, n int, cx, cy, spread float64) (xs, ys []float64) {
	xs = make([]float64, n)
	ys = make([]float64, n)
	for i := 0; i < n; i++ {
		xs[i] = cx + rng.NormFloat64()*spread
		ys[i] = cy + rng.NormFloat64()*spread
	}
	return xs, ys
}

// Bimodal returns n values split between two normal modes centred at lo and
// hi. The first half of the rows belongs to the lo mode.
func Bimodal(rng *rand.Rand, n int, lo, hi, spread float64) []float64 {
	values := make([]float64, n)
	for i := range values {
		c := lo
		if i >= n/2 {
			c = hi
		}
		values[i] = c + rng.NormFloat64()*spread
	}
	return values
}

// TableX builds a one-dimensional event table with row ids 0..n-1.
func TableX(t *testing.T, dim string, values []float64) *events.Table {
	t.Helper()
	tbl := events.New(dim)
	for i, v := range values {
		if err := tbl.Append(int64(i), v); err != nil {
			t.Fatalf("append row %d: %v", i, err)
		}
	}
	return tbl
}

// TableXY builds a two-dimensional event table with row ids 0..n-1.
func TableXY(t *testing.T, xdim, ydim string, xs, ys []float64) *events.Table {
	t.Helper()
	if len(xs) != len(ys) {
		t.Fatalf("mismatched columns: %d x values, %d y values", len(xs), len(ys))
	}
	tbl := events.New(xdim, ydim)
	for i := range xs {
		if err := tbl.Append(int64(i), xs[i], ys[i]); err != nil {
			t.Fatalf("append row %d: %v", i, err)
		}
	}
	return tbl
}
