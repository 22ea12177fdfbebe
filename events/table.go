// Package events defines the numeric event table consumed by the gating
// engine: an ordered collection of measured particles, each carrying a
// stable identifier and a float64 value per named dimension. Identifiers
// survive every transform (selection, chunking, sampling) so population
// index sets always reference the original events.
package events

import (
	"fmt"
	"math/rand"
	"sort"
)

// Table is an ordered set of events. The zero value is not usable; construct
// tables with New or FromColumns.
type Table struct {
	ids  []int64
	dims []string
	cols [][]float64 // parallel to dims, one value per event
}

// New returns an empty table measuring the given dimensions, in order.
func New(dims ...string) *Table {
	t := &Table{
		dims: append([]string(nil), dims...),
		cols: make([][]float64, len(dims)),
	}
	return t
}

// FromColumns builds a table from parallel columns keyed by dimension name.
// Dimensions are ordered lexicographically so construction is deterministic
// regardless of map iteration. Every column must match the length of ids.
func FromColumns(ids []int64, cols map[string][]float64) (*Table, error) {
	dims := make([]string, 0, len(cols))
	for dim := range cols {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	t := New(dims...)
	t.ids = append([]int64(nil), ids...)
	for i, dim := range dims {
		col := cols[dim]
		if len(col) != len(ids) {
			return nil, fmt.Errorf("events: column %q has %d values for %d ids", dim, len(col), len(ids))
		}
		t.cols[i] = append([]float64(nil), col...)
	}
	return t, nil
}

// Append adds one event row. Values must be given in dimension order.
func (t *Table) Append(id int64, values ...float64) error {
	if len(values) != len(t.dims) {
		return fmt.Errorf("events: %d values for %d dimensions", len(values), len(t.dims))
	}
	t.ids = append(t.ids, id)
	for i, v := range values {
		t.cols[i] = append(t.cols[i], v)
	}
	return nil
}

// Len returns the number of events.
func (t *Table) Len() int { return len(t.ids) }

// IsEmpty reports whether the table holds no events.
func (t *Table) IsEmpty() bool { return len(t.ids) == 0 }

// Dims returns the ordered dimension names. The slice is backing storage and
// must not be modified.
func (t *Table) Dims() []string { return t.dims }

// HasDim reports whether the table measures the named dimension.
func (t *Table) HasDim(dim string) bool {
	return t.colIndex(dim) >= 0
}

// IDs returns the event identifiers in row order. The slice is backing
// storage and must not be modified.
func (t *Table) IDs() []int64 { return t.ids }

// ID returns the identifier of the event at row.
func (t *Table) ID(row int) int64 { return t.ids[row] }

// Column returns the values of the named dimension in row order. The slice
// is backing storage and must not be modified.
func (t *Table) Column(dim string) ([]float64, error) {
	i := t.colIndex(dim)
	if i < 0 {
		return nil, fmt.Errorf("events: no dimension %q (have %v)", dim, t.dims)
	}
	return t.cols[i], nil
}

func (t *Table) colIndex(dim string) int {
	for i, d := range t.dims {
		if d == dim {
			return i
		}
	}
	return -1
}

// Select returns a new table holding the rows at the given positions, in the
// given order. Positions must be valid row indices.
func (t *Table) Select(rows []int) *Table {
	out := New(t.dims...)
	out.ids = make([]int64, len(rows))
	for i := range out.cols {
		out.cols[i] = make([]float64, len(rows))
	}
	for i, row := range rows {
		out.ids[i] = t.ids[row]
		for c := range t.cols {
			out.cols[c][i] = t.cols[c][row]
		}
	}
	return out
}

// Chunks splits the table into sequential, order-preserving chunks of at
// most size rows. Chunk identity is the slice position: chunk i holds rows
// [i*size, (i+1)*size). A size of zero or less yields a single chunk.
func (t *Table) Chunks(size int) []*Table {
	n := t.Len()
	if n == 0 {
		return nil
	}
	if size <= 0 || size >= n {
		return []*Table{t}
	}
	chunks := make([]*Table, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		chunk := New(t.dims...)
		chunk.ids = t.ids[start:end]
		for c := range t.cols {
			chunk.cols[c] = t.cols[c][start:end]
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// SampleN returns a uniform random sample of n events without replacement,
// drawn from rng. The sampled rows keep their original relative order. When
// n covers the table, the table itself is returned unchanged.
func (t *Table) SampleN(n int, rng *rand.Rand) *Table {
	if n >= t.Len() {
		return t
	}
	if n <= 0 {
		return New(t.dims...)
	}
	rows := rng.Perm(t.Len())[:n]
	sort.Ints(rows)
	return t.Select(rows)
}
