// Package population models the expected child populations of a gate: their
// sign definitions, target coordinates, priority weights, and the event
// index and gate geometry the gating engine assigns to them.
package population

import (
	"fmt"
	"sort"
)

// MergePolicy selects how freshly gated event indices combine with indices
// already held by a population.
type MergePolicy string

const (
	// Overwrite replaces any existing index with the new one.
	Overwrite MergePolicy = "overwrite"
	// Merge unions the new index with the existing one.
	Merge MergePolicy = "merge"
)

// Geometry shape identifiers.
const (
	ShapeThreshold1D = "threshold_1d"
	ShapeThreshold2D = "threshold_2d"
	ShapePolygon     = "poly"
)

// Geom describes the gate shape that produced a population: a 1D threshold,
// a pair of 2D thresholds, or a cluster polygon. Only the fields matching
// Shape are meaningful. Method records how the threshold was derived.
type Geom struct {
	Shape      string
	X          string
	Y          string
	Method     string
	Threshold  float64
	ThresholdX float64
	ThresholdY float64
	Vertices   [][2]float64
}

// Population is one expected child population. Index and Geom start empty
// and are filled in by the gating engine; everything else is supplied by the
// analyst up front.
type Population struct {
	Name       string
	Definition string    // sign pattern: +, -, ++, +-, -+, --
	Target     []float64 // expected centroid in the gated dimensions (clustering only)
	Weight     float64   // priority for collision tie-breaks
	Index      []int64   // assigned event identifiers
	Geom       Geom

	// PropOfParent is the population's share of the parent events, recorded
	// during cluster assignment.
	PropOfParent float64
}

// Collection is an insertion-ordered set of uniquely named populations.
type Collection struct {
	names []string
	pops  map[string]*Population
}

// NewCollection builds a collection from the given populations, preserving
// argument order. Names must be unique and non-empty.
func NewCollection(pops ...*Population) (*Collection, error) {
	c := &Collection{pops: make(map[string]*Population, len(pops))}
	for _, p := range pops {
		if err := c.Add(p); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add appends a population to the collection.
func (c *Collection) Add(p *Population) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("population: name is required")
	}
	if _, exists := c.pops[p.Name]; exists {
		return fmt.Errorf("population: duplicate name %q", p.Name)
	}
	c.names = append(c.names, p.Name)
	c.pops[p.Name] = p
	return nil
}

// Len returns the number of populations.
func (c *Collection) Len() int { return len(c.names) }

// Names returns population names in insertion order. The slice is backing
// storage and must not be modified.
func (c *Collection) Names() []string { return c.names }

// Get returns the named population.
func (c *Collection) Get(name string) (*Population, bool) {
	p, ok := c.pops[name]
	return p, ok
}

// Populations returns the populations in insertion order.
func (c *Collection) Populations() []*Population {
	out := make([]*Population, len(c.names))
	for i, name := range c.names {
		out[i] = c.pops[name]
	}
	return out
}

// FetchByDefinition returns the name of the population carrying the given
// sign definition. The first match in insertion order wins.
func (c *Collection) FetchByDefinition(def string) (string, bool) {
	for _, name := range c.names {
		if c.pops[name].Definition == def {
			return name, true
		}
	}
	return "", false
}

// UpdateIndex assigns event identifiers to the named population. Overwrite
// replaces the existing index; Merge unions with it. The stored index is
// always sorted ascending with duplicates removed.
func (c *Collection) UpdateIndex(name string, ids []int64, policy MergePolicy) error {
	p, ok := c.pops[name]
	if !ok {
		return fmt.Errorf("population: no population %q", name)
	}
	switch policy {
	case Overwrite:
		p.Index = normalizeIDs(ids, nil)
	case Merge:
		p.Index = normalizeIDs(ids, p.Index)
	default:
		return fmt.Errorf("population: unknown merge policy %q", policy)
	}
	return nil
}

// UpdateGeom records the gate geometry of the named population.
func (c *Collection) UpdateGeom(name string, g Geom) error {
	p, ok := c.pops[name]
	if !ok {
		return fmt.Errorf("population: no population %q", name)
	}
	p.Geom = g
	return nil
}

// normalizeIDs returns the sorted union of the two id sets.
func normalizeIDs(ids, existing []int64) []int64 {
	merged := make([]int64, 0, len(ids)+len(existing))
	merged = append(merged, existing...)
	merged = append(merged, ids...)
	sort.Slice(merged, func(i, j int) bool { return merged[i] < merged[j] })

	out := merged[:0]
	for i, id := range merged {
		if i == 0 || id != merged[i-1] {
			out = append(out, id)
		}
	}
	return out
}
