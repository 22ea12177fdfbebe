package population

import (
	"fmt"
	"sync"
)

// Repository persists population indices and geometry. The gating engine
// never touches storage directly; pipelines hand the gated collection to an
// implementation of this interface.
type Repository interface {
	LoadIndex(populationID string) ([]int64, error)
	SaveIndex(populationID string, ids []int64) error
	SaveGeom(populationID string, g Geom) error
}

// Save writes every population's index and geometry to repo, in collection
// order.
func Save(repo Repository, c *Collection) error {
	for _, p := range c.Populations() {
		if err := repo.SaveIndex(p.Name, p.Index); err != nil {
			return fmt.Errorf("population: save index for %q: %w", p.Name, err)
		}
		if err := repo.SaveGeom(p.Name, p.Geom); err != nil {
			return fmt.Errorf("population: save geom for %q: %w", p.Name, err)
		}
	}
	return nil
}

// MemoryRepository is a map-backed Repository for tests and single-process
// pipelines.
type MemoryRepository struct {
	mu      sync.RWMutex
	indices map[string][]int64
	geoms   map[string]Geom
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		indices: make(map[string][]int64),
		geoms:   make(map[string]Geom),
	}
}

// LoadIndex returns the stored index for the population.
func (r *MemoryRepository) LoadIndex(populationID string) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids, ok := r.indices[populationID]
	if !ok {
		return nil, fmt.Errorf("population: no stored index for %q", populationID)
	}
	return append([]int64(nil), ids...), nil
}

// SaveIndex stores a copy of ids for the population.
func (r *MemoryRepository) SaveIndex(populationID string, ids []int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indices[populationID] = append([]int64(nil), ids...)
	return nil
}

// SaveGeom stores the population's gate geometry.
func (r *MemoryRepository) SaveGeom(populationID string, g Geom) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.geoms[populationID] = g
	return nil
}

// LoadGeom returns the stored geometry for the population.
func (r *MemoryRepository) LoadGeom(populationID string) (Geom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.geoms[populationID]
	if !ok {
		return Geom{}, fmt.Errorf("population: no stored geometry for %q", populationID)
	}
	return g, nil
}

// Verify at compile time that *MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)
