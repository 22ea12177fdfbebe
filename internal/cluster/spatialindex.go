package cluster

import (
	"math"

	"github.com/fabbondanza/cytogate/internal/geom"
)

// estimatedPointsPerCell is used for initial spatial index capacity estimation.
const estimatedPointsPerCell = 4

// SpatialIndex provides efficient neighborhood queries using a regular grid.
// Cell size should approximately match the DBSCAN eps parameter so that a
// radius query never has to look beyond the 3x3 block of cells around the
// query point.
type SpatialIndex struct {
	CellSize float64
	Grid     map[int64][]int // Cell ID → point indices
	points   []geom.Point
}

// NewSpatialIndex builds a grid index over points with the given cell size.
func NewSpatialIndex(points []geom.Point, cellSize float64) *SpatialIndex {
	si := &SpatialIndex{
		CellSize: cellSize,
		Grid:     make(map[int64][]int, len(points)/estimatedPointsPerCell+1),
		points:   points,
	}
	for i, p := range points {
		id := cellID(int64(math.Floor(p.X/cellSize)), int64(math.Floor(p.Y/cellSize)))
		si.Grid[id] = append(si.Grid[id], i)
	}
	return si
}

// cellID computes a unique cell identifier from integer cell coordinates.
// Signed coordinates are mapped to non-negative values with zigzag encoding
// and combined with Szudzik's pairing function.
func cellID(cellX, cellY int64) int64 {
	var a, b int64
	if cellX >= 0 {
		a = 2 * cellX
	} else {
		a = -2*cellX - 1
	}
	if cellY >= 0 {
		b = 2 * cellY
	} else {
		b = -2*cellY - 1
	}

	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// RegionQuery returns indices of all points within eps distance of
// points[idx], including idx itself. Uses squared distances to avoid sqrt.
func (si *SpatialIndex) RegionQuery(idx int, eps float64) []int {
	p := si.points[idx]
	neighbors := []int{}
	eps2 := eps * eps

	cellX := int64(math.Floor(p.X / si.CellSize))
	cellY := int64(math.Floor(p.Y / si.CellSize))

	// Search the 3x3 neighborhood of cells around the query point.
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, candidateIdx := range si.Grid[cellID(cellX+dx, cellY+dy)] {
				candidate := si.points[candidateIdx]
				ddx := candidate.X - p.X
				ddy := candidate.Y - p.Y
				if ddx*ddx+ddy*ddy <= eps2 {
					neighbors = append(neighbors, candidateIdx)
				}
			}
		}
	}

	return neighbors
}
