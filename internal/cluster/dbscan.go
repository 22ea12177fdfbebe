package cluster

import "github.com/fabbondanza/cytogate/internal/geom"

// Noise is the label assigned to points that belong to no cluster.
const Noise = -1

// DBSCANParams contains parameters for the DBSCAN clustering algorithm.
type DBSCANParams struct {
	Eps    float64 // Neighborhood radius in event-space units
	MinPts int     // Minimum neighborhood size for a core point
}

// Result holds the per-point output of a clustering run. Labels are numbered
// 0..Clusters-1 in first-touch order, with Noise (-1) for unclustered points.
// Core marks points whose eps-neighborhood reached MinPts.
type Result struct {
	Labels   []int
	Core     []bool
	Clusters int
}

// DBSCAN performs density-based clustering on 2D event coordinates.
// The neighborhood of a point includes the point itself, matching the usual
// definition where a core point needs MinPts total points within Eps.
func DBSCAN(points []geom.Point, params DBSCANParams) Result {
	n := len(points)
	if n == 0 {
		return Result{}
	}

	labels := make([]int, n) // 0=unvisited, -1=noise, >0=clusterID
	core := make([]bool, n)
	clusterID := 0

	si := NewSpatialIndex(points, params.Eps)

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue // Already processed
		}

		neighbors := si.RegionQuery(i, params.Eps)

		if len(neighbors) < params.MinPts {
			labels[i] = -1 // Mark as noise; may become a border point later
			continue
		}

		core[i] = true
		clusterID++
		expandCluster(si, labels, core, i, neighbors, clusterID, params)
	}

	out := Result{
		Labels:   make([]int, n),
		Core:     core,
		Clusters: clusterID,
	}
	for i, label := range labels {
		if label > 0 {
			out.Labels[i] = label - 1
		} else {
			out.Labels[i] = Noise
		}
	}
	return out
}

// expandCluster expands a cluster from a core point using a queue of
// candidate indices.
func expandCluster(si *SpatialIndex, labels []int, core []bool,
	seedIdx int, neighbors []int, clusterID int, params DBSCANParams) {

	labels[seedIdx] = clusterID

	for j := 0; j < len(neighbors); j++ {
		idx := neighbors[j]

		if labels[idx] == -1 {
			labels[idx] = clusterID // Noise becomes a border point
		}

		if labels[idx] != 0 {
			continue // Already processed
		}

		labels[idx] = clusterID
		newNeighbors := si.RegionQuery(idx, params.Eps)

		if len(newNeighbors) >= params.MinPts {
			// Core point: its neighborhood joins the expansion queue.
			core[idx] = true
			neighbors = append(neighbors, newNeighbors...)
		}
	}
}
