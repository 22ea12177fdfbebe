package gate

import (
	"sort"
	"strings"

	"github.com/fabbondanza/cytogate/internal/cluster"
	"github.com/fabbondanza/cytogate/internal/geom"
	"github.com/fabbondanza/cytogate/population"
)

const (
	// clusterSampleCap bounds the sample clustering models are fitted on.
	clusterSampleCap = 40000

	// knnNeighbors is the vote size used to extend sampled cluster labels
	// to the remaining events.
	knnNeighbors = 10
)

// ClusteringConfig parameterises density-based clustering gates.
type ClusteringConfig struct {
	// MinPopSize is the DBSCAN core-point neighbourhood size and the
	// HDBSCAN minimum cluster size. Zero or less selects 10.
	MinPopSize int

	// ChunkSize is the per-chunk row count for consensus clustering.
	// Zero selects DefaultChunkSize.
	ChunkSize int

	// Restarts and Seed drive the consensus k-means merge.
	Restarts int
	Seed     int64

	// Workers bounds parallel fan-out. Zero uses all available CPUs.
	Workers int
}

// DefaultClusteringConfig returns the standard clustering parameters.
func DefaultClusteringConfig() ClusteringConfig {
	return ClusteringConfig{
		MinPopSize: 10,
		ChunkSize:  DefaultChunkSize,
		Restarts:   cluster.DefaultKMeansRestarts,
		Seed:       defaultSeed,
	}
}

// ClusteringGate assigns expected populations to density-based clusters in
// two dimensions. Clusters come from DBSCAN (sampled or chunked consensus)
// or HDBSCAN; each population is then matched to the cluster containing or
// nearest to its target coordinate.
type ClusteringGate struct {
	ctx *Context
	cfg ClusteringConfig
}

// NewClusteringGate builds a clustering gate over ctx, which must carry a
// secondary dimension.
func NewClusteringGate(ctx *Context, cfg ClusteringConfig) (*ClusteringGate, error) {
	if ctx.Y() == "" {
		return nil, Errorf("clustering gates require a secondary dimension")
	}
	if cfg.MinPopSize <= 0 {
		cfg.MinPopSize = 10
	}
	return &ClusteringGate{ctx: ctx, cfg: cfg}, nil
}

// DBSCAN gates the parent with density-based clustering at the given
// neighbourhood radius. With chunked set, the parent is clustered in
// sequential chunks whose clusters are merged by consensus and each
// cluster's hull then captures every event inside it; otherwise a sample is
// clustered and labels are extended to remaining events by nearest-neighbour
// vote. coreOnly relabels non-core points as noise.
func (g *ClusteringGate) DBSCAN(radius float64, coreOnly, chunked bool) (*population.Collection, *Diagnostics, error) {
	diag := NewDiagnostics()
	if g.ctx.EmptyParent() {
		return g.ctx.Collection(), diag, nil
	}
	pts, err := g.ctx.points(g.ctx.Table())
	if err != nil {
		return nil, diag, err
	}

	var labels []int
	var polygons map[int]geom.Polygon
	if chunked {
		labels, err = Consensus(pts, g.ctx.Collection().Len(), ConsensusConfig{
			ChunkSize: g.cfg.ChunkSize,
			Eps:       radius,
			MinPts:    g.cfg.MinPopSize,
			CoreOnly:  coreOnly,
			Restarts:  g.cfg.Restarts,
			Seed:      g.cfg.Seed,
			Workers:   g.cfg.Workers,
		}, diag)
		if err != nil {
			return nil, diag, err
		}
		// hulls are drawn before capture and reused for matching
		polygons = buildPolygons(pts, labels)
		captureByPolygon(pts, labels, polygons)
	} else {
		labels, err = g.sampledDBSCAN(pts, radius, coreOnly, diag)
		if err != nil {
			return nil, diag, err
		}
		polygons = buildPolygons(pts, labels)
	}
	return g.finish(pts, labels, polygons, diag)
}

// HDBSCAN gates the parent with hierarchical density-based clustering.
// When a sampling fraction is configured the model is fitted on a sample
// and remaining events are placed by approximate prediction. Events whose
// membership strength falls below inclusionThreshold are relabelled as
// noise; a threshold of zero keeps everything.
func (g *ClusteringGate) HDBSCAN(inclusionThreshold float64) (*population.Collection, *Diagnostics, error) {
	diag := NewDiagnostics()
	if g.ctx.EmptyParent() {
		return g.ctx.Collection(), diag, nil
	}
	pts, err := g.ctx.points(g.ctx.Table())
	if err != nil {
		return nil, diag, err
	}

	var labels []int
	var strengths []float64
	if sample := g.ctx.Sampling(g.ctx.Table(), clusterSampleCap, diag); sample != nil {
		samplePts, err := g.ctx.points(sample)
		if err != nil {
			return nil, diag, err
		}
		model, err := cluster.FitHDBSCAN(samplePts, g.cfg.MinPopSize)
		if err != nil {
			return nil, diag, err
		}
		labels, strengths = model.ApproximatePredict(pts)
	} else {
		model, err := cluster.FitHDBSCAN(pts, g.cfg.MinPopSize)
		if err != nil {
			return nil, diag, err
		}
		labels, strengths = model.Labels, model.Probabilities
	}
	if inclusionThreshold > 0 {
		for i, s := range strengths {
			if s < inclusionThreshold {
				labels[i] = cluster.Noise
			}
		}
	}
	polygons := buildPolygons(pts, labels)
	return g.finish(pts, labels, polygons, diag)
}

// sampledDBSCAN clusters a sample of the parent and extends the labels to
// every event with a distance-weighted nearest-neighbour vote.
func (g *ClusteringGate) sampledDBSCAN(pts []geom.Point, radius float64, coreOnly bool, diag *Diagnostics) ([]int, error) {
	sample := g.ctx.Sampling(g.ctx.Table(), clusterSampleCap, diag)
	if sample == nil {
		diag.warnf("no sampling fraction configured; clustering the full table, downsampling is recommended")
		sample = g.ctx.Table()
	}
	samplePts, err := g.ctx.points(sample)
	if err != nil {
		return nil, err
	}
	result := cluster.DBSCAN(samplePts, cluster.DBSCANParams{Eps: radius, MinPts: g.cfg.MinPopSize})
	if coreOnly {
		for i, isCore := range result.Core {
			if !isCore {
				result.Labels[i] = cluster.Noise
			}
		}
	}
	knn, err := cluster.NewKNNClassifier(samplePts, result.Labels, knnNeighbors)
	if err != nil {
		return nil, err
	}
	return knn.Predict(pts), nil
}

// finish matches populations to clusters and writes indices and geometry
// into the collection.
func (g *ClusteringGate) finish(pts []geom.Point, labels []int, polygons map[int]geom.Polygon, diag *Diagnostics) (*population.Collection, *Diagnostics, error) {
	mapping, err := g.matchPopulations(pts, labels, polygons, diag)
	if err != nil {
		return nil, diag, err
	}
	if err := g.assignClusters(labels, mapping, polygons); err != nil {
		return nil, diag, err
	}
	return g.ctx.Collection(), diag, nil
}

// matchPopulations resolves every expected population to a cluster label,
// then settles collisions by population weight.
func (g *ClusteringGate) matchPopulations(pts []geom.Point, labels []int, polygons map[int]geom.Polygon, diag *Diagnostics) (map[string]int, error) {
	if len(labels) == 0 {
		return nil, Errorf("population matching requires cluster labels")
	}
	if len(distinctNonNoiseSorted(labels)) == 0 {
		return nil, Errorf("clustering failed to identify any clusters (all labels are noise); if sampling, try increasing the sample size")
	}

	m := &popMatcher{
		pts:       pts,
		labels:    labels,
		polygons:  polygons,
		index:     cluster.NewNeighborIndex(pts),
		centroids: clusterCentroids(pts, labels),
	}

	col := g.ctx.Collection()
	assignments := make(map[string]int, col.Len())
	byCluster := make(map[int][]string)
	for _, pop := range col.Populations() {
		label, err := m.match(pop, diag)
		if err != nil {
			return nil, err
		}
		assignments[pop.Name] = label
		byCluster[label] = append(byCluster[label], pop.Name)
	}
	if len(byCluster) != len(assignments) {
		diag.warnf("expected %d populations but found %d", len(assignments), len(byCluster))
	}

	final := make(map[string]int, len(byCluster))
	for _, label := range sortedClusterKeys(byCluster) {
		claimants := byCluster[label]
		if len(claimants) == 1 {
			final[claimants[0]] = label
			continue
		}
		winner := claimants[0]
		for _, name := range claimants[1:] {
			if g.weightOf(name) > g.weightOf(winner) {
				winner = name
			}
		}
		diag.warnf("populations %s assigned to the same cluster %d; prioritising %s based on weighting",
			strings.Join(claimants, ", "), label, winner)
		final[winner] = label
	}
	return final, nil
}

func (g *ClusteringGate) weightOf(name string) float64 {
	pop, ok := g.ctx.Collection().Get(name)
	if !ok {
		return 0
	}
	return pop.Weight
}

// assignClusters writes each matched population's event index, hull
// geometry and share of the parent. Populations displaced during collision
// resolution are left untouched.
func (g *ClusteringGate) assignClusters(labels []int, mapping map[string]int, polygons map[int]geom.Polygon) error {
	col := g.ctx.Collection()
	tbl := g.ctx.Table()
	for _, name := range col.Names() {
		label, ok := mapping[name]
		if !ok {
			continue
		}
		var ids []int64
		if label != cluster.Noise {
			for row, l := range labels {
				if l == label {
					ids = append(ids, tbl.ID(row))
				}
			}
		}
		if err := col.UpdateIndex(name, ids, population.Overwrite); err != nil {
			return err
		}
		var vertices [][2]float64
		if label != cluster.Noise {
			for _, v := range polygons[label].Vertices {
				vertices = append(vertices, [2]float64{v.X, v.Y})
			}
		}
		if err := col.UpdateGeom(name, population.Geom{
			Shape:    population.ShapePolygon,
			X:        g.ctx.X(),
			Y:        g.ctx.Y(),
			Vertices: vertices,
		}); err != nil {
			return err
		}
		if pop, ok := col.Get(name); ok {
			pop.PropOfParent = float64(len(ids)) / float64(tbl.Len())
		}
	}
	return nil
}

// popMatcher carries the cluster landscape one matching pass runs against.
type popMatcher struct {
	pts       []geom.Point
	labels    []int
	polygons  map[int]geom.Polygon
	index     *cluster.NeighborIndex
	centroids []labelCentroid
}

// match finds the cluster for one population: the hull containing its
// target when there is one, otherwise the nearest cluster centroid. A
// target outside every hull is first checked against the labels around the
// table's first event; an all-noise neighbourhood there means the
// population was not found at all.
func (m *popMatcher) match(pop *population.Population, diag *Diagnostics) (int, error) {
	if len(pop.Target) < 2 {
		return 0, Errorf("population %q has no target coordinate for cluster matching", pop.Name)
	}
	target := geom.Point{X: pop.Target[0], Y: pop.Target[1]}

	contained := false
	for _, label := range sortedPolygonLabels(m.polygons) {
		if m.polygons[label].Contains(target) {
			contained = true
			break
		}
	}
	if !contained {
		k := len(m.pts) / 100
		if k > 100 {
			k = 100
		}
		if k < 1 {
			k = 1
		}
		neighbors, _ := m.index.KNearest(m.pts[0], k)
		if allNoiseAt(m.labels, neighbors) {
			diag.warnf("population %s assigned to noise (population not found)", pop.Name)
			return cluster.Noise, nil
		}
	}

	best := m.centroids[0].label
	bestDist := geom.Distance(target, m.centroids[0].centroid)
	for _, c := range m.centroids[1:] {
		if d := geom.Distance(target, c.centroid); d < bestDist {
			best, bestDist = c.label, d
		}
	}
	return best, nil
}

type labelCentroid struct {
	label    int
	centroid geom.Point
}

// clusterCentroids derives the median centroid of every non-noise cluster,
// ascending by label.
func clusterCentroids(pts []geom.Point, labels []int) []labelCentroid {
	var out []labelCentroid
	for _, label := range distinctNonNoiseSorted(labels) {
		var xs, ys []float64
		for i, l := range labels {
			if l == label {
				xs = append(xs, pts[i].X)
				ys = append(ys, pts[i].Y)
			}
		}
		out = append(out, labelCentroid{label: label, centroid: geom.Centroid(xs, ys)})
	}
	return out
}

// buildPolygons computes the convex hull of every non-noise cluster.
func buildPolygons(pts []geom.Point, labels []int) map[int]geom.Polygon {
	polys := make(map[int]geom.Polygon, len(labels))
	for _, label := range distinctNonNoiseSorted(labels) {
		var members []geom.Point
		for i, l := range labels {
			if l == label {
				members = append(members, pts[i])
			}
		}
		polys[label] = geom.ConvexHull(members)
	}
	return polys
}

// captureByPolygon reassigns every event inside a cluster's hull to that
// cluster. Hulls apply in ascending label order, so later labels win
// overlapping regions.
func captureByPolygon(pts []geom.Point, labels []int, polygons map[int]geom.Polygon) {
	for _, label := range sortedPolygonLabels(polygons) {
		poly := polygons[label]
		if poly.Empty() {
			continue
		}
		for i, p := range pts {
			if poly.Contains(p) {
				labels[i] = label
			}
		}
	}
}

func sortedPolygonLabels(polygons map[int]geom.Polygon) []int {
	out := make([]int, 0, len(polygons))
	for label := range polygons {
		out = append(out, label)
	}
	sort.Ints(out)
	return out
}

func sortedClusterKeys(byCluster map[int][]string) []int {
	out := make([]int, 0, len(byCluster))
	for label := range byCluster {
		out = append(out, label)
	}
	sort.Ints(out)
	return out
}

func allNoiseAt(labels []int, rows []int) bool {
	for _, row := range rows {
		if labels[row] != cluster.Noise {
			return false
		}
	}
	return len(rows) > 0
}
