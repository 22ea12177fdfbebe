package gate

import (
	"math/rand"
	"sort"

	"github.com/fabbondanza/cytogate/internal/cluster"
	"github.com/fabbondanza/cytogate/internal/geom"
)

// DefaultChunkSize is the number of events clustered per chunk when none is
// configured.
const DefaultChunkSize = 30000

// ConsensusConfig parameterises chunked consensus clustering.
type ConsensusConfig struct {
	// ChunkSize is the number of events per chunk. Zero or less selects
	// DefaultChunkSize.
	ChunkSize int

	// Eps is the DBSCAN neighbourhood radius applied within each chunk.
	Eps float64

	// MinPts is the DBSCAN core-point neighbourhood size.
	MinPts int

	// CoreOnly relabels non-core points as noise after each chunk run.
	CoreOnly bool

	// Restarts is the number of k-means initialisations when merging
	// chunk centroids. Zero selects the cluster package default.
	Restarts int

	// Seed feeds the k-means random source, fixed independently of the
	// gating context so the meta-clustering is reproducible on its own.
	// Zero selects the default seed.
	Seed int64

	// Workers bounds the parallel fan-out over chunks. Zero uses all
	// available CPUs.
	Workers int
}

// DefaultConsensusConfig returns the standard consensus parameters; Eps and
// MinPts carry no defaults and must be set by the caller.
func DefaultConsensusConfig() ConsensusConfig {
	return ConsensusConfig{
		ChunkSize: DefaultChunkSize,
		Restarts:  cluster.DefaultKMeansRestarts,
		Seed:      defaultSeed,
	}
}

// chunkKey identifies one DBSCAN cluster within one chunk. Chunk identity
// is the chunk's position in the sequential split of the parent.
type chunkKey struct {
	Chunk int
	Label int
}

type chunkSpan struct {
	start, end int
}

// Consensus clusters points chunk by chunk with DBSCAN, then merges the
// chunk-local clusters into meta-clusters by running k-means over their
// centroids. The meta-cluster count is the median per-chunk cluster count,
// truncated, or nPops when the median reaches it. Noise passes through
// untouched. Returns one label per point; soft anomalies (a single distinct
// label, or a final count differing from nPops) are recorded on diag.
func Consensus(points []geom.Point, nPops int, cfg ConsensusConfig, diag *Diagnostics) ([]int, error) {
	if len(points) == 0 {
		return nil, nil
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Seed == 0 {
		cfg.Seed = defaultSeed
	}
	spans := chunkSpans(len(points), cfg.ChunkSize)

	labels := make([]int, len(points))
	counts := make([]float64, len(spans))
	for i, s := range spans {
		result := cluster.DBSCAN(points[s.start:s.end], cluster.DBSCANParams{
			Eps:    cfg.Eps,
			MinPts: cfg.MinPts,
		})
		if cfg.CoreOnly {
			for j, isCore := range result.Core {
				if !isCore {
					result.Labels[j] = cluster.Noise
				}
			}
		}
		copy(labels[s.start:s.end], result.Labels)
		counts[i] = float64(distinctNonNoise(result.Labels))
	}

	k := nPops
	if median := geom.Median(counts); median < float64(nPops) {
		k = int(median)
	}
	if k > 0 {
		if err := mergeChunkClusters(points, labels, spans, k, cfg); err != nil {
			return nil, err
		}
	} else {
		// no chunk produced a usable cluster
		for i := range labels {
			labels[i] = cluster.Noise
		}
	}

	distinct := distinctLabels(labels)
	if len(distinct) == 1 {
		diag.warnf("failed to identify any distinct populations")
	} else if len(distinct) != nPops {
		diag.warnf("expected %d populations, identified %d", nPops, len(distinct))
	}
	return labels, nil
}

// mergeChunkClusters rewrites chunk-local labels in place with the
// meta-cluster each chunk centroid lands in.
func mergeChunkClusters(points []geom.Point, labels []int, spans []chunkSpan, k int, cfg ConsensusConfig) error {
	type taggedCentroid struct {
		key      chunkKey
		centroid geom.Point
	}

	perChunk := make([][]taggedCentroid, len(spans))
	cluster.ParallelWorkers(cfg.Workers, len(spans), func(i int) {
		s := spans[i]
		chunkPts := points[s.start:s.end]
		chunkLabels := labels[s.start:s.end]
		var tagged []taggedCentroid
		for _, label := range distinctNonNoiseSorted(chunkLabels) {
			var xs, ys []float64
			for j, l := range chunkLabels {
				if l == label {
					xs = append(xs, chunkPts[j].X)
					ys = append(ys, chunkPts[j].Y)
				}
			}
			tagged = append(tagged, taggedCentroid{
				key:      chunkKey{Chunk: i, Label: label},
				centroid: geom.Centroid(xs, ys),
			})
		}
		perChunk[i] = tagged
	})

	var keys []chunkKey
	var centroids []geom.Point
	for _, tagged := range perChunk {
		for _, tc := range tagged {
			keys = append(keys, tc.key)
			centroids = append(centroids, tc.centroid)
		}
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	result, err := cluster.KMeans(centroids, cluster.KMeansParams{K: k, Restarts: cfg.Restarts}, rng)
	if err != nil {
		return err
	}
	mapping := make(map[chunkKey]int, len(keys))
	for i, key := range keys {
		mapping[key] = result.Labels[i]
	}

	cluster.ParallelWorkers(cfg.Workers, len(spans), func(i int) {
		s := spans[i]
		for row := s.start; row < s.end; row++ {
			if labels[row] == cluster.Noise {
				continue
			}
			labels[row] = mapping[chunkKey{Chunk: i, Label: labels[row]}]
		}
	})
	return nil
}

// chunkSpans splits [0, n) into sequential spans of at most size rows.
func chunkSpans(n, size int) []chunkSpan {
	if size >= n {
		return []chunkSpan{{0, n}}
	}
	spans := make([]chunkSpan, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, chunkSpan{start, end})
	}
	return spans
}

func distinctNonNoise(labels []int) int {
	seen := make(map[int]struct{})
	for _, l := range labels {
		if l != cluster.Noise {
			seen[l] = struct{}{}
		}
	}
	return len(seen)
}

// distinctNonNoiseSorted returns the non-noise labels ascending.
func distinctNonNoiseSorted(labels []int) []int {
	seen := make(map[int]struct{})
	for _, l := range labels {
		if l != cluster.Noise {
			seen[l] = struct{}{}
		}
	}
	out := make([]int, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// distinctLabels returns every distinct label, noise included, ascending.
func distinctLabels(labels []int) []int {
	seen := make(map[int]struct{})
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}
