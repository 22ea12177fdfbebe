package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/fabbondanza/cytogate/internal/geom"
)

// HDBSCANModel holds a fitted hierarchical density clustering over a
// reference sample, along with the data needed to place new events into the
// fitted clusters.
type HDBSCANModel struct {
	MinClusterSize int
	Labels         []int
	Probabilities  []float64
	Clusters       int

	coreDist []float64
	index    *NeighborIndex
}

// FitHDBSCAN clusters points hierarchically by density. The algorithm builds
// a minimum spanning tree over mutual reachability distances, condenses the
// resulting single-linkage hierarchy with minClusterSize, and extracts the
// clusters with maximal stability. Points in no stable cluster are labelled
// Noise; membership probabilities scale each point's density at departure
// against the densest point of its cluster.
func FitHDBSCAN(points []geom.Point, minClusterSize int) (*HDBSCANModel, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("hdbscan: no points")
	}
	if minClusterSize < 2 {
		return nil, fmt.Errorf("hdbscan: min cluster size must be at least 2, got %d", minClusterSize)
	}

	n := len(points)
	m := &HDBSCANModel{
		MinClusterSize: minClusterSize,
		Labels:         make([]int, n),
		Probabilities:  make([]float64, n),
		index:          NewNeighborIndex(points),
	}

	m.coreDist = coreDistances(points, m.index, minClusterSize)

	if n < 2 {
		m.Labels[0] = Noise
		return m, nil
	}

	edges := mutualReachabilityMST(points, m.coreDist)
	nodes := singleLinkage(edges, n)
	tree := condense(nodes, n, minClusterSize)
	selected := tree.extractStable()

	m.Clusters = len(selected)
	tree.label(selected, m.Labels, m.Probabilities)
	return m, nil
}

// ApproximatePredict places query events into the fitted clusters via their
// nearest fitted neighbor. Strength carries the neighbor's membership
// probability, damped by distance once the query leaves the neighbor's core
// neighborhood. Queries nearest to a noise point stay noise with strength 0.
func (m *HDBSCANModel) ApproximatePredict(queries []geom.Point) ([]int, []float64) {
	labels := make([]int, len(queries))
	strengths := make([]float64, len(queries))

	ParallelFor(len(queries), func(i int) {
		nn, d := m.index.Nearest(queries[i])
		if nn < 0 || m.Labels[nn] == Noise {
			labels[i] = Noise
			return
		}
		labels[i] = m.Labels[nn]
		strength := m.Probabilities[nn]
		if core := m.coreDist[nn]; d > core {
			if core > 0 {
				strength *= core / d
			} else {
				strength = 0
			}
		}
		strengths[i] = strength
	})

	return labels, strengths
}

// coreDistances returns each point's distance to its k-th nearest neighbor,
// the point itself included.
func coreDistances(points []geom.Point, index *NeighborIndex, k int) []float64 {
	if k > len(points) {
		k = len(points)
	}
	core := make([]float64, len(points))
	ParallelFor(len(points), func(i int) {
		_, dists := index.KNearest(points[i], k)
		core[i] = dists[len(dists)-1]
	})
	return core
}

type mstEdge struct {
	u, v int
	w    float64
}

// mutualReachabilityMST runs Prim's algorithm over the implicit complete
// graph whose edge weights are max(core[u], core[v], dist(u, v)). Ties pick
// the lowest vertex index, keeping the tree deterministic.
func mutualReachabilityMST(points []geom.Point, core []float64) []mstEdge {
	n := len(points)
	inTree := make([]bool, n)
	key := make([]float64, n)
	from := make([]int, n)
	for i := range key {
		key[i] = math.Inf(1)
		from[i] = -1
	}
	key[0] = 0

	edges := make([]mstEdge, 0, n-1)
	for range points {
		u := -1
		for v := 0; v < n; v++ {
			if !inTree[v] && (u == -1 || key[v] < key[u]) {
				u = v
			}
		}
		inTree[u] = true
		if from[u] >= 0 {
			edges = append(edges, mstEdge{u: from[u], v: u, w: key[u]})
		}

		pu := points[u]
		for v := 0; v < n; v++ {
			if inTree[v] {
				continue
			}
			w := geom.Distance(pu, points[v])
			if core[u] > w {
				w = core[u]
			}
			if core[v] > w {
				w = core[v]
			}
			if w < key[v] {
				key[v] = w
				from[v] = u
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].w != edges[j].w {
			return edges[i].w < edges[j].w
		}
		if edges[i].u != edges[j].u {
			return edges[i].u < edges[j].u
		}
		return edges[i].v < edges[j].v
	})
	return edges
}

// dendroNode is an internal node of the single-linkage hierarchy. Leaves are
// the points 0..n-1; internal node i is addressed as n+i.
type dendroNode struct {
	left, right int
	weight      float64
	size        int
}

// singleLinkage merges MST edges in ascending weight order into a binary
// dendrogram, union-find tracking which hierarchy node each component
// currently belongs to.
func singleLinkage(edges []mstEdge, n int) []dendroNode {
	parent := make([]int, n)
	nodeOf := make([]int, n)
	for i := range parent {
		parent[i] = i
		nodeOf[i] = i
	}

	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	nodes := make([]dendroNode, 0, len(edges))
	sizeOf := func(id int) int {
		if id < n {
			return 1
		}
		return nodes[id-n].size
	}

	for _, e := range edges {
		ru, rv := find(e.u), find(e.v)
		nu, nv := nodeOf[ru], nodeOf[rv]
		nodes = append(nodes, dendroNode{
			left:   nu,
			right:  nv,
			weight: e.w,
			size:   sizeOf(nu) + sizeOf(nv),
		})
		parent[ru] = rv
		nodeOf[rv] = n + len(nodes) - 1
	}
	return nodes
}

// condensedTree is the cluster hierarchy after small-side prunes. Cluster 0
// is the root; childA/childB are -1 for clusters that end without splitting.
// pointCluster and pointLambda record where and at what density each point
// left the hierarchy.
type condensedTree struct {
	parent    []int
	birth     []float64
	childA    []int
	childB    []int
	stability []float64

	pointCluster []int
	pointLambda  []float64
}

func (t *condensedTree) newCluster(parent int, birth float64) int {
	t.parent = append(t.parent, parent)
	t.birth = append(t.birth, birth)
	t.childA = append(t.childA, -1)
	t.childB = append(t.childB, -1)
	t.stability = append(t.stability, 0)
	return len(t.parent) - 1
}

// lambdaOf converts a merge distance to a density level.
func lambdaOf(w float64) float64 {
	if w <= 0 {
		return math.Inf(1)
	}
	return 1 / w
}

// gap is a point's stability contribution between its birth and departure
// density levels.
func gap(lambda, birth float64) float64 {
	if math.IsInf(birth, 1) {
		return 0
	}
	return lambda - birth
}

// condense walks the dendrogram top-down. A split where both sides reach
// minClusterSize starts two child clusters; smaller sides fall out of the
// current cluster as individual points at the split's density level.
func condense(nodes []dendroNode, n, minClusterSize int) *condensedTree {
	t := &condensedTree{
		pointCluster: make([]int, n),
		pointLambda:  make([]float64, n),
	}
	root := t.newCluster(-1, 0)

	sizeOf := func(id int) int {
		if id < n {
			return 1
		}
		return nodes[id-n].size
	}

	// fall records every leaf under id leaving cluster c at level lambda.
	fall := func(id, c int, lambda float64) {
		stack := []int{id}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if cur < n {
				t.pointCluster[cur] = c
				t.pointLambda[cur] = lambda
				t.stability[c] += gap(lambda, t.birth[c])
				continue
			}
			nd := nodes[cur-n]
			stack = append(stack, nd.left, nd.right)
		}
	}

	type walkItem struct{ node, cluster int }
	stack := []walkItem{{node: n + len(nodes) - 1, cluster: root}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		nd := nodes[item.node-n]
		lambda := lambdaOf(nd.weight)
		c := item.cluster
		sl, sr := sizeOf(nd.left), sizeOf(nd.right)

		switch {
		case sl >= minClusterSize && sr >= minClusterSize:
			// True split: the current cluster dies here and both sides
			// carry on as new clusters.
			t.stability[c] += float64(nd.size) * gap(lambda, t.birth[c])
			a := t.newCluster(c, lambda)
			b := t.newCluster(c, lambda)
			t.childA[c], t.childB[c] = a, b
			stack = append(stack,
				walkItem{node: nd.left, cluster: a},
				walkItem{node: nd.right, cluster: b},
			)
		case sl >= minClusterSize:
			fall(nd.right, c, lambda)
			stack = append(stack, walkItem{node: nd.left, cluster: c})
		case sr >= minClusterSize:
			fall(nd.left, c, lambda)
			stack = append(stack, walkItem{node: nd.right, cluster: c})
		default:
			fall(nd.left, c, lambda)
			fall(nd.right, c, lambda)
		}
	}
	return t
}

// extractStable selects the set of clusters maximizing total stability, at
// most one per root-to-leaf path. The root itself is never selected, so a
// dataset that never truly splits yields no clusters at all.
func (t *condensedTree) extractStable() []int {
	nClusters := len(t.parent)
	selected := make([]bool, nClusters)
	subtree := make([]float64, nClusters)

	for c := nClusters - 1; c >= 1; c-- {
		if t.childA[c] < 0 {
			selected[c] = true
			subtree[c] = t.stability[c]
			continue
		}
		childSum := subtree[t.childA[c]] + subtree[t.childB[c]]
		if t.stability[c] >= childSum {
			selected[c] = true
			subtree[c] = t.stability[c]
		} else {
			subtree[c] = childSum
		}
	}

	// A selected ancestor absorbs its descendants.
	type visit struct {
		cluster          int
		ancestorSelected bool
	}
	stack := []visit{{cluster: 0}}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if v.ancestorSelected {
			selected[v.cluster] = false
		}
		covered := v.ancestorSelected || selected[v.cluster]
		if a := t.childA[v.cluster]; a >= 0 {
			stack = append(stack,
				visit{cluster: a, ancestorSelected: covered},
				visit{cluster: t.childB[v.cluster], ancestorSelected: covered},
			)
		}
	}

	var ids []int
	for c := 1; c < nClusters; c++ {
		if selected[c] {
			ids = append(ids, c)
		}
	}
	return ids
}

// label assigns final cluster labels and membership probabilities. A point
// belongs to the nearest selected ancestor of the cluster it fell out of;
// its probability is its departure density over the cluster's maximum.
func (t *condensedTree) label(selected []int, labels []int, probs []float64) {
	labelOf := make(map[int]int, len(selected))
	for i, c := range selected {
		labelOf[c] = i
	}

	isSelected := make([]bool, len(t.parent))
	for _, c := range selected {
		isSelected[c] = true
	}

	maxLambda := make([]float64, len(selected))
	for p := range t.pointCluster {
		labels[p] = Noise
		for c := t.pointCluster[p]; c >= 0; c = t.parent[c] {
			if isSelected[c] {
				labels[p] = labelOf[c]
				if l := t.pointLambda[p]; !math.IsInf(l, 1) && l > maxLambda[labels[p]] {
					maxLambda[labels[p]] = l
				}
				break
			}
		}
	}

	for p, label := range labels {
		if label == Noise {
			continue
		}
		l := t.pointLambda[p]
		if math.IsInf(l, 1) || maxLambda[label] == 0 {
			probs[p] = 1
			continue
		}
		probs[p] = l / maxLambda[label]
	}
}
