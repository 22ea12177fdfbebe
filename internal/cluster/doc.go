// Package cluster owns the unsupervised learning primitives behind density
// gating: DBSCAN over a regular-grid spatial index, seeded k-means for
// cross-chunk consensus, a KD-tree for neighbor queries, a distance-weighted
// KNN label extender, and an HDBSCAN implementation with approximate
// prediction for out-of-sample events.
//
// All entry points are deterministic for a fixed input and seed: label
// numbering follows first-touch order, k-means consumes an explicit
// rand.Rand, and tie-breaks are resolved by index order. Cluster label -1
// is reserved for noise throughout.
package cluster
