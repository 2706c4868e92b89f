// Package graph builds the topological graph of nodes and edges used by the
// cluster pipeline. A LooseGraph fuses raw path points into nodes, the
// canonical Graph holds the deduplicated edge set that intersection passes
// mutate, and a Builder partitions the result into clusters and writes one
// edge dataset per cluster.
package graph
