// Package cluster detects hierarchical communities over the knowledge graph
// using modularity-optimizing clustering and persists the result as an atomic
// hierarchy swap.
package cluster

import (
	"context"
	"sort"

	"github.com/knitgraph/loom/pkg/store"
)

// weightedGraph is the transient in-memory view the clustering runs on.
// Nodes are indexed densely; ids holds the original node ids in ascending
// order so that index order doubles as the deterministic visitation order.
type weightedGraph struct {
	ids []string
	adj []map[int]float64 // neighbor index -> summed weight, self loops included
}

func newWeightedGraph(n int) *weightedGraph {
	g := &weightedGraph{
		ids: make([]string, 0, n),
		adj: make([]map[int]float64, n),
	}
	for i := range g.adj {
		g.adj[i] = make(map[int]float64)
	}
	return g
}

func (g *weightedGraph) size() int { return len(g.adj) }

// addEdge accumulates an undirected edge. Parallel edges between the same
// pair sum their weights. Self loops are stored once on the node itself.
func (g *weightedGraph) addEdge(a, b int, weight float64) {
	if a == b {
		g.adj[a][a] += weight
		return
	}
	g.adj[a][b] += weight
	g.adj[b][a] += weight
}

// strength returns the weighted degree of node i. A self loop contributes
// twice, matching the standard modularity convention.
func (g *weightedGraph) strength(i int) float64 {
	var k float64
	for j, w := range g.adj[i] {
		if j == i {
			k += 2 * w
		} else {
			k += w
		}
	}
	return k
}

// totalWeight returns the sum of all edge weights, each undirected edge
// counted once.
func (g *weightedGraph) totalWeight() float64 {
	var m float64
	for i := range g.adj {
		for j, w := range g.adj[i] {
			if j == i {
				m += w
			} else if j > i {
				m += w
			}
		}
	}
	return m
}

// loadGraph reads the partition's nodes and edges page by page and builds the
// in-memory view. Missing edge weights default to 1.0; edges referencing
// unknown endpoints are dropped.
func loadGraph(
	ctx context.Context,
	storage store.GraphStorage,
	partition string,
	pageSize int,
) (*weightedGraph, int, error) {
	var ids []string
	for offset := 0; ; offset += pageSize {
		nodes, err := storage.ListNodes(ctx, partition, pageSize, offset)
		if err != nil {
			return nil, 0, err
		}
		for _, n := range nodes {
			ids = append(ids, n.ID)
		}
		if len(nodes) < pageSize {
			break
		}
	}
	sort.Strings(ids)

	g := newWeightedGraph(len(ids))
	g.ids = ids
	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	edgeCount := 0
	for offset := 0; ; offset += pageSize {
		edges, err := storage.ListEdges(ctx, partition, pageSize, offset)
		if err != nil {
			return nil, 0, err
		}
		for _, e := range edges {
			src, okSrc := index[e.SourceID]
			dst, okDst := index[e.TargetID]
			if !okSrc || !okDst {
				continue
			}
			weight := e.Weight
			if weight <= 0 {
				weight = 1.0
			}
			g.addEdge(src, dst, weight)
			edgeCount++
		}
		if len(edges) < pageSize {
			break
		}
	}
	return g, edgeCount, nil
}

// aggregate collapses each community of g into a single super node. The
// community indices must be dense (0..count-1). Intra-community weight
// becomes a self loop on the super node.
func aggregate(g *weightedGraph, assignment []int, count int) *weightedGraph {
	agg := newWeightedGraph(count)
	agg.ids = make([]string, count)
	for i := range g.adj {
		c := assignment[i]
		if agg.ids[c] == "" {
			// Super nodes inherit the lowest member id so that visitation
			// order stays deterministic across levels.
			agg.ids[c] = g.ids[i]
		}
		for j, w := range g.adj[i] {
			d := assignment[j]
			if c == d {
				if j >= i {
					agg.adj[c][c] += w
				}
			} else if j > i {
				agg.adj[c][d] += w
				agg.adj[d][c] += w
			}
		}
	}
	return agg
}
