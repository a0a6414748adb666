package cluster

import (
	"context"
	"sort"
)

// clusterGraph runs hierarchical modularity clustering: local moves until no
// gain, then aggregation, repeated on the coarsened graph. It returns one
// assignment per level mapping ORIGINAL node indices to dense community
// indices at that level. Level 0 is the finest partition. Cancellation is
// honored between levels.
//
// Node visitation is always in ascending id order and ties break toward the
// lowest community index, so identical inputs yield identical hierarchies.
func clusterGraph(ctx context.Context, g *weightedGraph, resolution float64, maxLevels int) ([][]int, error) {
	if g.size() == 0 {
		return nil, nil
	}

	var levels [][]int
	work := g
	// projection[i] maps original node i to its node in the working graph.
	projection := make([]int, g.size())
	for i := range projection {
		projection[i] = i
	}

	for len(levels) < maxLevels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		assignment, count := localMove(work, resolution)

		original := make([]int, g.size())
		for i := range original {
			original[i] = assignment[projection[i]]
		}

		if len(levels) > 0 && count == work.size() {
			// No community absorbed another; the hierarchy has converged.
			break
		}
		levels = append(levels, original)

		if count == work.size() || count == 1 {
			break
		}
		work = aggregate(work, assignment, count)
		for i := range projection {
			projection[i] = assignment[projection[i]]
		}
	}
	return levels, nil
}

// localMove greedily reassigns nodes to neighboring communities while any
// move improves modularity, then renumbers the surviving communities densely
// in order of first appearance. Returns the assignment and community count.
func localMove(g *weightedGraph, resolution float64) ([]int, int) {
	n := g.size()
	community := make([]int, n)
	strength := make([]float64, n)
	tot := make([]float64, n) // summed strength per community
	for i := 0; i < n; i++ {
		community[i] = i
		strength[i] = g.strength(i)
		tot[i] = strength[i]
	}
	m := g.totalWeight()
	if m == 0 {
		// Zero-edge graph: every node stays its own community.
		return community, n
	}

	improved := true
	for improved {
		improved = false
		for i := 0; i < n; i++ {
			current := community[i]

			// Weight from i to each neighboring community, excluding the
			// self loop (it moves with the node either way).
			linkTo := make(map[int]float64)
			for j, w := range g.adj[i] {
				if j == i {
					continue
				}
				linkTo[community[j]] += w
			}

			tot[current] -= strength[i]

			best := current
			bestGain := gain(linkTo[current], strength[i], tot[current], m, resolution)
			targets := make([]int, 0, len(linkTo))
			for c := range linkTo {
				targets = append(targets, c)
			}
			sort.Ints(targets)
			for _, c := range targets {
				if c == current {
					continue
				}
				candidate := gain(linkTo[c], strength[i], tot[c], m, resolution)
				if candidate > bestGain || (candidate == bestGain && c < best) {
					best = c
					bestGain = candidate
				}
			}

			tot[best] += strength[i]
			if best != current {
				community[i] = best
				improved = true
			}
		}
	}

	return renumber(community)
}

// gain is the modularity delta of placing a detached node with the given
// strength into a community, up to terms constant across communities.
func gain(linkWeight, strength, communityTotal, m, resolution float64) float64 {
	return linkWeight - resolution*strength*communityTotal/(2*m)
}

// renumber maps community labels to dense indices 0..count-1 in order of
// first appearance over ascending node index.
func renumber(community []int) ([]int, int) {
	next := 0
	mapping := make(map[int]int, len(community))
	out := make([]int, len(community))
	for i, c := range community {
		d, ok := mapping[c]
		if !ok {
			d = next
			mapping[c] = d
			next++
		}
		out[i] = d
	}
	return out, next
}
