package cluster

import (
	"context"
	"fmt"

	"github.com/knitgraph/loom/internal/util"
	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/logger"
	"github.com/knitgraph/loom/pkg/store"
)

// Options tunes community detection.
type Options struct {
	Resolution float64 // modularity resolution parameter, 1.0 is standard
	MaxLevels  int     // hierarchy depth cap
	PageSize   int     // graph load fetch size
}

// DefaultOptions returns the recommended detection parameters, each
// overridable through the environment.
func DefaultOptions() Options {
	return Options{
		Resolution: util.GetEnvNumeric("CLUSTER_RESOLUTION", 1.0),
		MaxLevels:  util.GetEnvInt("CLUSTER_MAX_LEVELS", 10),
		PageSize:   util.GetEnvInt("CLUSTER_PAGE_SIZE", 500),
	}
}

// Detector computes the community hierarchy for a partition and replaces the
// stored hierarchy atomically. It must not run concurrently with resolution
// writes on the same partition; callers serialize the two.
type Detector struct {
	store store.GraphStorage
	opts  Options
}

// NewDetector creates a detector over the given store.
func NewDetector(storage store.GraphStorage, opts Options) *Detector {
	if opts.Resolution <= 0 {
		opts.Resolution = DefaultOptions().Resolution
	}
	if opts.MaxLevels <= 0 {
		opts.MaxLevels = DefaultOptions().MaxLevels
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultOptions().PageSize
	}
	return &Detector{store: storage, opts: opts}
}

// Detect loads the partition's graph, clusters it, and swaps in the new
// hierarchy. A zero-edge graph yields singleton level-0 communities, which is
// a valid outcome. On any error the stored hierarchy is left untouched.
func (d *Detector) Detect(ctx context.Context, partition string) (*common.HierarchyReport, error) {
	g, edgeCount, err := loadGraph(ctx, d.store, partition, d.opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("loading graph for %s: %w", partition, err)
	}
	report := &common.HierarchyReport{
		Partition: partition,
		Nodes:     g.size(),
		Edges:     edgeCount,
	}

	if g.size() == 0 {
		if err := d.store.ReplaceHierarchy(ctx, common.Hierarchy{Partition: partition}); err != nil {
			return nil, err
		}
		logger.Info("[Cluster] Empty partition, hierarchy cleared", "partition", partition)
		return report, nil
	}
	levels, err := clusterGraph(ctx, g, d.opts.Resolution, d.opts.MaxLevels)
	if err != nil {
		return nil, err
	}
	hierarchy, err := buildHierarchy(partition, g.ids, levels)
	if err != nil {
		return nil, err
	}
	if err := validateForest(hierarchy); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.store.ReplaceHierarchy(ctx, *hierarchy); err != nil {
		return nil, fmt.Errorf("replacing hierarchy for %s: %w", partition, err)
	}

	report.Levels = len(levels)
	report.CommunitiesByLevel = make([]int, len(levels))
	for level, assignment := range levels {
		count := 0
		for _, c := range assignment {
			if c+1 > count {
				count = c + 1
			}
		}
		report.CommunitiesByLevel[level] = count
	}
	logger.Info("[Cluster] Hierarchy detected",
		"partition", partition,
		"nodes", report.Nodes,
		"edges", report.Edges,
		"levels", report.Levels,
		"communities", report.CommunitiesByLevel,
	)
	return report, nil
}

// buildHierarchy materializes per-level community records, per-level node
// memberships, and child-to-parent links from the level assignments. Because
// each level's communities are unions of the previous level's, every child
// community maps to exactly one parent.
func buildHierarchy(partition string, nodeIDs []string, levels [][]int) (*common.Hierarchy, error) {
	h := &common.Hierarchy{Partition: partition}

	// communityIDs[level][index] is the generated id of that community.
	communityIDs := make([][]string, len(levels))
	for level, assignment := range levels {
		count := 0
		for _, c := range assignment {
			if c+1 > count {
				count = c + 1
			}
		}
		ids := make([]string, count)
		members := make([]int, count)
		for _, c := range assignment {
			members[c]++
		}
		for c := 0; c < count; c++ {
			ids[c] = util.NewCommunityID()
			h.Communities = append(h.Communities, common.Community{
				ID:          ids[c],
				Partition:   partition,
				Level:       level,
				Title:       fmt.Sprintf("Community %d-%d", level, c),
				Summary:     common.SummaryPending,
				MemberCount: members[c],
			})
		}
		communityIDs[level] = ids

		rank := make([]int, count)
		for i, c := range assignment {
			h.Memberships = append(h.Memberships, common.CommunityMembership{
				CommunityID: ids[c],
				NodeID:      nodeIDs[i],
				Rank:        rank[c],
			})
			rank[c]++
		}
	}

	for level := 0; level+1 < len(levels); level++ {
		child := levels[level]
		parent := levels[level+1]
		parentOf := make([]int, len(communityIDs[level]))
		for i := range parentOf {
			parentOf[i] = -1
		}
		for i := range child {
			c, p := child[i], parent[i]
			if parentOf[c] == -1 {
				parentOf[c] = p
			} else if parentOf[c] != p {
				return nil, &common.HierarchyError{
					CommunityID: communityIDs[level][c],
					Reason:      "members split across parents",
				}
			}
		}
		for c, p := range parentOf {
			if p == -1 {
				return nil, &common.HierarchyError{
					CommunityID: communityIDs[level][c],
					Reason:      "community has no members",
				}
			}
			h.Links = append(h.Links, common.CommunityHierarchy{
				ChildID:  communityIDs[level][c],
				ParentID: communityIDs[level+1][p],
			})
		}
	}
	return h, nil
}

// validateForest checks that every non-top community has exactly one parent,
// that parents sit exactly one level above children, and that following
// parents never cycles.
func validateForest(h *common.Hierarchy) error {
	levels := make(map[string]int, len(h.Communities))
	maxLevel := -1
	for _, c := range h.Communities {
		levels[c.ID] = c.Level
		if c.Level > maxLevel {
			maxLevel = c.Level
		}
	}

	parent := make(map[string]string, len(h.Links))
	for _, link := range h.Links {
		if _, dup := parent[link.ChildID]; dup {
			return &common.HierarchyError{CommunityID: link.ChildID, Reason: "multiple parents"}
		}
		parent[link.ChildID] = link.ParentID
		childLevel, okChild := levels[link.ChildID]
		parentLevel, okParent := levels[link.ParentID]
		if !okChild || !okParent {
			return &common.HierarchyError{CommunityID: link.ChildID, Reason: "link references unknown community"}
		}
		if parentLevel != childLevel+1 {
			return &common.HierarchyError{
				CommunityID: link.ChildID,
				Reason:      fmt.Sprintf("parent level %d is not child level %d plus one", parentLevel, childLevel),
			}
		}
	}

	for _, c := range h.Communities {
		if c.Level < maxLevel {
			if _, ok := parent[c.ID]; !ok {
				return &common.HierarchyError{CommunityID: c.ID, Reason: "non-top community has no parent"}
			}
		}
		// Level monotonicity makes cycles impossible, but walk anyway to
		// catch a corrupted link set.
		seen := map[string]bool{c.ID: true}
		for id := c.ID; ; {
			next, ok := parent[id]
			if !ok {
				break
			}
			if seen[next] {
				return &common.HierarchyError{CommunityID: next, Reason: "cycle in hierarchy links"}
			}
			seen[next] = true
			id = next
		}
	}
	return nil
}
