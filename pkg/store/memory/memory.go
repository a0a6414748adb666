// Package memory provides an in-memory GraphStorage implementation. It backs
// the package tests and small single-process deployments; the pgx
// implementation is the production store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/store"
)

// GraphMemStorage implements store.GraphStorage with plain maps guarded by a
// mutex. Vector search uses exact cosine similarity.
type GraphMemStorage struct {
	mu sync.Mutex

	nodes  map[string]common.Node
	edges  map[string]common.Edge
	events map[string][]common.Event // by node id

	communities map[string]common.Community
	memberships map[string][]common.CommunityMembership // by community id
	parents     map[string]string                       // child id -> parent id
	hierarchies map[string][]string                     // partition -> community ids
}

var _ store.GraphStorage = (*GraphMemStorage)(nil)

// NewGraphMemStorage creates an empty in-memory store.
func NewGraphMemStorage() *GraphMemStorage {
	return &GraphMemStorage{
		nodes:       make(map[string]common.Node),
		edges:       make(map[string]common.Edge),
		events:      make(map[string][]common.Event),
		communities: make(map[string]common.Community),
		memberships: make(map[string][]common.CommunityMembership),
		parents:     make(map[string]string),
		hierarchies: make(map[string][]string),
	}
}

// SaveNodes upserts nodes by id.
func (s *GraphMemStorage) SaveNodes(ctx context.Context, nodes []common.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("node id is empty")
		}
		s.nodes[n.ID] = n
	}
	return nil
}

// GetNode returns the node with the given id, or nil when absent.
func (s *GraphMemStorage) GetNode(ctx context.Context, id string) (*common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nodes[id]; ok {
		return &n, nil
	}
	return nil, nil
}

// GetNodeByName returns the partition's node with an exact (case-insensitive)
// name match, or nil when absent.
func (s *GraphMemStorage) GetNodeByName(ctx context.Context, partition string, name string) (*common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.sortedNodes(partition) {
		if strings.EqualFold(n.Name, name) {
			return &n, nil
		}
	}
	return nil, nil
}

// ListNodes returns a stable id-ordered page of the partition's nodes.
func (s *GraphMemStorage) ListNodes(ctx context.Context, partition string, limit int, offset int) ([]common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.sortedNodes(partition)
	if offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// FindSimilarNodes returns up to limit nodes whose embedding cosine similarity
// to the query is at least floor, most similar first.
func (s *GraphMemStorage) FindSimilarNodes(
	ctx context.Context,
	partition string,
	embedding []float32,
	limit int,
	floor float64,
) ([]common.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]common.Candidate, 0)
	for _, n := range s.sortedNodes(partition) {
		if len(n.Embedding) == 0 {
			continue
		}
		sim := store.CosineSimilarity(embedding, n.Embedding)
		if sim < floor {
			continue
		}
		candidates = append(candidates, common.Candidate{Node: n, Similarity: sim})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Node.ID < candidates[j].Node.ID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// MergeNodes folds duplicateID into survivorID: source ids transfer, edges
// retarget (self-loops drop), events move, and the duplicate is deleted.
func (s *GraphMemStorage) MergeNodes(ctx context.Context, survivorID string, duplicateID string, canonicalName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	survivor, ok := s.nodes[survivorID]
	if !ok {
		return fmt.Errorf("survivor node not found: %s", survivorID)
	}
	duplicate, ok := s.nodes[duplicateID]
	if !ok {
		return fmt.Errorf("duplicate node not found: %s", duplicateID)
	}

	if canonicalName != "" {
		survivor.Name = canonicalName
	}
	if duplicate.Description != "" && !strings.Contains(survivor.Description, duplicate.Description) {
		if survivor.Description != "" {
			survivor.Description += "\n"
		}
		survivor.Description += duplicate.Description
	}
	survivor.SourceIDs = store.DedupeStrings(append(survivor.SourceIDs, duplicate.SourceIDs...))
	s.nodes[survivorID] = survivor

	for id, e := range s.edges {
		if e.SourceID != duplicateID && e.TargetID != duplicateID {
			continue
		}
		if e.SourceID == duplicateID {
			e.SourceID = survivorID
		}
		if e.TargetID == duplicateID {
			e.TargetID = survivorID
		}
		delete(s.edges, id)
		if e.SourceID == e.TargetID {
			continue
		}
		// The survivor may already hold the same connection; keep that row.
		if _, ok := s.findEdgeLocked(e.Partition, e.SourceID, e.TargetID, e.Type); ok {
			continue
		}
		s.edges[id] = e
	}

	for _, ev := range s.events[duplicateID] {
		ev.NodeID = survivorID
		s.events[survivorID] = append(s.events[survivorID], ev)
	}
	delete(s.events, duplicateID)
	delete(s.nodes, duplicateID)
	return nil
}

// DeletePartition removes all graph data for the partition.
func (s *GraphMemStorage) DeletePartition(ctx context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, n := range s.nodes {
		if n.Partition == partition {
			delete(s.nodes, id)
			delete(s.events, id)
		}
	}
	for id, e := range s.edges {
		if e.Partition == partition {
			delete(s.edges, id)
		}
	}
	s.dropHierarchyLocked(partition)
	return nil
}

// SaveEdges upserts edges. A recurring (partition, source, target, type)
// connection keeps its original row: the description and confidence refresh,
// the weight averages with the incoming one, and the source ids union. Edges
// whose endpoints are missing are rejected.
func (s *GraphMemStorage) SaveEdges(ctx context.Context, edges []common.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edges {
		if e.ID == "" {
			return fmt.Errorf("edge id is empty")
		}
		if _, ok := s.nodes[e.SourceID]; !ok {
			return fmt.Errorf("edge source not found: %s", e.SourceID)
		}
		if _, ok := s.nodes[e.TargetID]; !ok {
			return fmt.Errorf("edge target not found: %s", e.TargetID)
		}
		if existing, ok := s.findEdgeLocked(e.Partition, e.SourceID, e.TargetID, e.Type); ok {
			existing.Description = e.Description
			existing.Weight = (existing.Weight + e.Weight) / 2
			existing.Confidence = e.Confidence
			existing.SourceIDs = store.DedupeStrings(append(existing.SourceIDs, e.SourceIDs...))
			s.edges[existing.ID] = existing
			continue
		}
		s.edges[e.ID] = e
	}
	return nil
}

func (s *GraphMemStorage) findEdgeLocked(partition, sourceID, targetID, edgeType string) (common.Edge, bool) {
	for _, e := range s.edges {
		if e.Partition == partition && e.SourceID == sourceID &&
			e.TargetID == targetID && e.Type == edgeType {
			return e, true
		}
	}
	return common.Edge{}, false
}

// ListEdges returns a stable id-ordered page of the partition's edges.
func (s *GraphMemStorage) ListEdges(ctx context.Context, partition string, limit int, offset int) ([]common.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]common.Edge, 0)
	for _, e := range s.edges {
		if e.Partition == partition {
			all = append(all, e)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if offset >= len(all) {
		return nil, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// SaveEvents appends events to their nodes.
func (s *GraphMemStorage) SaveEvents(ctx context.Context, events []common.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if _, ok := s.nodes[ev.NodeID]; !ok {
			return fmt.Errorf("event node not found: %s", ev.NodeID)
		}
		s.events[ev.NodeID] = append(s.events[ev.NodeID], ev)
	}
	return nil
}

// GetNodeEvents returns the node's events in insertion order.
func (s *GraphMemStorage) GetNodeEvents(ctx context.Context, nodeID string) ([]common.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Event, len(s.events[nodeID]))
	copy(out, s.events[nodeID])
	return out, nil
}

// ReplaceHierarchy atomically swaps the partition's community hierarchy.
func (s *GraphMemStorage) ReplaceHierarchy(ctx context.Context, hierarchy common.Hierarchy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropHierarchyLocked(hierarchy.Partition)

	ids := make([]string, 0, len(hierarchy.Communities))
	for _, c := range hierarchy.Communities {
		if c.ID == "" {
			return fmt.Errorf("community id is empty")
		}
		c.Partition = hierarchy.Partition
		if c.Summary == "" {
			c.Summary = common.SummaryPending
		}
		s.communities[c.ID] = c
		ids = append(ids, c.ID)
	}
	for _, m := range hierarchy.Memberships {
		if _, ok := s.communities[m.CommunityID]; !ok {
			return fmt.Errorf("membership community not found: %s", m.CommunityID)
		}
		s.memberships[m.CommunityID] = append(s.memberships[m.CommunityID], m)
	}
	for _, l := range hierarchy.Links {
		if _, ok := s.communities[l.ChildID]; !ok {
			return fmt.Errorf("hierarchy child not found: %s", l.ChildID)
		}
		if _, ok := s.communities[l.ParentID]; !ok {
			return fmt.Errorf("hierarchy parent not found: %s", l.ParentID)
		}
		s.parents[l.ChildID] = l.ParentID
	}
	s.hierarchies[hierarchy.Partition] = ids
	return nil
}

// MaxCommunityLevel returns the highest level present, or -1 when the
// partition has no hierarchy.
func (s *GraphMemStorage) MaxCommunityLevel(ctx context.Context, partition string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	maxLevel := -1
	for _, id := range s.hierarchies[partition] {
		if c := s.communities[id]; c.Level > maxLevel {
			maxLevel = c.Level
		}
	}
	return maxLevel, nil
}

// GetCommunitiesAtLevel returns the partition's communities at one level,
// id-ordered.
func (s *GraphMemStorage) GetCommunitiesAtLevel(ctx context.Context, partition string, level int) ([]common.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Community, 0)
	for _, id := range s.hierarchies[partition] {
		if c := s.communities[id]; c.Level == level {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetCommunityMembers returns member nodes ordered by membership rank.
func (s *GraphMemStorage) GetCommunityMembers(ctx context.Context, communityID string) ([]common.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]common.CommunityMembership, len(s.memberships[communityID]))
	copy(members, s.memberships[communityID])
	sort.Slice(members, func(i, j int) bool {
		if members[i].Rank != members[j].Rank {
			return members[i].Rank < members[j].Rank
		}
		return members[i].NodeID < members[j].NodeID
	})
	out := make([]common.Node, 0, len(members))
	for _, m := range members {
		if n, ok := s.nodes[m.NodeID]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// GetCommunityChildren returns the direct children of a community, id-ordered.
func (s *GraphMemStorage) GetCommunityChildren(ctx context.Context, communityID string) ([]common.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]common.Community, 0)
	for child, parent := range s.parents {
		if parent == communityID {
			if c, ok := s.communities[child]; ok {
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateCommunitySummary stores the community's generated report fields.
func (s *GraphMemStorage) UpdateCommunitySummary(ctx context.Context, community common.Community) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.communities[community.ID]
	if !ok {
		return fmt.Errorf("community not found: %s", community.ID)
	}
	existing.Title = community.Title
	existing.Summary = community.Summary
	existing.FullReport = community.FullReport
	existing.SummaryEmbedding = community.SummaryEmbedding
	s.communities[community.ID] = existing
	return nil
}

// FindSimilarCommunities returns communities whose summary embedding is most
// similar to the query, most similar first. Unsummarized communities are
// skipped.
func (s *GraphMemStorage) FindSimilarCommunities(
	ctx context.Context,
	partition string,
	embedding []float32,
	limit int,
) ([]common.Community, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		c   common.Community
		sim float64
	}
	candidates := make([]scored, 0)
	for _, id := range s.hierarchies[partition] {
		c := s.communities[id]
		if len(c.SummaryEmbedding) == 0 || c.Summary == common.SummaryPending {
			continue
		}
		candidates = append(candidates, scored{c, store.CosineSimilarity(embedding, c.SummaryEmbedding)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].c.ID < candidates[j].c.ID
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]common.Community, 0, len(candidates))
	for _, sc := range candidates {
		out = append(out, sc.c)
	}
	return out, nil
}

// GetStats returns per-partition counts.
func (s *GraphMemStorage) GetStats(ctx context.Context, partition string) (*common.GraphStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &common.GraphStats{}
	for _, n := range s.nodes {
		if n.Partition == partition {
			stats.Nodes++
		}
	}
	for _, e := range s.edges {
		if e.Partition == partition {
			stats.Edges++
		}
	}
	stats.Communities = len(s.hierarchies[partition])
	return stats, nil
}

func (s *GraphMemStorage) sortedNodes(partition string) []common.Node {
	out := make([]common.Node, 0)
	for _, n := range s.nodes {
		if n.Partition == partition {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *GraphMemStorage) dropHierarchyLocked(partition string) {
	for _, id := range s.hierarchies[partition] {
		delete(s.communities, id)
		delete(s.memberships, id)
		delete(s.parents, id)
		for child, parent := range s.parents {
			if parent == id {
				delete(s.parents, child)
			}
		}
	}
	delete(s.hierarchies, partition)
}
