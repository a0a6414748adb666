package memory

import (
	"context"
	"testing"

	"github.com/knitgraph/loom/pkg/common"
)

func seedNodes(t *testing.T, s *GraphMemStorage, nodes ...common.Node) {
	t.Helper()
	if err := s.SaveNodes(context.Background(), nodes); err != nil {
		t.Fatalf("SaveNodes() error = %v", err)
	}
}

func TestMergeNodes(t *testing.T) {
	ctx := context.Background()
	s := NewGraphMemStorage()
	seedNodes(t, s,
		common.Node{ID: "nd-a", Name: "ACME", Partition: "p1", SourceIDs: []string{"doc1"}},
		common.Node{ID: "nd-b", Name: "ACME CORP", Partition: "p1", Description: "A corporation.", SourceIDs: []string{"doc2"}},
		common.Node{ID: "nd-c", Name: "WIDGET", Partition: "p1"},
	)
	if err := s.SaveEdges(ctx, []common.Edge{
		{ID: "ed-1", SourceID: "nd-b", TargetID: "nd-c", Partition: "p1"},
		{ID: "ed-2", SourceID: "nd-a", TargetID: "nd-b", Partition: "p1"},
	}); err != nil {
		t.Fatalf("SaveEdges() error = %v", err)
	}
	if err := s.SaveEvents(ctx, []common.Event{
		{ID: "ev-1", NodeID: "nd-b", Description: "founded", Timestamp: "1990-01-01"},
	}); err != nil {
		t.Fatalf("SaveEvents() error = %v", err)
	}

	if err := s.MergeNodes(ctx, "nd-a", "nd-b", "ACME CORPORATION"); err != nil {
		t.Fatalf("MergeNodes() error = %v", err)
	}

	if n, _ := s.GetNode(ctx, "nd-b"); n != nil {
		t.Fatalf("duplicate node still present after merge")
	}
	survivor, _ := s.GetNode(ctx, "nd-a")
	if survivor == nil || survivor.Name != "ACME CORPORATION" {
		t.Fatalf("survivor = %+v, want canonical name ACME CORPORATION", survivor)
	}
	if len(survivor.SourceIDs) != 2 {
		t.Fatalf("survivor sources = %v, want doc1+doc2", survivor.SourceIDs)
	}

	edges, _ := s.ListEdges(ctx, "p1", 0, 0)
	if len(edges) != 1 {
		t.Fatalf("edges after merge = %+v, want 1 (retargeted, self-loop dropped)", edges)
	}
	if edges[0].SourceID != "nd-a" || edges[0].TargetID != "nd-c" {
		t.Fatalf("edge not retargeted: %+v", edges[0])
	}

	events, _ := s.GetNodeEvents(ctx, "nd-a")
	if len(events) != 1 || events[0].NodeID != "nd-a" {
		t.Fatalf("events not transferred: %+v", events)
	}
}

func TestSaveEdgesMergesRecurringConnection(t *testing.T) {
	ctx := context.Background()
	s := NewGraphMemStorage()
	seedNodes(t, s,
		common.Node{ID: "nd-a", Name: "ACME", Partition: "p1"},
		common.Node{ID: "nd-b", Name: "WIDGET", Partition: "p1"},
	)

	if err := s.SaveEdges(ctx, []common.Edge{
		{ID: "ed-1", SourceID: "nd-a", TargetID: "nd-b", Type: "RELATED_TO",
			Partition: "p1", Weight: 2.0, SourceIDs: []string{"doc1"}},
	}); err != nil {
		t.Fatalf("SaveEdges() error = %v", err)
	}
	if err := s.SaveEdges(ctx, []common.Edge{
		{ID: "ed-2", SourceID: "nd-a", TargetID: "nd-b", Type: "RELATED_TO",
			Partition: "p1", Weight: 4.0, SourceIDs: []string{"doc2"}},
	}); err != nil {
		t.Fatalf("SaveEdges() error = %v", err)
	}

	edges, _ := s.ListEdges(ctx, "p1", 0, 0)
	if len(edges) != 1 {
		t.Fatalf("edges = %+v, want the recurring connection folded into one row", edges)
	}
	if edges[0].ID != "ed-1" {
		t.Fatalf("edge id = %s, want the original ed-1 kept", edges[0].ID)
	}
	if edges[0].Weight != 3.0 {
		t.Fatalf("edge weight = %v, want average 3.0", edges[0].Weight)
	}
	if len(edges[0].SourceIDs) != 2 {
		t.Fatalf("edge sources = %v, want doc1+doc2", edges[0].SourceIDs)
	}
}

func TestFindSimilarNodesOrderingAndFloor(t *testing.T) {
	ctx := context.Background()
	s := NewGraphMemStorage()
	seedNodes(t, s,
		common.Node{ID: "nd-1", Name: "A", Partition: "p1", Embedding: []float32{1, 0}},
		common.Node{ID: "nd-2", Name: "B", Partition: "p1", Embedding: []float32{0.9, 0.1}},
		common.Node{ID: "nd-3", Name: "C", Partition: "p1", Embedding: []float32{0, 1}},
		common.Node{ID: "nd-4", Name: "D", Partition: "other", Embedding: []float32{1, 0}},
	)

	got, err := s.FindSimilarNodes(ctx, "p1", []float32{1, 0}, 5, 0.7)
	if err != nil {
		t.Fatalf("FindSimilarNodes() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FindSimilarNodes() = %d results, want 2", len(got))
	}
	if got[0].Node.ID != "nd-1" || got[1].Node.ID != "nd-2" {
		t.Fatalf("FindSimilarNodes() order = %s,%s want nd-1,nd-2", got[0].Node.ID, got[1].Node.ID)
	}
	if got[0].Similarity < got[1].Similarity {
		t.Fatalf("results not ordered by similarity")
	}
}

func TestReplaceHierarchySwapsAtomically(t *testing.T) {
	ctx := context.Background()
	s := NewGraphMemStorage()
	seedNodes(t, s,
		common.Node{ID: "nd-1", Partition: "p1"},
		common.Node{ID: "nd-2", Partition: "p1"},
	)

	first := common.Hierarchy{
		Partition: "p1",
		Communities: []common.Community{
			{ID: "cm-old", Level: 0},
		},
		Memberships: []common.CommunityMembership{
			{CommunityID: "cm-old", NodeID: "nd-1"},
		},
	}
	if err := s.ReplaceHierarchy(ctx, first); err != nil {
		t.Fatalf("ReplaceHierarchy() error = %v", err)
	}

	second := common.Hierarchy{
		Partition: "p1",
		Communities: []common.Community{
			{ID: "cm-leaf", Level: 0},
			{ID: "cm-root", Level: 1},
		},
		Memberships: []common.CommunityMembership{
			{CommunityID: "cm-leaf", NodeID: "nd-1"},
			{CommunityID: "cm-leaf", NodeID: "nd-2"},
		},
		Links: []common.CommunityHierarchy{
			{ChildID: "cm-leaf", ParentID: "cm-root"},
		},
	}
	if err := s.ReplaceHierarchy(ctx, second); err != nil {
		t.Fatalf("ReplaceHierarchy() error = %v", err)
	}

	level0, _ := s.GetCommunitiesAtLevel(ctx, "p1", 0)
	if len(level0) != 1 || level0[0].ID != "cm-leaf" {
		t.Fatalf("level 0 after swap = %+v, want only cm-leaf", level0)
	}
	if level0[0].Summary != common.SummaryPending {
		t.Fatalf("new community summary = %q, want pending sentinel", level0[0].Summary)
	}
	maxLevel, _ := s.MaxCommunityLevel(ctx, "p1")
	if maxLevel != 1 {
		t.Fatalf("MaxCommunityLevel() = %d, want 1", maxLevel)
	}
	children, _ := s.GetCommunityChildren(ctx, "cm-root")
	if len(children) != 1 || children[0].ID != "cm-leaf" {
		t.Fatalf("children of cm-root = %+v, want cm-leaf", children)
	}
	members, _ := s.GetCommunityMembers(ctx, "cm-leaf")
	if len(members) != 2 {
		t.Fatalf("members of cm-leaf = %d, want 2", len(members))
	}
}

func TestUpdateCommunitySummaryAndSearch(t *testing.T) {
	ctx := context.Background()
	s := NewGraphMemStorage()
	hierarchy := common.Hierarchy{
		Partition: "p1",
		Communities: []common.Community{
			{ID: "cm-1", Level: 0},
			{ID: "cm-2", Level: 0},
		},
	}
	if err := s.ReplaceHierarchy(ctx, hierarchy); err != nil {
		t.Fatalf("ReplaceHierarchy() error = %v", err)
	}

	if err := s.UpdateCommunitySummary(ctx, common.Community{
		ID:               "cm-1",
		Title:            "Acme Cluster",
		Summary:          "Companies around Acme.",
		SummaryEmbedding: []float32{1, 0},
	}); err != nil {
		t.Fatalf("UpdateCommunitySummary() error = %v", err)
	}

	got, err := s.FindSimilarCommunities(ctx, "p1", []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("FindSimilarCommunities() error = %v", err)
	}
	// cm-2 is still pending and must not surface in search results.
	if len(got) != 1 || got[0].ID != "cm-1" {
		t.Fatalf("FindSimilarCommunities() = %+v, want only cm-1", got)
	}
}
