package resolve

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/knitgraph/loom/pkg/ai"
	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/store/memory"
)

// stubAIClient implements ai.GraphAIClient for tests. Embeddings come from a
// fixed map keyed by input text; comparison verdicts come from the compare
// function.
type stubAIClient struct {
	embeddings   map[string][]float32
	compare      func() (*ai.CompareResponse, error)
	compareCalls int
}

func (s *stubAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	return "", nil
}

func (s *stubAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	if name != "entity_comparison" {
		return errors.New("unexpected format request: " + name)
	}
	s.compareCalls++
	if s.compare == nil {
		return errors.New("no comparison configured")
	}
	response, err := s.compare()
	if err != nil {
		return err
	}
	*(out.(*ai.CompareResponse)) = *response
	return nil
}

func (s *stubAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	if v, ok := s.embeddings[string(input)]; ok {
		return v, nil
	}
	return nil, errors.New("no embedding configured for input")
}

func (s *stubAIClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		v, err := s.GenerateEmbedding(ctx, in)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubAIClient) ResetMetrics()               {}
func (s *stubAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

// vectorAt builds a unit vector whose cosine similarity to {1,0} is sim.
func vectorAt(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

func seedNode(t *testing.T, s *memory.GraphMemStorage, node common.Node) {
	t.Helper()
	if err := s.SaveNodes(context.Background(), []common.Node{node}); err != nil {
		t.Fatalf("SaveNodes() error = %v", err)
	}
}

func countNodes(t *testing.T, s *memory.GraphMemStorage, partition string) int {
	t.Helper()
	nodes, err := s.ListNodes(context.Background(), partition, 0, 0)
	if err != nil {
		t.Fatalf("ListNodes() error = %v", err)
	}
	return len(nodes)
}

func TestResolveMergesNearDuplicate(t *testing.T) {
	// Scenario: "Aris Thorne" arrives with similarity 0.88 against the stored
	// "Dr. Aris Thorne"; the reasoner confirms the merge.
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	seedNode(t, storage, common.Node{
		ID: "nd-thorne", Name: "Dr. Aris Thorne", Type: "Person",
		Description: "A physicist.", Embedding: vectorAt(1.0), Partition: "p1",
	})

	client := &stubAIClient{
		embeddings: map[string][]float32{
			"A physicist at the institute.": vectorAt(0.88),
		},
		compare: func() (*ai.CompareResponse, error) {
			return &ai.CompareResponse{
				Decision:      common.DecisionMerge,
				Confidence:    0.92,
				CanonicalName: "Aris Thorne",
			}, nil
		},
	}
	r := NewResolver(storage, client, DefaultOptions())

	report, err := r.ResolveAndStore(ctx, "p1", "doc2", &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "ARIS THORNE", Type: "Person", Description: "A physicist at the institute."},
		},
	})
	if err != nil {
		t.Fatalf("ResolveAndStore() error = %v", err)
	}
	if report.Merged != 1 || report.Created != 0 {
		t.Fatalf("report = %+v, want 1 merged 0 created", report)
	}
	if got := countNodes(t, storage, "p1"); got != 1 {
		t.Fatalf("node count = %d, want 1 (merged)", got)
	}
	if client.compareCalls == 0 {
		t.Fatalf("reasoner was never consulted")
	}
	survivor, _ := storage.GetNode(ctx, "nd-thorne")
	if survivor.Name != "Aris Thorne" {
		t.Fatalf("canonical name not applied: %q", survivor.Name)
	}
	if len(survivor.SourceIDs) != 1 || survivor.SourceIDs[0] != "doc2" {
		t.Fatalf("source id not appended: %v", survivor.SourceIDs)
	}
}

func TestResolveBelowFloorSkipsReasoner(t *testing.T) {
	// Scenario: similarity 0.40 is below the 0.70 floor; no reasoner call,
	// the entity becomes its own node.
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	seedNode(t, storage, common.Node{
		ID: "nd-1", Name: "WIDGETS INC", Type: "Organization",
		Embedding: vectorAt(1.0), Partition: "p1",
	})

	client := &stubAIClient{
		embeddings: map[string][]float32{
			"A mountain range.": vectorAt(0.40),
		},
	}
	r := NewResolver(storage, client, DefaultOptions())

	report, err := r.ResolveAndStore(ctx, "p1", "doc1", &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "THE ALPS", Type: "Location", Description: "A mountain range."},
		},
	})
	if err != nil {
		t.Fatalf("ResolveAndStore() error = %v", err)
	}
	if client.compareCalls != 0 {
		t.Fatalf("reasoner consulted %d times, want 0", client.compareCalls)
	}
	if report.Created != 1 {
		t.Fatalf("report = %+v, want 1 created", report)
	}
	if got := countNodes(t, storage, "p1"); got != 2 {
		t.Fatalf("node count = %d, want 2", got)
	}
	if report.Outcomes[0].Decision.RuleApplied != common.RuleNoCandidates {
		t.Fatalf("rule = %q, want %q", report.Outcomes[0].Decision.RuleApplied, common.RuleNoCandidates)
	}
}

func TestResolveExactNameFastPath(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	seedNode(t, storage, common.Node{
		ID: "nd-1", Name: "ACME CORP", Type: "Organization",
		Description: "Maker of widgets.", Embedding: vectorAt(1.0), Partition: "p1",
	})

	client := &stubAIClient{}
	r := NewResolver(storage, client, DefaultOptions())

	report, err := r.ResolveAndStore(ctx, "p1", "doc9", &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "ACME CORP", Type: "Organization", Description: "Maker of widgets and gadgets."},
		},
	})
	if err != nil {
		t.Fatalf("ResolveAndStore() error = %v", err)
	}
	if report.Merged != 1 {
		t.Fatalf("report = %+v, want 1 merged", report)
	}
	if client.compareCalls != 0 {
		t.Fatalf("fast path must not consult the reasoner")
	}
	if report.Outcomes[0].Decision.RuleApplied != common.RuleExactMatch {
		t.Fatalf("rule = %q, want %q", report.Outcomes[0].Decision.RuleApplied, common.RuleExactMatch)
	}
}

func TestResolveNormalizedNameFastPath(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	seedNode(t, storage, common.Node{
		ID: "nd-1", Name: "Dr. Aris Thorne", Type: "Person",
		Description: "A physicist.", Embedding: vectorAt(1.0), Partition: "p1",
	})

	client := &stubAIClient{
		embeddings: map[string][]float32{
			"A physicist.": vectorAt(0.95),
		},
	}
	r := NewResolver(storage, client, DefaultOptions())

	report, err := r.ResolveAndStore(ctx, "p1", "doc2", &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "Aris Thorne", Type: "Person", Description: "A physicist."},
		},
	})
	if err != nil {
		t.Fatalf("ResolveAndStore() error = %v", err)
	}
	if report.Merged != 1 {
		t.Fatalf("report = %+v, want 1 merged", report)
	}
	if client.compareCalls != 0 {
		t.Fatalf("normalized-name fast path must not consult the reasoner")
	}
	if report.Outcomes[0].Decision.RuleApplied != common.RuleNormalizedName {
		t.Fatalf("rule = %q, want %q", report.Outcomes[0].Decision.RuleApplied, common.RuleNormalizedName)
	}
}

func TestResolveDegradedModeOnReasonerFailure(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	seedNode(t, storage, common.Node{
		ID: "nd-1", Name: "ACME", Type: "Organization",
		Description: "A company.", Embedding: vectorAt(1.0), Partition: "p1",
	})

	client := &stubAIClient{
		embeddings: map[string][]float32{
			"A different company.": vectorAt(0.80),
		},
		compare: func() (*ai.CompareResponse, error) {
			return nil, errors.New("reasoner down")
		},
	}
	opts := DefaultOptions()
	opts.ReasonerRetries = 1
	r := NewResolver(storage, client, opts)

	report, err := r.ResolveAndStore(ctx, "p1", "doc1", &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "ZENITH LTD", Type: "Organization", Description: "A different company."},
		},
	})
	if err != nil {
		t.Fatalf("ResolveAndStore() error = %v", err)
	}
	out := report.Outcomes[0]
	if out.Decision.Action != common.DecisionKeepSeparate {
		t.Fatalf("action = %q, want KEEP_SEPARATE (similarity below merge threshold)", out.Decision.Action)
	}
	if out.Decision.RuleApplied != common.RuleDegradedMode {
		t.Fatalf("rule = %q, want %q", out.Decision.RuleApplied, common.RuleDegradedMode)
	}
	if !out.Decision.NeedsReview {
		t.Fatalf("degraded-mode decision must be flagged for review")
	}
	if got := countNodes(t, storage, "p1"); got != 2 {
		t.Fatalf("node count = %d, want 2", got)
	}
}

func TestResolveLowConfidenceKeepsSeparate(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	seedNode(t, storage, common.Node{
		ID: "nd-1", Name: "ACME", Type: "Organization",
		Description: "A company.", Embedding: vectorAt(1.0), Partition: "p1",
	})

	client := &stubAIClient{
		embeddings: map[string][]float32{
			"Possibly the same company.": vectorAt(0.80),
		},
		compare: func() (*ai.CompareResponse, error) {
			return &ai.CompareResponse{Decision: common.DecisionMerge, Confidence: 0.4}, nil
		},
	}
	r := NewResolver(storage, client, DefaultOptions())

	report, err := r.ResolveAndStore(ctx, "p1", "doc1", &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "ACME GROUP", Type: "Organization", Description: "Possibly the same company."},
		},
	})
	if err != nil {
		t.Fatalf("ResolveAndStore() error = %v", err)
	}
	out := report.Outcomes[0]
	if out.Decision.Action != common.DecisionKeepSeparate {
		t.Fatalf("action = %q, want KEEP_SEPARATE", out.Decision.Action)
	}
	if out.Decision.RuleApplied != common.RuleLowConfidence || !out.Decision.NeedsReview {
		t.Fatalf("decision = %+v, want low_confidence flagged for review", out.Decision)
	}
	if got := countNodes(t, storage, "p1"); got != 2 {
		t.Fatalf("node count = %d, want 2", got)
	}
}

func TestResolveLinkCreatesNodeAndEdge(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	seedNode(t, storage, common.Node{
		ID: "nd-1", Name: "AMAZON", Type: "Organization",
		Description: "An everything store.", Embedding: vectorAt(1.0), Partition: "p1",
	})

	client := &stubAIClient{
		embeddings: map[string][]float32{
			"Cloud computing division.": vectorAt(0.85),
		},
		compare: func() (*ai.CompareResponse, error) {
			return &ai.CompareResponse{Decision: common.DecisionLink, Confidence: 0.9}, nil
		},
	}
	r := NewResolver(storage, client, DefaultOptions())

	report, err := r.ResolveAndStore(ctx, "p1", "doc1", &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "AMAZON WEB SERVICES", Type: "Organization", Description: "Cloud computing division."},
		},
	})
	if err != nil {
		t.Fatalf("ResolveAndStore() error = %v", err)
	}
	if report.Linked != 1 {
		t.Fatalf("report = %+v, want 1 linked", report)
	}
	if got := countNodes(t, storage, "p1"); got != 2 {
		t.Fatalf("node count = %d, want 2", got)
	}
	edges, _ := storage.ListEdges(ctx, "p1", 0, 0)
	if len(edges) != 1 || edges[0].Type != RelatedEdgeType {
		t.Fatalf("edges = %+v, want one %s edge", edges, RelatedEdgeType)
	}
	if edges[0].TargetID != "nd-1" {
		t.Fatalf("link edge target = %s, want nd-1", edges[0].TargetID)
	}
}

func TestResolveIdempotentAcrossRuns(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	client := &stubAIClient{
		embeddings: map[string][]float32{
			"A company.": vectorAt(1.0),
		},
	}
	r := NewResolver(storage, client, DefaultOptions())

	doc := &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "ACME", Type: "Organization", Description: "A company."},
		},
	}
	if _, err := r.ResolveAndStore(ctx, "p1", "doc1", doc); err != nil {
		t.Fatalf("first ResolveAndStore() error = %v", err)
	}
	report, err := r.ResolveAndStore(ctx, "p1", "doc1", doc)
	if err != nil {
		t.Fatalf("second ResolveAndStore() error = %v", err)
	}
	if got := countNodes(t, storage, "p1"); got != 1 {
		t.Fatalf("node count after replay = %d, want 1", got)
	}
	if report.Merged != 1 {
		t.Fatalf("replay report = %+v, want exact-match merge", report)
	}
}

func TestResolveWritesEdgesAndEvents(t *testing.T) {
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	client := &stubAIClient{
		embeddings: map[string][]float32{
			"A company.":  vectorAt(1.0),
			"Its founder.": vectorAt(-1.0),
		},
	}
	r := NewResolver(storage, client, DefaultOptions())

	report, err := r.ResolveAndStore(ctx, "p1", "doc1", &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "ACME", Type: "Organization", Description: "A company."},
			{Name: "JANE DOE", Type: "Person", Description: "Its founder."},
		},
		Relationships: []ai.ExtractedRelationship{
			{Source: "JANE DOE", Target: "ACME", Description: "founded", Strength: 8},
			{Source: "JANE DOE", Target: "UNKNOWN CO", Description: "ignored"},
		},
		Events: []ai.ExtractedEvent{
			{Entity: "ACME", Description: "founded", Date: "1990"},
			{Entity: "ACME", Description: "acquired", Date: "sometime later"},
		},
	})
	if err != nil {
		t.Fatalf("ResolveAndStore() error = %v", err)
	}
	if report.EdgesWritten != 1 {
		t.Fatalf("edges written = %d, want 1 (unresolved endpoint skipped)", report.EdgesWritten)
	}
	if report.Events != 2 {
		t.Fatalf("events written = %d, want 2", report.Events)
	}

	nodes, _ := storage.ListNodes(ctx, "p1", 0, 0)
	var acmeID string
	for _, n := range nodes {
		if n.Name == "ACME" {
			acmeID = n.ID
		}
	}
	events, _ := storage.GetNodeEvents(ctx, acmeID)
	if len(events) != 2 {
		t.Fatalf("stored events = %d, want 2", len(events))
	}
	if events[0].Timestamp != "1990-01-01" {
		t.Fatalf("event timestamp = %q, want normalized 1990-01-01", events[0].Timestamp)
	}
	if events[1].Timestamp != "" || events[1].RawTime != "sometime later" {
		t.Fatalf("undated event = %+v, want empty timestamp with raw phrasing kept", events[1])
	}
}

func TestDefaultOptionsReadEnvironment(t *testing.T) {
	t.Setenv("RESOLVE_SIMILARITY_FLOOR", "0.80")
	t.Setenv("RESOLVE_CANDIDATE_LIMIT", "3")

	opts := DefaultOptions()
	if opts.SimilarityFloor != 0.80 {
		t.Fatalf("SimilarityFloor = %v, want env override 0.80", opts.SimilarityFloor)
	}
	if opts.CandidateLimit != 3 {
		t.Fatalf("CandidateLimit = %d, want env override 3", opts.CandidateLimit)
	}
	if opts.HighThreshold != 0.90 {
		t.Fatalf("HighThreshold = %v, want default 0.90 when unset", opts.HighThreshold)
	}
}

func TestResolveUnknownVerdictDegrades(t *testing.T) {
	// A verdict outside the decision enum counts as reasoner unavailability,
	// so the similarity-only fallback applies after retries.
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	seedNode(t, storage, common.Node{
		ID: "nd-1", Name: "ACME", Type: "Organization",
		Embedding: vectorAt(1.0), Partition: "p1",
	})

	client := &stubAIClient{
		embeddings: map[string][]float32{
			"A company.": vectorAt(0.80),
		},
		compare: func() (*ai.CompareResponse, error) {
			return &ai.CompareResponse{Decision: "MAYBE", Confidence: 0.9}, nil
		},
	}
	opts := DefaultOptions()
	opts.ReasonerRetries = 1
	r := NewResolver(storage, client, opts)

	report, err := r.ResolveAndStore(ctx, "p1", "doc1", &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "ZENITH LTD", Type: "Organization", Description: "A company."},
		},
	})
	if err != nil {
		t.Fatalf("ResolveAndStore() error = %v", err)
	}
	if client.compareCalls == 0 {
		t.Fatalf("reasoner was never consulted")
	}
	decision := report.Outcomes[0].Decision
	if decision.Action != common.DecisionKeepSeparate {
		t.Fatalf("action = %q, want KEEP_SEPARATE below the merge threshold", decision.Action)
	}
	if decision.RuleApplied != common.RuleDegradedMode {
		t.Fatalf("rule = %q, want %q", decision.RuleApplied, common.RuleDegradedMode)
	}
	if !decision.NeedsReview {
		t.Fatalf("degraded decision must be flagged for review")
	}
	if got := countNodes(t, storage, "p1"); got != 2 {
		t.Fatalf("node count = %d, want 2", got)
	}
}

func TestResolveCanonicalRenameFoldsDuplicate(t *testing.T) {
	// A degraded-mode run left "Aris Thorne" as its own node next to
	// "Dr. Aris Thorne". When the reasoner later merges a new mention into the
	// doctor under the canonical name "Aris Thorne", the leftover node folds
	// in and its edges retarget.
	ctx := context.Background()
	storage := memory.NewGraphMemStorage()
	seedNode(t, storage, common.Node{
		ID: "nd-1", Name: "Dr. Aris Thorne", Type: "Person",
		Description: "A physicist.", Embedding: vectorAt(1.0), Partition: "p1",
	})
	seedNode(t, storage, common.Node{
		ID: "nd-2", Name: "Aris Thorne", Type: "Person",
		Description: "Works at a lab.", Embedding: vectorAt(0.0), Partition: "p1",
	})
	seedNode(t, storage, common.Node{
		ID: "nd-3", Name: "ORBITAL LABS", Type: "Organization", Partition: "p1",
	})
	if err := storage.SaveEdges(ctx, []common.Edge{
		{ID: "ed-dup", SourceID: "nd-2", TargetID: "nd-3", Type: "RELATED_TO", Partition: "p1"},
	}); err != nil {
		t.Fatalf("SaveEdges() error = %v", err)
	}

	client := &stubAIClient{
		embeddings: map[string][]float32{
			"A physicist at the institute.": vectorAt(0.88),
		},
		compare: func() (*ai.CompareResponse, error) {
			return &ai.CompareResponse{
				Decision:      common.DecisionMerge,
				Confidence:    0.92,
				CanonicalName: "Aris Thorne",
			}, nil
		},
	}
	r := NewResolver(storage, client, DefaultOptions())

	report, err := r.ResolveAndStore(ctx, "p1", "doc3", &ai.ExtractResponse{
		Entities: []ai.ExtractedEntity{
			{Name: "A. THORNE", Type: "Person", Description: "A physicist at the institute."},
		},
	})
	if err != nil {
		t.Fatalf("ResolveAndStore() error = %v", err)
	}
	if report.Merged != 1 {
		t.Fatalf("report = %+v, want 1 merged", report)
	}
	if dup, _ := storage.GetNode(ctx, "nd-2"); dup != nil {
		t.Fatalf("duplicate node still present: %+v", dup)
	}
	if got := countNodes(t, storage, "p1"); got != 2 {
		t.Fatalf("node count = %d, want 2 (target and the lab)", got)
	}
	survivor, _ := storage.GetNode(ctx, "nd-1")
	if survivor == nil || survivor.Name != "Aris Thorne" {
		t.Fatalf("survivor = %+v, want canonical name Aris Thorne", survivor)
	}
	edges, _ := storage.ListEdges(ctx, "p1", 0, 0)
	if len(edges) != 1 || edges[0].SourceID != "nd-1" || edges[0].TargetID != "nd-3" {
		t.Fatalf("edges = %+v, want the duplicate's edge retargeted to nd-1", edges)
	}
}
