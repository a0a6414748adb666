package common

// Node represents a resolved entity in the knowledge graph. A node can be a
// person, organization, location, or any other concept extracted from text.
// Within a partition, (name, type) is unique once resolution has converged;
// transient duplicates only exist between extraction and resolution.
type Node struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Confidence  float64   `json:"confidence"`
	SourceIDs   []string  `json:"source_ids,omitempty"`
	Partition   string    `json:"partition,omitempty"`
}

// Edge represents a directed relationship between two resolved nodes.
// Edges are written only after both endpoints exist; the weight of a
// recurring (source, target, type) triple is averaged on merge.
type Edge struct {
	ID          string   `json:"id"`
	SourceID    string   `json:"source_id"`
	TargetID    string   `json:"target_id"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Weight      float64  `json:"weight"`
	Confidence  float64  `json:"confidence"`
	SourceIDs   []string `json:"source_ids,omitempty"`
	Partition   string   `json:"partition,omitempty"`
}

// Event is a temporal fact attached to a node, extracted alongside entities
// and relationships. RawTime preserves the original phrasing; Timestamp holds
// the normalized ISO date when one could be derived.
type Event struct {
	ID          string `json:"id"`
	NodeID      string `json:"node_id"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp,omitempty"`
	RawTime     string `json:"raw_time,omitempty"`
}

// SummaryPending is the sentinel summary value for communities that have been
// detected but not yet summarized, or whose summarization failed.
const SummaryPending = "Pending Summarization"

// Community is one cluster in the detected hierarchy. Level 0 is the finest
// partition; a community's level is strictly below its parent's. Summary and
// SummaryEmbedding stay at their zero values (with Summary set to
// SummaryPending) until the summarizer has processed the community.
type Community struct {
	ID               string    `json:"id"`
	Partition        string    `json:"partition,omitempty"`
	Level            int       `json:"level"`
	Title            string    `json:"title"`
	Summary          string    `json:"summary"`
	FullReport       string    `json:"full_report,omitempty"`
	SummaryEmbedding []float32 `json:"summary_embedding,omitempty"`
	MemberCount      int       `json:"member_count"`
}

// CommunityMembership assigns a node to a community. A node belongs to exactly
// one community per level.
type CommunityMembership struct {
	CommunityID string `json:"community_id"`
	NodeID      string `json:"node_id"`
	Rank        int    `json:"rank"`
}

// CommunityHierarchy links a child community to its parent one level up.
// The links form a forest: every non-top community has exactly one parent.
type CommunityHierarchy struct {
	ChildID  string `json:"child_id"`
	ParentID string `json:"parent_id"`
}

// Hierarchy is the full output of one community-detection run, replacing any
// previous hierarchy for the partition atomically.
type Hierarchy struct {
	Partition   string                `json:"partition,omitempty"`
	Communities []Community           `json:"communities"`
	Memberships []CommunityMembership `json:"memberships"`
	Links       []CommunityHierarchy  `json:"links"`
}

// MaxLevel returns the highest community level present, or -1 for an empty
// hierarchy.
func (h *Hierarchy) MaxLevel() int {
	maxLevel := -1
	for _, c := range h.Communities {
		if c.Level > maxLevel {
			maxLevel = c.Level
		}
	}
	return maxLevel
}

// Resolution outcomes for a newly extracted entity.
const (
	DecisionMerge        = "MERGE"
	DecisionLink         = "LINK"
	DecisionKeepSeparate = "KEEP_SEPARATE"
)

// Candidate pairs an existing node with its cosine similarity to a newly
// extracted entity.
type Candidate struct {
	Node       Node    `json:"node"`
	Similarity float64 `json:"similarity"`
}

// ResolutionDecision records how one extracted entity was resolved. It is not
// persisted as graph state but is carried in reports for auditability.
type ResolutionDecision struct {
	Action        string      `json:"action"`
	TargetID      string      `json:"target_id,omitempty"`
	CanonicalName string      `json:"canonical_name,omitempty"`
	Confidence    float64     `json:"confidence"`
	RuleApplied   string      `json:"rule_applied"`
	Candidates    []Candidate `json:"candidates,omitempty"`
	NeedsReview   bool        `json:"needs_review,omitempty"`
}

// Rules a resolution decision can originate from.
const (
	RuleExactMatch     = "exact_match"
	RuleNormalizedName = "normalized_name"
	RuleReasoner       = "reasoner"
	RuleNoCandidates   = "no_candidates"
	RuleLowConfidence  = "low_confidence"
	RuleDegradedMode   = "degraded_similarity_only"
)

// EntityOutcome is the per-entity line item of a ResolutionReport.
type EntityOutcome struct {
	Name     string             `json:"name"`
	Type     string             `json:"type"`
	NodeID   string             `json:"node_id,omitempty"`
	Decision ResolutionDecision `json:"decision"`
	Err      string             `json:"error,omitempty"`
}

// ResolutionReport summarizes one ingestion pass. Individual entity failures
// do not fail the batch; they are listed here instead.
type ResolutionReport struct {
	Partition    string          `json:"partition,omitempty"`
	Merged       int             `json:"merged"`
	Linked       int             `json:"linked"`
	Created      int             `json:"created"`
	Failed       int             `json:"failed"`
	EdgesWritten int             `json:"edges_written"`
	Events       int             `json:"events"`
	Outcomes     []EntityOutcome `json:"outcomes"`
}

// HierarchyReport summarizes one community-detection run.
type HierarchyReport struct {
	Partition          string `json:"partition,omitempty"`
	Levels             int    `json:"levels"`
	CommunitiesByLevel []int  `json:"communities_by_level"`
	Nodes              int    `json:"nodes"`
	Edges              int    `json:"edges"`
}

// SummaryReport summarizes one summarization run.
type SummaryReport struct {
	Partition  string `json:"partition,omitempty"`
	Summarized int    `json:"summarized"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
}

// GraphStats holds per-partition counts for reporting.
type GraphStats struct {
	Nodes       int `json:"nodes"`
	Edges       int `json:"edges"`
	Communities int `json:"communities"`
}
