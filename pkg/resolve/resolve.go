// Package resolve implements entity resolution: deciding whether newly
// extracted entities are the same real-world things as existing graph nodes,
// and applying those decisions transactionally.
package resolve

import (
	"context"
	"strings"

	"github.com/knitgraph/loom/internal/util"
	"github.com/knitgraph/loom/pkg/ai"
	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/logger"
	"github.com/knitgraph/loom/pkg/store"
)

// RelatedEdgeType is the type tag for edges created from extracted
// relationships and LINK decisions.
const RelatedEdgeType = "RELATED_TO"

// Options tunes the resolution decision engine.
type Options struct {
	SimilarityFloor float64 // candidates below this are not considered
	HighThreshold   float64 // fast-path and degraded-mode merge threshold
	CandidateLimit  int     // max candidates fetched per entity
	MinConfidence   float64 // reasoner verdicts below this are not accepted
	ReasonerRetries int     // attempts per reasoner call
}

// DefaultOptions returns the recommended thresholds, each overridable through
// the environment.
func DefaultOptions() Options {
	return Options{
		SimilarityFloor: util.GetEnvNumeric("RESOLVE_SIMILARITY_FLOOR", 0.70),
		HighThreshold:   util.GetEnvNumeric("RESOLVE_HIGH_THRESHOLD", 0.90),
		CandidateLimit:  util.GetEnvInt("RESOLVE_CANDIDATE_LIMIT", 5),
		MinConfidence:   util.GetEnvNumeric("RESOLVE_MIN_CONFIDENCE", 0.7),
		ReasonerRetries: util.GetEnvInt("RESOLVE_REASONER_RETRIES", 3),
	}
}

// Resolver consolidates extraction output into the graph. Entities from one
// document resolve sequentially so that an entity extracted twice never races
// against itself; independent documents may run through separate calls in
// parallel.
type Resolver struct {
	store  store.GraphStorage
	client ai.GraphAIClient
	opts   Options
}

// NewResolver creates a resolver over the given store and AI client.
func NewResolver(storage store.GraphStorage, client ai.GraphAIClient, opts Options) *Resolver {
	if opts.CandidateLimit <= 0 {
		opts.CandidateLimit = DefaultOptions().CandidateLimit
	}
	if opts.ReasonerRetries <= 0 {
		opts.ReasonerRetries = DefaultOptions().ReasonerRetries
	}
	return &Resolver{store: storage, client: client, opts: opts}
}

// ResolveAndStore resolves one document's extraction output against the
// partition and writes the results. Per-entity failures are recorded in the
// report instead of aborting the batch.
func (r *Resolver) ResolveAndStore(
	ctx context.Context,
	partition string,
	sourceID string,
	extraction *ai.ExtractResponse,
) (*common.ResolutionReport, error) {
	report := &common.ResolutionReport{Partition: partition}
	nodeIDByName := make(map[string]string)

	for _, ent := range extraction.Entities {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		name := strings.TrimSpace(ent.Name)
		if name == "" {
			continue
		}
		if _, done := nodeIDByName[name]; done {
			// Extracted twice from the same document; first resolution stands.
			continue
		}

		outcome := r.resolveEntity(ctx, partition, sourceID, ent)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Err != "" {
			report.Failed++
			continue
		}
		nodeIDByName[name] = outcome.NodeID
		switch outcome.Decision.Action {
		case common.DecisionMerge:
			report.Merged++
		case common.DecisionLink:
			report.Linked++
		default:
			report.Created++
		}
	}

	edges, err := r.writeEdges(ctx, partition, sourceID, extraction.Relationships, nodeIDByName)
	if err != nil {
		return report, err
	}
	report.EdgesWritten = edges

	events, err := r.writeEvents(ctx, extraction.Events, nodeIDByName)
	if err != nil {
		return report, err
	}
	report.Events = events

	logger.Info("[Resolve] Document resolved",
		"partition", partition,
		"source", sourceID,
		"merged", report.Merged,
		"linked", report.Linked,
		"created", report.Created,
		"failed", report.Failed,
	)
	return report, nil
}

func (r *Resolver) writeEdges(
	ctx context.Context,
	partition string,
	sourceID string,
	relationships []ai.ExtractedRelationship,
	nodeIDByName map[string]string,
) (int, error) {
	edges := make([]common.Edge, 0, len(relationships))
	for _, rel := range relationships {
		srcID, err := r.lookupNode(ctx, partition, rel.Source, nodeIDByName)
		if err != nil {
			return 0, err
		}
		dstID, err := r.lookupNode(ctx, partition, rel.Target, nodeIDByName)
		if err != nil {
			return 0, err
		}
		if srcID == "" || dstID == "" {
			logger.Warn("[Resolve] Skipping relationship with unresolved endpoint",
				"source", rel.Source, "target", rel.Target)
			continue
		}
		weight := rel.Strength
		if weight <= 0 {
			weight = 1.0
		}
		edges = append(edges, common.Edge{
			ID:          util.NewEdgeID(),
			SourceID:    srcID,
			TargetID:    dstID,
			Type:        RelatedEdgeType,
			Description: rel.Description,
			Weight:      weight,
			Confidence:  1.0,
			SourceIDs:   []string{sourceID},
			Partition:   partition,
		})
	}
	if err := r.store.SaveEdges(ctx, edges); err != nil {
		return 0, err
	}
	return len(edges), nil
}

func (r *Resolver) writeEvents(
	ctx context.Context,
	events []ai.ExtractedEvent,
	nodeIDByName map[string]string,
) (int, error) {
	out := make([]common.Event, 0, len(events))
	for _, ev := range events {
		nodeID, ok := nodeIDByName[ev.Entity]
		if !ok {
			logger.Warn("[Resolve] Skipping event for unresolved entity", "entity", ev.Entity)
			continue
		}
		timestamp, ok := NormalizeDate(ev.Date)
		if !ok {
			timestamp = ""
		}
		out = append(out, common.Event{
			ID:          util.NewEventID(),
			NodeID:      nodeID,
			Description: ev.Description,
			Timestamp:   timestamp,
			RawTime:     ev.Date,
		})
	}
	if err := r.store.SaveEvents(ctx, out); err != nil {
		return 0, err
	}
	return len(out), nil
}

// lookupNode resolves an entity name to a node id: first from this pass's
// resolutions, then from the stored graph.
func (r *Resolver) lookupNode(
	ctx context.Context,
	partition string,
	name string,
	nodeIDByName map[string]string,
) (string, error) {
	if id, ok := nodeIDByName[name]; ok {
		return id, nil
	}
	node, err := r.store.GetNodeByName(ctx, partition, name)
	if err != nil {
		return "", err
	}
	if node == nil {
		return "", nil
	}
	nodeIDByName[name] = node.ID
	return node.ID, nil
}
