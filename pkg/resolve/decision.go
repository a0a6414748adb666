package resolve

import (
	"context"
	"errors"
	"strings"

	"github.com/knitgraph/loom/internal/util"
	"github.com/knitgraph/loom/pkg/ai"
	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/logger"
)

// resolveEntity runs the decision policy for one extracted entity and applies
// the outcome. Exactly one of MERGE, LINK, or KEEP_SEPARATE is committed.
func (r *Resolver) resolveEntity(
	ctx context.Context,
	partition string,
	sourceID string,
	ent ai.ExtractedEntity,
) common.EntityOutcome {
	outcome := common.EntityOutcome{Name: ent.Name, Type: ent.Type}

	// Exact-name fast path: a stored node with the identical name needs no
	// embedding or reasoner.
	existing, err := r.store.GetNodeByName(ctx, partition, ent.Name)
	if err != nil {
		outcome.Err = err.Error()
		return outcome
	}
	if existing != nil && strings.EqualFold(existing.Type, ent.Type) {
		decision := common.ResolutionDecision{
			Action:      common.DecisionMerge,
			TargetID:    existing.ID,
			Confidence:  1.0,
			RuleApplied: common.RuleExactMatch,
		}
		return r.apply(ctx, partition, sourceID, ent, nil, decision, outcome)
	}

	embedding, err := util.RetryWithContext(ctx, 3, func(ctx context.Context) ([]float32, error) {
		return r.client.GenerateEmbedding(ctx, []byte(ent.Description))
	})
	if err != nil || len(embedding) == 0 {
		// Can't rank candidates without a vector; insert rather than block
		// ingestion, flagged for review.
		logger.Warn("[Resolve] Embedding unavailable, keeping entity separate",
			"entity", ent.Name, "err", errors.Join(common.ErrEmbeddingMissing, err))
		decision := common.ResolutionDecision{
			Action:      common.DecisionKeepSeparate,
			RuleApplied: common.RuleNoCandidates,
			NeedsReview: true,
		}
		return r.apply(ctx, partition, sourceID, ent, nil, decision, outcome)
	}

	candidates, err := r.store.FindSimilarNodes(
		ctx, partition, embedding, r.opts.CandidateLimit, r.opts.SimilarityFloor,
	)
	if err != nil {
		outcome.Err = err.Error()
		return outcome
	}

	decision := r.decide(ctx, ent, candidates)
	return r.apply(ctx, partition, sourceID, ent, embedding, decision, outcome)
}

// decide applies the decision policy to a candidate shortlist:
//  1. similarity >= HighThreshold with a matching normalized name merges
//     without the reasoner;
//  2. remaining candidates are put to the reasoner;
//  3. the best verdict by similarity x confidence wins, lowest node id
//     breaking exact ties; verdicts below MinConfidence fall back to
//     KEEP_SEPARATE flagged for review.
//
// Reasoner failure after retries degrades to similarity-only: merge at
// HighThreshold, otherwise keep separate.
func (r *Resolver) decide(
	ctx context.Context,
	ent ai.ExtractedEntity,
	candidates []common.Candidate,
) common.ResolutionDecision {
	if len(candidates) == 0 {
		return common.ResolutionDecision{
			Action:      common.DecisionKeepSeparate,
			RuleApplied: common.RuleNoCandidates,
		}
	}

	normalized := NormalizeName(ent.Name)
	for _, c := range candidates {
		if c.Similarity < r.opts.HighThreshold {
			continue
		}
		if NormalizeName(c.Node.Name) == normalized {
			rule := common.RuleNormalizedName
			if strings.EqualFold(c.Node.Name, ent.Name) {
				rule = common.RuleExactMatch
			}
			return common.ResolutionDecision{
				Action:      common.DecisionMerge,
				TargetID:    c.Node.ID,
				Confidence:  c.Similarity,
				RuleApplied: rule,
				Candidates:  candidates,
			}
		}
	}

	type verdict struct {
		candidate common.Candidate
		response  *ai.CompareResponse
		score     float64
	}
	best := verdict{}
	consulted := false

	draft := common.Node{Name: ent.Name, Type: ent.Type, Description: ent.Description}
	for _, c := range candidates {
		response, err := util.RetryWithContext(ctx, r.opts.ReasonerRetries,
			func(ctx context.Context) (*ai.CompareResponse, error) {
				return ai.CompareEntities(ctx, r.client, draft, c.Node)
			})
		if err != nil {
			return r.degraded(ent, candidates, err)
		}
		consulted = true
		if response.Decision == common.DecisionKeepSeparate {
			continue
		}
		score := c.Similarity * response.Confidence
		if best.response == nil ||
			score > best.score ||
			(score == best.score && c.Node.ID < best.candidate.Node.ID) {
			best = verdict{candidate: c, response: response, score: score}
		}
	}

	if best.response != nil && best.response.Confidence >= r.opts.MinConfidence {
		return common.ResolutionDecision{
			Action:        best.response.Decision,
			TargetID:      best.candidate.Node.ID,
			CanonicalName: best.response.CanonicalName,
			Confidence:    best.response.Confidence,
			RuleApplied:   common.RuleReasoner,
			Candidates:    candidates,
		}
	}
	if best.response != nil {
		// A merge or link verdict existed but was too weak to act on.
		return common.ResolutionDecision{
			Action:      common.DecisionKeepSeparate,
			Confidence:  best.response.Confidence,
			RuleApplied: common.RuleLowConfidence,
			Candidates:  candidates,
			NeedsReview: true,
		}
	}
	if consulted {
		return common.ResolutionDecision{
			Action:      common.DecisionKeepSeparate,
			RuleApplied: common.RuleReasoner,
			Candidates:  candidates,
		}
	}
	return common.ResolutionDecision{
		Action:      common.DecisionKeepSeparate,
		RuleApplied: common.RuleLowConfidence,
		Candidates:  candidates,
		NeedsReview: true,
	}
}

// degraded is the similarity-only fallback when the reasoner is unavailable.
func (r *Resolver) degraded(
	ent ai.ExtractedEntity,
	candidates []common.Candidate,
	cause error,
) common.ResolutionDecision {
	logger.Warn("[Resolve] Reasoner unavailable, degrading to similarity-only decision",
		"entity", ent.Name, "err", cause)

	top := candidates[0]
	if top.Similarity >= r.opts.HighThreshold {
		return common.ResolutionDecision{
			Action:      common.DecisionMerge,
			TargetID:    top.Node.ID,
			Confidence:  top.Similarity,
			RuleApplied: common.RuleDegradedMode,
			Candidates:  candidates,
			NeedsReview: true,
		}
	}
	return common.ResolutionDecision{
		Action:      common.DecisionKeepSeparate,
		RuleApplied: common.RuleDegradedMode,
		Candidates:  candidates,
		NeedsReview: true,
	}
}

// apply commits a decision through the store and fills in the outcome.
func (r *Resolver) apply(
	ctx context.Context,
	partition string,
	sourceID string,
	ent ai.ExtractedEntity,
	embedding []float32,
	decision common.ResolutionDecision,
	outcome common.EntityOutcome,
) common.EntityOutcome {
	outcome.Decision = decision

	switch decision.Action {
	case common.DecisionMerge:
		nodeID, err := r.absorb(ctx, sourceID, ent, decision)
		if err != nil {
			outcome.Err = err.Error()
			return outcome
		}
		outcome.NodeID = nodeID
		return outcome

	case common.DecisionLink:
		node, err := r.insert(ctx, partition, sourceID, ent, embedding, decision)
		if err != nil {
			outcome.Err = err.Error()
			return outcome
		}
		edge := common.Edge{
			ID:          util.NewEdgeID(),
			SourceID:    node.ID,
			TargetID:    decision.TargetID,
			Type:        RelatedEdgeType,
			Description: "Related but distinct entities identified during resolution",
			Weight:      1.0,
			Confidence:  decision.Confidence,
			SourceIDs:   []string{sourceID},
			Partition:   partition,
		}
		if err := r.store.SaveEdges(ctx, []common.Edge{edge}); err != nil {
			outcome.Err = err.Error()
			return outcome
		}
		outcome.NodeID = node.ID
		return outcome

	default:
		node, err := r.insert(ctx, partition, sourceID, ent, embedding, decision)
		if err != nil {
			outcome.Err = err.Error()
			return outcome
		}
		outcome.NodeID = node.ID
		return outcome
	}
}

// absorb folds the extracted entity into an existing node: the description
// widens if the new one adds information, the source id appends, and the
// canonical name applies when the reasoner chose one. A distinct node already
// carrying the canonical name is the same entity resolved under another
// spelling (typically left behind by a degraded-mode run); it is folded into
// the target first so its edges and events retarget.
func (r *Resolver) absorb(
	ctx context.Context,
	sourceID string,
	ent ai.ExtractedEntity,
	decision common.ResolutionDecision,
) (string, error) {
	target, err := r.store.GetNode(ctx, decision.TargetID)
	if err != nil {
		return "", err
	}
	if target == nil {
		return "", errors.New("merge target vanished: " + decision.TargetID)
	}

	if decision.CanonicalName != "" && !strings.EqualFold(decision.CanonicalName, target.Name) {
		dup, err := r.store.GetNodeByName(ctx, target.Partition, decision.CanonicalName)
		if err != nil {
			return "", err
		}
		if dup != nil && dup.ID != target.ID && strings.EqualFold(dup.Type, target.Type) {
			logger.Info("[Resolve] Folding duplicate node into merge target",
				"duplicate", dup.ID, "target", target.ID, "name", decision.CanonicalName)
			if err := r.store.MergeNodes(ctx, target.ID, dup.ID, ""); err != nil {
				return "", err
			}
			target, err = r.store.GetNode(ctx, decision.TargetID)
			if err != nil {
				return "", err
			}
			if target == nil {
				return "", errors.New("merge target vanished: " + decision.TargetID)
			}
		}
	}

	if decision.CanonicalName != "" {
		target.Name = decision.CanonicalName
	}
	if ent.Description != "" && !strings.Contains(target.Description, ent.Description) {
		if target.Description != "" {
			target.Description += "\n"
		}
		target.Description += ent.Description
	}
	if decision.Confidence > target.Confidence {
		target.Confidence = decision.Confidence
	}
	if sourceID != "" && !containsString(target.SourceIDs, sourceID) {
		target.SourceIDs = append(target.SourceIDs, sourceID)
	}

	if err := r.store.SaveNodes(ctx, []common.Node{*target}); err != nil {
		return "", err
	}
	return target.ID, nil
}

func (r *Resolver) insert(
	ctx context.Context,
	partition string,
	sourceID string,
	ent ai.ExtractedEntity,
	embedding []float32,
	decision common.ResolutionDecision,
) (*common.Node, error) {
	node := common.Node{
		ID:          util.NewNodeID(),
		Name:        ent.Name,
		Type:        ent.Type,
		Description: ent.Description,
		Embedding:   embedding,
		Confidence:  decision.Confidence,
		Partition:   partition,
	}
	if node.Confidence == 0 {
		node.Confidence = 1.0
	}
	if sourceID != "" {
		node.SourceIDs = []string{sourceID}
	}
	if err := r.store.SaveNodes(ctx, []common.Node{node}); err != nil {
		return nil, err
	}
	return &node, nil
}

func containsString(in []string, s string) bool {
	for _, v := range in {
		if v == s {
			return true
		}
	}
	return false
}
