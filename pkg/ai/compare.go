package ai

import (
	"context"
	"fmt"

	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/logger"
)

// CompareResponse is the structured verdict for a pair of candidate entities.
type CompareResponse struct {
	Decision      string  `json:"decision" jsonschema:"enum=MERGE,enum=LINK,enum=KEEP_SEPARATE"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
	CanonicalName string  `json:"canonical_name"`
}

// CompareEntities asks the model whether two entities refer to the same
// real-world thing. Transport errors and verdicts outside the decision enum
// are returned wrapped in ErrReasonerUnavailable so callers can retry and
// then degrade.
func CompareEntities(
	ctx context.Context,
	client GraphAIClient,
	a common.Node,
	b common.Node,
	opts ...GenerateOption,
) (*CompareResponse, error) {
	prompt := fmt.Sprintf(ComparePrompt,
		a.Name, a.Type, a.Description,
		b.Name, b.Type, b.Description,
	)

	var out CompareResponse
	err := client.GenerateCompletionWithFormat(
		ctx,
		"entity_comparison",
		"Verdict on whether two graph entities refer to the same real-world thing",
		prompt,
		&out,
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrReasonerUnavailable, err)
	}

	switch out.Decision {
	case common.DecisionMerge, common.DecisionLink, common.DecisionKeepSeparate:
	default:
		logger.Warn("[Resolve] Comparison returned an unknown decision",
			"decision", out.Decision, "a", a.Name, "b", b.Name)
		return nil, fmt.Errorf("%w: unknown decision %q", common.ErrReasonerUnavailable, out.Decision)
	}

	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	if out.Decision == common.DecisionMerge && out.CanonicalName == "" {
		out.CanonicalName = a.Name
	}

	return &out, nil
}
