// Package summarize walks a detected community hierarchy bottom-up and
// generates a summary and embedding for every community: leaves from their
// member entities, higher levels from their children's summaries.
package summarize

import (
	"context"
	"fmt"

	"github.com/knitgraph/loom/internal/util"
	"github.com/knitgraph/loom/pkg/ai"
	"github.com/knitgraph/loom/pkg/common"
	"github.com/knitgraph/loom/pkg/logger"
	"github.com/knitgraph/loom/pkg/store"
)

// Options tunes the summarization run.
type Options struct {
	MaxContextTokens int // prompt context budget per community
	Retries          int // attempts per report or embedding call
}

// DefaultOptions returns the recommended summarization parameters, each
// overridable through the environment.
func DefaultOptions() Options {
	return Options{
		MaxContextTokens: util.GetEnvInt("SUMMARY_MAX_CONTEXT_TOKENS", 8000),
		Retries:          util.GetEnvInt("SUMMARY_RETRIES", 3),
	}
}

// Summarizer generates community reports over a stored hierarchy. Runs are
// idempotent: summaries are overwritten in place, so re-running on an
// unchanged hierarchy is safe.
type Summarizer struct {
	store  store.GraphStorage
	client ai.GraphAIClient
	opts   Options
}

// NewSummarizer creates a summarizer over the given store and AI client.
func NewSummarizer(storage store.GraphStorage, client ai.GraphAIClient, opts Options) *Summarizer {
	if opts.MaxContextTokens <= 0 {
		opts.MaxContextTokens = DefaultOptions().MaxContextTokens
	}
	if opts.Retries <= 0 {
		opts.Retries = DefaultOptions().Retries
	}
	return &Summarizer{store: storage, client: client, opts: opts}
}

// Summarize processes the partition's hierarchy strictly level by level from
// the bottom, so a parent is only ever summarized after all of its children
// have been attempted. A community whose report call fails after retries
// keeps the pending sentinel and never blocks its siblings or ancestors.
// Cancellation is honored between communities.
func (s *Summarizer) Summarize(ctx context.Context, partition string) (*common.SummaryReport, error) {
	report := &common.SummaryReport{Partition: partition}

	maxLevel, err := s.store.MaxCommunityLevel(ctx, partition)
	if err != nil {
		return nil, fmt.Errorf("reading hierarchy depth for %s: %w", partition, err)
	}
	if maxLevel < 0 {
		logger.Info("[Summarize] No hierarchy to summarize", "partition", partition)
		return report, nil
	}

	for level := 0; level <= maxLevel; level++ {
		communities, err := s.store.GetCommunitiesAtLevel(ctx, partition, level)
		if err != nil {
			return report, err
		}
		for _, community := range communities {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			s.summarizeCommunity(ctx, community, level, report)
		}
	}

	logger.Info("[Summarize] Hierarchy summarized",
		"partition", partition,
		"levels", maxLevel+1,
		"summarized", report.Summarized,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	return report, nil
}

func (s *Summarizer) summarizeCommunity(
	ctx context.Context,
	community common.Community,
	level int,
	report *common.SummaryReport,
) {
	contextText, ok, err := s.buildContext(ctx, community, level)
	if err != nil {
		s.markPending(ctx, community, err)
		report.Failed++
		return
	}
	if !ok {
		// Nothing usable to summarize from; leave the pending sentinel.
		logger.Warn("[Summarize] Skipping community without usable context",
			"community", community.ID, "level", level)
		report.Skipped++
		return
	}

	generated, err := util.RetryWithContext(ctx, s.opts.Retries,
		func(ctx context.Context) (*ai.CommunityReport, error) {
			return ai.GenerateCommunityReport(ctx, s.client, contextText)
		})
	if err != nil {
		s.markPending(ctx, community, fmt.Errorf("%w: %w", common.ErrSummarizationFailed, err))
		report.Failed++
		return
	}

	embedding, err := util.RetryWithContext(ctx, s.opts.Retries,
		func(ctx context.Context) ([]float32, error) {
			return s.client.GenerateEmbedding(ctx, []byte(generated.Title+"\n"+generated.Summary))
		})
	if err != nil {
		// The summary itself is usable; store it without a vector rather
		// than discarding the generation work.
		logger.Warn("[Summarize] Summary stored without embedding",
			"community", community.ID, "err", err)
		embedding = nil
	}

	community.Title = generated.Title
	community.Summary = generated.Summary
	community.FullReport = renderReport(generated)
	community.SummaryEmbedding = embedding
	if err := s.store.UpdateCommunitySummary(ctx, community); err != nil {
		logger.Error("[Summarize] Failed to store summary",
			"community", community.ID, "err", err)
		report.Failed++
		return
	}
	report.Summarized++
}

// buildContext assembles the report prompt context: member entities for
// leaves, child summaries for higher levels.
func (s *Summarizer) buildContext(
	ctx context.Context,
	community common.Community,
	level int,
) (string, bool, error) {
	if level == 0 {
		members, err := s.store.GetCommunityMembers(ctx, community.ID)
		if err != nil {
			return "", false, err
		}
		text := leafContext(members, s.opts.MaxContextTokens)
		return text, text != "", nil
	}
	children, err := s.store.GetCommunityChildren(ctx, community.ID)
	if err != nil {
		return "", false, err
	}
	text, ok := parentContext(children, s.opts.MaxContextTokens)
	return text, ok, nil
}

// markPending writes the pending sentinel back so the failure is visible and
// a later re-run picks the community up again.
func (s *Summarizer) markPending(ctx context.Context, community common.Community, cause error) {
	logger.Warn("[Summarize] Community left pending",
		"community", community.ID, "err", cause)
	community.Summary = common.SummaryPending
	community.FullReport = ""
	community.SummaryEmbedding = nil
	if err := s.store.UpdateCommunitySummary(ctx, community); err != nil {
		logger.Error("[Summarize] Failed to mark community pending",
			"community", community.ID, "err", err)
	}
}
