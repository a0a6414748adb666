package ai

import (
	"context"
	"fmt"
)

// ReportFinding is one concrete insight inside a community report.
type ReportFinding struct {
	Summary     string `json:"summary"`
	Explanation string `json:"explanation"`
}

// CommunityReport is the structured report generated for a community of
// related entities.
type CommunityReport struct {
	Title             string          `json:"title"`
	Summary           string          `json:"summary"`
	Rating            float64         `json:"rating"`
	RatingExplanation string          `json:"rating_explanation"`
	Findings          []ReportFinding `json:"findings"`
}

// GenerateCommunityReport produces a structured report from the given context
// text (member entities and relations for leaf communities, child summaries
// for higher levels). An empty title or summary is treated as a failure so
// the caller's retry loop kicks in.
func GenerateCommunityReport(
	ctx context.Context,
	client GraphAIClient,
	contextText string,
	opts ...GenerateOption,
) (*CommunityReport, error) {
	prompt := fmt.Sprintf(CommunityReportPrompt, contextText)

	var out CommunityReport
	err := client.GenerateCompletionWithFormat(
		ctx,
		"community_report",
		"Structured analyst report about a community of related entities",
		prompt,
		&out,
		opts...,
	)
	if err != nil {
		return nil, err
	}

	if out.Title == "" || out.Summary == "" {
		return nil, fmt.Errorf("community report missing title or summary")
	}
	if out.Rating < 0 {
		out.Rating = 0
	}
	if out.Rating > 10 {
		out.Rating = 10
	}

	return &out, nil
}
