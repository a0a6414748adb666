package summarize

import (
	"fmt"
	"strings"

	"github.com/knitgraph/loom/pkg/ai"
	"github.com/knitgraph/loom/pkg/common"
	"github.com/pkoukk/tiktoken-go"
)

// tokenCount measures the prompt budget consumption of a block of text.
// Falls back to a bytes-per-token estimate if the encoding is unavailable.
func tokenCount(text string) int {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}

// joinWithinBudget concatenates blocks until the token budget is spent and
// notes how many were left out. Blocks come pre-ordered by importance.
func joinWithinBudget(blocks []string, budget int) string {
	var b strings.Builder
	used := 0
	included := 0
	for _, block := range blocks {
		cost := tokenCount(block)
		if included > 0 && used+cost > budget {
			break
		}
		b.WriteString(block)
		b.WriteString("\n")
		used += cost
		included++
	}
	if omitted := len(blocks) - included; omitted > 0 {
		fmt.Fprintf(&b, "(%d further entries omitted for length)\n", omitted)
	}
	return b.String()
}

// leafContext renders a level-0 community's member entities for the report
// prompt.
func leafContext(members []common.Node, budget int) string {
	if len(members) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(members))
	for _, n := range members {
		desc := n.Description
		if desc == "" {
			desc = "No description available."
		}
		blocks = append(blocks, fmt.Sprintf("- %s (%s): %s", n.Name, n.Type, desc))
	}
	return "Entities in this community:\n" + joinWithinBudget(blocks, budget)
}

// parentContext renders a higher-level community's child summaries. Children
// that are still pending are noted instead of silently dropped so the report
// can acknowledge the gap. Returns ok=false when no child has a usable
// summary yet.
func parentContext(children []common.Community, budget int) (string, bool) {
	pending := 0
	blocks := make([]string, 0, len(children))
	for _, c := range children {
		if c.Summary == "" || c.Summary == common.SummaryPending {
			pending++
			continue
		}
		blocks = append(blocks, fmt.Sprintf("## %s\n%s", c.Title, c.Summary))
	}
	if len(blocks) == 0 {
		return "", false
	}

	var b strings.Builder
	b.WriteString("Sub-community summaries:\n")
	b.WriteString(joinWithinBudget(blocks, budget))
	if pending > 0 {
		fmt.Fprintf(&b, "\nNote: %d sub-community summaries are not yet available and are not reflected above.\n", pending)
	}
	return b.String(), true
}

// renderReport flattens a structured report into the stored full-text form.
func renderReport(report *ai.CommunityReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", report.Title, report.Summary)
	if report.RatingExplanation != "" {
		fmt.Fprintf(&b, "\nImportance: %.1f. %s\n", report.Rating, report.RatingExplanation)
	}
	for _, f := range report.Findings {
		fmt.Fprintf(&b, "\n## %s\n%s\n", f.Summary, f.Explanation)
	}
	return b.String()
}
