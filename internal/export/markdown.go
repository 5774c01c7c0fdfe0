// Package export renders a finished run's report as markdown, JSON, or an
// XLSX workbook.
package export

import (
	"fmt"
	"strings"

	"github.com/roamline/trip-cli/internal/model"
	"github.com/roamline/trip-cli/internal/pipeline"
)

// Markdown renders the report as a human-readable document.
func Markdown(intent model.SessionIntent, report pipeline.Report) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Trip recommendations: %s\n\n", intent.Destination)
	if len(intent.Interests) > 0 {
		fmt.Fprintf(&sb, "Interests: %s\n\n", strings.Join(intent.Interests, ", "))
	}

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&sb, "| Candidates found | %d |\n", report.Result.CandidatesFound)
	fmt.Fprintf(&sb, "| Clusters formed | %d |\n", report.Result.ClustersFormed)
	fmt.Fprintf(&sb, "| Average score | %.2f |\n", report.Result.AverageScore)
	fmt.Fprintf(&sb, "| Validated | %d |\n", report.Result.ValidatedCount)
	fmt.Fprintf(&sb, "| Tokens used | %d |\n", report.Result.TotalTokens)
	fmt.Fprintf(&sb, "| Estimated cost | $%.4f |\n", report.Result.TotalCostUSD)
	fmt.Fprintf(&sb, "| Duration | %dms |\n\n", report.Result.DurationMS)

	sb.WriteString("## Top recommendations\n\n")
	for i, c := range report.Top {
		fmt.Fprintf(&sb, "### %d. %s\n\n", i+1, c.Title)
		fmt.Fprintf(&sb, "- Type: %s · Score: %.2f · Confidence: %s · Source: %s\n", c.Type, c.Score, c.Confidence, c.Origin)
		if c.LocationText != "" {
			fmt.Fprintf(&sb, "- Location: %s\n", c.LocationText)
		}
		if c.Summary != "" {
			fmt.Fprintf(&sb, "\n%s\n", c.Summary)
		}
		if c.Validation != nil {
			fmt.Fprintf(&sb, "\n_Validation: %s_\n", c.Validation.Status)
		}
		for _, ref := range c.SourceRefs {
			fmt.Fprintf(&sb, "- [%s](%s)\n", refTitle(ref), ref.URL)
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func refTitle(ref model.SourceRef) string {
	if ref.Title != "" {
		return ref.Title
	}
	return ref.URL
}
