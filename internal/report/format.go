// Package report renders submissions and tag changes for the terminal.
package report

import (
	"fmt"
	"strings"

	"tagsync/internal/catalog"
	"tagsync/internal/model"
)

const dateLayout = "2006-01-02"

// FormatSubmission formats a submission as a single query result line.
func FormatSubmission(sub model.Submission) string {
	return fmt.Sprintf("%s - %s, %s: %s",
		sub.Key(), sub.PostedAt.Format(dateLayout), sub.Title, strings.Join(sub.Tags, ", "))
}

// FormatDiff formats the tags a change adds and removes.
func FormatDiff(added, removed []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Adding tags: %s\n", strings.Join(added, ", "))
	fmt.Fprintf(&b, "Removing tags: %s", strings.Join(removed, ", "))
	return b.String()
}

// FormatChange formats the submission line of a change followed by its
// indented diff.
func FormatChange(c catalog.Change) string {
	var b strings.Builder
	b.WriteString(FormatSubmission(c.Submission))
	b.WriteString("\n")
	b.WriteString(indent(FormatDiff(c.Added, c.Removed), "  "))
	return b.String()
}

// FormatLoadSummary formats per-site counts after a load.
func FormatLoadSummary(counts []catalog.SiteCount) string {
	if len(counts) == 0 {
		return "No sites loaded."
	}
	var b strings.Builder
	total := 0
	for _, c := range counts {
		total += c.Count
		fmt.Fprintf(&b, "%s: %d submissions\n", c.Site, c.Count)
	}
	fmt.Fprintf(&b, "Total: %d", total)
	return b.String()
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
