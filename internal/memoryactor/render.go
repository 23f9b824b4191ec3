package memoryactor

import (
	"fmt"
	"sort"
	"strings"
)

// escapePipes makes a string safe to embed in a markdown table cell: pipe
// characters would otherwise split the cell, and newlines would break the
// row onto multiple lines.
func escapePipes(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}

// renderEventLog renders the append-only event log as a markdown document:
// a per-model ranking summary followed by the raw event table, most recent
// first.
func renderEventLog(events []Event, stats map[string]Stats) string {
	var b strings.Builder
	b.WriteString("# Model event log\n\n")

	models := make([]string, 0, len(stats))
	for m := range stats {
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool {
		return stats[models[i]].SuccessRate > stats[models[j]].SuccessRate
	})

	b.WriteString("## Summary\n\n")
	b.WriteString("| model | samples | success rate | avg latency (s) | p95 latency (s) | last seen |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, m := range models {
		s := stats[m]
		lastSeen := "-"
		if !s.LastSeen.IsZero() {
			lastSeen = s.LastSeen.UTC().Format("2006-01-02T15:04:05Z")
		}
		fmt.Fprintf(&b, "| %s | %d | %.2f | %.2f | %.2f | %s |\n",
			escapePipes(m), s.SampleCount, s.SuccessRate, s.AvgLatencySec, s.P95LatencySec, lastSeen)
	}

	b.WriteString("\n## Events\n\n")
	b.WriteString("| timestamp | model | status | reason | partial | latency (s) | error |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %v | %.2f | %s |\n",
			e.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
			escapePipes(e.Model), e.Status, e.Reason, e.Partial, e.LatencySec, escapePipes(e.Error))
	}

	return b.String()
}

// renderPatterns renders the active pattern table, confirmed patterns
// (evidence >= confirmThreshold) marked inline.
func renderPatterns(patterns []Pattern) string {
	var b strings.Builder
	b.WriteString("# Patterns\n\n")
	b.WriteString("| category | scope | evidence | model | content | tags |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, p := range patterns {
		content := escapePipes(p.Content)
		if p.Confirmed {
			content = "[confirmed] " + content
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %s | %s |\n",
			escapePipes(p.Category), escapePipes(p.Scope), p.Evidence,
			escapePipes(p.Model), content, escapePipes(strings.Join(p.Tags, ", ")))
	}
	return b.String()
}
