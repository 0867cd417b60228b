// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/resume-ranker/internal/rerank"
	"github.com/jonathan/resume-ranker/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRanking outputs the top of a ranking with scores and source tags.
func (p *Printer) PrintRanking(title string, result *types.RankingResult) {
	if result.Len() == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Stage: %s   Candidates: %d\n\n", result.Stage, result.Len()))

	count := min(result.Len(), maxItemsToShow)
	for i := 0; i < count; i++ {
		c := result.Candidates[i]
		sb.WriteString(fmt.Sprintf("#%-3d %-24s %8.3f  [%s]\n", i+1, c.ID, c.Score, c.Source))
	}
	if result.Len() > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", result.Len()-maxItemsToShow))
	}

	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintRerankReport summarizes how the LLM rerank went.
func (p *Printer) PrintRerankReport(report rerank.Report) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Window:    %d\n", report.WindowSize))
	sb.WriteString(fmt.Sprintf("Requests:  %d (%d failed)\n", report.Requests, report.FailedRequests))
	sb.WriteString(fmt.Sprintf("Scored:    %d\n", report.Scored))
	sb.WriteString(fmt.Sprintf("Rubric:    %t\n", report.Prepared))

	switch {
	case report.Cancelled:
		sb.WriteString("Status:    cancelled, lexical order kept\n")
	case report.Unreachable:
		sb.WriteString("Status:    oracle unreachable, lexical order kept\n")
	case report.Degraded:
		sb.WriteString("Status:    degraded\n")
	default:
		sb.WriteString("Status:    ok\n")
	}
	if len(report.FallbackIDs) > 0 {
		sb.WriteString(fmt.Sprintf("Fallbacks: %s\n", strings.Join(report.FallbackIDs, ", ")))
	}

	p.printBox("LLM RERANK", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintEvaluation outputs evaluation metrics in name order.
func (p *Printer) PrintEvaluation(report *types.EvaluationReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	if !report.Evaluable {
		sb.WriteString("Not evaluable")
		if report.Reason != "" {
			sb.WriteString(": " + report.Reason)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("Reference: %s   K: %d\n", report.Format, report.CutoffK))
	sb.WriteString(fmt.Sprintf("Judged: %d   Unjudged: %d\n", report.Judged, report.Unjudged))

	if len(report.Metrics) > 0 {
		sb.WriteString("\n")
		names := make([]string, 0, len(report.Metrics))
		for name := range report.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sb.WriteString(fmt.Sprintf("%-16s %7.4f\n", name, report.Metrics[name]))
		}
	}

	p.printBox("EVALUATION", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintDurations outputs per-stage timings in the given stage order.
func (p *Printer) PrintDurations(order []string, durations map[string]time.Duration) {
	if len(durations) == 0 {
		return
	}

	var sb strings.Builder
	var total time.Duration
	for _, stage := range order {
		d, ok := durations[stage]
		if !ok {
			continue
		}
		total += d
		sb.WriteString(fmt.Sprintf("%-12s %s\n", stage, d.Round(time.Microsecond)))
	}
	sb.WriteString(fmt.Sprintf("%-12s %s", "total", total.Round(time.Microsecond)))

	p.printBox("TIMINGS", sb.String())
}
