package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/marketflow/marketflow/internal/model"
)

// RunSummary is the structured outcome of one pipeline run.
type RunSummary struct {
	Started time.Time
	RunID   string
	Phases  []PhaseSummary
	Elapsed time.Duration
}

// PhaseSummary groups the per-entity results of one phase.
type PhaseSummary struct {
	Phase   model.Phase
	Results []model.Result
}

// RowsProcessed totals the input rows across all phases.
func (s *RunSummary) RowsProcessed() int {
	total := 0
	for _, p := range s.Phases {
		for _, r := range p.Results {
			total += r.RowsIn
		}
	}
	return total
}

// Failed reports whether any entity in any phase produced no output.
func (s *RunSummary) Failed() bool {
	for _, p := range s.Phases {
		for _, r := range p.Results {
			if r.Status == model.StatusFailed {
				return true
			}
		}
	}
	return false
}

// Render produces the styled terminal summary.
func (s *RunSummary) Render() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("Pipeline run %s", s.RunID)))
	b.WriteString("\n")

	for _, p := range s.Phases {
		b.WriteString(subtleStyle.Render(strings.ToUpper(string(p.Phase))))
		b.WriteString("\n")
		for _, r := range p.Results {
			b.WriteString("  ")
			b.WriteString(renderResult(r))
			b.WriteString("\n")
		}
	}

	b.WriteString(subtleStyle.Render(fmt.Sprintf(
		"%d rows processed in %s", s.RowsProcessed(), s.Elapsed.Round(time.Millisecond))))

	return boxStyle.Render(b.String())
}

func renderResult(r model.Result) string {
	line := fmt.Sprintf("%s: %d → %d rows", r.Entity, r.RowsIn, r.RowsOut)
	switch r.Status {
	case model.StatusSuccess:
		return successStyle.Render("✓ " + line)
	case model.StatusDegraded:
		return warningStyle.Render(fmt.Sprintf("⚠ %s (%s)", line, r.Reason))
	default:
		return errorStyle.Render(fmt.Sprintf("✗ %s: %s", r.Entity, r.Reason))
	}
}
