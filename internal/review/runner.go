package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgehq/forge/internal/worker"
	"github.com/forgehq/forge/pkg/models"
)

// Runner spawns one worker invocation per configured Specialist against a
// phase's diff and collects the results into a models.ReviewAggregation.
type Runner struct {
	invoker worker.Invoker
}

// NewRunner builds a Runner. Reviews are one-shot invocations (no session
// continuity), so a single Invoker may be reused across calls.
func NewRunner(invoker worker.Invoker) *Runner {
	return &Runner{invoker: invoker}
}

// Review runs every given specialist against diff/changedFiles and returns
// their aggregated reports. Specialists run sequentially: each is a short,
// independent worker turn, and spec.md's review pipeline does not require
// them to run concurrently (unlike phase iterations, which must not
// overlap on one Invoker).
func (r *Runner) Review(ctx context.Context, ph *models.Phase, diff string, changedFiles []string, specialists []Specialist) (models.ReviewAggregation, error) {
	agg := models.ReviewAggregation{PhaseNumber: ph.Number}

	for _, s := range specialists {
		prompt := buildPrompt(s, ph, diff, changedFiles)
		result, err := r.invoker.Invoke(ctx, prompt, worker.InvokeOptions{})
		if err != nil {
			return agg, fmt.Errorf("review %s: %w", s.Name(), err)
		}
		agg.Reports = append(agg.Reports, parseReport(ph.Number, s.Name(), result.Output))
	}

	return agg, nil
}

// buildPrompt constructs the review request for one specialist.
func buildPrompt(s Specialist, ph *models.Phase, diff string, changedFiles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a focused code reviewer examining one phase's changes.\n\n", s.Name())
	fmt.Fprintf(&b, "PHASE: %s — %s\n\n", ph.Number, ph.Name)
	fmt.Fprintf(&b, "FOCUS AREAS:\n")
	for _, area := range s.Type.FocusAreas() {
		fmt.Fprintf(&b, "- %s\n", area)
	}
	fmt.Fprintf(&b, "\nCHANGED FILES:\n%s\n\n", strings.Join(changedFiles, "\n"))
	fmt.Fprintf(&b, "DIFF:\n%s\n\n", diff)
	b.WriteString(`Review only within your focus areas above. Your response MUST include:
1. A verdict line, exactly one of "VERDICT: PASS", "VERDICT: WARN", or "VERDICT: FAIL"
2. A one-line "SUMMARY: <text>"
3. Zero or more finding lines, each "FINDING: [info|warning|critical] <file>[:<line>] <message>"

Use FAIL only when a finding in your focus area would make this phase's changes unsafe to build on.`)
	return b.String()
}
