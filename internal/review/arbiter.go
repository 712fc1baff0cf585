package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgehq/forge/internal/worker"
	"github.com/forgehq/forge/pkg/models"
)

// ResolutionMode selects how the arbiter resolves a failing gating review.
type ResolutionMode string

const (
	// RuleBased applies ApplyRuleBasedDecision deterministically — no
	// worker invocation, used in tests and for low-stakes phases.
	RuleBased ResolutionMode = "rule-based"
	// ArbiterLLM spawns a worker turn to make the call, falling back to
	// ApplyRuleBasedDecision if the worker's reply can't be parsed.
	ArbiterLLM ResolutionMode = "arbiter-llm"
)

// ArbiterConfig configures the arbiter's resolution strategy.
type ArbiterConfig struct {
	Mode                ResolutionMode
	ConfidenceThreshold float64
}

// DefaultArbiterConfig returns the rule-based arbiter at a 0.7 confidence
// threshold — proceed only when the rule-based heuristic is fairly
// confident the failing findings are not blocking.
func DefaultArbiterConfig() ArbiterConfig {
	return ArbiterConfig{Mode: RuleBased, ConfidenceThreshold: 0.7}
}

// ArbiterInput is everything the arbiter needs to resolve one failing
// gating review.
type ArbiterInput struct {
	PhaseNumber     string
	PhaseName       string
	TotalIterations int
	MaxFixAttempts  int
	FixAttemptsUsed int
	FailingFindings []models.ReviewFinding
}

// FromAggregation builds an ArbiterInput from a failing ReviewAggregation.
func FromAggregation(agg models.ReviewAggregation, totalIterations, maxFixAttempts int) ArbiterInput {
	var findings []models.ReviewFinding
	for _, r := range agg.FailingReports() {
		findings = append(findings, r.Findings...)
	}
	return ArbiterInput{
		PhaseNumber:     agg.PhaseNumber,
		TotalIterations: totalIterations,
		MaxFixAttempts:  maxFixAttempts,
		FailingFindings: findings,
	}
}

// WithPhaseName sets PhaseName and returns the input for chaining.
func (in ArbiterInput) WithPhaseName(name string) ArbiterInput {
	in.PhaseName = name
	return in
}

// WithFixAttemptsUsed sets FixAttemptsUsed and returns the input for chaining.
func (in ArbiterInput) WithFixAttemptsUsed(n int) ArbiterInput {
	in.FixAttemptsUsed = n
	return in
}

// ApplyRuleBasedDecision resolves a failing gating review without a worker
// invocation:
//   - no failing findings at all → Proceed
//   - any Critical finding → Escalate (a human must look at this)
//   - otherwise confidence is 1.0 minus 0.1 per remaining finding (floored
//     at 0); at or above the configured threshold → Proceed, below it →
//     Fix while attempts remain, else Escalate.
func ApplyRuleBasedDecision(in ArbiterInput, cfg ArbiterConfig) models.ArbiterDecision {
	if len(in.FailingFindings) == 0 {
		return models.ArbiterDecision{Verdict: models.ArbiterProceed, Confidence: 1.0, Source: models.DecisionRuleBased}
	}

	for _, f := range in.FailingFindings {
		if f.Severity == models.SeverityCritical {
			return models.ArbiterDecision{
				Verdict:           models.ArbiterEscalate,
				Confidence:        1.0,
				Source:            models.DecisionRuleBased,
				EscalationSummary: fmt.Sprintf("phase %s: critical finding(s) require human review", in.PhaseNumber),
			}
		}
	}

	confidence := 1.0 - 0.1*float64(len(in.FailingFindings))
	if confidence < 0 {
		confidence = 0
	}

	if confidence >= cfg.ConfidenceThreshold {
		return models.ArbiterDecision{Verdict: models.ArbiterProceed, Confidence: confidence, Source: models.DecisionRuleBased}
	}

	if in.FixAttemptsUsed < in.MaxFixAttempts {
		return models.ArbiterDecision{
			Verdict:         models.ArbiterFix,
			Confidence:      confidence,
			Source:          models.DecisionRuleBased,
			FixInstructions: buildFixInstructions(in.FailingFindings),
		}
	}

	return models.ArbiterDecision{
		Verdict:           models.ArbiterEscalate,
		Confidence:        confidence,
		Source:            models.DecisionRuleBased,
		EscalationSummary: fmt.Sprintf("phase %s: fix attempts exhausted (%d/%d) with findings unresolved", in.PhaseNumber, in.FixAttemptsUsed, in.MaxFixAttempts),
	}
}

func buildFixInstructions(findings []models.ReviewFinding) string {
	var b strings.Builder
	b.WriteString("Address the following review findings before continuing:\n")
	for _, f := range findings {
		if f.Line > 0 {
			fmt.Fprintf(&b, "- [%s] %s:%d %s\n", f.Severity, f.File, f.Line, f.Message)
		} else {
			fmt.Fprintf(&b, "- [%s] %s %s\n", f.Severity, f.File, f.Message)
		}
	}
	return b.String()
}

// Decide resolves in per cfg.Mode. ArbiterLLM spawns one worker turn asking
// it to choose PROCEED, FIX, or ESCALATE; an unparsable or erroring reply
// falls back to ApplyRuleBasedDecision so a flaky arbiter call never blocks
// the run indefinitely.
func Decide(ctx context.Context, invoker worker.Invoker, in ArbiterInput, cfg ArbiterConfig) models.ArbiterDecision {
	if cfg.Mode != ArbiterLLM || invoker == nil {
		return ApplyRuleBasedDecision(in, cfg)
	}

	result, err := invoker.Invoke(ctx, buildArbiterPrompt(in), worker.InvokeOptions{})
	if err != nil {
		return ApplyRuleBasedDecision(in, cfg)
	}

	decision, ok := parseArbiterDecision(result.Output)
	if !ok {
		return ApplyRuleBasedDecision(in, cfg)
	}
	decision.Source = models.DecisionModel
	return decision
}

func buildArbiterPrompt(in ArbiterInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Phase %s (%s) failed gating review after %d iteration(s), with %d of %d fix attempts used.\n\n",
		in.PhaseNumber, in.PhaseName, in.TotalIterations, in.FixAttemptsUsed, in.MaxFixAttempts)
	b.WriteString("Findings:\n")
	for _, f := range in.FailingFindings {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", f.Severity, f.File, f.Message)
	}
	b.WriteString(`
Decide one of PROCEED, FIX, or ESCALATE. Respond with:
DECISION: <PROCEED|FIX|ESCALATE>
If FIX, follow with "INSTRUCTIONS: <text>". If ESCALATE, follow with "ESCALATION: <text>".`)
	return b.String()
}

func parseArbiterDecision(output string) (models.ArbiterDecision, bool) {
	var decision models.ArbiterDecision
	found := false

	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.TrimSpace(rawLine)
		upper := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(upper, "DECISION:"):
			switch strings.ToUpper(strings.TrimSpace(line[len("DECISION:"):])) {
			case "PROCEED":
				decision.Verdict = models.ArbiterProceed
				found = true
			case "FIX":
				decision.Verdict = models.ArbiterFix
				found = true
			case "ESCALATE":
				decision.Verdict = models.ArbiterEscalate
				found = true
			}
		case strings.HasPrefix(upper, "INSTRUCTIONS:"):
			decision.FixInstructions = strings.TrimSpace(line[len("INSTRUCTIONS:"):])
		case strings.HasPrefix(upper, "ESCALATION:"):
			decision.EscalationSummary = strings.TrimSpace(line[len("ESCALATION:"):])
		}
	}

	return decision, found
}
