package review

import (
	"context"

	"github.com/forgehq/forge/internal/worker"
	"github.com/forgehq/forge/pkg/models"
)

// Pipeline is the full optional review step (spec.md §4.4's "optional
// review pipeline"). The DAG Executor does not run it; cmd/forge runs it
// once, after a successful run, against the whole run's combined diff.
type Pipeline struct {
	Specialists    []Specialist
	MaxFixAttempts int
	Arbiter        ArbiterConfig
	// ArbiterInvoker is used only when Arbiter.Mode is ArbiterLLM; may be
	// nil otherwise.
	ArbiterInvoker worker.Invoker

	runner *Runner
}

// NewPipeline builds a Pipeline. reviewInvoker runs every specialist's
// worker turn; arbiterInvoker (may be the same Invoker, or nil to force
// rule-based resolution) runs the arbiter's turn when configured for
// ArbiterLLM.
func NewPipeline(reviewInvoker worker.Invoker, arbiterInvoker worker.Invoker, specialists []Specialist, maxFixAttempts int, arbiterCfg ArbiterConfig) *Pipeline {
	return &Pipeline{
		Specialists:    specialists,
		MaxFixAttempts: maxFixAttempts,
		Arbiter:        arbiterCfg,
		ArbiterInvoker: arbiterInvoker,
		runner:         NewRunner(reviewInvoker),
	}
}

// Outcome is the result of running a Pipeline once against a completed
// phase's changes.
type Outcome struct {
	Aggregation models.ReviewAggregation
	// Blocked reports whether any gating specialist returned VerdictFail.
	Blocked bool
	// Decision is the arbiter's call, populated only when Blocked is true.
	Decision models.ArbiterDecision
}

// Run reviews a phase's diff and, if any gating specialist fails it, asks
// the arbiter to resolve the failure. iterationsUsed and fixAttemptsUsed
// feed the arbiter's ArbiterInput so its decision can account for how much
// of the phase's budget is already spent.
func (p *Pipeline) Run(ctx context.Context, ph *models.Phase, diff string, changedFiles []string, iterationsUsed, fixAttemptsUsed int) (Outcome, error) {
	agg, err := p.runner.Review(ctx, ph, diff, changedFiles, p.Specialists)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Aggregation: agg}
	if !p.blockedBy(agg) {
		return out, nil
	}

	out.Blocked = true
	in := FromAggregation(agg, iterationsUsed, p.MaxFixAttempts).
		WithPhaseName(ph.Name).
		WithFixAttemptsUsed(fixAttemptsUsed)
	out.Decision = Decide(ctx, p.ArbiterInvoker, in, p.Arbiter)
	return out, nil
}

// blockedBy reports whether any specialist configured as gating returned
// VerdictFail. Advisory specialists' Fail verdicts are recorded in the
// aggregation but never block.
func (p *Pipeline) blockedBy(agg models.ReviewAggregation) bool {
	gatingNames := make(map[string]bool, len(p.Specialists))
	for _, s := range p.Specialists {
		if s.Gating {
			gatingNames[s.Name()] = true
		}
	}
	for _, r := range agg.Reports {
		if r.Verdict == models.VerdictFail && gatingNames[r.Specialist] {
			return true
		}
	}
	return false
}
