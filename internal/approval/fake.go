package approval

import (
	"context"

	"github.com/forgehq/forge/pkg/models"
)

// FakePrompter is a scripted Prompter for tests. Phase and Iteration hold
// queued decisions consumed in order; running past the end of either queue
// returns Aborted/Abort so a misconfigured test fails fast.
type FakePrompter struct {
	Phase     []PhaseDecision
	Iteration []IterationDecision

	phaseCalls     int
	iterationCalls int
}

var _ Prompter = (*FakePrompter)(nil)

func (f *FakePrompter) PromptPhase(ctx context.Context, phase *models.Phase, previousChanges int) (PhaseDecision, error) {
	if f.phaseCalls >= len(f.Phase) {
		return Aborted, nil
	}
	d := f.Phase[f.phaseCalls]
	f.phaseCalls++
	return d, nil
}

func (f *FakePrompter) PromptIteration(ctx context.Context, phase *models.Phase, iteration int) (IterationDecision, error) {
	if f.iterationCalls >= len(f.Iteration) {
		return Abort, nil
	}
	d := f.Iteration[f.iterationCalls]
	f.iterationCalls++
	return d, nil
}
