package worker

import (
	"context"

	"github.com/forgehq/forge/pkg/models"
)

// Fake is a scriptable Invoker for tests of packages that depend on the
// narrow Invoker interface (the Phase Runner, the scheduler). Results are
// consumed in order; once exhausted, Invoke returns a result with empty
// Output and PromiseFound set to true. The Phase Runner detects the promise
// from Output, so for it such a result does not complete the phase.
type Fake struct {
	Results []models.IterationResult
	Err     error

	calls int
	Prompts []string
}

// Invoke returns the next scripted result, recording the prompt it was
// called with.
func (f *Fake) Invoke(_ context.Context, prompt string, _ InvokeOptions) (models.IterationResult, error) {
	f.Prompts = append(f.Prompts, prompt)
	defer func() { f.calls++ }()

	if f.Err != nil {
		return models.IterationResult{}, f.Err
	}
	if f.calls >= len(f.Results) {
		return models.IterationResult{PromiseFound: true}, nil
	}
	return f.Results[f.calls], nil
}

// Calls reports how many times Invoke has been called.
func (f *Fake) Calls() int {
	return f.calls
}

var _ Invoker = (*Fake)(nil)
