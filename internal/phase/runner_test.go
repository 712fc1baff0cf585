package phase

import (
	"context"
	"testing"
	"time"

	"github.com/forgehq/forge/internal/approval"
	"github.com/forgehq/forge/internal/hooks"
	"github.com/forgehq/forge/internal/worker"
	"github.com/forgehq/forge/pkg/models"
)

type fakeStatus struct {
	lines []string
	idx   int
}

func (f *fakeStatus) Status() (string, error) {
	if f.idx >= len(f.lines) {
		if len(f.lines) == 0 {
			return "", nil
		}
		return f.lines[len(f.lines)-1], nil
	}
	s := f.lines[f.idx]
	f.idx++
	return s, nil
}

func TestRunCompletesImmediately(t *testing.T) {
	fake := &worker.Fake{Results: []models.IterationResult{
		{Output: "work done\nP1 DONE\n"},
	}}
	r := New(fake, hooks.NewManager(hooks.Config{}), approval.New(), &fakeStatus{}, "/tmp")
	r.Sleep = func(_ time.Duration) {}

	outcome, plan, err := r.Run(context.Background(), &models.Phase{Number: "01", Name: "p1", Promise: "P1 DONE", Budget: 5})
	if err != nil {
		t.Fatal(err)
	}
	if plan != nil {
		t.Fatalf("expected no decomposition plan, got %+v", plan)
	}
	if outcome.Kind != models.OutcomeCompleted || outcome.Iteration != 1 {
		t.Fatalf("got %+v", outcome)
	}
}

func TestRunBudgetExhaustion(t *testing.T) {
	fake := &worker.Fake{Results: []models.IterationResult{
		{Output: "iteration 1"},
		{Output: "iteration 2"},
		{Output: "iteration 3"},
	}}
	r := New(fake, hooks.NewManager(hooks.Config{}), approval.New(), &fakeStatus{}, "/tmp")
	r.Sleep = func(_ time.Duration) {}

	outcome, _, err := r.Run(context.Background(), &models.Phase{Number: "02", Name: "p2", Promise: "NEVER SEEN", Budget: 3})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != models.OutcomeMaxIterationsReached || outcome.Iteration != 3 {
		t.Fatalf("got %+v", outcome)
	}
	if fake.Calls() != 3 {
		t.Fatalf("expected 3 worker invocations, got %d", fake.Calls())
	}
}

func TestRunReadonlyViolation(t *testing.T) {
	fake := &worker.Fake{Results: []models.IterationResult{{Output: "created a file"}}}
	status := &fakeStatus{lines: []string{"?? foo.txt\n"}}
	r := New(fake, hooks.NewManager(hooks.Config{}), approval.New(), status, "/tmp")
	r.Sleep = func(_ time.Duration) {}

	ph := &models.Phase{Number: "03", Name: "p3", Promise: "DONE", Budget: 5, PermissionMode: models.PermissionReadonly}
	outcome, _, err := r.Run(context.Background(), ph)
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Kind != models.OutcomeReadonlyViolation || outcome.Iteration != 1 || outcome.Path != "foo.txt" {
		t.Fatalf("got %+v", outcome)
	}
	if fake.Calls() != 1 {
		t.Fatalf("expected exactly 1 invocation before violation halted the loop, got %d", fake.Calls())
	}
}

func TestRunStrictModeAbortPropagates(t *testing.T) {
	fake := &worker.Fake{Results: []models.IterationResult{
		{Output: "iteration 1, still working"},
		{Output: "iteration 2, still working"},
	}}
	gate := approval.New(approval.WithPrompter(&approval.FakePrompter{
		Iteration: []approval.IterationDecision{approval.Continue, approval.Abort},
	}))
	r := New(fake, hooks.NewManager(hooks.Config{}), gate, &fakeStatus{}, "/tmp")
	r.Sleep = func(_ time.Duration) {}

	ph := &models.Phase{Number: "04", Name: "p4", Promise: "NEVER", Budget: 4, PermissionMode: models.PermissionStrict}
	outcome, _, err := r.Run(context.Background(), ph)
	if err != ErrGlobalAbort {
		t.Fatalf("expected ErrGlobalAbort, got %v", err)
	}
	if outcome.Kind != models.OutcomeUserAborted || outcome.Iteration != 2 {
		t.Fatalf("got %+v", outcome)
	}
	if fake.Calls() != 1 {
		t.Fatalf("expected worker invoked only for iteration 1, got %d calls", fake.Calls())
	}
}

func TestDetectPromisePlainToken(t *testing.T) {
	if !DetectPromise("some output\nP1 DONE\nmore text", "P1 DONE") {
		t.Fatal("expected plain-token match")
	}
}

func TestDetectPromiseTaggedToken(t *testing.T) {
	if !DetectPromise("chatter\n<promise>P1 DONE</promise>\n", "P1 DONE") {
		t.Fatal("expected tagged-token match")
	}
}

func TestDetectPromiseWhitespaceInsensitive(t *testing.T) {
	if !DetectPromise("  P1    DONE  ", "P1 DONE") {
		t.Fatal("expected whitespace-insensitive match")
	}
}

func TestDetectPromiseAbsent(t *testing.T) {
	if DetectPromise("still working on it", "P1 DONE") {
		t.Fatal("expected no match")
	}
}
