package approval

import (
	"context"
	"strings"
	"testing"

	"github.com/forgehq/forge/pkg/models"
)

func testPhase() *models.Phase {
	return &models.Phase{Number: "1", Name: "build", Promise: "done", Budget: 5}
}

func TestDecidePhaseAutoApprovesBelowThreshold(t *testing.T) {
	g := New(WithAutoApproveThreshold(5), WithPrompter(&FakePrompter{Phase: []PhaseDecision{Rejected}}))
	d, err := g.DecidePhase(context.Background(), testPhase(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if d != Approved {
		t.Fatalf("got %v, want Approved (auto, never reached prompter)", d)
	}
}

func TestDecidePhasePromptsAboveThreshold(t *testing.T) {
	g := New(WithAutoApproveThreshold(5), WithPrompter(&FakePrompter{Phase: []PhaseDecision{Rejected}}))
	d, err := g.DecidePhase(context.Background(), testPhase(), 9)
	if err != nil {
		t.Fatal(err)
	}
	if d != Rejected {
		t.Fatalf("got %v, want Rejected from prompter", d)
	}
}

func TestDecidePhaseApprovedAllLatches(t *testing.T) {
	g := New(WithAutoApproveThreshold(0), WithPrompter(&FakePrompter{Phase: []PhaseDecision{ApprovedAll, Rejected}}))
	d1, err := g.DecidePhase(context.Background(), testPhase(), 9)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != ApprovedAll {
		t.Fatalf("got %v", d1)
	}
	d2, err := g.DecidePhase(context.Background(), testPhase(), 9)
	if err != nil {
		t.Fatal(err)
	}
	if d2 != ApprovedAll {
		t.Fatalf("second call should stay latched at ApprovedAll without consulting prompter again, got %v", d2)
	}
}

func TestDecideIterationDelegatesToPrompter(t *testing.T) {
	g := New(WithPrompter(&FakePrompter{Iteration: []IterationDecision{Skip, StopPhase}}))
	d1, err := g.DecideIteration(context.Background(), testPhase(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if d1 != Skip {
		t.Fatalf("got %v", d1)
	}
	d2, err := g.DecideIteration(context.Background(), testPhase(), 2)
	if err != nil {
		t.Fatal(err)
	}
	if d2 != StopPhase {
		t.Fatalf("got %v", d2)
	}
}

func TestDiffHashStableForSameInput(t *testing.T) {
	a := DiffHash("diff --git a/x b/x")
	b := DiffHash("diff --git a/x b/x")
	if a != b {
		t.Fatal("expected stable hash for identical diff text")
	}
	if a == DiffHash("something else") {
		t.Fatal("expected different hash for different diff text")
	}
}

func TestStdPrompterPhaseDecisions(t *testing.T) {
	cases := map[string]PhaseDecision{
		"y\n":      Approved,
		"all\n":    ApprovedAll,
		"reject\n": Rejected,
		"abort\n":  Aborted,
		"\n":       Rejected,
	}
	for input, want := range cases {
		p := NewStdPrompter(strings.NewReader(input), nil)
		got, err := p.PromptPhase(context.Background(), testPhase(), 1)
		if err != nil {
			t.Fatalf("input %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("input %q: got %v, want %v", input, got, want)
		}
	}
}

func TestStdPrompterIterationDecisions(t *testing.T) {
	cases := map[string]IterationDecision{
		"\n":     Continue,
		"n\n":    StopPhase,
		"skip\n": Skip,
		"abort\n": Abort,
	}
	for input, want := range cases {
		p := NewStdPrompter(strings.NewReader(input), nil)
		got, err := p.PromptIteration(context.Background(), testPhase(), 1)
		if err != nil {
			t.Fatalf("input %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("input %q: got %v, want %v", input, got, want)
		}
	}
}
