package contextledger

import (
	"testing"

	"github.com/forgehq/forge/pkg/models"
)

// newTestTrackerE4 builds a Tracker with an effective limit far below
// MinPreservedContext, bypassing New's invariant check. This mirrors
// spec.md §8 scenario E4, which deliberately uses a tiny context_limit to
// exercise compaction quickly; New itself is exercised separately by
// TestNewRejectsTooSmallEffectiveLimit.
func newTestTrackerE4(t *testing.T) *Tracker {
	t.Helper()
	l, err := ParseLimit("150")
	if err != nil {
		t.Fatal(err)
	}
	return &Tracker{
		state:       models.ContextState{EffectiveLimit: 150},
		modelWindow: 100,
		limit:       l,
	}
}

// TestCompactSummarizesOldestRecords mirrors spec.md §8 scenario E4: a tiny
// absolute context_limit (150, threshold 135) with 60 chars/iteration is due
// for compaction from iteration 3; after four iterations, compaction records
// a CompactionEvent with at least one summarized iteration.
func TestCompactSummarizesOldestRecords(t *testing.T) {
	tr := newTestTrackerE4(t)
	tr.AddIteration(30, 30) // iter 1
	tr.AddIteration(30, 30) // iter 2
	tr.AddIteration(30, 30) // iter 3
	tr.AddIteration(30, 30) // iter 4

	if !tr.ShouldCompact() {
		t.Fatalf("expected compaction due, total_used=%d threshold=%d", tr.TotalUsed(), tr.triggerThreshold())
	}

	mgr := NewManager("1", "build-auth", "AUTH COMPLETE")
	outputs := []IterationOutput{
		{IterNo: 1, Output: "set up the scaffolding for the auth module"},
		{IterNo: 2, Output: "wired the login handler"},
		{IterNo: 3, Output: "added token refresh"},
		{IterNo: 4, Output: "fixed the expiry bug"},
	}
	changes := models.NewChangeSummary()
	changes.FilesAdded["auth.go"] = struct{}{}

	summary, event, err := mgr.Compact(tr, outputs, changes)
	if err != nil {
		t.Fatal(err)
	}
	if event.IterationsSummarized < 1 {
		t.Fatalf("expected at least one summarized iteration, got %+v", event)
	}
	if event.SummaryChars != len(summary) {
		t.Fatalf("event.SummaryChars=%d, len(summary)=%d", event.SummaryChars, len(summary))
	}
	if summary == "" {
		t.Fatal("expected non-empty summary text")
	}

	// The two most recent iterations must survive as real records.
	remaining := tr.Iterations()
	if len(remaining) < 2 {
		t.Fatalf("expected at least 2 records kept, got %d", len(remaining))
	}
	last := remaining[len(remaining)-1]
	if last.Synthetic {
		t.Fatal("the most recent iteration must not be the synthetic summary record")
	}

	if len(tr.CompactionEvents()) != 1 {
		t.Fatalf("expected 1 recorded compaction event, got %d", len(tr.CompactionEvents()))
	}
}

func TestCompactRejectsFewerThanTwoIterations(t *testing.T) {
	tr := newTestTrackerE4(t)
	tr.AddIteration(30, 30)
	mgr := NewManager("1", "solo", "DONE")
	if _, _, err := mgr.Compact(tr, nil, nil); err == nil {
		t.Fatal("expected error compacting a tracker with fewer than 2 iterations")
	}
}

func TestCompactRejectsOnlySyntheticRecord(t *testing.T) {
	tr := newTestTrackerE4(t)
	tr.state.Iterations = []models.IterationRecord{{IterNo: 1, OutputChars: 40, Synthetic: true}}
	tr.state.TotalUsed = 40
	mgr := NewManager("1", "resumed", "DONE")
	if _, _, err := mgr.Compact(tr, nil, nil); err == nil {
		t.Fatal("expected error compacting a phase with only a synthetic record")
	}
}

func TestCompactPreservesRecentTwoEvenUnderPressure(t *testing.T) {
	tr := newTestTrackerE4(t)
	// Five fairly uniform iterations; selectSummarizeCount must never
	// summarize the last two regardless of how cumulative bytes compare to
	// total_used / 2.
	for i := 0; i < 5; i++ {
		tr.AddIteration(20, 20)
	}
	mgr := NewManager("1", "many-iters", "DONE")
	outputs := make([]IterationOutput, 0, 5)
	for i := 1; i <= 5; i++ {
		outputs = append(outputs, IterationOutput{IterNo: i, Output: "did some work"})
	}
	_, event, err := mgr.Compact(tr, outputs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if event.IterationsSummarized > 3 {
		t.Fatalf("must keep at least 2 of 5 iterations intact, summarized %d", event.IterationsSummarized)
	}
}

func TestExtractOutputSummaryTakesFirstNonEmptyLine(t *testing.T) {
	got := ExtractOutputSummary("\n\n  first real line of output  \nsecond line\n")
	if got != "first real line of output" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractOutputSummaryEmpty(t *testing.T) {
	if got := ExtractOutputSummary("   \n\n  "); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
