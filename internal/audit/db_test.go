package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/forgehq/forge/pkg/models"
)

func TestOpenMigratesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	log, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	if log.Path() != path {
		t.Fatalf("expected path %q, got %q", path, log.Path())
	}
}

func TestRecordAndQueryPhaseStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	log, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := log.RecordPhaseStatus(models.PhaseStatus{PhaseNumber: "01", Iteration: 1, Status: models.PhaseStarted, Timestamp: now}); err != nil {
		t.Fatal(err)
	}
	if err := log.RecordPhaseStatus(models.PhaseStatus{PhaseNumber: "01", Iteration: 1, Status: models.PhaseCompleted, Timestamp: now.Add(time.Second)}); err != nil {
		t.Fatal(err)
	}

	history, err := log.PhaseStatusHistory("01")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Status != models.PhaseStarted || history[1].Status != models.PhaseCompleted {
		t.Fatalf("expected started then completed in order, got %+v", history)
	}
}

func TestRecordIteration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	log, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	err = log.RecordIteration("01", 1, models.IterationResult{
		PromptChars: 100, OutputChars: 200, PromiseFound: true, SessionID: "sess-1",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRecordEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.db")
	log, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	err = log.RecordEvent(models.PhaseEvent{Kind: models.EventCompleted, PhaseNumber: "01", PhaseName: "a", Message: "done"})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDefaultPath(t *testing.T) {
	p := DefaultPath("/proj", "run1")
	expected := filepath.Join("/proj", ".forge", "audit", "run1.db")
	if p != expected {
		t.Fatalf("expected %q, got %q", expected, p)
	}
}
