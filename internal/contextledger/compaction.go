package contextledger

import (
	"fmt"
	"strings"

	"github.com/forgehq/forge/pkg/models"
)

// excerptLen is how much of each summarized iteration's output is retained
// verbatim in the compaction summary text (spec.md §4.3: "~100 chars each").
const excerptLen = 100

// IterationOutput is the raw output text for one iteration, supplied by the
// Phase Runner at compaction time (the Tracker only keeps byte counts, not
// the text itself).
type IterationOutput struct {
	IterNo int
	Output string
}

// Manager produces compaction summaries for a Tracker.
type Manager struct {
	phaseNumber string
	phaseName   string
	promise     string
}

// NewManager creates a Manager describing the phase being compacted; the
// phase identity is embedded in every summary so a resumed session can
// reorient itself (spec.md §4.3 step 2).
func NewManager(phaseNumber, phaseName, promise string) *Manager {
	return &Manager{phaseNumber: phaseNumber, phaseName: phaseName, promise: promise}
}

// Compact runs the compaction algorithm (spec.md §4.3):
//  1. select the oldest K iterations whose cumulative bytes exceed half of
//     total_used, keeping at least the most recent two intact;
//  2. produce a textual summary;
//  3/4. record a CompactionEvent and truncate the tracker;
// returning the summary text to be injected as the next iteration's prompt
// context.
//
// outputs must be ordered oldest-first and correspond 1:1 with
// tracker.Iterations() at the time of the call (real, non-synthetic
// iterations only — the Phase Runner does not have output text for a
// synthetic record).
func (m *Manager) Compact(t *Tracker, outputs []IterationOutput, changes *models.ChangeSummary) (string, models.CompactionEvent, error) {
	records := t.Iterations()
	if len(records) < 2 {
		return "", models.CompactionEvent{}, fmt.Errorf("compaction requires at least 2 recorded iterations, have %d", len(records))
	}
	if t.onlySyntheticRecord() {
		return "", models.CompactionEvent{}, fmt.Errorf("refusing to compact a phase with only a synthetic record")
	}

	k := selectSummarizeCount(records, t.TotalUsed())
	if k == 0 {
		return "", models.CompactionEvent{}, fmt.Errorf("no iterations eligible for compaction while preserving the most recent two")
	}

	summary := m.buildSummary(records[:k], outputs, changes)
	event := t.applyCompaction(k, len(summary))
	return summary, event, nil
}

// selectSummarizeCount picks the oldest K records whose cumulative bytes
// exceed half of totalUsed, always keeping at least the most recent two
// records un-summarized.
func selectSummarizeCount(records []models.IterationRecord, totalUsed int) int {
	maxK := len(records) - 2
	if maxK <= 0 {
		return 0
	}
	half := totalUsed / 2
	cumulative := 0
	for k := 1; k <= maxK; k++ {
		cumulative += records[k-1].Bytes()
		if cumulative > half {
			return k
		}
	}
	return maxK
}

func (m *Manager) buildSummary(summarized []models.IterationRecord, outputs []IterationOutput, changes *models.ChangeSummary) string {
	byIter := make(map[int]string, len(outputs))
	for _, o := range outputs {
		byIter[o.IterNo] = o.Output
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Phase %s (%s) — promise: %q\n", m.phaseNumber, m.phaseName, m.promise)
	fmt.Fprintf(&b, "Summarizing %d prior iteration(s):\n", len(summarized))
	for _, r := range summarized {
		excerpt := truncate(byIter[r.IterNo], excerptLen)
		fmt.Fprintf(&b, "  - iter %d: %s\n", r.IterNo, excerpt)
	}
	if changes != nil {
		fmt.Fprintf(&b, "Cumulative file changes: +%d added, ~%d modified, -%d deleted\n",
			len(changes.FilesAdded), len(changes.FilesModified), len(changes.FilesDeleted))
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

// ExtractOutputSummary is a small helper mirroring the original
// implementation's extract_output_summary: it returns the first line of
// meaningful output, used when callers want a one-line excerpt without a
// full Compact call (e.g. for iteration feedback strings).
func ExtractOutputSummary(output string) string {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return truncate(line, excerptLen)
		}
	}
	return ""
}
