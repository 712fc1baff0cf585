// Package progress implements the Progress Tracker and Decomposition
// Detector (spec.md §4.8): per-phase stall detection for Autonomous mode,
// and the trigger/validation/conversion pipeline that turns an oversized
// phase into dotted-number sub-phases.
package progress

// StallThreshold is the number of consecutive iterations without progress
// before Autonomous mode treats a phase as stalled (spec.md §4.8).
const StallThreshold = 3

// Tracker holds one phase's running progress state across iterations.
type Tracker struct {
	staleIterations int
	lastChangeCount int
	lastProgressPct int
	haveProgress    bool
}

// New returns a Tracker with no recorded history.
func New() *Tracker {
	return &Tracker{}
}

// Update records one iteration's outcome. If the change count grew and
// progress advanced relative to the last observation, the stall counter
// resets to zero; otherwise it increments (spec.md §4.8).
func (t *Tracker) Update(changeCount int, progressPct int, haveProgressSignal bool) {
	changesAdded := changeCount > t.lastChangeCount
	progressAdvanced := haveProgressSignal && t.haveProgress && progressPct > t.lastProgressPct

	if changesAdded && progressAdvanced {
		t.staleIterations = 0
	} else {
		t.staleIterations++
	}

	t.lastChangeCount = changeCount
	if haveProgressSignal {
		t.lastProgressPct = progressPct
		t.haveProgress = true
	}
}

// StaleIterations returns the current consecutive-no-progress count.
func (t *Tracker) StaleIterations() int {
	return t.staleIterations
}

// IsStalled reports whether Autonomous mode should treat the phase as
// making no progress (spec.md §4.8: stale_iterations ≥ 3).
func (t *Tracker) IsStalled() bool {
	return t.staleIterations >= StallThreshold
}

// LastProgressPercent returns the most recently observed progress
// percentage and whether any progress signal has ever been seen.
func (t *Tracker) LastProgressPercent() (int, bool) {
	return t.lastProgressPct, t.haveProgress
}
