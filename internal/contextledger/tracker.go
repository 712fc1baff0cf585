package contextledger

import (
	"fmt"

	"github.com/forgehq/forge/pkg/models"
)

// Tracker accounts prompt/output bytes per iteration for a single phase and
// decides when compaction is due (spec.md §4.3).
type Tracker struct {
	state          models.ContextState
	modelWindow    int
	limit          Limit
	ineffective    bool // set if the most recent compaction failed to bring total_used below threshold
}

// New creates a Tracker for one phase given its effective context limit and
// the assumed model window size.
func New(limit Limit, modelWindowChars int) (*Tracker, error) {
	effective := limit.Effective(modelWindowChars)
	if effective <= MinPreservedContext {
		return nil, fmt.Errorf("effective context limit %d must exceed MIN_PRESERVED_CONTEXT (%d)", effective, MinPreservedContext)
	}
	return &Tracker{
		state: models.ContextState{
			EffectiveLimit: effective,
		},
		modelWindow: modelWindowChars,
		limit:       limit,
	}, nil
}

// NewDefault creates a Tracker using DefaultModelWindowChars.
func NewDefault(limit Limit) (*Tracker, error) {
	return New(limit, DefaultModelWindowChars)
}

// AddIteration records one worker invocation's byte counts.
func (t *Tracker) AddIteration(promptChars, outputChars int) {
	rec := models.IterationRecord{
		IterNo:      len(t.state.Iterations) + 1,
		PromptChars: promptChars,
		OutputChars: outputChars,
	}
	t.state.Iterations = append(t.state.Iterations, rec)
	t.state.TotalUsed += rec.Bytes()
}

// triggerThreshold is the byte count at or above which should_compact()
// returns true: effective_limit * (1 - safety_margin).
func (t *Tracker) triggerThreshold() int {
	return int(float64(t.state.EffectiveLimit) * (1 - CompactionSafetyMarginPct/100.0))
}

// ShouldCompact reports whether compaction is due. A minimum of two
// recorded iterations is required, and a phase whose only record is
// synthetic (i.e. it was resumed mid-run from a prior compaction) must not
// be compacted again until a real iteration is recorded (spec.md §9).
func (t *Tracker) ShouldCompact() bool {
	if len(t.state.Iterations) < 2 {
		return false
	}
	if t.onlySyntheticRecord() {
		return false
	}
	return t.state.TotalUsed >= t.triggerThreshold()
}

func (t *Tracker) onlySyntheticRecord() bool {
	if len(t.state.Iterations) != 1 {
		return false
	}
	return t.state.Iterations[0].Synthetic
}

// TotalUsed returns the current accounted byte total.
func (t *Tracker) TotalUsed() int {
	return t.state.TotalUsed
}

// EffectiveLimit returns the resolved effective character limit.
func (t *Tracker) EffectiveLimit() int {
	return t.state.EffectiveLimit
}

// Iterations returns a copy of the currently tracked iteration records.
func (t *Tracker) Iterations() []models.IterationRecord {
	out := make([]models.IterationRecord, len(t.state.Iterations))
	copy(out, t.state.Iterations)
	return out
}

// CompactionEvents returns every compaction event recorded so far.
func (t *Tracker) CompactionEvents() []models.CompactionEvent {
	out := make([]models.CompactionEvent, len(t.state.CompactionEvents))
	copy(out, t.state.CompactionEvents)
	return out
}

// WasLastCompactionIneffective reports whether, after the most recent
// compaction, total_used remained at or above the trigger threshold
// (spec.md §8 invariant 2: a CompactionIneffective condition is reported
// rather than silently looping).
func (t *Tracker) WasLastCompactionIneffective() bool {
	return t.ineffective
}

// applyCompaction replaces the summarized records with a single synthetic
// record and appends the CompactionEvent. Called by Manager.Compact.
func (t *Tracker) applyCompaction(summarizedCount, summaryChars int) models.CompactionEvent {
	kept := t.state.Iterations[summarizedCount:]
	var originalChars int
	for _, r := range t.state.Iterations[:summarizedCount] {
		originalChars += r.Bytes()
	}

	synthetic := models.IterationRecord{
		IterNo:      t.state.Iterations[0].IterNo,
		OutputChars: summaryChars,
		Synthetic:   true,
	}

	newIterations := make([]models.IterationRecord, 0, len(kept)+1)
	newIterations = append(newIterations, synthetic)
	newIterations = append(newIterations, kept...)
	t.state.Iterations = newIterations

	t.state.TotalUsed = t.state.TotalUsed - originalChars + summaryChars

	event := models.CompactionEvent{
		IterationsSummarized: summarizedCount,
		OriginalChars:        originalChars,
		SummaryChars:         summaryChars,
	}
	t.state.CompactionEvents = append(t.state.CompactionEvents, event)
	t.ineffective = t.state.TotalUsed >= t.triggerThreshold()
	return event
}
