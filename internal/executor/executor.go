// Package executor implements the DAG Scheduler & Executor (spec.md §4.4):
// it computes execution waves over a phase dependency graph and drives each
// wave's phases to completion concurrently, up to a configured parallelism
// cap, isolating each phase's filesystem effects in its own git worktree
// and merging successful work back into an integration branch between
// waves.
package executor

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/forgehq/forge/internal/approval"
	"github.com/forgehq/forge/internal/changes"
	"github.com/forgehq/forge/internal/dag"
	"github.com/forgehq/forge/internal/git"
	"github.com/forgehq/forge/internal/hooks"
	"github.com/forgehq/forge/internal/phase"
	"github.com/forgehq/forge/internal/progress"
	"github.com/forgehq/forge/internal/skills"
	"github.com/forgehq/forge/internal/telemetry"
	"github.com/forgehq/forge/internal/worker"
	"github.com/forgehq/forge/pkg/models"
)

// Config is the Executor's run-level configuration (spec.md §4.4).
type Config struct {
	// RunID names this run for worktree branch naming: forge/<run-id>/<phase>.
	RunID string
	// IntegrationBranch receives each phase's branch as soon as that phase
	// completes; defaults to "main".
	IntegrationBranch string
	// MaxParallel bounds how many phases in a wave run concurrently.
	MaxParallel int
	// FailFast cancels the run's remaining work on the first phase failure.
	FailFast bool
	// Yes suppresses interactive stall/blocker prompts inside each phase.
	Yes bool
	// SessionContinuity threads each iteration's session id into the next.
	SessionContinuity bool
	// Skills resolves each phase's skill names into prompt text; nil if
	// this run has no skill fragments configured.
	Skills skills.Resolver
}

// Executor drives a dag.Graph of phases to a terminal models.ExecutionResult.
type Executor struct {
	graph          *dag.Graph
	gate           *approval.Gate
	hooks          *hooks.Manager
	worktrees      *changes.WorktreeManager
	invokerFactory func() worker.Invoker
	statusFactory  func(workDir string) changes.StatusReader
	cfg            Config

	events   chan models.PhaseEvent
	debugLog func(format string, args ...interface{})
}

// New builds an Executor. invokerFactory must return a fresh worker.Invoker
// per call, since one Invoker is not required to be safe for concurrent
// use and each phase in a wave may run simultaneously in its own worktree.
// statusFactory builds the changes.StatusReader a phase's Runner polls for
// its own worktree; pass nil to use a real git.Runner rooted at workDir.
func New(g *dag.Graph, gate *approval.Gate, hookMgr *hooks.Manager, worktrees *changes.WorktreeManager, invokerFactory func() worker.Invoker, statusFactory func(workDir string) changes.StatusReader, cfg Config) *Executor {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	if cfg.IntegrationBranch == "" {
		cfg.IntegrationBranch = "main"
	}
	if statusFactory == nil {
		statusFactory = func(workDir string) changes.StatusReader { return git.NewRunner(workDir) }
	}
	return &Executor{
		graph:          g,
		gate:           gate,
		hooks:          hookMgr,
		worktrees:      worktrees,
		invokerFactory: invokerFactory,
		statusFactory:  statusFactory,
		cfg:            cfg,
		events:         make(chan models.PhaseEvent, 64),
		debugLog:       func(string, ...interface{}) {},
	}
}

// SetDebugLog installs a logging function; pass nil to silence it again.
func (e *Executor) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		e.debugLog = fn
	} else {
		e.debugLog = func(string, ...interface{}) {}
	}
}

// Events returns the bounded channel of phase state-transition events
// (spec.md §4.4 step 3). Execute closes it when the run ends.
func (e *Executor) Events() <-chan models.PhaseEvent {
	return e.events
}

// runState is the executor's mutable cross-wave bookkeeping, guarded by mu.
type runState struct {
	mu              sync.Mutex
	summary         models.ExecutionSummary
	previousChanges int
	globalAbort     bool
}

// Execute runs every phase in the graph to a terminal run state, wave by
// wave, and returns the aggregate result (spec.md §4.4). Waves are
// recomputed on every pass rather than fixed up front, since a phase's
// Decomposition Detector can add new sub-phase nodes to the graph mid-run
// (spec.md §4.8); recomputing lets those sub-phases be picked up and
// scheduled without a second Execute call.
func (e *Executor) Execute(ctx context.Context) (models.ExecutionResult, error) {
	defer close(e.events)

	rs := &runState{}
	waveIndex := 0

	for {
		waves, err := e.graph.Waves()
		if err != nil {
			return models.ExecutionResult{}, fmt.Errorf("compute waves: %w", err)
		}

		total := 0
		for _, w := range waves {
			total += len(w)
		}
		rs.mu.Lock()
		rs.summary.Total = total
		rs.mu.Unlock()

		if rs.snapshotAbort() {
			// Skip every still-pending phase across the whole graph in one
			// pass and stop; recomputing waves again would just see the
			// same pending set if a SetState transition ever failed.
			for _, w := range waves {
				e.cascadeSkipPending(rs, w)
			}
			break
		}

		wave := e.nextPendingWave(waves)
		if wave == nil {
			break
		}

		if err := e.runWave(ctx, rs, waveIndex, wave); err != nil {
			return models.ExecutionResult{}, err
		}
		waveIndex++

		// A failure cascades to any pending phase (in this wave or a later
		// one) that now depends on something failed or skipped.
		e.cascadeBlocked(rs)
	}

	final := models.ExecutionResult{
		Success: rs.finalSuccess(),
		Summary: rs.finalSummary(),
	}
	return final, nil
}

// nextPendingWave returns the first wave (in topological order) that still
// has at least one pending phase, or nil once every wave is resolved.
func (e *Executor) nextPendingWave(waves [][]string) []string {
	for _, w := range waves {
		if runnable := e.pendingIn(w); len(runnable) > 0 {
			return runnable
		}
	}
	return nil
}

func (e *Executor) pendingIn(keys []string) []string {
	var out []string
	for _, k := range keys {
		if e.graph.State(k) == models.RunPending {
			out = append(out, k)
		}
	}
	return out
}

func (rs *runState) snapshotAbort() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.globalAbort
}

func (rs *runState) finalSuccess() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return !rs.globalAbort && rs.summary.Failed == 0
}

func (rs *runState) finalSummary() models.ExecutionSummary {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.summary
}

// cascadeSkipPending marks every still-pending key in keys as Skipped,
// used once a global abort has been requested so later waves don't run.
func (e *Executor) cascadeSkipPending(rs *runState, keys []string) {
	for _, k := range keys {
		if e.graph.State(k) != models.RunPending {
			continue
		}
		if err := e.graph.SetState(k, models.RunSkipped); err != nil {
			e.debugLog("[executor] cascade skip %s: %v", k, err)
			continue
		}
		ph := e.graph.Phase(k)
		rs.mu.Lock()
		rs.summary.Skipped++
		rs.mu.Unlock()
		e.emit(models.PhaseEvent{Kind: models.EventSkipped, PhaseNumber: ph.Number, PhaseName: ph.Name, Message: "run aborted"})
	}
}

// cascadeBlocked marks every pending phase that dag.Blocked() reports as
// unreachable (a dependency failed or was skipped) as Skipped, and repeats
// until no more cascade as a result (dotted sub-phase chains can cascade
// transitively in one pass since Blocked recomputes from current state).
func (e *Executor) cascadeBlocked(rs *runState) {
	for {
		blocked := e.graph.Blocked()
		if len(blocked) == 0 {
			return
		}
		progressed := false
		for _, k := range blocked {
			if e.graph.State(k) != models.RunPending {
				continue
			}
			if err := e.graph.SetState(k, models.RunSkipped); err != nil {
				continue
			}
			progressed = true
			ph := e.graph.Phase(k)
			rs.mu.Lock()
			rs.summary.Skipped++
			rs.mu.Unlock()
			e.emit(models.PhaseEvent{Kind: models.EventSkipped, PhaseNumber: ph.Number, PhaseName: ph.Name, Message: "upstream failed"})
		}
		if !progressed {
			return
		}
	}
}

// emit sends ev on the bounded event channel, blocking until the consumer
// (Events()) drains space — spec.md §5's "producers back-pressure when
// full" rules out dropping events under load.
func (e *Executor) emit(ev models.PhaseEvent) {
	e.events <- ev
}

// runWave runs every key in a single wave concurrently, bounded by
// cfg.MaxParallel, and returns once they have all reached a terminal state
// (or the wave was cancelled by a fail_fast failure).
func (e *Executor) runWave(ctx context.Context, rs *runState, waveIndex int, keys []string) error {
	waveCtx, waveCancel := context.WithCancel(ctx)
	defer waveCancel()

	waveCtx, span := telemetry.StartWave(waveCtx, waveIndex, len(keys))
	defer span.End()

	g, gctx := errgroup.WithContext(waveCtx)
	sem := make(chan struct{}, e.cfg.MaxParallel)

	for _, key := range keys {
		key := key
		ph := e.graph.Phase(key)
		if ph == nil {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			return nil
		}

		g.Go(func() error {
			defer func() { <-sem }()
			failFastTriggered, err := e.runPhase(gctx, rs, key, ph)
			if err != nil {
				return err
			}
			if failFastTriggered {
				waveCancel()
			}
			return nil
		})
	}

	return g.Wait()
}

// runPhase runs one phase to completion inside its own worktree, updating
// graph state and the run-level summary. It returns (true, nil) when this
// phase's failure should cancel the rest of the wave (fail_fast), and a
// non-nil error only for an executor-level failure (e.g. worktree setup)
// that always aborts the run regardless of fail_fast.
func (e *Executor) runPhase(ctx context.Context, rs *runState, key string, ph *models.Phase) (bool, error) {
	ctx, span := telemetry.StartPhase(ctx, ph.Number, ph.Name)
	defer span.End()

	if ph.EffectivePermissionMode() == models.PermissionStandard {
		prev := rs.snapshotPreviousChanges()
		decision, err := e.gate.DecidePhase(ctx, ph, prev)
		if err != nil {
			return false, fmt.Errorf("phase %s: approval gate: %w", ph.Number, err)
		}
		switch decision {
		case approval.Rejected:
			_ = e.graph.SetState(key, models.RunReady)
			_ = e.graph.SetState(key, models.RunSkipped)
			rs.mu.Lock()
			rs.summary.Skipped++
			rs.mu.Unlock()
			e.emit(models.PhaseEvent{Kind: models.EventSkipped, PhaseNumber: ph.Number, PhaseName: ph.Name, Message: "rejected"})
			return false, nil
		case approval.Aborted:
			_ = e.graph.SetState(key, models.RunReady)
			_ = e.graph.SetState(key, models.RunSkipped)
			rs.mu.Lock()
			rs.globalAbort = true
			rs.summary.Skipped++
			rs.mu.Unlock()
			e.emit(models.PhaseEvent{Kind: models.EventSkipped, PhaseNumber: ph.Number, PhaseName: ph.Name, Message: "aborted by hook or user"})
			return true, nil
		}
	}

	if err := e.graph.SetState(key, models.RunReady); err != nil {
		return false, fmt.Errorf("phase %s: %w", ph.Number, err)
	}
	if err := e.graph.SetState(key, models.RunRunning); err != nil {
		return false, fmt.Errorf("phase %s: %w", ph.Number, err)
	}
	e.emit(models.PhaseEvent{Kind: models.EventStarted, PhaseNumber: ph.Number, PhaseName: ph.Name})

	wt, err := e.worktrees.Create(e.cfg.RunID, ph.Number)
	if err != nil {
		return false, fmt.Errorf("phase %s: create worktree: %w", ph.Number, err)
	}

	runner := phase.New(e.invokerFactory(), e.hooks, e.gate, e.statusFactory(wt.Path), wt.Path)
	runner.SessionContinuity = e.cfg.SessionContinuity
	runner.Yes = e.cfg.Yes
	runner.Skills = e.cfg.Skills

	outcome, plan, err := runner.Run(ctx, ph)
	if err != nil && err != phase.ErrGlobalAbort {
		return false, fmt.Errorf("phase %s: %w", ph.Number, err)
	}

	if plan != nil {
		if schedErr := e.scheduleSubPhases(ph, plan); schedErr != nil {
			e.debugLog("[executor] phase %s: %v", ph.Number, schedErr)
		}
	}

	if outcome.Changes != nil {
		rs.mu.Lock()
		rs.previousChanges = outcome.Changes.Count()
		rs.mu.Unlock()
	}

	switch outcome.Kind {
	case models.OutcomeCompleted:
		if mergeErr := e.mergeBack(wt, outcome.Changes); mergeErr != nil {
			e.debugLog("[executor] phase %s: merge back failed: %v", ph.Number, mergeErr)
			return e.markFailed(rs, key, ph, "merge back failed: "+mergeErr.Error())
		}
		if err := e.graph.SetState(key, models.RunSucceeded); err != nil {
			return false, fmt.Errorf("phase %s: %w", ph.Number, err)
		}
		rs.mu.Lock()
		rs.summary.Completed++
		rs.mu.Unlock()
		e.emit(models.PhaseEvent{Kind: models.EventCompleted, PhaseNumber: ph.Number, PhaseName: ph.Name, Iteration: outcome.Iteration})
		return false, nil

	case models.OutcomeUserAborted:
		if err == phase.ErrGlobalAbort {
			rs.mu.Lock()
			rs.globalAbort = true
			rs.mu.Unlock()
			_ = e.graph.SetState(key, models.RunFailed)
			rs.mu.Lock()
			rs.summary.Failed++
			rs.mu.Unlock()
			e.emit(models.PhaseEvent{Kind: models.EventFailed, PhaseNumber: ph.Number, PhaseName: ph.Name, Message: "aborted"})
			return true, nil
		}
		return e.markFailed(rs, key, ph, "stopped by user")

	case models.OutcomeReadonlyViolation:
		return e.markFailed(rs, key, ph, fmt.Sprintf("readonly violation: %s", outcome.Path))

	case models.OutcomeHookBlocked:
		return e.markFailed(rs, key, ph, fmt.Sprintf("hook blocked: %s", outcome.Reason))

	default: // OutcomeMaxIterationsReached
		return e.markFailed(rs, key, ph, "budget exhausted without promise")
	}
}

// scheduleSubPhases converts a validated decomposition plan into dotted
// sub-phases (spec.md §4.8: "05" -> "05.1", "05.2", ...) and adds them to
// the run's graph so Execute's next pass schedules them like any other
// phase. The parent phase's own outcome is unaffected by its decomposition
// request; sub-phases are additional work, not a replacement for it.
func (e *Executor) scheduleSubPhases(parent *models.Phase, plan *models.DecompositionPlan) error {
	subPhases := progress.ToSubPhases(parent, plan)
	if err := e.graph.Build(subPhases); err != nil {
		return fmt.Errorf("schedule decomposition: %w", err)
	}
	e.debugLog("[executor] phase %s: decomposition plan scheduled %d sub-phase(s)", parent.Number, len(subPhases))
	return nil
}

// markFailed transitions a phase to Failed, records the event, and reports
// whether fail_fast should cancel the rest of this wave. Under fail_fast it
// also sets globalAbort, so Execute skips every phase still pending.
func (e *Executor) markFailed(rs *runState, key string, ph *models.Phase, reason string) (bool, error) {
	if err := e.graph.SetState(key, models.RunFailed); err != nil {
		return false, fmt.Errorf("phase %s: %w", ph.Number, err)
	}
	rs.mu.Lock()
	rs.summary.Failed++
	if e.cfg.FailFast {
		rs.globalAbort = true
	}
	rs.mu.Unlock()
	e.emit(models.PhaseEvent{Kind: models.EventFailed, PhaseNumber: ph.Number, PhaseName: ph.Name, Message: reason})
	return e.cfg.FailFast, nil
}

func (rs *runState) snapshotPreviousChanges() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.previousChanges
}

// mergeBack merges a completed phase's worktree branch into the
// integration branch and removes the worktree (spec.md §4.4 step 5). A
// phase with no recorded changes has nothing to merge.
func (e *Executor) mergeBack(wt *changes.Worktree, changeSummary *models.ChangeSummary) error {
	if changeSummary == nil || changeSummary.IsEmpty() {
		return e.worktrees.Remove(wt.Path, false)
	}
	if err := e.worktrees.MergeBack(e.cfg.IntegrationBranch, wt.BranchName); err != nil {
		return err
	}
	return e.worktrees.Remove(wt.Path, false)
}
