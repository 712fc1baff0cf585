package hooks

import (
	"context"
	"fmt"

	"github.com/forgehq/forge/internal/telemetry"
)

// Manager dispatches lifecycle events to the configured hooks bound to
// them, running each candidate in declaration order and stopping at the
// first one that returns a non-Continue action (spec.md §4.7).
type Manager struct {
	cfg      Config
	exec     *Executor
	debugLog func(format string, args ...interface{})
}

// NewManager builds a Manager from a loaded Config.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:      cfg,
		exec:     NewExecutor(),
		debugLog: func(string, ...interface{}) {},
	}
}

// SetDebugLog installs a logging function; pass nil to silence it again.
func (m *Manager) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		m.debugLog = fn
	} else {
		m.debugLog = func(string, ...interface{}) {}
	}
}

// Dispatch runs every hook bound to hookCtx.Event whose Match (if any)
// matches hookCtx.PhaseName, in configuration order, short-circuiting on
// the first non-Continue result.
func (m *Manager) Dispatch(ctx context.Context, hookCtx Context) (Result, error) {
	defs := m.cfg.ForEvent(hookCtx.Event)
	result := Result{Action: ActionContinue}

	for _, def := range defs {
		if !def.Matches(hookCtx.PhaseName) {
			continue
		}
		m.debugLog("[hooks] running %s hook %q for phase %s", hookCtx.Event, def.Command, hookCtx.PhaseName)

		hookCtx2, span := telemetry.StartHook(ctx, string(hookCtx.Event), def.Command)
		r, err := m.exec.Run(hookCtx2, def, hookCtx)
		span.End()
		if err != nil {
			return Result{}, fmt.Errorf("hook %q: %w", def.Command, err)
		}
		m.debugLog("[hooks] %s hook %q -> %s", hookCtx.Event, def.Command, r.Action)

		if r.Inject != "" {
			result.Inject = appendInject(result.Inject, r.Inject)
		}
		if r.Action != ActionContinue {
			result.Action = r.Action
			result.Reason = r.Reason
			return result, nil
		}
	}

	return result, nil
}

func appendInject(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "\n" + next
}

// RunOnApproval runs OnApproval hooks: any Approve/Reject result lets the
// caller bypass or force the interactive approval gate (spec.md §4.5/4.7).
func (m *Manager) RunOnApproval(ctx context.Context, phaseNumber, phaseName string) (Result, error) {
	return m.Dispatch(ctx, Context{Event: OnApproval, PhaseNumber: phaseNumber, PhaseName: phaseName})
}

// RunPrePhase runs PrePhase hooks before a phase's first iteration.
func (m *Manager) RunPrePhase(ctx context.Context, phaseNumber, phaseName, workDir string) (Result, error) {
	return m.Dispatch(ctx, Context{Event: PrePhase, PhaseNumber: phaseNumber, PhaseName: phaseName, WorkDir: workDir})
}

// RunPreIteration runs PreIteration hooks before each worker invocation.
func (m *Manager) RunPreIteration(ctx context.Context, phaseNumber, phaseName string, iteration int) (Result, error) {
	return m.Dispatch(ctx, Context{Event: PreIteration, PhaseNumber: phaseNumber, PhaseName: phaseName, Iteration: iteration})
}

// RunPostIteration runs PostIteration hooks after each worker invocation.
func (m *Manager) RunPostIteration(ctx context.Context, phaseNumber, phaseName string, iteration int, promiseFound bool, added, modified, deleted int) (Result, error) {
	return m.Dispatch(ctx, Context{
		Event: PostIteration, PhaseNumber: phaseNumber, PhaseName: phaseName, Iteration: iteration,
		PromiseFound: promiseFound, FilesAdded: added, FilesModified: modified, FilesDeleted: deleted,
	})
}

// RunOnFailure runs OnFailure hooks when a phase exhausts its budget
// without emitting its promise.
func (m *Manager) RunOnFailure(ctx context.Context, phaseNumber, phaseName, reason string) (Result, error) {
	return m.Dispatch(ctx, Context{Event: OnFailure, PhaseNumber: phaseNumber, PhaseName: phaseName, FailureReason: reason})
}

// RunPostPhase runs PostPhase hooks after a phase reaches any terminal
// outcome.
func (m *Manager) RunPostPhase(ctx context.Context, phaseNumber, phaseName string) (Result, error) {
	return m.Dispatch(ctx, Context{Event: PostPhase, PhaseNumber: phaseNumber, PhaseName: phaseName})
}
