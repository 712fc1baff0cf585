// Package models holds the data types shared across Forge's engine packages:
// phases, iteration results, signals, change summaries and run state.
package models

import "fmt"

// PermissionMode controls how much autonomy a phase's iterations are given.
type PermissionMode string

const (
	// PermissionStandard asks for approval once per phase, then runs freely.
	PermissionStandard PermissionMode = "standard"
	// PermissionStrict asks for approval before every iteration.
	PermissionStrict PermissionMode = "strict"
	// PermissionAutonomous never prompts; the Progress Tracker may still interrupt.
	PermissionAutonomous PermissionMode = "autonomous"
	// PermissionReadonly forbids any filesystem change; any change fails the phase.
	PermissionReadonly PermissionMode = "readonly"
)

// Valid reports whether m is a known permission mode.
func (m PermissionMode) Valid() bool {
	switch m {
	case PermissionStandard, PermissionStrict, PermissionAutonomous, PermissionReadonly:
		return true
	default:
		return false
	}
}

// Phase is the immutable configuration for one unit of worker-driven work.
type Phase struct {
	// Number is the phase's identifier, e.g. "01" or "05.1". Lexicographic
	// order over Number defines the default sequential order.
	Number string `json:"number"`
	// Name is a short human-readable label.
	Name string `json:"name"`
	// Description is the prompt text given to the worker.
	Description string `json:"description"`
	// Promise is the sentinel token the worker must emit to declare completion.
	Promise string `json:"promise"`
	// Budget is the maximum number of worker invocations allowed.
	Budget int `json:"budget"`
	// PermissionMode governs the approval gate for this phase.
	PermissionMode PermissionMode `json:"permission_mode,omitempty"`
	// DependsOn is the set of phase numbers this phase's DAG node depends on.
	DependsOn []string `json:"depends_on,omitempty"`
	// Skills is an optional list of named prompt fragments injected into the prompt.
	Skills []string `json:"skills,omitempty"`
	// ContextLimit optionally overrides the run's default context limit
	// (a percentage like "80%" or an absolute character count like "50000").
	ContextLimit string `json:"context_limit,omitempty"`
}

// Validate checks the invariants spec.md §3 places on a single Phase in
// isolation (uniqueness and cross-phase dependency resolution are checked
// by the caller holding the full phase set — see internal/dag).
func (p *Phase) Validate() error {
	if p.Number == "" {
		return fmt.Errorf("phase: number is required")
	}
	if p.Promise == "" {
		return fmt.Errorf("phase %s: promise is required", p.Number)
	}
	if p.Budget <= 0 {
		return fmt.Errorf("phase %s: budget must be positive, got %d", p.Number, p.Budget)
	}
	if p.PermissionMode != "" && !p.PermissionMode.Valid() {
		return fmt.Errorf("phase %s: unknown permission_mode %q", p.Number, p.PermissionMode)
	}
	return nil
}

// EffectivePermissionMode returns the phase's permission mode, defaulting to
// PermissionStandard when unset.
func (p *Phase) EffectivePermissionMode() PermissionMode {
	if p.PermissionMode == "" {
		return PermissionStandard
	}
	return p.PermissionMode
}

// PhaseOutcome is the terminal result of running one phase to completion,
// failure, or abort.
type PhaseOutcome struct {
	Kind PhaseOutcomeKind
	// Iteration is the 1-based iteration at which the outcome was reached.
	Iteration int
	// Path is set for ReadonlyViolation: the file that triggered it.
	Path string
	// Reason is set for HookBlocked: the hook-supplied message.
	Reason string
	// Changes accumulates every file touched across the phase's iterations,
	// used by the DAG Executor to feed the next phase's auto-approve-threshold
	// check (spec.md §4.5) and to decide whether a worktree holds anything to
	// merge back.
	Changes *ChangeSummary
}

// PhaseOutcomeKind enumerates the terminal states a Phase Runner can reach.
type PhaseOutcomeKind string

const (
	OutcomeCompleted            PhaseOutcomeKind = "completed"
	OutcomeMaxIterationsReached PhaseOutcomeKind = "max_iterations_reached"
	OutcomeUserAborted          PhaseOutcomeKind = "user_aborted"
	OutcomeReadonlyViolation    PhaseOutcomeKind = "readonly_violation"
	OutcomeHookBlocked          PhaseOutcomeKind = "hook_blocked"
)

func (o PhaseOutcome) String() string {
	switch o.Kind {
	case OutcomeCompleted:
		return fmt.Sprintf("completed(iter=%d)", o.Iteration)
	case OutcomeReadonlyViolation:
		return fmt.Sprintf("readonly_violation(%s)", o.Path)
	case OutcomeHookBlocked:
		return fmt.Sprintf("hook_blocked(%s)", o.Reason)
	default:
		return string(o.Kind)
	}
}
