package models

import "time"

// PhaseStatusKind is the lifecycle status recorded for a phase in the
// sequential run-state file (spec.md §6).
type PhaseStatusKind string

const (
	PhaseStarted        PhaseStatusKind = "started"
	PhaseCompleted       PhaseStatusKind = "completed"
	PhaseMaxIterations   PhaseStatusKind = "max_iterations"
)

// PhaseStatus is one `(phase, iteration, status, timestamp)` tuple appended
// to the sequential state file.
type PhaseStatus struct {
	PhaseNumber string
	Iteration   int
	Status      PhaseStatusKind
	Timestamp   time.Time
}

// RunPhaseState is the state of one phase within a swarm RunState (spec.md §3).
type RunPhaseState string

const (
	RunPending   RunPhaseState = "pending"
	RunReady     RunPhaseState = "ready"
	RunRunning   RunPhaseState = "running"
	RunSucceeded RunPhaseState = "succeeded"
	RunFailed    RunPhaseState = "failed"
	RunSkipped   RunPhaseState = "skipped"
)

// CanTransitionTo reports whether moving from s to next is a legal, monotone
// transition under spec.md §3's RunState invariant (transitions monotone
// except ready -> running -> terminal).
func (s RunPhaseState) CanTransitionTo(next RunPhaseState) bool {
	switch s {
	case RunPending:
		return next == RunReady || next == RunSkipped
	case RunReady:
		return next == RunRunning || next == RunSkipped
	case RunRunning:
		return next == RunSucceeded || next == RunFailed || next == RunSkipped
	default:
		// Succeeded, Failed, Skipped are terminal.
		return false
	}
}

// SwarmSnapshot is the JSON document persisted as the swarm status file
// (spec.md §6): a point-in-time view of run progress.
type SwarmSnapshot struct {
	StartedAt time.Time `json:"started_at"`
	State     map[string]RunPhaseState `json:"state"`
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Running   int `json:"running"`
	Failed    int `json:"failed"`
}
