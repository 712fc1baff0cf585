// Package dag builds the phase dependency graph and computes execution
// waves for the swarm scheduler (spec.md §4.6).
package dag

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/forgehq/forge/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the phase
// graph.
var ErrCycleDetected = errors.New("circular dependency detected among phases")

// Graph is a directed acyclic graph of phase dependencies. Phases are
// nodes; edges represent "blocked by" relationships. It is safe for
// concurrent use, since the scheduler mutates it from multiple worker
// goroutines as phases complete.
type Graph struct {
	mu sync.RWMutex

	nodes map[string]*models.Phase
	edges map[string][]string // phase key -> keys of the phases it depends on
	state map[string]models.RunPhaseState

	debugLog func(format string, args ...interface{})
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*models.Phase),
		edges:    make(map[string][]string),
		state:    make(map[string]models.RunPhaseState),
		debugLog: func(string, ...interface{}) {},
	}
}

// SetDebugLog installs a logging function; pass nil to go back to silent.
func (g *Graph) SetDebugLog(fn func(format string, args ...interface{})) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if fn != nil {
		g.debugLog = fn
	} else {
		g.debugLog = func(string, ...interface{}) {}
	}
}

func phaseKey(p *models.Phase) string {
	return fmt.Sprintf("%s:%s", p.Number, p.Name)
}

// Build constructs the graph from a slice of phases, validating that every
// dependency resolves and that the resulting graph is acyclic (spec.md §8
// invariant 1: "a cyclic depends_on graph is rejected before any phase
// runs").
func (g *Graph) Build(phases []*models.Phase) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.debugLog("[dag.Build] building graph from %d phases", len(phases))

	byNumber := make(map[string]*models.Phase, len(phases))
	for _, p := range phases {
		byNumber[p.Number] = p
		key := phaseKey(p)
		g.nodes[key] = p
		g.edges[key] = nil
		g.state[key] = models.RunPending
	}

	for _, p := range phases {
		key := phaseKey(p)
		for _, depNumber := range p.DependsOn {
			dep, ok := byNumber[depNumber]
			if !ok {
				return fmt.Errorf("phase %q depends on unknown phase number %q", p.Name, depNumber)
			}
			g.edges[key] = append(g.edges[key], phaseKey(dep))
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}

	g.debugLog("[dag.Build] graph built with %d nodes", len(g.nodes))
	return nil
}

// HasCycle reports whether the graph currently contains a circular
// dependency.
func (g *Graph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

func (g *Graph) hasCycleLocked() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = gray
		for _, dep := range g.edges[id] {
			switch colors[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for id := range g.nodes {
		if colors[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// Waves computes the execution waves of the graph via Kahn's algorithm:
// wave 0 holds every phase with no dependencies, wave 1 every phase whose
// dependencies are all in wave 0, and so on. Phases within a wave have no
// ordering constraint between them and are the unit the scheduler fans out
// in parallel, bounded by max_parallel (spec.md §4.6).
//
// Keys are returned in the graph's internal "number:name" form sorted
// lexically within each wave, for deterministic test output; the scheduler
// dereferences them back to *models.Phase via Phase.
func (g *Graph) Waves() ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	indegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.edges[id])
	}
	for id, deps := range g.edges {
		for _, dep := range deps {
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var waves [][]string
	remaining := len(g.nodes)
	frontier := make([]string, 0)
	for id, deg := range indegree {
		if deg == 0 {
			frontier = append(frontier, id)
		}
	}

	for len(frontier) > 0 {
		sort.Strings(frontier)
		waves = append(waves, frontier)
		remaining -= len(frontier)

		var next []string
		for _, id := range frontier {
			for _, dep := range dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}

	if remaining != 0 {
		// Should be unreachable given the cycle check above, but guards
		// against a future edge-mutation bug leaving orphaned nodes.
		return nil, ErrCycleDetected
	}

	return waves, nil
}

// Phase returns the phase registered under key, or nil if unknown.
func (g *Graph) Phase(key string) *models.Phase {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[key]
}

// Key returns the internal node key for a phase, for callers that only
// have the *models.Phase and need to call State/SetState.
func Key(p *models.Phase) string {
	return phaseKey(p)
}

// State returns the current run state of a phase.
func (g *Graph) State(key string) models.RunPhaseState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state[key]
}

// SetState transitions a phase's run state, enforcing the monotone
// transition rules in models.RunPhaseState.CanTransitionTo.
func (g *Graph) SetState(key string, next models.RunPhaseState) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cur := g.state[key]
	if !cur.CanTransitionTo(next) {
		return fmt.Errorf("phase %q: invalid state transition %s -> %s", key, cur, next)
	}
	g.state[key] = next
	g.debugLog("[dag.SetState] phase %s: %s -> %s", key, cur, next)
	return nil
}

// Ready returns the keys of phases whose dependencies have all succeeded
// and which are themselves still pending — the schedulable work at this
// moment, recomputed from current state on every call.
func (g *Graph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id := range g.nodes {
		if g.state[id] != models.RunPending {
			continue
		}
		allDepsSucceeded := true
		for _, dep := range g.edges[id] {
			if g.state[dep] != models.RunSucceeded {
				allDepsSucceeded = false
				break
			}
		}
		if allDepsSucceeded {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)
	return ready
}

// Blocked returns the keys of pending phases that can never become ready
// because at least one dependency has failed or was skipped — used to
// cascade-skip downstream work after each wave (spec.md §4.6).
func (g *Graph) Blocked() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var blocked []string
	for id := range g.nodes {
		if g.state[id] != models.RunPending {
			continue
		}
		for _, dep := range g.edges[id] {
			s := g.state[dep]
			if s == models.RunFailed || s == models.RunSkipped {
				blocked = append(blocked, id)
				break
			}
		}
	}
	sort.Strings(blocked)
	return blocked
}

// Snapshot returns a point-in-time SwarmSnapshot summarizing phase states,
// used to render status output and write the audit swarm-state file
// (spec.md §4.9).
func (g *Graph) Snapshot() models.SwarmSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := models.SwarmSnapshot{
		State: make(map[string]models.RunPhaseState, len(g.state)),
		Total: len(g.nodes),
	}
	for id, s := range g.state {
		snap.State[id] = s
		switch s {
		case models.RunSucceeded:
			snap.Completed++
		case models.RunRunning:
			snap.Running++
		case models.RunFailed:
			snap.Failed++
		}
	}
	return snap
}
