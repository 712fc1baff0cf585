package progress

import (
	"fmt"
	"strings"

	"github.com/forgehq/forge/pkg/models"
)

// complexityKeywords trigger the Decomposition Detector when found inside a
// blocker's description (spec.md §4.8), matched case-insensitively.
var complexityKeywords = []string{
	"complex",
	"multiple",
	"too large",
	"needs decomposition",
	"several",
	"split",
	"parallel",
}

// ShouldTriggerDecomposition reports whether the Decomposition Detector
// fires for this iteration. All three conditions must hold in the same
// iteration (spec.md §4.8):
//
//	(a) iter > budget * 50%
//	(b) latest progress < 30%
//	(c) the worker emitted a decomposition request, or a blocker whose
//	    description contains a complexity keyword
func ShouldTriggerDecomposition(iter, budget int, latestProgressPct int, haveProgress bool, signals models.IterationSignals) bool {
	if budget <= 0 || iter*2 <= budget {
		return false
	}
	if haveProgress && latestProgressPct >= 30 {
		return false
	}

	if signals.DecompositionRequest != nil {
		return true
	}
	for _, b := range signals.Blockers {
		if containsComplexityKeyword(b.Description) {
			return true
		}
	}
	return false
}

func containsComplexityKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range complexityKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// PlanValidationError describes why a decomposition plan was rejected.
type PlanValidationError struct {
	Reason string
}

func (e *PlanValidationError) Error() string {
	return e.Reason
}

const (
	minDecompositionTasks = 2
	maxDecompositionTasks = 10
	// budgetBufferPct is reserved against remainingBudget so a
	// decomposition can never exactly exhaust the parent phase's
	// remaining iterations (spec.md §4.8).
	budgetBufferPct = 10
)

// ValidatePlan checks a worker-proposed decomposition plan against the
// invariants in spec.md §4.8: between 2 and 10 tasks, unique ids, no
// dangling dependency, no dependency cycle, and a total budget that fits
// within the parent phase's remaining budget less a 10% buffer.
func ValidatePlan(plan *models.DecompositionPlan, remainingBudget int) error {
	if plan == nil {
		return &PlanValidationError{Reason: "plan is nil"}
	}
	tasks := plan.AllTasks()
	if len(tasks) < minDecompositionTasks || len(tasks) > maxDecompositionTasks {
		return &PlanValidationError{Reason: fmt.Sprintf("plan has %d tasks, want between %d and %d", len(tasks), minDecompositionTasks, maxDecompositionTasks)}
	}

	seen := make(map[string]bool, len(tasks))
	totalBudget := 0
	for _, t := range tasks {
		if t.ID == "" {
			return &PlanValidationError{Reason: "task with empty id"}
		}
		if seen[t.ID] {
			return &PlanValidationError{Reason: fmt.Sprintf("duplicate task id %q", t.ID)}
		}
		seen[t.ID] = true
		totalBudget += t.Budget
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return &PlanValidationError{Reason: fmt.Sprintf("task %q depends on unknown task %q", t.ID, dep)}
			}
		}
	}

	if err := detectCycle(tasks); err != nil {
		return err
	}

	buffer := remainingBudget * budgetBufferPct / 100
	allowed := remainingBudget - buffer
	if totalBudget > allowed {
		return &PlanValidationError{Reason: fmt.Sprintf("plan budget %d exceeds remaining budget %d less %d%% buffer (%d)", totalBudget, remainingBudget, budgetBufferPct, allowed)}
	}

	return nil
}

func detectCycle(tasks []models.DecompositionTask) error {
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.DependsOn
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(tasks))

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, dep := range deps[id] {
			switch color[dep] {
			case gray:
				return &PlanValidationError{Reason: fmt.Sprintf("dependency cycle involving task %q", id)}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, t := range tasks {
		if color[t.ID] == white {
			if err := visit(t.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ToSubPhases converts a validated plan into sub-phases of parent, numbered
// with parent's dotted number suffix (e.g. phase "05" becomes "05.1",
// "05.2", ...), preserving each task's declared dependencies by id.
func ToSubPhases(parent *models.Phase, plan *models.DecompositionPlan) []*models.Phase {
	tasks := plan.AllTasks()
	idToNumber := make(map[string]string, len(tasks))
	for i, t := range tasks {
		idToNumber[t.ID] = fmt.Sprintf("%s.%d", parent.Number, i+1)
	}

	subPhases := make([]*models.Phase, 0, len(tasks))
	for _, t := range tasks {
		deps := make([]string, 0, len(t.DependsOn))
		for _, d := range t.DependsOn {
			deps = append(deps, idToNumber[d])
		}
		subPhases = append(subPhases, &models.Phase{
			Number:         idToNumber[t.ID],
			Name:           t.Name,
			Description:    t.Description,
			Promise:        fmt.Sprintf("%s: %s complete", parent.Promise, t.Name),
			Budget:         t.Budget,
			PermissionMode: parent.PermissionMode,
			DependsOn:      deps,
			Skills:         parent.Skills,
			ContextLimit:   parent.ContextLimit,
		})
	}
	return subPhases
}
