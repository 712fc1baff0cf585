package models

// DecompositionTask is one task within a worker-proposed decomposition plan
// (spec.md §4.8, ported from the original implementation's richer task
// shape — see original_source/src/decomposition/types.rs).
type DecompositionTask struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Files       []string `json:"files,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Budget      int      `json:"budget"`
}

// DecompositionPlan is a `<decomposition>` tag payload: a set of tasks plus
// an optional final integration task that reconciles their output.
type DecompositionPlan struct {
	Tasks           []DecompositionTask `json:"tasks"`
	IntegrationTask *DecompositionTask  `json:"integration_task,omitempty"`
}

// AllTasks returns every task in the plan, including the integration task
// if present, for validation and sub-phase conversion.
func (p *DecompositionPlan) AllTasks() []DecompositionTask {
	if p == nil {
		return nil
	}
	tasks := make([]DecompositionTask, 0, len(p.Tasks)+1)
	tasks = append(tasks, p.Tasks...)
	if p.IntegrationTask != nil {
		tasks = append(tasks, *p.IntegrationTask)
	}
	return tasks
}
