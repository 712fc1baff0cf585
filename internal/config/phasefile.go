package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/forgehq/forge/pkg/models"
)

// PhaseFile is the JSON document describing a run's phases (spec.md §6
// "Phase file").
type PhaseFile struct {
	Phases []*models.Phase `json:"phases"`
}

// LoadPhaseFile reads and validates a phase file. Each phase is validated
// in isolation via Phase.Validate; cross-phase checks (duplicate numbers,
// unresolved depends_on, cycles) are the DAG builder's job, not this
// loader's.
func LoadPhaseFile(path string) ([]*models.Phase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read phase file %s: %w", path, err)
	}

	var pf PhaseFile
	if err := json.Unmarshal(data, &pf); err != nil {
		// The top-level document may be a bare JSON array of phases
		// instead of {"phases": [...]}; try that shape before failing.
		var bare []*models.Phase
		if bareErr := json.Unmarshal(data, &bare); bareErr != nil {
			return nil, fmt.Errorf("parse phase file %s: %w", path, err)
		}
		pf.Phases = bare
	}

	if len(pf.Phases) == 0 {
		return nil, fmt.Errorf("phase file %s: no phases defined", path)
	}
	for _, p := range pf.Phases {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("phase file %s: %w", path, err)
		}
	}
	return pf.Phases, nil
}
