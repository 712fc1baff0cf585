package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/forgehq/forge/pkg/models"
)

// StateFile is the sequential run's append-only phase-progress log
// (spec.md §6: "one line per (phase, iteration, status, timestamp)
// tuple, append-only"). Writes are serialized per phase via an internal
// mutex, matching spec.md §5's "append-only; writes are atomic
// (write-to-temp + rename) and serialized per phase" for this file —
// append is itself atomic at the OS level for O_APPEND writes under
// 4KiB, so no temp+rename dance is needed here; that technique is
// reserved for the swarm snapshot, which is fully rewritten each time
// (see WriteSnapshot).
type StateFile struct {
	path string
	mu   sync.Mutex
}

// NewStateFile opens (creating if necessary) the state file at path.
func NewStateFile(path string) (*StateFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state file directory: %w", err)
	}
	return &StateFile{path: path}, nil
}

// Append writes one status tuple as a single line: "<phase>\t<iteration>\t<status>\t<rfc3339 timestamp>\n".
func (s *StateFile) Append(ps models.PhaseStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s\t%d\t%s\t%s\n", ps.PhaseNumber, ps.Iteration, ps.Status, ps.Timestamp.UTC().Format(time.RFC3339Nano))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append state file: %w", err)
	}
	return nil
}
