package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/forgehq/forge/pkg/models"
)

// SnapshotPath returns the swarm status JSON file path for a run rooted
// at projectRoot (spec.md §6 "Swarm status").
func SnapshotPath(projectRoot, runID string) string {
	return filepath.Join(projectRoot, ".forge", "runs", runID, "status.json")
}

// AbortSentinelPath returns the path of the file whose mere presence
// requests a graceful shutdown (spec.md §6 "an 'abort' sentinel file
// requests graceful shutdown").
func AbortSentinelPath(projectRoot, runID string) string {
	return filepath.Join(projectRoot, ".forge", "runs", runID, "abort")
}

// WriteSnapshot atomically (write-to-temp + rename, per spec.md §5)
// overwrites the swarm status file with snap.
func WriteSnapshot(path string, snap models.SwarmSnapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".status-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// ReadSnapshot reads and parses a swarm status file.
func ReadSnapshot(path string) (models.SwarmSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.SwarmSnapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap models.SwarmSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.SwarmSnapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, nil
}

// RequestAbort creates the abort sentinel file, idempotently.
func RequestAbort(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create abort sentinel directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create abort sentinel: %w", err)
	}
	return f.Close()
}

// ClearAbort removes the abort sentinel file, if present.
func ClearAbort(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear abort sentinel: %w", err)
	}
	return nil
}

// AbortRequested reports whether the abort sentinel currently exists.
func AbortRequested(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
