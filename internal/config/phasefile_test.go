package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPhaseFileWrappedDocument(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "phases.json")
	content := `{
		"phases": [
			{"number": "01", "name": "scaffold", "promise": "P1 DONE", "budget": 5, "description": "set up the project"},
			{"number": "02", "name": "implement", "promise": "P2 DONE", "budget": 10, "description": "do the thing", "depends_on": ["01"]}
		]
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	phases, err := LoadPhaseFile(path)
	if err != nil {
		t.Fatalf("LoadPhaseFile failed: %v", err)
	}
	if len(phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(phases))
	}
	if phases[1].DependsOn[0] != "01" {
		t.Errorf("expected phase 02 to depend on 01, got %+v", phases[1].DependsOn)
	}
}

func TestLoadPhaseFileBareArray(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "phases.json")
	content := `[
		{"number": "01", "name": "scaffold", "promise": "P1 DONE", "budget": 5, "description": "set up the project"}
	]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	phases, err := LoadPhaseFile(path)
	if err != nil {
		t.Fatalf("LoadPhaseFile failed: %v", err)
	}
	if len(phases) != 1 {
		t.Fatalf("expected 1 phase, got %d", len(phases))
	}
}

func TestLoadPhaseFileRejectsInvalidPhase(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "phases.json")
	content := `{"phases": [{"number": "01", "name": "scaffold", "budget": 5}]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPhaseFile(path); err == nil {
		t.Fatal("expected an error for a phase missing its promise")
	}
}

func TestLoadPhaseFileRejectsEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "phases.json")
	if err := os.WriteFile(path, []byte(`{"phases": []}`), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPhaseFile(path); err == nil {
		t.Fatal("expected an error for an empty phase file")
	}
}
