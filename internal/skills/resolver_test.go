package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirResolverResolve(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go-idioms.md"), []byte("prefer errors.Is over type assertion"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "testing-style.txt"), []byte("table-driven tests"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewDirResolver(dir)
	out, err := r.Resolve([]string{"go-idioms", "testing-style"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := "## go-idioms\nprefer errors.Is over type assertion\n\n## testing-style\ntable-driven tests"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestDirResolverMissingSkill(t *testing.T) {
	r := NewDirResolver(t.TempDir())
	if _, err := r.Resolve([]string{"nonexistent"}); err == nil {
		t.Error("expected error for missing skill fragment")
	}
}

func TestDirResolverEmpty(t *testing.T) {
	r := NewDirResolver(t.TempDir())
	out, err := r.Resolve(nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out != "" {
		t.Errorf("got %q, want empty", out)
	}
}

func TestMerge(t *testing.T) {
	got := Merge([]string{"a", "b"}, []string{"b", "c"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
