package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewEmptyPathIsNoOp(t *testing.T) {
	l, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	l.Log("should not panic or write anything")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewWritesTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run-debug.log")
	l, err := New(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Log("phase %s started", "01")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "phase 01 started") {
		t.Fatalf("expected log line in output, got %q", string(data))
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *DebugLogger
	l.Log("nothing happens")
	if err := l.Close(); err != nil {
		t.Fatalf("expected no error closing a nil logger, got %v", err)
	}
}

func TestForRunFallsBackToNopOnUnwritableDir(t *testing.T) {
	l := ForRun("/nonexistent/\x00bad/path")
	l.Log("still shouldn't panic")
}
