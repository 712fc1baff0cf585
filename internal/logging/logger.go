// Package logging provides the debug file logger and colored CLI status
// lines shared across Forge's engine packages (spec.md's ambient
// "Logging" concern — see SPEC_FULL.md).
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger writes timestamped lines to an append-only file. The zero
// value and a nil pointer are both valid no-op loggers, so callers that
// don't want logging enabled can pass one around without nil-checking at
// every call site.
type DebugLogger struct {
	mu   sync.Mutex
	file *os.File
}

// New creates a logger writing to logPath. An empty path returns a no-op
// logger. Parent directories are created as needed.
func New(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := &DebugLogger{file: f}
	logger.Log("=== Forge run-debug log started at %s ===", time.Now().Format(time.RFC3339))
	return logger, nil
}

// ForRun opens the debug log at .forge/logs/run-debug.log under
// projectRoot. Returns a no-op logger (never an error) if the directory
// can't be created, since logging failures should never block a run.
func ForRun(projectRoot string) *DebugLogger {
	logPath := filepath.Join(projectRoot, ".forge", "logs", "run-debug.log")
	logger, err := New(logPath)
	if err != nil {
		return &DebugLogger{}
	}
	return logger
}

// Nop returns a no-op logger, for tests or `--quiet` runs.
func Nop() *DebugLogger {
	return &DebugLogger{}
}

// Log writes a timestamped line. Safe to call on a nil or no-op logger.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, msg)
	l.file.Sync()
}

// Close closes the underlying file. Safe to call on a nil or no-op logger.
func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
