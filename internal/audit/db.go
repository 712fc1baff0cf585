// Package audit persists the run-time records spec.md §4/§6 describe as
// "published to an append-only audit log": per-iteration results, phase
// status transitions, and DAG Executor phase events, plus the sequential
// and swarm run-state files spec.md §6 names. It does not format or
// render any of this for a human (spec.md's Non-goals exclude "persistent
// audit-log formatting") — it only stores and lets a caller query.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/forgehq/forge/pkg/models"
)

// Log wraps a SQLite database recording every iteration, phase status
// transition, and executor event for one run.
type Log struct {
	conn   *sql.DB
	path   string
	driver string
	mu     sync.Mutex
}

// DefaultPath returns the audit database path for a run rooted at
// projectRoot: .forge/audit/<run-id>.db.
func DefaultPath(projectRoot, runID string) string {
	return filepath.Join(projectRoot, ".forge", "audit", runID+".db")
}

// Open opens (creating if necessary) the audit database at path. driver
// selects the SQL driver: "sqlite3" for the cgo-backed mattn/go-sqlite3
// (the teacher's original choice, kept as an alternate build path for
// environments with a working cgo toolchain) or "sqlite" for the
// pure-Go modernc.org/sqlite (the default, since it needs no cgo).
func Open(path string, driver string) (*Log, error) {
	if driver == "" {
		driver = "sqlite"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	conn, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	l := &Log{conn: conn, path: path, driver: driver}
	if err := l.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the database file path.
func (l *Log) Path() string { return l.path }

// Close closes the underlying connection.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.Close()
}

func (l *Log) migrate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS phase_status (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			phase_number TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			status TEXT NOT NULL,
			recorded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_phase_status_phase ON phase_status(phase_number)`,
		`CREATE TABLE IF NOT EXISTS iterations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			phase_number TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			prompt_chars INTEGER NOT NULL,
			output_chars INTEGER NOT NULL,
			promise_found INTEGER NOT NULL,
			session_id TEXT,
			recorded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_iterations_phase ON iterations(phase_number)`,
		`CREATE TABLE IF NOT EXISTS phase_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			phase_number TEXT NOT NULL,
			phase_name TEXT,
			iteration INTEGER,
			message TEXT,
			recorded_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_phase_events_phase ON phase_events(phase_number)`,
	}
	for _, s := range stmts {
		if _, err := l.conn.Exec(s); err != nil {
			return fmt.Errorf("migrate audit schema: %w", err)
		}
	}
	return nil
}

// RecordPhaseStatus appends one (phase, iteration, status, timestamp)
// tuple — the sequential phase state record spec.md §6 requires.
func (l *Log) RecordPhaseStatus(ps models.PhaseStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.conn.Exec(
		`INSERT INTO phase_status (phase_number, iteration, status, recorded_at) VALUES (?, ?, ?, ?)`,
		ps.PhaseNumber, ps.Iteration, string(ps.Status), ps.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record phase status: %w", err)
	}
	return nil
}

// RecordIteration persists one worker invocation's bookkeeping fields.
// Output text itself is never written (spec.md §4.1: iteration output is
// a runtime-only record, not a persisted one — only its byte counts,
// promise detection, and session id survive to the audit log).
func (l *Log) RecordIteration(phaseNumber string, iteration int, r models.IterationResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	promiseFound := 0
	if r.PromiseFound {
		promiseFound = 1
	}
	_, err := l.conn.Exec(
		`INSERT INTO iterations (phase_number, iteration, prompt_chars, output_chars, promise_found, session_id, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		phaseNumber, iteration, r.PromptChars, r.OutputChars, promiseFound, r.SessionID, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record iteration: %w", err)
	}
	return nil
}

// RecordEvent persists one DAG Executor phase-event notification.
func (l *Log) RecordEvent(ev models.PhaseEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.conn.Exec(
		`INSERT INTO phase_events (kind, phase_number, phase_name, iteration, message, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(ev.Kind), ev.PhaseNumber, ev.PhaseName, ev.Iteration, ev.Message, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// PhaseStatusHistory returns every recorded status tuple for phaseNumber,
// oldest first — used to print "a pointer to the audit log entry for the
// offending phase" (spec.md §7) on a fatal exit.
func (l *Log) PhaseStatusHistory(phaseNumber string) ([]models.PhaseStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.conn.Query(
		`SELECT phase_number, iteration, status, recorded_at FROM phase_status WHERE phase_number = ? ORDER BY id ASC`,
		phaseNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("query phase status history: %w", err)
	}
	defer rows.Close()

	var out []models.PhaseStatus
	for rows.Next() {
		var ps models.PhaseStatus
		var status, ts string
		if err := rows.Scan(&ps.PhaseNumber, &ps.Iteration, &status, &ts); err != nil {
			return nil, fmt.Errorf("scan phase status row: %w", err)
		}
		ps.Status = models.PhaseStatusKind(status)
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse phase status timestamp: %w", err)
		}
		ps.Timestamp = parsed
		out = append(out, ps)
	}
	return out, rows.Err()
}
