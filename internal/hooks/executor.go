package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/match"

	iexec "github.com/forgehq/forge/internal/exec"
)

// Executor runs a single hook command, feeding it Context as JSON on
// stdin and interpreting its exit code and stdout per spec.md §4.7. The
// actual process execution goes through an injectable exec.CommandRunner,
// the same indirection the teacher uses for its verification contracts,
// so tests can stub hook invocations instead of spawning real shells.
type Executor struct {
	// Shell is the interpreter used to run Command, mirroring how a
	// human would paste the same command into a terminal. Defaults to
	// "/bin/sh -c".
	Shell []string

	cmd iexec.CommandRunner
}

// NewExecutor returns an Executor using the default shell and a real
// CommandRunner.
func NewExecutor() *Executor {
	return &Executor{Shell: []string{"/bin/sh", "-c"}, cmd: iexec.NewRunner()}
}

// NewExecutorWithCommandRunner returns an Executor backed by a
// caller-supplied CommandRunner, for tests that need to observe or stub
// hook invocations without spawning real processes.
func NewExecutorWithCommandRunner(cmd iexec.CommandRunner) *Executor {
	return &Executor{Shell: []string{"/bin/sh", "-c"}, cmd: cmd}
}

// Matches reports whether def applies to a phase name, honoring an empty
// Match as "applies to every phase" and a glob Match otherwise (spec.md
// §4.7: `match = "database-*"`).
func (d Definition) Matches(phaseName string) bool {
	if d.Match == "" {
		return true
	}
	return match.Match(phaseName, d.Match)
}

// Run executes one hook command and returns its Result. A timeout is
// enforced via context; a hook that is killed by the timeout is reported
// as ActionBlock so a hung hook cannot silently let a run proceed.
func (e *Executor) Run(ctx context.Context, def Definition, hookCtx Context) (Result, error) {
	shell := e.Shell
	if len(shell) == 0 {
		shell = []string{"/bin/sh", "-c"}
	}
	cmd := e.cmd
	if cmd == nil {
		cmd = iexec.NewRunner()
	}

	timeout := time.Duration(def.EffectiveTimeoutSeconds()) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(hookCtx)
	if err != nil {
		return Result{}, fmt.Errorf("marshal hook context: %w", err)
	}

	stdout, stderr, exitCode, runErr := cmd.RunWithStdin(runCtx, "", payload, shell, def.Command)

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Action: ActionBlock, Reason: fmt.Sprintf("hook %q timed out after %s", def.Command, timeout)}, nil
	}

	if runErr != nil {
		return Result{}, fmt.Errorf("run hook %q: %w (stderr: %s)", def.Command, runErr, string(stderr))
	}

	action := Action(exitCode)
	if exitCode < 0 || exitCode > 4 {
		// An exit code outside the documented range is treated as a
		// block rather than silently mapped to an unrelated Action.
		return Result{Action: ActionBlock, Reason: fmt.Sprintf("hook %q exited %d (undefined code)", def.Command, exitCode)}, nil
	}

	return decodeStdout(stdout, action), nil
}
