package hooks

import (
	"context"
	"testing"
)

// fakeCommandRunner stubs exec.CommandRunner so tests can assert on
// exactly what a hook invocation would have run without spawning a shell.
type fakeCommandRunner struct {
	gotStdin   []byte
	gotCommand string
	stdout     []byte
	stderr     []byte
	exitCode   int
	err        error
}

func (f *fakeCommandRunner) Run(ctx context.Context, workDir, name string, args ...string) ([]byte, error) {
	return nil, nil
}

func (f *fakeCommandRunner) RunShell(ctx context.Context, workDir, command string) ([]byte, error) {
	return nil, nil
}

func (f *fakeCommandRunner) Exists(ctx context.Context, workDir, path string) bool {
	return false
}

func (f *fakeCommandRunner) RunWithStdin(ctx context.Context, workDir string, stdin []byte, shell []string, command string) ([]byte, []byte, int, error) {
	f.gotStdin = stdin
	f.gotCommand = command
	return f.stdout, f.stderr, f.exitCode, f.err
}

func TestExecutorWithCommandRunnerPassesStdinAndCommand(t *testing.T) {
	fake := &fakeCommandRunner{exitCode: 0}
	e := NewExecutorWithCommandRunner(fake)
	def := Definition{Command: "./notify.sh", TimeoutSeconds: 5}

	r, err := e.Run(context.Background(), def, Context{Event: PrePhase, PhaseName: "build"})
	if err != nil {
		t.Fatal(err)
	}
	if r.Action != ActionContinue {
		t.Fatalf("got %v", r.Action)
	}
	if fake.gotCommand != "./notify.sh" {
		t.Fatalf("got command %q", fake.gotCommand)
	}
	if len(fake.gotStdin) == 0 {
		t.Fatal("expected hook context marshaled onto stdin")
	}
}

func TestExecutorWithCommandRunnerMapsExitCode(t *testing.T) {
	fake := &fakeCommandRunner{exitCode: 2}
	e := NewExecutorWithCommandRunner(fake)
	def := Definition{Command: "./gate.sh", TimeoutSeconds: 5}

	r, err := e.Run(context.Background(), def, Context{Event: PrePhase})
	if err != nil {
		t.Fatal(err)
	}
	if r.Action != ActionSkip {
		t.Fatalf("got %v", r.Action)
	}
}
