package executor

import (
	"context"
	"sync"
	"testing"

	"github.com/forgehq/forge/internal/approval"
	"github.com/forgehq/forge/internal/changes"
	"github.com/forgehq/forge/internal/dag"
	"github.com/forgehq/forge/internal/hooks"
	"github.com/forgehq/forge/internal/worker"
	"github.com/forgehq/forge/pkg/models"
)

// fakeGitRunner is a no-op git.Runner: worktree creation/removal/merge all
// succeed trivially, without touching the filesystem, so tests can drive
// the Executor without a real repository on disk.
type fakeGitRunner struct {
	mu      sync.Mutex
	created []string
	merged  []string
}

func (f *fakeGitRunner) CurrentBranch() (string, error)          { return "main", nil }
func (f *fakeGitRunner) CreateBranch(string) error                { return nil }
func (f *fakeGitRunner) CreateAndCheckoutBranch(string) error     { return nil }
func (f *fakeGitRunner) CheckoutBranch(string) error              { return nil }
func (f *fakeGitRunner) BranchExists(string) (bool, error)        { return true, nil }
func (f *fakeGitRunner) DeleteBranch(string) error                { return nil }
func (f *fakeGitRunner) Status() (string, error)                  { return "", nil }
func (f *fakeGitRunner) HasChanges() (bool, error)                { return false, nil }
func (f *fakeGitRunner) Diff(string) (string, error)              { return "", nil }
func (f *fakeGitRunner) DiffBetween(string, string) (string, error) { return "", nil }
func (f *fakeGitRunner) ChangedFiles(string) ([]string, error)    { return nil, nil }
func (f *fakeGitRunner) ChangedFilesBetween(string, string) ([]string, error) {
	return nil, nil
}
func (f *fakeGitRunner) ChangedFilesRelative(string, string) ([]string, error) {
	return nil, nil
}
func (f *fakeGitRunner) ConflictedFiles() ([]string, error) { return nil, nil }
func (f *fakeGitRunner) Add(...string) error                { return nil }
func (f *fakeGitRunner) Commit(string) error                 { return nil }
func (f *fakeGitRunner) Reset(string) error                  { return nil }
func (f *fakeGitRunner) CheckoutPath(string) error           { return nil }
func (f *fakeGitRunner) Merge(string) error                  { return nil }
func (f *fakeGitRunner) MergeNoFF(string) error               { return nil }
func (f *fakeGitRunner) MergeNoFFMessage(branch, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merged = append(f.merged, branch)
	return nil
}
func (f *fakeGitRunner) MergeAbort() error                      { return nil }
func (f *fakeGitRunner) MergeBase(string, string) (string, error) { return "", nil }
func (f *fakeGitRunner) HasConflicts() (bool, error)            { return false, nil }
func (f *fakeGitRunner) Rebase(string) error                    { return nil }
func (f *fakeGitRunner) RebaseAbort() error                     { return nil }
func (f *fakeGitRunner) WorktreeAdd(string, string) error       { return nil }
func (f *fakeGitRunner) WorktreeAddNewBranch(path, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, path)
	return nil
}
func (f *fakeGitRunner) WorktreeRemove(string) error                      { return nil }
func (f *fakeGitRunner) WorktreeRemoveOptionalForce(string, bool) error   { return nil }
func (f *fakeGitRunner) WorktreeUnlock(string) error                      { return nil }
func (f *fakeGitRunner) WorktreeList() ([]string, error)                  { return nil, nil }
func (f *fakeGitRunner) WorktreeListPorcelain() (string, error)           { return "", nil }
func (f *fakeGitRunner) WorktreePrune() error                             { return nil }
func (f *fakeGitRunner) WorktreePruneExpireNow() error                    { return nil }
func (f *fakeGitRunner) PullFFOnly() error                                { return nil }
func (f *fakeGitRunner) RemoteURL(string) (string, error)                 { return "", nil }
func (f *fakeGitRunner) ShowFile(string, string) (string, error)          { return "", nil }
func (f *fakeGitRunner) CheckoutOurs(string) error                        { return nil }
func (f *fakeGitRunner) CheckoutTheirs(string) error                      { return nil }
func (f *fakeGitRunner) Run(...string) (string, error)                   { return "", nil }

func newTestDeps(t *testing.T) (*changes.WorktreeManager, func(string) changes.StatusReader) {
	t.Helper()
	wtm, err := changes.NewWorktreeManagerWithRunner(t.TempDir(), t.TempDir(), &fakeGitRunner{})
	if err != nil {
		t.Fatal(err)
	}
	return wtm, func(string) changes.StatusReader { return &fakeGitRunner{} }
}

func successfulInvoker(promise string) func() worker.Invoker {
	return func() worker.Invoker {
		return &worker.Fake{Results: []models.IterationResult{{Output: "work complete\n" + promise}}}
	}
}

func failingInvoker() func() worker.Invoker {
	return func() worker.Invoker {
		return &worker.Fake{Results: []models.IterationResult{{Output: "still working, no promise here"}}}
	}
}

func phaseSet(t *testing.T, phases ...*models.Phase) *dag.Graph {
	t.Helper()
	g := dag.New()
	if err := g.Build(phases); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestExecuteSequentialSuccess(t *testing.T) {
	a := &models.Phase{Number: "01", Name: "a", Promise: "A DONE", Budget: 2}
	b := &models.Phase{Number: "02", Name: "b", Promise: "B DONE", Budget: 2, DependsOn: []string{"01"}}
	g := phaseSet(t, a, b)

	wtm, statusFactory := newTestDeps(t)
	gate := approval.New()
	hookMgr := hooks.NewManager(hooks.Config{})

	invoked := 0
	var mu sync.Mutex
	exec := New(g, gate, hookMgr, wtm, func() worker.Invoker {
		mu.Lock()
		invoked++
		n := invoked
		mu.Unlock()
		promise := "A DONE"
		if n == 2 {
			promise = "B DONE"
		}
		return &worker.Fake{Results: []models.IterationResult{{Output: "done\n" + promise}}}
	}, statusFactory, Config{RunID: "run1", MaxParallel: 1})

	result, err := exec.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Summary.Completed != 2 || result.Summary.Total != 2 || result.Summary.Failed != 0 {
		t.Fatalf("got %+v", result.Summary)
	}
}

func TestExecuteParallelWaveBothComplete(t *testing.T) {
	a := &models.Phase{Number: "01", Name: "a", Promise: "DONE", Budget: 1}
	b := &models.Phase{Number: "02", Name: "b", Promise: "DONE", Budget: 1}
	g := phaseSet(t, a, b)

	wtm, statusFactory := newTestDeps(t)
	gate := approval.New()
	hookMgr := hooks.NewManager(hooks.Config{})

	exec := New(g, gate, hookMgr, wtm, successfulInvoker("DONE"), statusFactory, Config{RunID: "run1", MaxParallel: 2})

	result, err := exec.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success || result.Summary.Completed != 2 {
		t.Fatalf("got %+v", result)
	}
}

func TestExecuteFailFastCascadesSkip(t *testing.T) {
	a := &models.Phase{Number: "01", Name: "a", Promise: "NEVER", Budget: 1}
	b := &models.Phase{Number: "02", Name: "b", Promise: "DONE", Budget: 1, DependsOn: []string{"01"}}
	c := &models.Phase{Number: "03", Name: "c", Promise: "DONE", Budget: 1, DependsOn: []string{"02"}}
	g := phaseSet(t, a, b, c)

	wtm, statusFactory := newTestDeps(t)
	gate := approval.New()
	hookMgr := hooks.NewManager(hooks.Config{})

	exec := New(g, gate, hookMgr, wtm, failingInvoker(), statusFactory, Config{RunID: "run1", MaxParallel: 1, FailFast: true})

	result, err := exec.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Summary.Failed != 1 {
		t.Fatalf("expected 1 failed phase, got %+v", result.Summary)
	}
	if result.Summary.Skipped != 2 {
		t.Fatalf("expected both descendants skipped, got %+v", result.Summary)
	}
}

func TestExecuteRejectedPhaseSkipsButRunContinues(t *testing.T) {
	a := &models.Phase{Number: "01", Name: "a", Promise: "DONE", Budget: 1}
	b := &models.Phase{Number: "02", Name: "b", Promise: "DONE", Budget: 1}
	g := phaseSet(t, a, b)

	wtm, statusFactory := newTestDeps(t)
	gate := approval.New(
		approval.WithAutoApproveThreshold(0),
		approval.WithPrompter(&approval.FakePrompter{Phase: []approval.PhaseDecision{approval.Rejected, approval.Approved}}),
	)
	hookMgr := hooks.NewManager(hooks.Config{})

	exec := New(g, gate, hookMgr, wtm, successfulInvoker("DONE"), statusFactory, Config{RunID: "run1", MaxParallel: 1})

	result, err := exec.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Summary.Skipped != 1 {
		t.Fatalf("expected 1 rejected/skipped phase, got %+v", result.Summary)
	}
	if result.Summary.Completed != 1 {
		t.Fatalf("expected the other phase to complete, got %+v", result.Summary)
	}
}

func TestExecuteGlobalAbortStopsRun(t *testing.T) {
	a := &models.Phase{Number: "01", Name: "a", Promise: "DONE", Budget: 1}
	b := &models.Phase{Number: "02", Name: "b", Promise: "DONE", Budget: 1, DependsOn: []string{"01"}}
	g := phaseSet(t, a, b)

	wtm, statusFactory := newTestDeps(t)
	gate := approval.New(
		approval.WithAutoApproveThreshold(0),
		approval.WithPrompter(&approval.FakePrompter{Phase: []approval.PhaseDecision{approval.Aborted}}),
	)
	hookMgr := hooks.NewManager(hooks.Config{})

	exec := New(g, gate, hookMgr, wtm, successfulInvoker("DONE"), statusFactory, Config{RunID: "run1", MaxParallel: 1})

	result, err := exec.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Success {
		t.Fatal("expected failure after global abort")
	}
	if result.Summary.Skipped != 2 {
		t.Fatalf("expected the aborted phase and its downstream both skipped, got %+v", result.Summary)
	}
}

func TestExecuteSchedulesDecompositionSubPhases(t *testing.T) {
	parent := &models.Phase{Number: "05", Name: "big-migration", Promise: "PARENT DONE", Budget: 5}
	g := phaseSet(t, parent)

	wtm, statusFactory := newTestDeps(t)
	gate := approval.New()
	hookMgr := hooks.NewManager(hooks.Config{})

	// One scripted output satisfies every phase this run will ever spawn:
	// the parent's own promise, a valid decomposition plan, and the two
	// sub-phase promises ToSubPhases will derive from it.
	planJSON := `<decomposition>{"tasks":[{"id":"t1","name":"t1","budget":1},{"id":"t2","name":"t2","budget":1}]}</decomposition>`
	output := "done\nPARENT DONE\n" + planJSON + "\nPARENT DONE: t1 complete\nPARENT DONE: t2 complete"

	exec := New(g, gate, hookMgr, wtm, func() worker.Invoker {
		return &worker.Fake{Results: []models.IterationResult{{Output: output}}}
	}, statusFactory, Config{RunID: "run1", MaxParallel: 1})

	result, err := exec.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Summary.Completed != 3 || result.Summary.Total != 3 {
		t.Fatalf("expected parent + 2 sub-phases completed, got %+v", result.Summary)
	}

	if g.State("05.1:t1") != models.RunSucceeded || g.State("05.2:t2") != models.RunSucceeded {
		t.Fatalf("expected both sub-phases scheduled and succeeded")
	}
}

func TestExecuteRejectsUnknownDependencyAtBuild(t *testing.T) {
	a := &models.Phase{Number: "01", Name: "a", Promise: "DONE", Budget: 1, DependsOn: []string{"99"}}
	g := dag.New()
	if err := g.Build([]*models.Phase{a}); err == nil {
		t.Fatal("expected build error for unknown dependency")
	}
}

func TestMergeBackWithChangesMergesAndRemovesWorktree(t *testing.T) {
	runner := &fakeGitRunner{}
	wtm, err := changes.NewWorktreeManagerWithRunner(t.TempDir(), t.TempDir(), runner)
	if err != nil {
		t.Fatal(err)
	}
	exec := &Executor{worktrees: wtm, cfg: Config{IntegrationBranch: "main"}, debugLog: func(string, ...interface{}) {}}

	wt := &changes.Worktree{Path: "/tmp/whatever", BranchName: "forge/run1/01"}
	cs := models.NewChangeSummary()
	cs.FilesAdded["new.go"] = struct{}{}

	if err := exec.mergeBack(wt, cs); err != nil {
		t.Fatal(err)
	}
	if len(runner.merged) != 1 || runner.merged[0] != "forge/run1/01" {
		t.Fatalf("expected a merge of forge/run1/01, got %v", runner.merged)
	}
}

func TestMergeBackWithNoChangesSkipsMerge(t *testing.T) {
	runner := &fakeGitRunner{}
	wtm, err := changes.NewWorktreeManagerWithRunner(t.TempDir(), t.TempDir(), runner)
	if err != nil {
		t.Fatal(err)
	}
	exec := &Executor{worktrees: wtm, cfg: Config{IntegrationBranch: "main"}, debugLog: func(string, ...interface{}) {}}

	wt := &changes.Worktree{Path: "/tmp/whatever", BranchName: "forge/run1/01"}
	if err := exec.mergeBack(wt, models.NewChangeSummary()); err != nil {
		t.Fatal(err)
	}
	if len(runner.merged) != 0 {
		t.Fatalf("expected no merge for an empty change summary, got %v", runner.merged)
	}
}
