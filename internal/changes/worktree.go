package changes

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/forgehq/forge/internal/git"
)

// Worktree is a git worktree isolating one phase's filesystem mutations
// from the main checkout and from any phase running concurrently with it
// in the same DAG wave (spec.md §4.6).
type Worktree struct {
	Path        string
	BranchName  string
	PhaseNumber string
	CreatedAt   time.Time
}

// branchPrefix is stripped to recover a worktree's phase number when
// parsing `git worktree list --porcelain`. Branches are named
// forge/<run-id>/<phase-number> (spec.md §4.4 step 2); since the run id
// varies, only the leading "forge/" is matched and the phase number is
// taken as whatever follows the last "/".
const branchPrefix = "forge/"

// WorktreeManager creates and tears down one worktree per phase. Phases in
// the same wave each get their own worktree so they can mutate files
// concurrently without racing on the main checkout.
type WorktreeManager struct {
	baseDir  string
	repoPath string
	git      git.Runner
	mu       sync.Mutex
}

// NewWorktreeManager builds a manager rooted at baseDir (defaulting to
// ~/.cache/forge/worktrees) for the repository at repoPath.
func NewWorktreeManager(baseDir, repoPath string) (*WorktreeManager, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".cache", "forge", "worktrees")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}
	return &WorktreeManager{baseDir: baseDir, repoPath: repoPath, git: git.NewRunner(repoPath)}, nil
}

// NewWorktreeManagerWithRunner builds a manager with an injected git.Runner,
// for tests that don't want to shell out to a real git binary.
func NewWorktreeManagerWithRunner(baseDir, repoPath string, runner git.Runner) (*WorktreeManager, error) {
	if baseDir == "" {
		baseDir = filepath.Join(os.TempDir(), "forge-worktrees")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}
	return &WorktreeManager{baseDir: baseDir, repoPath: repoPath, git: runner}, nil
}

// BaseDir returns the directory under which phase worktrees are created.
func (m *WorktreeManager) BaseDir() string { return m.baseDir }

// Create adds a new worktree on a fresh branch for the given phase, within
// the run identified by runID. Path and branch are deterministic (spec.md
// §4.4 step 2): path `worktrees/task-<phase-number>` under baseDir, with
// '.', '/' and ' ' in the phase number replaced by '-' (phase "2.1" gives
// `task-2-1`), and branch `forge/<run-id>/<phase-number>`.
func (m *WorktreeManager) Create(runID, phaseNumber string) (*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	branchName := fmt.Sprintf("forge/%s/%s", runID, phaseNumber)
	worktreePath := filepath.Join(m.baseDir, "worktrees", fmt.Sprintf("task-%s", sanitize(phaseNumber)))

	if err := m.git.WorktreeAddNewBranch(worktreePath, branchName); err != nil {
		return nil, fmt.Errorf("create worktree for phase %s: %w", phaseNumber, err)
	}

	return &Worktree{
		Path:        worktreePath,
		BranchName:  branchName,
		PhaseNumber: phaseNumber,
		CreatedAt:   time.Now(),
	}, nil
}

// Remove removes a phase's worktree. force discards uncommitted changes in
// it instead of failing.
func (m *WorktreeManager) Remove(path string, force bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreeRemoveOptionalForce(path, force); err != nil {
		return fmt.Errorf("remove worktree: %w", err)
	}
	return nil
}

// MergeBack merges a completed phase's branch into integrationBranch
// (--no-ff; spec.md §4.4 step 5 allows a fast-forward where possible but a
// three-way merge is the safe default across arbitrary worktree histories),
// then deletes the source branch now that its changes have landed.
func (m *WorktreeManager) MergeBack(integrationBranch, branchName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.CheckoutBranch(integrationBranch); err != nil {
		return fmt.Errorf("checkout integration branch %s: %w", integrationBranch, err)
	}
	if err := m.git.MergeNoFFMessage(branchName, fmt.Sprintf("merge: %s", branchName)); err != nil {
		return fmt.Errorf("merge %s into %s: %w", branchName, integrationBranch, err)
	}
	if err := m.git.DeleteBranch(branchName); err != nil {
		return fmt.Errorf("delete branch %s after merge: %w", branchName, err)
	}
	return nil
}

// List returns every worktree this manager currently knows about.
func (m *WorktreeManager) List() ([]*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	output, err := m.git.WorktreeListPorcelain()
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	return parseWorktreeList(output)
}

// Prune drops git's bookkeeping for worktrees whose directory is already
// gone from disk (e.g. removed manually, or by a crashed run).
func (m *WorktreeManager) Prune() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreePruneExpireNow(); err != nil {
		return fmt.Errorf("prune worktrees: %w", err)
	}
	return nil
}

func parseWorktreeList(output string) ([]*Worktree, error) {
	var worktrees []*Worktree
	var current *Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if current != nil {
				worktrees = append(worktrees, current)
				current = nil
			}
			continue
		}
		switch {
		case strings.HasPrefix(line, "worktree "):
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case strings.HasPrefix(line, "branch ") && current != nil:
			branchRef := strings.TrimPrefix(line, "branch ")
			current.BranchName = strings.TrimPrefix(branchRef, "refs/heads/")
			if strings.HasPrefix(current.BranchName, branchPrefix) {
				if idx := strings.LastIndex(current.BranchName, "/"); idx >= 0 {
					current.PhaseNumber = current.BranchName[idx+1:]
				}
			}
		}
	}
	if current != nil {
		worktrees = append(worktrees, current)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse worktree list: %w", err)
	}
	return worktrees, nil
}

func sanitize(phaseNumber string) string {
	return strings.NewReplacer(".", "-", "/", "-", " ", "-").Replace(phaseNumber)
}
