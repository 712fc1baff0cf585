// Package changes computes the ChangeSummary a phase produced in its
// worktree, and manages the one-worktree-per-phase lifecycle the DAG
// Executor uses to run phases in isolation (spec.md §4.6/§4.8).
package changes

import (
	"fmt"
	"strings"

	"github.com/forgehq/forge/pkg/models"
)

// StatusReader is the narrow slice of git.Runner the change computer
// needs: the porcelain status of a worktree.
type StatusReader interface {
	Status() (string, error)
}

// Snapshot computes a ChangeSummary from a worktree's current porcelain
// status. Untracked files ("??") and staged/unstaged additions count as
// Added; modifications (staged or not) count as Modified; deletions count
// as Deleted; a rename is recorded as a deletion of its old path and an
// addition of its new path, matching how the Phase Runner would observe it
// via a plain `git status`.
func Snapshot(repo StatusReader) (*models.ChangeSummary, error) {
	out, err := repo.Status()
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}

	summary := models.NewChangeSummary()
	if out == "" {
		return summary, nil
	}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 3 {
			continue
		}
		code := line[:2]
		path := strings.TrimSpace(line[3:])

		switch {
		case code == "??":
			summary.FilesAdded[path] = struct{}{}
		case strings.Contains(code, "A"):
			summary.FilesAdded[path] = struct{}{}
		case strings.Contains(code, "D"):
			summary.FilesDeleted[path] = struct{}{}
		case strings.HasPrefix(code, "R"):
			old, new_, ok := splitRename(path)
			if ok {
				summary.FilesDeleted[old] = struct{}{}
				summary.FilesAdded[new_] = struct{}{}
			} else {
				summary.FilesModified[path] = struct{}{}
			}
		case strings.Contains(code, "M"), strings.Contains(code, "U"):
			summary.FilesModified[path] = struct{}{}
		}
	}
	return &summary, nil
}

// splitRename parses porcelain's "old -> new" rename path format.
func splitRename(path string) (old, new_ string, ok bool) {
	parts := strings.SplitN(path, " -> ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
