package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/changes"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove orphaned phase worktrees",
	Long: `cleanup lists every worktree forge has created under .forge/worktrees
and runs "git worktree prune --expire now", which drops git's records of
worktrees whose directories no longer exist. Worktree directories still on
disk (for example those a failed phase left behind) and their branches are
not removed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoPath, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine repository path: %w", err)
		}

		wt, err := changes.NewWorktreeManager(filepath.Join(repoPath, ".forge", "worktrees"), repoPath)
		if err != nil {
			return fmt.Errorf("create worktree manager: %w", err)
		}

		before, err := wt.List()
		if err != nil {
			return fmt.Errorf("list worktrees: %w", err)
		}
		fmt.Printf("found %d worktree(s) under %s\n", len(before), wt.BaseDir())

		if err := wt.Prune(); err != nil {
			return fmt.Errorf("prune worktrees: %w", err)
		}

		after, err := wt.List()
		if err != nil {
			return fmt.Errorf("list worktrees: %w", err)
		}
		fmt.Printf("removed %d orphaned worktree(s); %d remain\n", len(before)-len(after), len(after))
		return nil
	},
}
