package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/audit"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Show the recorded status of a previous run",
	Long: `resume reads a run's swarm status snapshot (.forge/runs/<run-id>/status.json)
and prints each phase's last known state. It does not currently restart an
interrupted run — re-executing from a partial snapshot is future work; for
now re-run "forge run"/"forge swarm" with the same phase file, which skips
nothing but is safe to repeat since completed phases' worktrees are gone
and their changes already merged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := args[0]
		repoPath, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine repository path: %w", err)
		}

		snapPath := audit.SnapshotPath(repoPath, runID)
		snap, err := audit.ReadSnapshot(snapPath)
		if err != nil {
			return fmt.Errorf("read snapshot for run %s: %w", runID, err)
		}

		fmt.Printf("run %s — started %s\n", runID, snap.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("  total: %d  completed: %d  running: %d  failed: %d\n",
			snap.Total, snap.Completed, snap.Running, snap.Failed)
		for phase, state := range snap.State {
			fmt.Printf("  %-20s %s\n", phase, state)
		}
		return nil
	},
}
