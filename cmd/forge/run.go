package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/audit"
	"github.com/forgehq/forge/internal/hooks"
)

var (
	flagRunYes      bool
	flagRunFailFast bool
	flagRunReview   bool
	flagRunPR       int
)

var runCmd = &cobra.Command{
	Use:   "run <phase-file>",
	Short: "Run a phase file's phases in dependency order, one at a time",
	Long: `run drives every phase in phase-file to completion sequentially
(max-parallel=1). Phases whose dependencies are satisfied run in the
order the DAG scheduler computes; independent phases still only run one
at a time under this command. Use "forge swarm" to run them concurrently.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkWorkerCLI(); err != nil {
			return err
		}
		return runPhases(cmd.Context(), args[0], 1, flagRunFailFast, flagRunYes, flagRunReview, flagRunPR)
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagRunYes, "yes", false, "suppress interactive stall/blocker prompts")
	runCmd.Flags().BoolVar(&flagRunFailFast, "fail-fast", false, "cancel remaining work on the first phase failure")
	runCmd.Flags().BoolVar(&flagRunReview, "review", false, "run the review pipeline against the run's combined diff once all phases finish")
	runCmd.Flags().IntVar(&flagRunPR, "pr", 0, "post review findings as a GitHub pull request review against this PR number (requires --review and GITHUB_TOKEN)")
}

// runPhases is the shared body of "run" and "swarm": it loads config and
// the phase file, builds the executor, drains its events, and optionally
// runs the review pass (spec.md §4.4, §5 review pipeline).
func runPhases(ctx context.Context, phaseFilePath string, maxParallel int, failFast, yes, review bool, prNumber int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	_, g, err := rt.preparePhases(phaseFilePath)
	if err != nil {
		return err
	}

	ex := rt.newExecutor(g, maxParallel, failFast, yes)
	done := rt.recordEvents(ex.Events(), g)

	beforeRev, _ := defaultGitRunner(rt.repoPath).Run("rev-parse", "main")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	abortWatcher, err := hooks.WatchAbort(audit.AbortSentinelPath(rt.repoPath, rt.runID))
	if err == nil {
		defer abortWatcher.Close()
		go func() {
			select {
			case <-abortWatcher.Aborted():
				fmt.Println("\nabort requested; stopping remaining work")
				cancel()
			case <-runCtx.Done():
			}
		}()
	}

	result, err := ex.Execute(runCtx)
	<-done
	if err != nil {
		return fmt.Errorf("execute run: %w", err)
	}

	fmt.Printf("\nrun %s: %d completed, %d failed, %d skipped (of %d)\n",
		rt.runID, result.Summary.Completed, result.Summary.Failed, result.Summary.Skipped, result.Summary.Total)

	if !result.Success {
		if review {
			fmt.Println("skipping review: run did not complete successfully")
		}
		return fmt.Errorf("run %s did not complete successfully", rt.runID)
	}

	if review {
		if err := runReviewPass(ctx, rt, beforeRev, prNumber); err != nil {
			fmt.Printf("review pass failed: %v\n", err)
		}
	}

	return nil
}
