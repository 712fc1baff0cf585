package main

import (
	"github.com/spf13/cobra"
)

var (
	flagSwarmMaxParallel int
	flagSwarmYes         bool
	flagSwarmFailFast    bool
	flagSwarmReview      bool
	flagSwarmPR          int
)

var swarmCmd = &cobra.Command{
	Use:   "swarm <phase-file>",
	Short: "Run a phase file's independent phases concurrently, DAG-ordered",
	Long: `swarm computes the same execution waves as "run" but executes each
wave's independent phases concurrently, up to --max-parallel at a time.
Phases within a wave each get their own git worktree (spec.md §4.6) so
their filesystem effects don't collide; successful phases merge back to
the integration branch before the next wave starts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkWorkerCLI(); err != nil {
			return err
		}
		return runPhases(cmd.Context(), args[0], flagSwarmMaxParallel, flagSwarmFailFast, flagSwarmYes, flagSwarmReview, flagSwarmPR)
	},
}

func init() {
	swarmCmd.Flags().IntVar(&flagSwarmMaxParallel, "max-parallel", 3, "maximum number of phases to run concurrently within a wave")
	swarmCmd.Flags().BoolVar(&flagSwarmYes, "yes", false, "suppress interactive stall/blocker prompts")
	swarmCmd.Flags().BoolVar(&flagSwarmFailFast, "fail-fast", false, "cancel remaining work on the first phase failure")
	swarmCmd.Flags().BoolVar(&flagSwarmReview, "review", false, "run the review pipeline against the run's combined diff once all phases finish")
	swarmCmd.Flags().IntVar(&flagSwarmPR, "pr", 0, "post review findings as a GitHub pull request review against this PR number (requires --review and GITHUB_TOKEN)")
}
