// Command forge drives the engine spec.md describes through a
// user-supplied phase file: it loads configuration and hooks, builds the
// phase dependency graph, and runs the DAG Executor to completion.
//
// CLI parsing itself is deliberately thin (spec.md §1's Non-goals exclude
// "interview/spec-generation commands" and any richer configuration
// authoring UI) — forge only exposes the commands needed to drive the
// engine from a terminal or CI job.
package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgehq/forge/internal/version"
)

var (
	flagConfigPath string
	flagDebugLog   string
	flagWorkerBin  string
	flagAPIMode    bool
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Drives a code-generation worker through a phased, DAG-ordered plan",
	Long: `Forge orchestrates an external code-generation assistant (the "worker")
through a user-defined sequence of phases until each phase emits its
declared completion sentinel.

Commands:
  run      Run a phase file sequentially
  swarm    Run a phase file's independent phases in parallel, DAG-ordered
  resume   Show the recorded status of a previous run
  cleanup  Remove orphaned phase worktrees
  version  Print the forge version

Use "forge [command] --help" for more information about a command.`,
}

func checkWorkerCLI() error {
	if flagAPIMode {
		return nil
	}
	if flagWorkerBin == "" {
		flagWorkerBin = "claude"
	}
	if _, err := exec.LookPath(flagWorkerBin); err != nil {
		return fmt.Errorf("worker CLI %q not found in PATH\n\n"+
			"forge drives a code-generation subprocess; install it or pass\n"+
			"--api to call the Anthropic API directly instead", flagWorkerBin)
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version.Get()
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to a project config file (defaults to XDG + .forge.yaml precedence)")
	rootCmd.PersistentFlags().StringVar(&flagDebugLog, "debug-log", "", "append-only debug log path (disabled when empty)")
	rootCmd.PersistentFlags().StringVar(&flagWorkerBin, "worker-bin", "claude", "worker CLI executable name")
	rootCmd.PersistentFlags().BoolVar(&flagAPIMode, "api", false, "call the Anthropic API directly instead of spawning the worker CLI")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(swarmCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(versionCmd)
}
