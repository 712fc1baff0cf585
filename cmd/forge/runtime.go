package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/forgehq/forge/internal/approval"
	"github.com/forgehq/forge/internal/audit"
	"github.com/forgehq/forge/internal/changes"
	"github.com/forgehq/forge/internal/config"
	"github.com/forgehq/forge/internal/dag"
	"github.com/forgehq/forge/internal/executor"
	"github.com/forgehq/forge/internal/git"
	"github.com/forgehq/forge/internal/hooks"
	"github.com/forgehq/forge/internal/logging"
	"github.com/forgehq/forge/internal/skills"
	"github.com/forgehq/forge/internal/telemetry"
	"github.com/forgehq/forge/internal/worker"
	"github.com/forgehq/forge/pkg/models"
)

// runtime bundles the collaborators shared by the run and swarm commands.
type runtime struct {
	cfg        *config.Config
	repoPath   string
	runID      string
	startedAt  time.Time
	debugLog   *logging.DebugLogger
	gate       *approval.Gate
	hooksMgr   *hooks.Manager
	worktrees  *changes.WorktreeManager
	auditLog   *audit.Log
	stateFile  *audit.StateFile
	skillsRslv skills.Resolver
	telemetry  *telemetry.Provider
}

// loadConfig resolves the project config per flagConfigPath, falling back
// to the layered XDG/project/env precedence spec.md §6 documents.
func loadConfig() (*config.Config, error) {
	if flagConfigPath != "" {
		return config.LoadFromPath(flagConfigPath)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRuntime builds the collaborators a run needs: the approval gate, hook
// dispatcher, worktree manager, audit log, and debug logger, all rooted at
// the current working directory's repository.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	repoPath, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determine repository path: %w", err)
	}
	runID := uuid.NewString()

	telemetryProvider, err := telemetry.NewProvider(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("start telemetry: %w", err)
	}

	debugLogPath := flagDebugLog
	if debugLogPath == "" {
		debugLogPath = filepath.Join(repoPath, ".forge", "logs", runID+".log")
	}
	debugLog, err := logging.New(debugLogPath)
	if err != nil {
		return nil, fmt.Errorf("open debug log: %w", err)
	}

	if flagAPIMode {
		if key, err := config.GetAPIKey(cfg); err == nil {
			debugLog.Log("[forge] api key source=%s masked=%s", config.GetAPIKeySource(cfg), config.MaskAPIKey(key))
		}
	}

	hooksMgr := hooks.NewManager(hooks.Config{Hooks: cfg.Hooks})
	hooksMgr.SetDebugLog(debugLog.Log)

	gate := approval.New(
		approval.WithAutoApproveThreshold(cfg.AutoApproveThreshold),
		approval.WithHooks(hooksMgr),
		approval.WithPrompter(approval.NewStdPrompter(os.Stdin, os.Stdout)),
	)

	worktrees, err := changes.NewWorktreeManager(filepath.Join(repoPath, ".forge", "worktrees"), repoPath)
	if err != nil {
		return nil, fmt.Errorf("create worktree manager: %w", err)
	}

	auditLog, err := audit.Open(audit.DefaultPath(repoPath, runID), "sqlite")
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	stateFile, err := audit.NewStateFile(filepath.Join(repoPath, ".forge", "runs", runID, "state.log"))
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}

	var resolver skills.Resolver
	skillsDir := filepath.Join(repoPath, ".forge", "skills")
	if info, statErr := os.Stat(skillsDir); statErr == nil && info.IsDir() {
		resolver = skills.NewDirResolver(skillsDir)
	}

	return &runtime{
		cfg:        cfg,
		repoPath:   repoPath,
		runID:      runID,
		startedAt:  time.Now(),
		debugLog:   debugLog,
		gate:       gate,
		hooksMgr:   hooksMgr,
		worktrees:  worktrees,
		auditLog:   auditLog,
		stateFile:  stateFile,
		skillsRslv: resolver,
		telemetry:  telemetryProvider,
	}, nil
}

func (rt *runtime) close() {
	_ = rt.telemetry.Shutdown(context.Background())
	_ = rt.auditLog.Close()
	_ = rt.debugLog.Close()
}

// newInvokerFactory returns a factory producing one fresh worker.Invoker
// per phase, per executor.New's contract (concurrent phases must not
// share an Invoker).
func (rt *runtime) newInvokerFactory() func() worker.Invoker {
	if flagAPIMode {
		return func() worker.Invoker {
			apiKey, err := config.GetAPIKey(rt.cfg)
			if err != nil {
				// GetAPIKey/ValidateAPIKey only fail on a missing or
				// malformed key; surface it as a panic-free no-op invoker
				// that always errors, so one misconfigured phase doesn't
				// crash the whole wave.
				return erroringInvoker{err: err}
			}
			if err := config.ValidateAPIKey(apiKey); err != nil {
				return erroringInvoker{err: err}
			}
			inv, err := worker.NewAPI(apiKey)
			if err != nil {
				return erroringInvoker{err: err}
			}
			return inv
		}
	}
	return func() worker.Invoker {
		p := worker.NewProcess()
		p.Bin = flagWorkerBin
		return p
	}
}

type erroringInvoker struct{ err error }

func (e erroringInvoker) Invoke(ctx context.Context, prompt string, opts worker.InvokeOptions) (models.IterationResult, error) {
	return models.IterationResult{}, e.err
}

// preparePhases loads a phase file and applies run-level config: merging
// `skills.global` into each phase's own skill list and building the DAG.
func (rt *runtime) preparePhases(phaseFilePath string) ([]*models.Phase, *dag.Graph, error) {
	phases, err := config.LoadPhaseFile(phaseFilePath)
	if err != nil {
		return nil, nil, err
	}
	for _, p := range phases {
		p.Skills = skills.Merge(rt.cfg.Skills.Global, p.Skills)
	}

	g := dag.New()
	g.SetDebugLog(rt.debugLog.Log)
	if err := g.Build(phases); err != nil {
		return nil, nil, fmt.Errorf("build phase graph: %w", err)
	}
	return phases, g, nil
}

// recordEvents drains the executor's event channel, logging each
// transition, persisting it to the audit log, and refreshing the run's
// swarm status snapshot (spec.md §6) so "forge resume" can read it
// mid-run. Returns a channel closed when draining is complete, so
// callers can wait for it before reading final results.
func (rt *runtime) recordEvents(events <-chan models.PhaseEvent, g *dag.Graph) <-chan struct{} {
	done := make(chan struct{})
	snapPath := audit.SnapshotPath(rt.repoPath, rt.runID)
	startedAt := rt.startedAt
	go func() {
		defer close(done)
		for ev := range events {
			logging.PrintPhaseEvent(ev)
			if err := rt.auditLog.RecordEvent(ev); err != nil {
				rt.debugLog.Log("[forge] record event: %v", err)
			}
			if status, ok := phaseStatusFor(ev); ok {
				if err := rt.stateFile.Append(status); err != nil {
					rt.debugLog.Log("[forge] append state file: %v", err)
				}
			}
			snap := g.Snapshot()
			snap.StartedAt = startedAt
			if err := audit.WriteSnapshot(snapPath, snap); err != nil {
				rt.debugLog.Log("[forge] write snapshot: %v", err)
			}
		}
	}()
	return done
}

func defaultGitRunner(repoPath string) git.Runner {
	return git.NewRunner(repoPath)
}

// phaseStatusFor maps a PhaseEvent onto the sequential state file's
// narrower (phase, iteration, status, timestamp) vocabulary (spec.md §6);
// events with no corresponding PhaseStatusKind are not appended.
func phaseStatusFor(ev models.PhaseEvent) (models.PhaseStatus, bool) {
	var kind models.PhaseStatusKind
	switch ev.Kind {
	case models.EventStarted:
		kind = models.PhaseStarted
	case models.EventCompleted:
		kind = models.PhaseCompleted
	case models.EventFailed:
		kind = models.PhaseMaxIterations
	default:
		return models.PhaseStatus{}, false
	}
	return models.PhaseStatus{
		PhaseNumber: ev.PhaseNumber,
		Iteration:   ev.Iteration,
		Status:      kind,
		Timestamp:   time.Now(),
	}, true
}

// newExecutor wires this runtime's collaborators into an executor.Executor
// ready to run the given graph.
func (rt *runtime) newExecutor(g *dag.Graph, maxParallel int, failFast, yes bool) *executor.Executor {
	cfg := executor.Config{
		RunID:             rt.runID,
		IntegrationBranch: "main",
		MaxParallel:       maxParallel,
		FailFast:          failFast,
		Yes:               yes,
		SessionContinuity: rt.cfg.SessionContinuity,
		Skills:            rt.skillsRslv,
	}
	ex := executor.New(g, rt.gate, rt.hooksMgr, rt.worktrees, rt.newInvokerFactory(), nil, cfg)
	ex.SetDebugLog(rt.debugLog.Log)
	return ex
}
