// Package phase implements the Phase Runner (spec.md §4.1): the bounded
// iteration loop that drives one phase's worker invocations to a terminal
// outcome, wiring together the signal parser, context tracker, hook
// dispatcher, approval gate, progress tracker and decomposition detector.
package phase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/forgehq/forge/internal/approval"
	"github.com/forgehq/forge/internal/changes"
	"github.com/forgehq/forge/internal/contextledger"
	"github.com/forgehq/forge/internal/hooks"
	"github.com/forgehq/forge/internal/progress"
	"github.com/forgehq/forge/internal/skills"
	"github.com/forgehq/forge/internal/telemetry"
	"github.com/forgehq/forge/internal/worker"
	"github.com/forgehq/forge/pkg/models"
)

// iterationDelay is the cooperative pause between iterations that lets
// hooks and the filesystem settle (spec.md §4.1 step 14).
const iterationDelay = 2 * time.Second

// ErrGlobalAbort is returned alongside a UserAborted outcome when a
// Strict-mode iteration decision was Abort rather than StopPhase — the
// caller should terminate the whole run, not just this phase (spec.md
// §4.5: "Abort propagates up and terminates the orchestrator").
var ErrGlobalAbort = fmt.Errorf("phase runner: run aborted by user")

// Runner drives a single phase to completion. The DAG Executor constructs
// a new Runner for every phase it runs.
type Runner struct {
	Invoker worker.Invoker
	Hooks   *hooks.Manager
	Gate    *approval.Gate
	Status  changes.StatusReader
	WorkDir string

	// Skills resolves ph.Skills into prompt text; nil if this run has no
	// skill fragments configured (spec.md §3 Phase.skills).
	Skills skills.Resolver

	// SessionContinuity feeds each iteration's session id back as the next
	// iteration's --resume argument, when the worker backend supports it.
	SessionContinuity bool
	// Yes auto-continues past stall prompts and unacknowledged blockers
	// instead of consulting an interactive prompter.
	Yes bool
	// Sleep is the cooperative inter-iteration delay; overridden in tests.
	Sleep func(time.Duration)

	debugLog func(format string, args ...interface{})
}

// New builds a Runner with the given collaborators and sensible defaults.
func New(inv worker.Invoker, hookMgr *hooks.Manager, gate *approval.Gate, status changes.StatusReader, workDir string) *Runner {
	return &Runner{
		Invoker:  inv,
		Hooks:    hookMgr,
		Gate:     gate,
		Status:   status,
		WorkDir:  workDir,
		Sleep:    time.Sleep,
		debugLog: func(string, ...interface{}) {},
	}
}

// SetDebugLog installs a logging function; pass nil to silence it again.
func (r *Runner) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		r.debugLog = fn
	} else {
		r.debugLog = func(string, ...interface{}) {}
	}
}

// Run executes ph to a terminal PhaseOutcome (spec.md §4.1). If the worker
// proposes and this Runner validates a decomposition plan during the run,
// it is returned alongside the outcome so the caller can schedule the
// resulting sub-phases; the parent phase's own outcome is unaffected by a
// pending decomposition (see DESIGN.md for this interpretation of an
// underspecified interaction).
func (r *Runner) Run(ctx context.Context, ph *models.Phase) (models.PhaseOutcome, *models.DecompositionPlan, error) {
	limit := contextledger.DefaultLimit()
	if ph.ContextLimit != "" {
		parsed, err := contextledger.ParseLimit(ph.ContextLimit)
		if err != nil {
			return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s: %w", ph.Number, err)
		}
		limit = parsed
	}
	tracker, err := contextledger.NewDefault(limit)
	if err != nil {
		return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s: %w", ph.Number, err)
	}
	compactor := contextledger.NewManager(ph.Number, ph.Name, ph.Promise)
	progTracker := progress.New()

	var skillText string
	if r.Skills != nil && len(ph.Skills) > 0 {
		resolved, err := r.Skills.Resolve(ph.Skills)
		if err != nil {
			return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s: resolve skills: %w", ph.Number, err)
		}
		skillText = resolved
	}

	var sessionID string
	var feedback string
	var pendingDecompositionRequest bool
	var plan *models.DecompositionPlan
	var recentOutputs []contextledger.IterationOutput
	changeAccum := models.NewChangeSummary()

	finish := func(outcome models.PhaseOutcome) (models.PhaseOutcome, *models.DecompositionPlan, error) {
		outcome.Changes = changeAccum
		if _, hookErr := r.Hooks.RunPostPhase(ctx, ph.Number, ph.Name); hookErr != nil {
			r.debugLog("[phase %s] post_phase hook error: %v", ph.Number, hookErr)
		}
		return outcome, plan, nil
	}

	prePhaseRes, err := r.Hooks.RunPrePhase(ctx, ph.Number, ph.Name, r.WorkDir)
	if err != nil {
		return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s: pre_phase hooks: %w", ph.Number, err)
	}
	if !prePhaseRes.Action.ShouldContinue() {
		return finish(models.PhaseOutcome{Kind: models.OutcomeHookBlocked, Reason: prePhaseRes.Reason})
	}
	if prePhaseRes.Inject != "" {
		feedback = prePhaseRes.Inject
	}

	for iter := 1; iter <= ph.Budget; iter++ {
		if ph.EffectivePermissionMode() == models.PermissionStrict {
			decision, err := r.Gate.DecideIteration(ctx, ph, iter)
			if err != nil {
				return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s iter %d: approval gate: %w", ph.Number, iter, err)
			}
			switch decision {
			case approval.StopPhase:
				return finish(models.PhaseOutcome{Kind: models.OutcomeUserAborted, Iteration: iter})
			case approval.Abort:
				outcome, p, _ := finish(models.PhaseOutcome{Kind: models.OutcomeUserAborted, Iteration: iter})
				return outcome, p, ErrGlobalAbort
			case approval.Skip:
				continue
			}
		}

		if ph.EffectivePermissionMode() == models.PermissionAutonomous && iter > 1 && progTracker.IsStalled() {
			if !r.Yes {
				decision, err := r.Gate.DecideIteration(ctx, ph, iter)
				if err != nil {
					return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s iter %d: stall prompt: %w", ph.Number, iter, err)
				}
				if decision != approval.Continue {
					return finish(models.PhaseOutcome{Kind: models.OutcomeUserAborted, Iteration: iter})
				}
			}
		}

		preIterRes, err := r.Hooks.RunPreIteration(ctx, ph.Number, ph.Name, iter)
		if err != nil {
			return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s iter %d: pre_iteration hooks: %w", ph.Number, iter, err)
		}
		if !preIterRes.Action.ShouldContinue() {
			return finish(models.PhaseOutcome{Kind: models.OutcomeHookBlocked, Iteration: iter, Reason: preIterRes.Reason})
		}
		if preIterRes.Inject != "" {
			feedback = appendFeedback(feedback, preIterRes.Inject)
		}

		var injectedSummary string
		if tracker.ShouldCompact() {
			summary, _, err := compactor.Compact(tracker, recentOutputs, changeAccum)
			if err != nil {
				r.debugLog("[phase %s] compaction skipped: %v", ph.Number, err)
			} else {
				injectedSummary = summary
				sessionID = ""
				feedback = ""
				recentOutputs = nil
			}
		}

		prompt := buildPrompt(ph, skillText, injectedSummary, feedback, pendingDecompositionRequest)
		pendingDecompositionRequest = false

		opts := worker.InvokeOptions{WorkDir: r.WorkDir, Promise: ph.Promise}
		if r.SessionContinuity {
			opts.SessionID = sessionID
		}

		iterCtx, iterSpan := telemetry.StartIteration(ctx, ph.Number, iter)
		result, err := r.Invoker.Invoke(iterCtx, prompt, opts)
		iterSpan.End()
		if err != nil {
			return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s iter %d: worker invocation: %w", ph.Number, iter, err)
		}
		if r.SessionContinuity {
			sessionID = result.SessionID
		}

		changeSummary, err := changes.Snapshot(r.Status)
		if err != nil {
			return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s iter %d: change snapshot: %w", ph.Number, iter, err)
		}
		mergeChanges(changeAccum, changeSummary)

		if ph.EffectivePermissionMode() == models.PermissionReadonly && !changeSummary.IsEmpty() {
			return finish(models.PhaseOutcome{Kind: models.OutcomeReadonlyViolation, Iteration: iter, Path: firstChangedPath(changeSummary)})
		}

		signals := result.Signals
		promiseFound := DetectPromise(result.Output, ph.Promise)

		latestPct, havePct := signals.LatestProgress()
		progTracker.Update(changeSummary.Count(), latestPct, havePct)

		tracker.AddIteration(len(prompt), len(result.Output))
		recentOutputs = append(recentOutputs, contextledger.IterationOutput{IterNo: iter, Output: result.Output})
		if len(recentOutputs) > 2 {
			recentOutputs = recentOutputs[len(recentOutputs)-2:]
		}

		if signals.DecompositionPlan != nil {
			remaining := ph.Budget - iter
			if err := progress.ValidatePlan(signals.DecompositionPlan, remaining); err == nil {
				plan = signals.DecompositionPlan
			} else {
				r.debugLog("[phase %s] rejected decomposition plan: %v", ph.Number, err)
			}
		} else if progress.ShouldTriggerDecomposition(iter, ph.Budget, latestPct, havePct, signals) {
			pendingDecompositionRequest = true
		}

		postIterRes, err := r.Hooks.RunPostIteration(ctx, ph.Number, ph.Name, iter, promiseFound,
			len(changeSummary.FilesAdded), len(changeSummary.FilesModified), len(changeSummary.FilesDeleted))
		if err != nil {
			return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s iter %d: post_iteration hooks: %w", ph.Number, iter, err)
		}
		hookBlockedCompletion := postIterRes.Action == hooks.ActionBlock
		if postIterRes.Inject != "" {
			feedback = appendFeedback(feedback, postIterRes.Inject)
		}

		unacked := signals.UnacknowledgedBlockers()
		if len(unacked) > 0 && !r.Yes {
			decision, err := r.Gate.DecideIteration(ctx, ph, iter)
			if err != nil {
				return models.PhaseOutcome{}, nil, fmt.Errorf("phase %s iter %d: blocker prompt: %w", ph.Number, iter, err)
			}
			if decision == approval.StopPhase || decision == approval.Abort {
				return finish(models.PhaseOutcome{Kind: models.OutcomeUserAborted, Iteration: iter})
			}
		}

		if promiseFound && !hookBlockedCompletion {
			return finish(models.PhaseOutcome{Kind: models.OutcomeCompleted, Iteration: iter})
		}

		feedback = synthesizeFeedback(iter, ph.Budget, promiseFound, changeSummary, latestPct, havePct, len(unacked))

		if iter < ph.Budget {
			r.Sleep(iterationDelay)
		}
	}

	if _, err := r.Hooks.RunOnFailure(ctx, ph.Number, ph.Name, "budget exhausted without promise"); err != nil {
		r.debugLog("[phase %s] on_failure hook error: %v", ph.Number, err)
	}
	return finish(models.PhaseOutcome{Kind: models.OutcomeMaxIterationsReached, Iteration: ph.Budget})
}

func appendFeedback(existing, next string) string {
	if existing == "" {
		return next
	}
	return existing + "\n" + next
}

func mergeChanges(dst, src *models.ChangeSummary) {
	for p := range src.FilesAdded {
		dst.FilesAdded[p] = struct{}{}
	}
	for p := range src.FilesModified {
		dst.FilesModified[p] = struct{}{}
	}
	for p := range src.FilesDeleted {
		dst.FilesDeleted[p] = struct{}{}
	}
}

func firstChangedPath(c *models.ChangeSummary) string {
	for p := range c.FilesAdded {
		return p
	}
	for p := range c.FilesModified {
		return p
	}
	for p := range c.FilesDeleted {
		return p
	}
	return ""
}

func buildPrompt(ph *models.Phase, skillText, injectedSummary, feedback string, requestDecomposition bool) string {
	var b strings.Builder
	b.WriteString(ph.Description)
	if skillText != "" {
		b.WriteString("\n\n--- skills ---\n")
		b.WriteString(skillText)
	}
	if injectedSummary != "" {
		b.WriteString("\n\n--- context summary ---\n")
		b.WriteString(injectedSummary)
	}
	if feedback != "" {
		b.WriteString("\n\n--- feedback ---\n")
		b.WriteString(feedback)
	}
	if requestDecomposition {
		b.WriteString("\n\nThis phase appears too large for its remaining budget. Propose a decomposition plan using <decomposition>{...}</decomposition>.")
	}
	fmt.Fprintf(&b, "\n\nDeclare completion by emitting the exact token: %s", ph.Promise)
	return b.String()
}

func synthesizeFeedback(iter, budget int, promiseFound bool, changes *models.ChangeSummary, progressPct int, havePct bool, blockerCount int) string {
	status := "promise not yet found"
	if promiseFound {
		status = "promise found"
	}
	parts := []string{fmt.Sprintf("iteration %d/%d", iter, budget), status}
	if changes != nil {
		parts = append(parts, fmt.Sprintf("+%d files", changes.Count()))
	}
	if havePct {
		parts = append(parts, fmt.Sprintf("progress %d%%", progressPct))
	}
	if blockerCount > 0 {
		parts = append(parts, fmt.Sprintf("%d blocker(s)", blockerCount))
	}
	return strings.Join(parts, ", ")
}

var promiseTagRe = regexp.MustCompile(`(?s)<promise>(.*?)</promise>`)

// DetectPromise reports whether output contains ph's promise token, either
// bare on a line or wrapped in a <promise> tag. Matching is literal and
// case-sensitive; surrounding whitespace is insignificant at token
// boundaries (spec.md §4.1/§3).
func DetectPromise(output, promise string) bool {
	if promise == "" {
		return false
	}
	normalizedPromise := normalizeWhitespace(promise)

	for _, m := range promiseTagRe.FindAllStringSubmatch(output, -1) {
		if normalizeWhitespace(m[1]) == normalizedPromise {
			return true
		}
	}

	normalizedOutput := normalizeWhitespace(output)
	return strings.Contains(normalizedOutput, normalizedPromise)
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
