// Package approval implements the per-phase and per-iteration permission
// state machine (spec.md §4.5): four permission modes gate whether a
// phase's iterations may run without an interactive decision, and whether
// the phase may touch the filesystem at all.
package approval

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/forgehq/forge/internal/hooks"
	"github.com/forgehq/forge/pkg/models"
)

// PhaseDecision is the outcome of the phase-level approval gate.
type PhaseDecision int

const (
	Approved PhaseDecision = iota
	ApprovedAll
	Rejected
	Aborted
)

func (d PhaseDecision) String() string {
	switch d {
	case Approved:
		return "approved"
	case ApprovedAll:
		return "approved_all"
	case Rejected:
		return "rejected"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IterationDecision is the outcome of the Strict-mode per-iteration gate.
type IterationDecision int

const (
	Continue IterationDecision = iota
	Skip
	StopPhase
	Abort
)

func (d IterationDecision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Skip:
		return "skip"
	case StopPhase:
		return "stop_phase"
	case Abort:
		return "abort"
	default:
		return "unknown"
	}
}

// Prompter asks a human for a phase or iteration decision. The default
// implementation reads from a terminal; tests substitute a scripted fake.
type Prompter interface {
	PromptPhase(ctx context.Context, phase *models.Phase, previousChanges int) (PhaseDecision, error)
	PromptIteration(ctx context.Context, phase *models.Phase, iteration int) (IterationDecision, error)
}

// Gate tracks the approval state machine across an entire run. A single
// Gate instance is shared by the DAG Executor across all phases so that
// ApprovedAll can latch for the remainder of the run (spec.md §4.5: "treat
// it as sequential-only unless configuration demands otherwise" — we honor
// that by latching on the Gate itself rather than per-wave).
type Gate struct {
	mu                   sync.Mutex
	approvedAll          bool
	autoApproveThreshold int
	prompter             Prompter
	hooks                *hooks.Manager
}

// Option configures a Gate at construction time.
type Option func(*Gate)

// WithAutoApproveThreshold sets the change count below which Standard-mode
// phase approval happens automatically, keyed off the previous phase's
// change count (spec.md §4.5).
func WithAutoApproveThreshold(n int) Option {
	return func(g *Gate) { g.autoApproveThreshold = n }
}

// WithPrompter overrides the interactive prompter (tests, --yes mode).
func WithPrompter(p Prompter) Option {
	return func(g *Gate) { g.prompter = p }
}

// WithHooks wires the lifecycle hook dispatcher so OnApproval directives
// can take priority over auto-approval and the interactive prompt.
func WithHooks(h *hooks.Manager) Option {
	return func(g *Gate) { g.hooks = h }
}

// New builds a Gate with the given options. The default auto-approve
// threshold is 5 (spec.md §4.9 default config) and the default prompter is
// NewStdPrompter(nil, nil), which reads from an empty input and discards
// its prompts; pass WithPrompter to read decisions interactively.
func New(opts ...Option) *Gate {
	g := &Gate{
		autoApproveThreshold: 5,
		prompter:             NewStdPrompter(nil, nil),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DecidePhase runs the phase-level approval decision. The DAG Executor
// calls it before each Standard-mode phase only; Strict, Autonomous and
// Readonly phases never consult it.
//
// Priority order (spec.md §4.5): hook directive (Approve/Reject/Block) >
// auto-approve (threshold) > interactive prompt. A prior ApprovedAll
// latches the gate so later calls return ApprovedAll without prompting.
func (g *Gate) DecidePhase(ctx context.Context, phase *models.Phase, previousChanges int) (PhaseDecision, error) {
	g.mu.Lock()
	latched := g.approvedAll
	g.mu.Unlock()
	if latched {
		return ApprovedAll, nil
	}

	if g.hooks != nil {
		r, err := g.hooks.RunOnApproval(ctx, phase.Number, phase.Name)
		if err != nil {
			return Aborted, fmt.Errorf("on_approval hooks: %w", err)
		}
		switch r.Action {
		case hooks.ActionBlock:
			return Aborted, nil
		case hooks.ActionReject:
			return Rejected, nil
		case hooks.ActionApprove:
			return Approved, nil
		}
	}

	if previousChanges < g.autoApproveThreshold {
		return Approved, nil
	}

	decision, err := g.prompter.PromptPhase(ctx, phase, previousChanges)
	if err != nil {
		return Aborted, err
	}
	if decision == ApprovedAll {
		g.mu.Lock()
		g.approvedAll = true
		g.mu.Unlock()
	}
	return decision, nil
}

// DecideIteration runs the Strict-mode per-iteration decision. Callers
// should only invoke this when phase.EffectivePermissionMode() == Strict.
func (g *Gate) DecideIteration(ctx context.Context, phase *models.Phase, iteration int) (IterationDecision, error) {
	return g.prompter.PromptIteration(ctx, phase, iteration)
}

// DiffHash computes the digest used to detect that a phase's proposed
// changes differ from what was last approved, so a stale approval can't be
// silently reused across a different diff.
func DiffHash(diff string) string {
	sum := sha256.Sum256([]byte(diff))
	return hex.EncodeToString(sum[:])
}

// StdPrompter reads phase/iteration decisions from an io.Reader and writes
// its prompts to an io.Writer.
type StdPrompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewStdPrompter builds a StdPrompter. A nil in reads from an empty input
// and a nil out discards output; callers in cmd/forge pass os.Stdin and
// os.Stdout explicitly.
func NewStdPrompter(in io.Reader, out io.Writer) *StdPrompter {
	if in == nil {
		in = strings.NewReader("")
	}
	if out == nil {
		out = io.Discard
	}
	return &StdPrompter{in: bufio.NewScanner(in), out: out}
}

func (p *StdPrompter) PromptPhase(ctx context.Context, phase *models.Phase, previousChanges int) (PhaseDecision, error) {
	fmt.Fprintf(p.out, "phase %s (%s): %d changes in previous phase — approve? [y/N/all/reject/abort] ", phase.Number, phase.Name, previousChanges)
	line, err := p.readLine(ctx)
	if err != nil {
		return Aborted, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return Approved, nil
	case "all":
		return ApprovedAll, nil
	case "reject", "r":
		return Rejected, nil
	case "abort", "a":
		return Aborted, nil
	default:
		return Rejected, nil
	}
}

func (p *StdPrompter) PromptIteration(ctx context.Context, phase *models.Phase, iteration int) (IterationDecision, error) {
	fmt.Fprintf(p.out, "phase %s (%s) iteration %d — continue? [Y/n/skip/abort] ", phase.Number, phase.Name, iteration)
	line, err := p.readLine(ctx)
	if err != nil {
		return Abort, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "", "y", "yes":
		return Continue, nil
	case "n", "no", "stop":
		return StopPhase, nil
	case "skip", "s":
		return Skip, nil
	case "abort", "a":
		return Abort, nil
	default:
		return Continue, nil
	}
}

func (p *StdPrompter) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		ok   bool
	}
	ch := make(chan result, 1)
	go func() {
		ok := p.in.Scan()
		ch <- result{line: p.in.Text(), ok: ok}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if !r.ok {
			return "", io.EOF
		}
		return r.line, nil
	}
}
