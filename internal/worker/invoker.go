// Package worker runs one worker invocation (a single Claude Code turn)
// and collects its output into a models.IterationResult (spec.md §4.1).
//
// Two backends are provided: Process, which shells out to the `claude`
// CLI the way a human operator would, and API, which talks to the
// Anthropic API directly and maintains its own conversation history for
// session continuity. Both satisfy Invoker.
package worker

import (
	"context"

	"github.com/forgehq/forge/pkg/models"
)

// InvokeOptions carries per-invocation parameters.
type InvokeOptions struct {
	// Model overrides the default model for this call; empty uses the
	// backend's default.
	Model string
	// SessionID continues a prior conversation when supported by the
	// backend (Process passes --resume; API replays prior turns).
	SessionID string
	// WorkDir is the directory the worker should operate in — normally a
	// phase's dedicated git worktree (spec.md §4.6).
	WorkDir string
	// Promise is the sentinel token that marks phase completion; Invoke
	// sets IterationResult.PromiseFound when it appears in the worker's
	// output.
	Promise string
}

// Invoker runs a single worker turn given a prompt and returns its parsed
// result. Implementations must be safe to call sequentially, once per
// iteration, from the Phase Runner; concurrent calls to the same Invoker
// are not required to be safe.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, opts InvokeOptions) (models.IterationResult, error)
}

// StreamEventType mirrors the `claude --output-format stream-json` event
// discriminator.
type StreamEventType string

const (
	EventSystem    StreamEventType = "system"
	EventAssistant StreamEventType = "assistant"
	EventUser      StreamEventType = "user"
	EventResult    StreamEventType = "result"
	EventError     StreamEventType = "error"
)

// StreamEvent is one parsed line of stream-json output.
type StreamEvent struct {
	Type      StreamEventType
	Message   string
	Error     string
	SessionID string
}
