package worker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/forgehq/forge/internal/signal"
	"github.com/forgehq/forge/pkg/models"
)

// defaultAPIModel is used when InvokeOptions.Model is empty.
const defaultAPIModel = anthropic.ModelClaudeSonnet4_5_20250929

// systemPrompt is the fixed system instruction for API-mode invocations.
// Process-mode invocations get their operating instructions from the
// `claude` CLI's own configuration instead.
const systemPrompt = "You are an autonomous engineering agent executing one phase of a larger plan. Work directly in the given directory and report progress using the documented signal tags."

// API invokes a worker turn directly against the Anthropic API, bypassing
// the `claude` CLI entirely (spec.md's "direct API worker mode"). Since
// there is no CLI process to hold conversation state, API keeps a
// per-session transcript in memory and replays it on every call made with
// the same InvokeOptions.SessionID.
type API struct {
	client anthropic.Client
	signal *signal.Parser

	mu       sync.Mutex
	sessions map[string][]anthropic.MessageParam
}

// NewAPI creates an API backend. apiKey may be empty, in which case the
// ANTHROPIC_API_KEY environment variable is used.
func NewAPI(apiKey string) (*API, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set and no key was provided")
	}
	return &API{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		signal:   signal.New(),
		sessions: make(map[string][]anthropic.MessageParam),
	}, nil
}

// Invoke sends prompt as the next user turn (continuing opts.SessionID's
// transcript when set) and returns the worker's full text response as one
// IterationResult.
func (a *API) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (models.IterationResult, error) {
	model := anthropic.Model(opts.Model)
	if model == "" {
		model = defaultAPIModel
	}

	key := opts.SessionID
	a.mu.Lock()
	history := append([]anthropic.MessageParam(nil), a.sessions[key]...)
	a.mu.Unlock()

	messages := append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)))

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: 8192,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  messages,
	})
	if err != nil {
		return models.IterationResult{}, fmt.Errorf("anthropic API call: %w", err)
	}

	var output string
	var assistantBlocks []anthropic.ContentBlockParamUnion
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			output += text.Text
			assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(text.Text))
		}
	}

	if key != "" {
		a.mu.Lock()
		a.sessions[key] = append(messages, anthropic.NewAssistantMessage(assistantBlocks...))
		a.mu.Unlock()
	}

	return models.IterationResult{
		PromptChars:  len(prompt),
		OutputChars:  len(output),
		PromiseFound: opts.Promise != "" && strings.Contains(output, opts.Promise),
		Signals:      a.signal.Parse(output),
		SessionID:    key,
		Output:       output,
	}, nil
}

var _ Invoker = (*API)(nil)
