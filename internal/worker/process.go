package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/forgehq/forge/internal/signal"
	"github.com/forgehq/forge/pkg/models"
)

// Process invokes the `claude` CLI as a subprocess, the way a human
// operator would from a terminal, and accumulates its stream-json output
// into a single IterationResult per call.
type Process struct {
	// Bin overrides the executable name, for tests. Defaults to "claude".
	Bin string
	// AllowedTools is passed via --allowedTools; defaults to a permissive
	// set suitable for Standard/Autonomous permission modes. The same set is
	// used for every phase, Readonly phases included.
	AllowedTools string

	signal *signal.Parser
	mu     sync.Mutex
}

// NewProcess returns a Process backend with default tool permissions.
func NewProcess() *Process {
	return &Process{
		Bin:          "claude",
		AllowedTools: "Read,Write,Edit,Bash,Glob,Grep,WebFetch",
		signal:       signal.New(),
	}
}

// Invoke starts `claude --print --output-format stream-json`, streams its
// output to completion, and returns the parsed result. The prompt and
// combined output character counts feed the Phase Runner's context ledger
// (spec.md §4.3); the raw output text is parsed for progress/blocker/
// pivot/spawn/decomposition signals and promise detection.
func (p *Process) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (models.IterationResult, error) {
	bin := p.Bin
	if bin == "" {
		bin = "claude"
	}

	args := []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	}
	if p.AllowedTools != "" {
		args = append(args, "--allowedTools", p.AllowedTools)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.SessionID != "" {
		args = append(args, "--resume", opts.SessionID)
	}
	args = append(args, "-p", prompt)

	cmd := exec.CommandContext(ctx, bin, args...)
	if opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return models.IterationResult{}, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return models.IterationResult{}, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return models.IterationResult{}, fmt.Errorf("start claude: %w", err)
	}

	var wg sync.WaitGroup
	var outBuf strings.Builder
	var sessionID string
	var stderrBuf strings.Builder

	wg.Add(2)
	go func() {
		defer wg.Done()
		p.readEvents(stdout, &outBuf, &sessionID)
	}()
	go func() {
		defer wg.Done()
		drainStderr(stderr, &stderrBuf)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		msg := fmt.Sprintf("claude exited with error: %v", err)
		if stderrBuf.Len() > 0 {
			msg += fmt.Sprintf("; stderr: %s", stderrBuf.String())
		}
		return models.IterationResult{}, fmt.Errorf("%s", msg)
	}

	output := outBuf.String()
	result := models.IterationResult{
		PromptChars:  len(prompt),
		OutputChars:  len(output),
		PromiseFound: opts.Promise != "" && strings.Contains(output, opts.Promise),
		Signals:      p.signal.Parse(output),
		SessionID:    sessionID,
		Output:       output,
	}
	return result, nil
}

// readEvents scans stream-json lines from r, appending each assistant or
// result message's text to out and capturing the session ID the CLI
// assigns on its first system event.
func (p *Process) readEvents(r io.Reader, out *strings.Builder, sessionID *string) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(line, &raw); err != nil {
			continue
		}
		t, _ := raw["type"].(string)
		if sid, ok := raw["session_id"].(string); ok && sid != "" && *sessionID == "" {
			*sessionID = sid
		}
		switch StreamEventType(t) {
		case EventAssistant, EventUser, EventSystem:
			if msg, ok := raw["message"].(string); ok {
				out.WriteString(msg)
				out.WriteByte('\n')
			} else if content, ok := raw["content"].(string); ok {
				out.WriteString(content)
				out.WriteByte('\n')
			} else {
				out.WriteString(extractTextBlocks(raw))
			}
		case EventResult:
			if result, ok := raw["result"].(string); ok {
				out.WriteString(result)
				out.WriteByte('\n')
			}
		}
	}
}

// extractTextBlocks pulls text out of a message.content array of blocks,
// the shape Claude Code actually emits for assistant turns.
func extractTextBlocks(raw map[string]interface{}) string {
	msg, ok := raw["message"].(map[string]interface{})
	if !ok {
		return ""
	}
	content, ok := msg["content"].([]interface{})
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, item := range content {
		block, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if blockType, _ := block["type"].(string); blockType == "text" {
			if text, ok := block["text"].(string); ok {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
	}
	return b.String()
}

func drainStderr(r io.Reader, out *strings.Builder) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 16*1024)
	scanner.Buffer(buf, 256*1024)
	for scanner.Scan() {
		out.Write(scanner.Bytes())
		out.WriteByte('\n')
	}
}

var _ Invoker = (*Process)(nil)
