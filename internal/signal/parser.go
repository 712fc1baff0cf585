// Package signal extracts structured progress, blocker, pivot, spawn, and
// decomposition signals from a worker's raw output text.
//
// Parsing is stateless and deterministic: the same input text always
// yields an equal models.IterationSignals (apart from timestamps).
package signal

import (
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/forgehq/forge/pkg/models"
)

var (
	progressRe  = regexp.MustCompile(`<progress>\s*(\d{1,3})%?\s*</progress>`)
	blockerRe   = regexp.MustCompile(`(?s)<blocker>(.*?)</blocker>`)
	pivotRe     = regexp.MustCompile(`(?s)<pivot>(.*?)</pivot>`)
	spawnRe     = regexp.MustCompile(`(?s)<spawn-subphase>\s*(.*?)\s*</spawn-subphase>`)
	decompReqRe = regexp.MustCompile(`(?s)<request-decomposition\s*/>|<request-decomposition>(.*?)</request-decomposition>`)
	decompRe    = regexp.MustCompile(`(?s)<decomposition>\s*(.*?)\s*</decomposition>`)
)

// Parser extracts models.IterationSignals from raw worker output.
type Parser struct {
	// Verbose logs malformed-JSON warnings and each signal found, mirroring
	// the original implementation's verbose parser mode.
	Verbose bool
}

// New returns a Parser with default (non-verbose) behavior.
func New() *Parser {
	return &Parser{}
}

// Parse extracts every recognized signal tag from text. Malformed JSON
// payloads inside <spawn-subphase> or <decomposition> are dropped with a
// warning; surrounding signals of other kinds still parse (spec.md §4.2).
func (p *Parser) Parse(text string) models.IterationSignals {
	now := time.Now()
	var sig models.IterationSignals

	for _, m := range progressRe.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		n, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		if n > 100 {
			n = 100
		}
		sig.Progress = append(sig.Progress, models.ProgressSignal{
			Percentage: n,
			Raw:        raw,
			Timestamp:  now,
		})
		p.logf("progress %d%%", n)
	}

	for _, m := range blockerRe.FindAllStringSubmatch(text, -1) {
		desc := strings.TrimSpace(m[1])
		if desc == "" {
			continue
		}
		sig.Blockers = append(sig.Blockers, models.BlockerSignal{
			Description: desc,
			Timestamp:   now,
		})
		p.logf("blocker %q", desc)
	}

	for _, m := range pivotRe.FindAllStringSubmatch(text, -1) {
		approach := strings.TrimSpace(m[1])
		if approach == "" {
			continue
		}
		sig.Pivots = append(sig.Pivots, models.PivotSignal{
			NewApproach: approach,
			Timestamp:   now,
		})
		p.logf("pivot %q", approach)
	}

	for _, m := range spawnRe.FindAllStringSubmatch(text, -1) {
		payload := strings.TrimSpace(m[1])
		if payload == "" {
			continue
		}
		var spawn models.SpawnSignal
		if err := json.Unmarshal([]byte(payload), &spawn); err != nil {
			p.logf("warning: malformed spawn-subphase JSON: %v", err)
			continue
		}
		sig.SubPhaseSpawns = append(sig.SubPhaseSpawns, spawn)
		p.logf("spawn-subphase %q (budget %d)", spawn.Name, spawn.Budget)
	}

	// request-decomposition: only the first occurrence is recorded. If both
	// a plan and a request appear, a full <decomposition> plan takes precedence (design
	// note in spec.md §9: "if a plan is present, honor it; otherwise solicit
	// one next iteration").
	if m := decompReqRe.FindStringSubmatch(text); m != nil {
		reason := ""
		if len(m) > 1 {
			reason = strings.TrimSpace(m[1])
		}
		sig.DecompositionRequest = &models.DecompositionRequest{
			Reason:    reason,
			Timestamp: now,
		}
		p.logf("request-decomposition %q", reason)
	}

	if m := decompRe.FindStringSubmatch(text); m != nil {
		payload := strings.TrimSpace(m[1])
		var plan models.DecompositionPlan
		if err := json.Unmarshal([]byte(payload), &plan); err != nil {
			p.logf("warning: malformed decomposition JSON: %v", err)
		} else {
			sig.DecompositionPlan = &plan
			// A plan supersedes a bare request per the precedence note above.
			sig.DecompositionRequest = nil
			p.logf("decomposition plan with %d tasks", len(plan.Tasks))
		}
	}

	return sig
}

func (p *Parser) logf(format string, args ...interface{}) {
	if p.Verbose {
		log.Printf("[signal] "+format, args...)
	}
}

// Extract is a convenience function equivalent to New().Parse(text).
func Extract(text string) models.IterationSignals {
	return New().Parse(text)
}
