// Package contextledger implements the Context Tracker and Compaction
// Manager (spec.md §4.3): per-phase accounting of prompt/output bytes and
// the summarization that keeps that accounting under the effective limit.
package contextledger

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultModelWindowChars is the assumed model context window, in
// characters, used when a phase's context limit is expressed as a
// percentage (spec.md §4.3: "default 80% of 800,000 characters").
const DefaultModelWindowChars = 800_000

// MinPreservedContext is the floor an effective limit must exceed so there
// is always room for a compaction summary plus the next iteration
// (spec.md §4.3 invariant).
const MinPreservedContext = 50_000

// CompactionSafetyMarginPct is the margin, in percent of the effective
// limit, below which compaction triggers: the threshold is
// effective_limit * (1 - 10/100), so an 80% limit triggers compaction at
// 72% of the raw window.
const CompactionSafetyMarginPct = 10.0

// Limit represents a parsed context_limit configuration value: either a
// percentage of the model window or an absolute character count.
type Limit struct {
	isPercentage bool
	percentage   float64
	absolute     int
}

// ParseLimit parses a context_limit string. Accepts "80%"-style percentages
// in (0, 100], or a positive absolute character count.
func ParseLimit(s string) (Limit, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Limit{}, fmt.Errorf("context limit cannot be empty")
	}

	if pct, ok := strings.CutSuffix(s, "%"); ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil {
			return Limit{}, fmt.Errorf("invalid percentage in context limit %q: %w", s, err)
		}
		if v <= 0 || v > 100 {
			return Limit{}, fmt.Errorf("context limit percentage must be in (0, 100], got %v", v)
		}
		return Limit{isPercentage: true, percentage: v}, nil
	}

	v, err := strconv.Atoi(s)
	if err != nil {
		return Limit{}, fmt.Errorf("invalid absolute context limit %q: %w", s, err)
	}
	if v <= 0 {
		return Limit{}, fmt.Errorf("absolute context limit must be positive, got %d", v)
	}
	return Limit{absolute: v}, nil
}

// DefaultLimit is the configuration default ("80%").
func DefaultLimit() Limit {
	l, err := ParseLimit("80%")
	if err != nil {
		panic(err) // unreachable: literal is always valid
	}
	return l
}

// IsPercentage reports whether this limit is expressed as a percentage.
func (l Limit) IsPercentage() bool {
	return l.isPercentage
}

// Effective computes the effective character limit given a model window
// size in characters.
func (l Limit) Effective(modelWindowChars int) int {
	if l.isPercentage {
		return int(float64(modelWindowChars) * l.percentage / 100.0)
	}
	return l.absolute
}

func (l Limit) String() string {
	if l.isPercentage {
		return fmt.Sprintf("%g%%", l.percentage)
	}
	return strconv.Itoa(l.absolute)
}
