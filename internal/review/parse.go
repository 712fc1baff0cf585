package review

import (
	"strconv"
	"strings"

	"github.com/forgehq/forge/pkg/models"
)

// parseReport extracts a models.ReviewReport from one specialist's raw
// worker output. Unrecognized lines are ignored; a response with no
// VERDICT line defaults to VerdictWarn so a malformed reply never silently
// passes review.
func parseReport(phaseNumber, specialist, output string) models.ReviewReport {
	report := models.ReviewReport{
		PhaseNumber: phaseNumber,
		Specialist:  specialist,
		Verdict:     models.VerdictWarn,
	}

	for _, rawLine := range strings.Split(output, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		upper := strings.ToUpper(line)

		switch {
		case strings.HasPrefix(upper, "VERDICT:"):
			report.Verdict = parseVerdict(line[len("VERDICT:"):])
		case strings.HasPrefix(upper, "SUMMARY:"):
			report.Summary = strings.TrimSpace(line[len("SUMMARY:"):])
		case strings.HasPrefix(upper, "FINDING:"):
			if f, ok := parseFinding(strings.TrimSpace(line[len("FINDING:"):])); ok {
				report.Findings = append(report.Findings, f)
			}
		}
	}

	return report
}

func parseVerdict(s string) models.ReviewVerdict {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PASS":
		return models.VerdictPass
	case "FAIL":
		return models.VerdictFail
	default:
		return models.VerdictWarn
	}
}

// parseFinding parses "[severity] file[:line] message".
func parseFinding(s string) (models.ReviewFinding, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return models.ReviewFinding{}, false
	}
	end := strings.Index(s, "]")
	if end < 0 {
		return models.ReviewFinding{}, false
	}
	severity := parseSeverity(s[1:end])
	rest := strings.TrimSpace(s[end+1:])

	parts := strings.SplitN(rest, " ", 2)
	if len(parts) == 0 || parts[0] == "" {
		return models.ReviewFinding{}, false
	}
	location := parts[0]
	message := ""
	if len(parts) == 2 {
		message = parts[1]
	}

	file := location
	line := 0
	if idx := strings.LastIndex(location, ":"); idx >= 0 {
		if n, err := strconv.Atoi(location[idx+1:]); err == nil {
			file = location[:idx]
			line = n
		}
	}

	return models.ReviewFinding{
		Severity: severity,
		File:     file,
		Message:  message,
		Line:     line,
	}, true
}

func parseSeverity(s string) models.FindingSeverity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return models.SeverityCritical
	case "warning":
		return models.SeverityWarning
	default:
		return models.SeverityInfo
	}
}
