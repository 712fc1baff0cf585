package review

import (
	"testing"

	"github.com/forgehq/forge/pkg/models"
)

func TestParseReportExtractsVerdictSummaryAndFindings(t *testing.T) {
	output := `Some preamble text the worker emitted.
VERDICT: FAIL
SUMMARY: token stored insecurely
FINDING: [critical] internal/auth/session.go:42 token stored in plaintext
FINDING: [warning] internal/auth/session.go refresh token never expires
`
	report := parseReport("05", "security-sentinel", output)

	if report.Verdict != models.VerdictFail {
		t.Fatalf("expected VerdictFail, got %s", report.Verdict)
	}
	if report.Summary != "token stored insecurely" {
		t.Fatalf("unexpected summary: %q", report.Summary)
	}
	if len(report.Findings) != 2 {
		t.Fatalf("expected 2 findings, got %d: %+v", len(report.Findings), report.Findings)
	}
	if report.Findings[0].Severity != models.SeverityCritical || report.Findings[0].Line != 42 {
		t.Fatalf("unexpected first finding: %+v", report.Findings[0])
	}
	if report.Findings[1].Severity != models.SeverityWarning || report.Findings[1].Line != 0 {
		t.Fatalf("unexpected second finding: %+v", report.Findings[1])
	}
}

func TestParseReportDefaultsToWarnWithoutVerdictLine(t *testing.T) {
	report := parseReport("05", "performance-oracle", "looks fine to me")
	if report.Verdict != models.VerdictWarn {
		t.Fatalf("expected default VerdictWarn, got %s", report.Verdict)
	}
}

func TestParseReportPassVerdict(t *testing.T) {
	report := parseReport("05", "simplicity-reviewer", "VERDICT: PASS\nSUMMARY: clean")
	if report.Verdict != models.VerdictPass {
		t.Fatalf("expected VerdictPass, got %s", report.Verdict)
	}
}
