package review

import (
	"strings"
	"testing"
)

func TestFocusAreasCoverNamedDomain(t *testing.T) {
	cases := map[SpecialistType]string{
		SecuritySentinel:    "injection",
		PerformanceOracle:   "complexity",
		ArchitectureAuditor: "layering",
		SimplicityReviewer:  "abstraction",
	}
	for specialistType, want := range cases {
		areas := specialistType.FocusAreas()
		found := false
		for _, a := range areas {
			if strings.Contains(a, want) {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("%s: expected a focus area mentioning %q, got %v", specialistType, want, areas)
		}
	}
}

func TestGatingAndAdvisoryConstructors(t *testing.T) {
	g := Gating(SecuritySentinel)
	if !g.Gating {
		t.Fatal("expected Gating() to set Gating=true")
	}
	a := Advisory(PerformanceOracle)
	if a.Gating {
		t.Fatal("expected Advisory() to set Gating=false")
	}
	if g.Name() != "security-sentinel" {
		t.Fatalf("unexpected name: %s", g.Name())
	}
}
