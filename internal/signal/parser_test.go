package signal

import "testing"

func TestParseProgressWithPercent(t *testing.T) {
	sig := Extract("Working on it... <progress>50%</progress> done so far.")
	if len(sig.Progress) != 1 || sig.Progress[0].Percentage != 50 {
		t.Fatalf("got %+v", sig.Progress)
	}
}

func TestParseProgressWithoutPercent(t *testing.T) {
	sig := Extract("<progress>75</progress>")
	if len(sig.Progress) != 1 || sig.Progress[0].Percentage != 75 {
		t.Fatalf("got %+v", sig.Progress)
	}
}

func TestParseProgressClampsTo100(t *testing.T) {
	sig := Extract("<progress>150</progress>")
	if len(sig.Progress) != 1 || sig.Progress[0].Percentage != 100 {
		t.Fatalf("got %+v", sig.Progress)
	}
}

func TestParseMultipleProgress(t *testing.T) {
	sig := Extract("<progress>25%</progress> then <progress>50%</progress> finally done")
	if len(sig.Progress) != 2 {
		t.Fatalf("got %d progress signals", len(sig.Progress))
	}
	if sig.Progress[0].Percentage != 25 || sig.Progress[1].Percentage != 50 {
		t.Fatalf("got %+v", sig.Progress)
	}
}

func TestParseBlocker(t *testing.T) {
	sig := Extract("<blocker>Need API key from user</blocker>")
	if len(sig.Blockers) != 1 || sig.Blockers[0].Description != "Need API key from user" {
		t.Fatalf("got %+v", sig.Blockers)
	}
}

func TestParsePivot(t *testing.T) {
	sig := Extract("<pivot>Using REST API instead of GraphQL</pivot>")
	if len(sig.Pivots) != 1 || sig.Pivots[0].NewApproach != "Using REST API instead of GraphQL" {
		t.Fatalf("got %+v", sig.Pivots)
	}
}

func TestParseEmptyTagsIgnored(t *testing.T) {
	sig := Extract("<blocker></blocker> <pivot>  </pivot>")
	if len(sig.Blockers) != 0 || len(sig.Pivots) != 0 {
		t.Fatalf("expected no signals, got %+v %+v", sig.Blockers, sig.Pivots)
	}
}

func TestParseSpawnSubphase(t *testing.T) {
	sig := Extract(`<spawn-subphase>{"name":"fix-tests","promise":"TESTS FIXED","budget":3}</spawn-subphase>`)
	if len(sig.SubPhaseSpawns) != 1 {
		t.Fatalf("got %+v", sig.SubPhaseSpawns)
	}
	s := sig.SubPhaseSpawns[0]
	if s.Name != "fix-tests" || s.Promise != "TESTS FIXED" || s.Budget != 3 {
		t.Fatalf("got %+v", s)
	}
}

func TestParseMalformedSpawnDropped(t *testing.T) {
	sig := Extract(`<spawn-subphase>{not valid json</spawn-subphase><progress>10</progress>`)
	if len(sig.SubPhaseSpawns) != 0 {
		t.Fatalf("expected malformed spawn dropped, got %+v", sig.SubPhaseSpawns)
	}
	if len(sig.Progress) != 1 {
		t.Fatalf("expected surrounding signal to still parse, got %+v", sig.Progress)
	}
}

func TestParseRequestDecompositionSelfClosing(t *testing.T) {
	sig := Extract("<request-decomposition/>")
	if sig.DecompositionRequest == nil {
		t.Fatal("expected decomposition request")
	}
}

func TestParseRequestDecompositionWithReason(t *testing.T) {
	sig := Extract("<request-decomposition>too many moving parts</request-decomposition>")
	if sig.DecompositionRequest == nil || sig.DecompositionRequest.Reason != "too many moving parts" {
		t.Fatalf("got %+v", sig.DecompositionRequest)
	}
}

func TestParseDecompositionPlanSupersedesRequest(t *testing.T) {
	text := `<request-decomposition/><decomposition>{"tasks":[{"id":"t1","name":"a","budget":2},{"id":"t2","name":"b","budget":2}]}</decomposition>`
	sig := Extract(text)
	if sig.DecompositionRequest != nil {
		t.Fatalf("expected request superseded by plan, got %+v", sig.DecompositionRequest)
	}
	if sig.DecompositionPlan == nil || len(sig.DecompositionPlan.Tasks) != 2 {
		t.Fatalf("got %+v", sig.DecompositionPlan)
	}
}

func TestParseMixedWithPromise(t *testing.T) {
	text := "<progress>100</progress>\nAll done!\n<promise>PHASE COMPLETE</promise>"
	sig := Extract(text)
	if len(sig.Progress) != 1 || !sig.Progress[0].IsComplete() {
		t.Fatalf("got %+v", sig.Progress)
	}
}

func TestParseIdempotent(t *testing.T) {
	text := "<progress>40%</progress><blocker>need review</blocker><pivot>try again</pivot>"
	a := Extract(text)
	b := Extract(text)
	if len(a.Progress) != len(b.Progress) || len(a.Blockers) != len(b.Blockers) || len(a.Pivots) != len(b.Pivots) {
		t.Fatalf("parse not idempotent: %+v vs %+v", a, b)
	}
}

func TestParseNoSignals(t *testing.T) {
	sig := Extract("Just regular text without any signals.")
	if sig.HasSignals() {
		t.Fatalf("expected no signals, got %+v", sig)
	}
}
