package analysis

import "testing"

func TestTransitionTable_NoDuplicates(t *testing.T) {
	seen := map[State]map[Event]struct{}{}
	for _, tr := range transitionsTable {
		if _, ok := seen[tr.From]; !ok {
			seen[tr.From] = map[Event]struct{}{}
		}
		if _, exists := seen[tr.From][tr.Event]; exists {
			t.Fatalf("duplicate transition: %s + %v", tr.From, tr.Event)
		}
		seen[tr.From][tr.Event] = struct{}{}
	}
}

func TestDispatch_HappyPath(t *testing.T) {
	rec := Record{State: StateOpen}

	tr, err := Dispatch(rec, EvClose)
	if err != nil || tr.To != StateClosed {
		t.Fatalf("open->close: got %v, err=%v", tr, err)
	}

	rec.State = tr.To
	tr, err = Dispatch(rec, EvStartAnalysis)
	if err != nil || tr.To != StateAnalyzing {
		t.Fatalf("closed->analyzing: got %v, err=%v", tr, err)
	}

	rec.State = tr.To
	tr, err = Dispatch(rec, EvAnalysisSuccess)
	if err != nil || tr.To != StateAnalyzed {
		t.Fatalf("analyzing->analyzed: got %v, err=%v", tr, err)
	}
}

func TestDispatch_RejectsOutOfOrder(t *testing.T) {
	rec := Record{State: StateOpen}
	if _, err := Dispatch(rec, EvStartAnalysis); err == nil {
		t.Fatal("expected rejection starting analysis on an open session")
	}
}

func TestDispatch_TooShortIsTerminalUnlessForced(t *testing.T) {
	rec := Record{State: StateTooShort}
	if _, err := Dispatch(rec, EvAnalysisSuccess); err == nil {
		t.Fatal("expected too_short to reject a bare analysis-success event")
	}
	tr, err := Dispatch(rec, EvForceReanalyze)
	if err != nil || tr.To != StateAnalyzing {
		t.Fatalf("too_short->force_reanalyze: got %v, err=%v", tr, err)
	}
}

func TestDispatch_FailedCanBeRetried(t *testing.T) {
	rec := Record{State: StateFailed}
	tr, err := Dispatch(rec, EvForceReanalyze)
	if err != nil || tr.To != StateAnalyzing {
		t.Fatalf("failed->force_reanalyze: got %v, err=%v", tr, err)
	}
}
