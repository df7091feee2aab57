package analysis

// transitionsTable is the exhaustive (From, Event) -> To mapping. Dispatch
// consults decisionTable first, then scans this table for the matching row;
// keeping the two separate lets the "is this allowed" question be answered
// without knowing the destination state, which is how leases are checked.
var transitionsTable = []Transition{
	{From: StateOpen, To: StateClosed, Event: EvClose, Reason: "segmenter closed the window"},

	{From: StateClosed, To: StateAnalyzing, Event: EvStartAnalysis, Reason: "orchestrator acquired the analysis lease"},
	{From: StateClosed, To: StateTooShort, Event: EvMarkTooShort, Reason: "duration below minimum threshold"},

	{From: StateAnalyzing, To: StateAnalyzed, Event: EvAnalysisSuccess, Reason: "provider returned a parsed summary"},
	{From: StateAnalyzing, To: StateFailed, Event: EvAnalysisFailure, Reason: "provider call exhausted retries or returned a terminal error"},

	{From: StateAnalyzed, To: StateAnalyzing, Event: EvForceReanalyze, Reason: "caller requested regeneration"},
	{From: StateFailed, To: StateAnalyzing, Event: EvForceReanalyze, Reason: "caller retried a failed analysis"},
	{From: StateTooShort, To: StateAnalyzing, Event: EvForceReanalyze, Reason: "caller forced analysis of a too-short session"},
}

// TransitionFor returns the transition row matching (from, ev), if any.
func TransitionFor(from State, ev Event) (Transition, bool) {
	for _, t := range transitionsTable {
		if t.From == from && t.Event == ev {
			return t, true
		}
	}
	return Transition{}, false
}
