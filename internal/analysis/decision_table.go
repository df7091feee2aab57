package analysis

// decisionTable enumerates which events are accepted from each state. It is
// consulted before transitionsTable is searched, so an out-of-order event is
// rejected with a named reason rather than silently ignored.
var decisionTable = map[State]map[Event]Decision{
	StateOpen: {
		EvClose: {Allowed: true},
	},
	StateClosed: {
		EvStartAnalysis: {Allowed: true},
		EvMarkTooShort:  {Allowed: true},
	},
	StateAnalyzing: {
		EvAnalysisSuccess: {Allowed: true},
		EvAnalysisFailure: {Allowed: true},
	},
	StateAnalyzed: {
		EvForceReanalyze: {Allowed: true},
	},
	StateFailed: {
		EvForceReanalyze: {Allowed: true},
	},
	StateTooShort: {
		EvForceReanalyze: {Allowed: true},
	},
}

// DecisionFor reports whether ev is accepted from the given state.
func DecisionFor(from State, ev Event) Decision {
	events, ok := decisionTable[from]
	if !ok {
		return Decision{Allowed: false, Reason: ForbiddenOutOfOrder}
	}
	d, ok := events[ev]
	if !ok {
		return Decision{Allowed: false, Reason: ForbiddenOutOfOrder}
	}
	return d
}
