package breaker

// Status is the evaluation outcome for a limiter. Triggered is a normal
// outcome, not a failure: the caller decides whether to reject, delay, or
// reroute the pending operation.
type Status int

const (
	// StatusUninitialized means no limiter exists for the identifier.
	StatusUninitialized Status = iota
	// StatusInactive means the settled total is still below the enforcement
	// threshold, so rate limiting is not applied.
	StatusInactive
	// StatusOk means the projected total stays above the retained fraction.
	StatusOk
	// StatusTriggered means outflows within the window would reduce the
	// tracked total below the retained fraction.
	StatusTriggered
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInactive:
		return "inactive"
	case StatusOk:
		return "ok"
	case StatusTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// status evaluates the limiter without mutating it. Callers must hold at
// least a read lock. gateIncludesWindow selects whether the in-window total
// contributes to the enforcement gate.
func (l *limiter) status(gateIncludesWindow bool) Status {
	if l.overridden {
		return StatusOk
	}
	gate := l.settledTotal
	if gateIncludesWindow {
		gate += l.inWindowTotal
	}
	if gate < l.limitBeginThreshold {
		return StatusInactive
	}
	projected := l.settledTotal + l.inWindowTotal
	if projected < l.minRetained() {
		return StatusTriggered
	}
	return StatusOk
}

// minRetained computes settledTotal * minRetainedBps / BpsDenominator with
// the product split into quotient and remainder parts so the intermediate
// never leaves int64 range. Division truncates toward zero, matching a plain
// wide-integer multiply-divide.
func (l *limiter) minRetained() int64 {
	q := l.settledTotal / BpsDenominator
	r := l.settledTotal % BpsDenominator
	return q*l.minRetainedBps + r*l.minRetainedBps/BpsDenominator
}
