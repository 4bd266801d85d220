package runner

// State is a step of the run state machine.
//
// The success path is Init, SessionAcquired, ProfileApplied, Navigated,
// Ready, Extracted, Reported, TornDown. A failure anywhere before Extracted
// diverts to Diagnosing, Reported, TornDown.
type State int

const (
	StateInit State = iota
	StateSessionAcquired
	StateProfileApplied
	StateNavigated
	StateReady
	StateExtracted
	StateDiagnosing
	StateReported
	StateTornDown
)

var stateNames = [...]string{
	StateInit:            "init",
	StateSessionAcquired: "session_acquired",
	StateProfileApplied:  "profile_applied",
	StateNavigated:       "navigated",
	StateReady:           "ready",
	StateExtracted:       "extracted",
	StateDiagnosing:      "diagnosing",
	StateReported:        "reported",
	StateTornDown:        "torn_down",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
