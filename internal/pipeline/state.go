package pipeline

import "fmt"

// State represents a stage in the degradation lifecycle of one document run.
type State string

const (
	StatePending         State = "PENDING"
	StatePrimaryAttempt  State = "PRIMARY_ATTEMPT"
	StateSuccess         State = "SUCCESS"
	StateDegrade         State = "DEGRADE"
	StateFallbackAttempt State = "FALLBACK_ATTEMPT"
	StateSuccessDegraded State = "SUCCESS_DEGRADED"
	StateMinimalResponse State = "MINIMAL_RESPONSE"
)

// transitions defines the only legal moves. Every terminal state produces a
// valid ExtractionResult; there is no error terminal.
var transitions = map[State][]State{
	StatePending:         {StatePrimaryAttempt, StateDegrade},
	StatePrimaryAttempt:  {StateSuccess, StateDegrade},
	StateDegrade:         {StateFallbackAttempt},
	StateFallbackAttempt: {StateSuccessDegraded, StateMinimalResponse},
}

var terminalStates = map[State]bool{
	StateSuccess:         true,
	StateSuccessDegraded: true,
	StateMinimalResponse: true,
}

// IsTerminal reports whether the state ends the run.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// machine tracks the current state of one pipeline run and validates
// transitions. A run is single-goroutine; the machine is not shared.
type machine struct {
	current State
}

func newMachine() *machine {
	return &machine{current: StatePending}
}

// to moves the machine to next, or errors if the transition is not defined.
// Transition errors indicate a pipeline bug, not a document problem.
func (m *machine) to(next State) error {
	for _, allowed := range transitions[m.current] {
		if allowed == next {
			m.current = next
			return nil
		}
	}
	return fmt.Errorf("invalid pipeline transition %s -> %s", m.current, next)
}
