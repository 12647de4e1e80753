package workflow

// State is a stage of a single claim's pipeline run
type State string

const (
	StateReceived      State = "RECEIVED"
	StateTextExtracted State = "TEXT_EXTRACTED"
	StateStructured    State = "STRUCTURED"
	StateValidated     State = "VALIDATED"
	StateRouted        State = "ROUTED"
	StateFailed        State = "FAILED"
)

var validStates = map[State]bool{
	StateReceived:      true,
	StateTextExtracted: true,
	StateStructured:    true,
	StateValidated:     true,
	StateRouted:        true,
	StateFailed:        true,
}

var terminalStates = map[State]bool{
	StateRouted: true,
	StateFailed: true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a known pipeline state
func (s State) IsValid() bool {
	return validStates[s]
}
