package coordinator

// state is one node of the state machine spec §4.7.1 names:
// Idle -> Probing -> Streaming -> {Done, Aborted}.
type state int

const (
	stateIdle state = iota
	stateProbing
	stateStreaming
	stateDone
	stateAborted
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "Idle"
	case stateProbing:
		return "Probing"
	case stateStreaming:
		return "Streaming"
	case stateDone:
		return "Done"
	case stateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}
