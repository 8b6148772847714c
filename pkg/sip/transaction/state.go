package transaction

// State is a transaction's position in its RFC 3261 state machine. The
// same enum is shared by all four machines (INVITE/non-INVITE x
// client/server); each machine only ever visits a subset of these values.
type State int

const (
	StateCalling State = iota
	StateTrying
	StateProceeding
	StateCompleted
	StateConfirmed
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCalling:
		return "Calling"
	case StateTrying:
		return "Trying"
	case StateProceeding:
		return "Proceeding"
	case StateCompleted:
		return "Completed"
	case StateConfirmed:
		return "Confirmed"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
