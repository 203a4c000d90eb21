package query

import "fmt"

// State is the lifecycle state of a Session.
//
//	Created -> Executing -> Open | Failed
//	Open -> FetchingNext -> Open | Failed
//	Open -> Exhausted
//	any -> Closed (terminal)
type State int

const (
	StateCreated State = iota
	StateExecuting
	StateOpen
	StateFetchingNext
	StateExhausted
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateExecuting:
		return "EXECUTING"
	case StateOpen:
		return "OPEN"
	case StateFetchingNext:
		return "FETCHING_NEXT"
	case StateExhausted:
		return "EXHAUSTED"
	case StateFailed:
		return "FAILED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
