// internal/harness/state.go
package harness

import "github.com/mwiater/ragbench/internal/gateway"

// State is a pair's position in its one-directional lifecycle. A pair never
// re-enters a prior state.
type State int

const (
	StatePending State = iota
	StateRetrieving
	StateGenerating
	StateEvaluating
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetrieving:
		return "retrieving"
	case StateGenerating:
		return "generating"
	case StateEvaluating:
		return "evaluating"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is one progress update for a pair, published to the optional events
// channel for live display.
type Event struct {
	TestCaseID   string
	StrategyName string
	State        State
	ErrorKind    gateway.Kind
}

// Terminal reports whether the event marks the end of a pair's lifecycle.
func (e Event) Terminal() bool {
	return e.State == StateDone || e.State == StateFailed
}
