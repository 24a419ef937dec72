package provisioning

import "fmt"

// State is a step of one provisioning attempt.
type State string

// Provisioning states.
const (
	StateRequested  State = "requested"
	StateReused     State = "reused"
	StateLaunching  State = "launching"
	StatePending    State = "pending"
	StateRunning    State = "running"
	StateSSHWaiting State = "ssh_waiting"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

var transitions = map[State][]State{
	StateRequested:  {StateReused, StateLaunching},
	StateLaunching:  {StatePending, StateFailed},
	StatePending:    {StateRunning, StateFailed},
	StateRunning:    {StateSSHWaiting},
	StateSSHWaiting: {StateReady, StateFailed},
}

// CanTransition reports whether to is a legal successor of s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends an attempt.
func (s State) IsTerminal() bool {
	return s == StateReused || s == StateReady || s == StateFailed
}

// attempt tracks the state of one Provision call.
type attempt struct {
	state    State
	history  []State
	observer Observer
	metrics  *Metrics
}

func newAttempt(observer Observer, metrics *Metrics) *attempt {
	return &attempt{
		state:    StateRequested,
		history:  []State{StateRequested},
		observer: observer,
		metrics:  metrics,
	}
}

// enter moves to the next state and emits a transition event. Illegal
// transitions are programming errors.
func (a *attempt) enter(to State, resource string) {
	if !a.state.CanTransition(to) {
		panic(fmt.Sprintf("illegal provisioning transition %s -> %s", a.state, to))
	}
	from := a.state
	a.state = to
	a.history = append(a.history, to)
	a.metrics.recordTransition(to)
	LogTransition(a.observer, from, to, resource)
}

// fail moves to StateFailed when the current state allows it and returns
// err unchanged.
func (a *attempt) fail(err error, resource string) error {
	if a.state.CanTransition(StateFailed) {
		a.state = StateFailed
		a.history = append(a.history, StateFailed)
		a.metrics.recordTransition(StateFailed)
	}
	LogFailure(a.observer, a.state, resource, err)
	return err
}
