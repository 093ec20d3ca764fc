package process

import (
	"fmt"
	"sync"

	"github.com/brianly1003/gitdeck/internal/domain"
	"github.com/brianly1003/gitdeck/internal/domain/events"
)

// State is the lifecycle position of one execution.
type State int

const (
	StateSpawning State = iota
	StateRunning
	StateExited
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateErrored:
		return "errored"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Sink receives the events of one execution, one call at a time.
type Sink func(events.StreamEvent)

// execution enforces the event grammar
//
//	process_id (stdout|stderr)* (exit|error)
//
// by tying every event kind to a state transition:
//
//	Spawning --process_id--> Running
//	Running  --output------> Running
//	Running  --exit--------> Exited
//	Spawning --error-------> Errored
//	Running  --error-------> Errored
type execution struct {
	mu    sync.Mutex
	state State
	sink  Sink
}

func newExecution(sink Sink) *execution {
	if sink == nil {
		sink = func(events.StreamEvent) {}
	}
	return &execution{state: StateSpawning, sink: sink}
}

// next returns the state ev moves to from s, or false if ev may not fire.
func next(s State, ev events.StreamEvent) (State, bool) {
	switch ev.(type) {
	case events.ProcessIDEvent:
		return StateRunning, s == StateSpawning
	case events.OutputEvent:
		return StateRunning, s == StateRunning
	case events.ExitEvent:
		return StateExited, s == StateRunning
	case events.ErrorEvent:
		return StateErrored, s == StateSpawning || s == StateRunning
	}
	return s, false
}

// fire delivers ev if the current state allows it.
func (x *execution) fire(ev events.StreamEvent) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	to, ok := next(x.state, ev)
	if !ok {
		return fmt.Errorf("%w: %s in state %s", domain.ErrIllegalTransition, ev.Kind(), x.state)
	}
	x.state = to
	x.sink(ev)
	return nil
}

// State returns the current state.
func (x *execution) State() State {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.state
}
