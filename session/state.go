// Package session defines the lifecycle state machine shared by both sides
// of the bridge. Each peer tracks the same states so it knows when it is
// legal to send what; illegal transitions are programming errors surfaced
// as ErrInvalidTransition rather than silent corruption.
package session

import (
	"fmt"
	"sync"
)

// State is a lifecycle state of a bridge session.
type State string

const (
	// StateUninitialized is the state of a freshly constructed session.
	StateUninitialized State = "uninitialized"
	// StateInitializing begins when the view sends the handshake request.
	StateInitializing State = "initializing"
	// StateReady begins when the host has answered the handshake and the
	// view's initialized notification has been observed, in that order.
	StateReady State = "ready"
	// StateTearingDown begins when the host issues the teardown request.
	StateTearingDown State = "tearing-down"
	// StateClosed is terminal: resources released, pending requests rejected.
	StateClosed State = "closed"
	// StateFailed is terminal, reached from any non-closed state on an
	// unrecoverable transport error.
	StateFailed State = "failed"
)

// ErrInvalidTransition reports an illegal lifecycle transition.
type ErrInvalidTransition struct {
	From State
	To   State
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid session transition: %s -> %s", e.From, e.To)
}

var transitions = map[State][]State{
	StateUninitialized: {StateInitializing, StateClosed, StateFailed},
	StateInitializing:  {StateReady, StateClosed, StateFailed},
	StateReady:         {StateTearingDown, StateClosed, StateFailed},
	StateTearingDown:   {StateClosed, StateFailed},
	StateClosed:        {},
	StateFailed:        {},
}

// CanTransition reports whether the lifecycle permits moving from one state
// to another.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateClosed || s == StateFailed }

// Machine is a concurrency-safe holder of the current lifecycle state.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine returns a machine in StateUninitialized.
func NewMachine() *Machine {
	return &Machine{state: StateUninitialized}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// To transitions to the given state, or returns ErrInvalidTransition.
func (m *Machine) To(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !CanTransition(m.state, to) {
		return &ErrInvalidTransition{From: m.state, To: to}
	}
	m.state = to
	return nil
}

// Is reports whether the machine currently holds any of the given states.
func (m *Machine) Is(states ...State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range states {
		if m.state == s {
			return true
		}
	}
	return false
}
