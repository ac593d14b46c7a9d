// Package pstate implements the pipeline lifecycle state machine (spec
// §4.11): Idle/Starting/Listening/Paused/Stopping/Error with serialized
// transitions and a single correlation ID per active session.
package pstate

import (
	"errors"
	"fmt"
	"sync"
)

// State is a pipeline lifecycle state.
type State int

const (
	Idle State = iota
	Starting
	Listening
	Paused
	Stopping
	Error
)

// String returns the lowercase name of s.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned when a requested transition is not legal
// from the machine's current state.
var ErrInvalidTransition = errors.New("pstate: invalid transition")

// ErrAlreadyStarting is returned by Start when the machine is already in the
// Starting state (spec §4.11: "concurrent start while Starting returns an
// error").
var ErrAlreadyStarting = errors.New("pstate: start already in progress")

// Machine is a serialized pipeline state machine. One Machine exists per
// session. All methods are safe for concurrent use.
type Machine struct {
	mu    sync.Mutex
	state State
	corr  string
}

// New creates a Machine in the Idle state bound to the given correlation ID.
func New(corr string) *Machine {
	return &Machine{state: Idle, corr: corr}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CorrelationID returns the correlation ID this machine's session was
// started with.
func (m *Machine) CorrelationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.corr
}

// AcceptsAudio reports whether the current state accepts audio frames. Only
// Listening and Paused do; Paused drops frames silently rather than
// rejecting them (spec §4.11).
func (m *Machine) AcceptsAudio() bool {
	s := m.State()
	return s == Listening || s == Paused
}

// Start transitions Idle -> Starting. Returns ErrAlreadyStarting if a start
// is already in progress, or ErrInvalidTransition from any other non-Idle
// state.
func (m *Machine) Start(corr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Idle:
		m.state = Starting
		m.corr = corr
		return nil
	case Starting:
		return ErrAlreadyStarting
	default:
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, m.state)
	}
}

// Listen transitions Starting -> Listening, marking the session ready to
// accept audio.
func (m *Machine) Listen() error {
	return m.transition(Starting, Listening)
}

// Pause transitions Listening -> Paused.
func (m *Machine) Pause() error {
	return m.transition(Listening, Paused)
}

// Resume transitions Paused -> Listening.
func (m *Machine) Resume() error {
	return m.transition(Paused, Listening)
}

// Stop transitions Listening or Paused -> Stopping.
func (m *Machine) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Listening && m.state != Paused {
		return fmt.Errorf("%w: stop from %s", ErrInvalidTransition, m.state)
	}
	m.state = Stopping
	return nil
}

// Stopped transitions Stopping -> Idle, completing a clean shutdown.
func (m *Machine) Stopped() error {
	return m.transition(Stopping, Idle)
}

// Fail transitions the machine to Error from any state. Unlike the other
// transitions this one is unconditional, matching the spec's "any state may
// transition to Error" rule.
func (m *Machine) Fail() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Error
}

// Reset transitions Error -> Idle, clearing the failure so a new session can
// be started.
func (m *Machine) Reset() error {
	return m.transition(Error, Idle)
}

// transition moves the machine from "from" to "to", failing with
// ErrInvalidTransition if the current state does not match "from".
func (m *Machine) transition(from, to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, to, m.state)
	}
	m.state = to
	return nil
}
