package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/securechat/schat/internal/bus"
)

// State represents the session lifecycle state.
type State string

const (
	// Booting means the roster has not been fetched yet.
	Booting State = "BOOTING"
	// AuthRequired means no stored account id resolved against the roster;
	// the collaborator should present a login/create flow.
	AuthRequired State = "AUTH_REQUIRED"
	// Ready means a session account is active. There is no logout, so
	// Ready never returns to AuthRequired.
	Ready State = "READY"
	// Error means bootstrap failed before any roster was available.
	Error State = "ERROR"
)

// validTransitions defines allowed lifecycle transitions.
var validTransitions = map[State][]State{
	Booting:      {AuthRequired, Ready, Error},
	AuthRequired: {Ready, Error},
	Ready:        {},
	Error:        {Booting},
}

// Machine tracks and enforces session lifecycle transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Emit("session.status_changed", StatusChange{From: from, To: to})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
