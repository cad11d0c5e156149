package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/meshchat/internal/bus"
)

// State is the lifecycle state of the link to the relay hub.
type State string

const (
	Disconnected State = "DISCONNECTED"
	Connecting   State = "CONNECTING"
	Open         State = "OPEN"
	Closed       State = "CLOSED"
)

var validTransitions = map[State][]State{
	Disconnected: {Connecting},
	Connecting:   {Open, Closed, Disconnected},
	Open:         {Closed},
	Closed:       {Disconnected},
}

// Machine tracks and enforces link state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Disconnected state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
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

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.KindLinkStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// StatusChange is the payload for link.status_changed events.
type StatusChange struct {
	From State
	To   State
}
