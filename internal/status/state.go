package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/peerchat/internal/bus"
)

// State is the state of the conversation view.
type State string

const (
	NoneSelected State = "NONE_SELECTED"
	Loading      State = "LOADING"
	Ready        State = "READY"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	NoneSelected: {NoneSelected, Loading},
	Loading:      {NoneSelected, Loading, Ready},
	Ready:        {NoneSelected, Loading},
}

// View is the conversation view state together with the peer it is for.
type View struct {
	State  State
	PeerID string
}

func (v View) String() string {
	if v.PeerID == "" {
		return string(v.State)
	}
	return fmt.Sprintf("%s(%s)", v.State, v.PeerID)
}

// Machine tracks and enforces conversation view transitions.
type Machine struct {
	mu      sync.RWMutex
	current View
	bus     *bus.Bus
}

// NewMachine creates a new state machine with nothing selected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: View{State: NoneSelected},
		bus:     b,
	}
}

// Current returns the current view.
func (m *Machine) Current() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Select moves to LOADING(peerID), or NONE_SELECTED for an empty peerID.
func (m *Machine) Select(peerID string) error {
	if peerID == "" {
		return m.transition(View{State: NoneSelected})
	}
	return m.transition(View{State: Loading, PeerID: peerID})
}

// Loaded moves LOADING(peerID) to READY(peerID).
func (m *Machine) Loaded(peerID string) error {
	return m.transition(View{State: Ready, PeerID: peerID})
}

// Reset returns to NONE_SELECTED from any state.
func (m *Machine) Reset() {
	_ = m.transition(View{State: NoneSelected})
}

func (m *Machine) transition(to View) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current.State]
	if !slices.Contains(allowed, to.State) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	if to.State == Ready && to.PeerID != m.current.PeerID {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil && from != to {
		m.bus.Publish(bus.Event{
			Kind:      bus.KindViewChanged,
			Timestamp: time.Now(),
			Payload: ViewChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// ViewChange is the payload for view change events.
type ViewChange struct {
	From View
	To   View
}
