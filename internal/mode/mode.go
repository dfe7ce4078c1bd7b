// Package mode enforces the mutual exclusion between the two interaction
// modes: "regular" (typed or clipboard prompts) and "pipeline" (voice). Each
// mode owns a set of event subscriptions that must be attached while the mode
// is active and detached when it is not.
package mode

import (
	"fmt"
	"sync"

	"github.com/vesper-voice/vesper/pkg/event"
)

// Mode identifies one of the two interaction modes.
type Mode string

const (
	// Regular is the text-driven interaction mode.
	Regular Mode = "regular"
	// Pipeline is the voice interaction mode.
	Pipeline Mode = "pipeline"
)

// ModeConflictError is returned by Enter when another mode is already active.
// The active mode's subscriptions are left untouched.
type ModeConflictError struct {
	Requested Mode
	Active    Mode
}

func (e *ModeConflictError) Error() string {
	return fmt.Sprintf("mode: cannot enter %q while %q is active", e.Requested, e.Active)
}

// Binding is one event subscription owned by a mode.
type Binding struct {
	Topic   event.Topic
	Name    string
	Handler event.Handler
}

// Manager serializes mode changes and attaches/detaches each mode's event
// subscriptions on the bus. Safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	bus      *event.Bus
	bindings map[Mode][]Binding
	active   Mode
}

// NewManager creates a Manager publishing and subscribing on bus.
func NewManager(bus *event.Bus) *Manager {
	return &Manager{
		bus:      bus,
		bindings: make(map[Mode][]Binding),
	}
}

// Bind records the subscriptions a mode owns. It replaces any previous
// bindings for that mode and must not be called while the mode is active.
func (m *Manager) Bind(mode Mode, bindings []Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == mode {
		return fmt.Errorf("mode: cannot rebind %q while it is active", mode)
	}
	m.bindings[mode] = bindings
	return nil
}

// Active returns the currently active mode, or "" when none is.
func (m *Manager) Active() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Enter activates mode and attaches its subscriptions. It fails with a
// ModeConflictError while any mode is active, including mode itself; the
// active mode's subscriptions stay attached.
func (m *Manager) Enter(mode Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != "" {
		return &ModeConflictError{Requested: mode, Active: m.active}
	}
	if err := m.attach(mode); err != nil {
		return err
	}
	m.active = mode
	m.bus.Publish(event.TopicModeSwitch, event.ModeSwitch{From: "", To: string(mode)})
	return nil
}

// Exit deactivates the current mode and detaches its subscriptions. Calling
// Exit with no active mode is a no-op.
func (m *Manager) Exit() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return
	}
	prev := m.active
	m.detach(prev)
	m.active = ""
	m.bus.Publish(event.TopicModeSwitch, event.ModeSwitch{From: string(prev), To: ""})
}

// Switch atomically detaches the active mode's subscriptions and attaches
// to's. It fails when no mode is active (use Enter) or when to is already
// active. If attaching to's subscriptions fails, the previous mode is
// restored.
func (m *Manager) Switch(to Mode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return fmt.Errorf("mode: cannot switch to %q, no mode is active", to)
	}
	if m.active == to {
		return fmt.Errorf("mode: %q is already active", to)
	}

	prev := m.active
	m.detach(prev)
	if err := m.attach(to); err != nil {
		// Transition failed. Restore the previous mode so the system is
		// never left without its subscriptions.
		if restoreErr := m.attach(prev); restoreErr != nil {
			return fmt.Errorf("mode: switch to %q failed (%w) and restore of %q failed: %v", to, err, prev, restoreErr)
		}
		return err
	}
	m.active = to
	m.bus.Publish(event.TopicModeSwitch, event.ModeSwitch{From: string(prev), To: string(to)})
	return nil
}

// attach subscribes all of mode's bindings. On failure it rolls back the
// bindings already attached and returns the error. Caller holds m.mu.
func (m *Manager) attach(mode Mode) error {
	for i, b := range m.bindings[mode] {
		if err := m.bus.Subscribe(b.Topic, b.Name, b.Handler); err != nil {
			for _, prev := range m.bindings[mode][:i] {
				m.bus.Unsubscribe(prev.Topic, prev.Name)
			}
			return fmt.Errorf("mode: attach %q: %w", mode, err)
		}
	}
	return nil
}

// detach unsubscribes all of mode's bindings. Caller holds m.mu.
func (m *Manager) detach(mode Mode) {
	for _, b := range m.bindings[mode] {
		m.bus.Unsubscribe(b.Topic, b.Name)
	}
}
