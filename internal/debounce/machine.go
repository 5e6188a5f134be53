// Package debounce turns per-cycle classifications into edge-triggered alert decisions.
package debounce

import (
	"sync"
	"time"

	"breakoutwatch/internal/breakout"
)

// DefaultCooldown is the suppression window after an alert fires.
const DefaultCooldown = 10 * time.Second

// State is the persisted form of a machine. Armed means ready to fire.
type State struct {
	Armed       bool
	LastFiredAt *time.Time
}

// Decision is the outcome of one observation.
type Decision struct {
	Fire    bool
	Rearmed bool
}

// Changed reports whether the observation moved the machine to another state.
func (d Decision) Changed() bool {
	return d.Fire || d.Rearmed
}

// Machine is the alert state of one symbol.
type Machine struct {
	mu          sync.Mutex
	cooldown    time.Duration
	armed       bool
	lastFiredAt *time.Time
}

// New returns an armed machine.
func New(cooldown time.Duration) *Machine {
	if cooldown < 0 {
		cooldown = 0
	}
	return &Machine{cooldown: cooldown, armed: true}
}

// Restore rebuilds a machine from a persisted state. A suppressed state without a
// fire time cannot expire and is restored armed.
func Restore(state State, cooldown time.Duration) *Machine {
	m := New(cooldown)
	if state.LastFiredAt != nil {
		ts := *state.LastFiredAt
		m.lastFiredAt = &ts
	}
	m.armed = state.Armed || m.lastFiredAt == nil
	return m
}

// Observe feeds the current classification at time now.
func (m *Machine) Observe(kind breakout.Kind, now time.Time) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.armed {
		if !kind.Fired() {
			return Decision{}
		}
		ts := now
		m.lastFiredAt = &ts
		m.armed = false
		return Decision{Fire: true}
	}

	// re-arming never fires in the same cycle
	if now.Sub(*m.lastFiredAt) > m.cooldown {
		m.armed = true
		return Decision{Rearmed: true}
	}
	return Decision{}
}

// State returns a consistent snapshot of the machine.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := State{Armed: m.armed}
	if m.lastFiredAt != nil {
		ts := *m.lastFiredAt
		st.LastFiredAt = &ts
	}
	return st
}
