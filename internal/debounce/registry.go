package debounce

import (
	"sort"
	"sync"
	"time"
)

// Registry owns one machine per symbol. Machines are never shared between symbols.
type Registry struct {
	mu       sync.Mutex
	cooldown time.Duration
	machines map[string]*Machine
}

// NewRegistry builds an empty registry whose machines use cooldown.
func NewRegistry(cooldown time.Duration) *Registry {
	return &Registry{cooldown: cooldown, machines: make(map[string]*Machine)}
}

// Machine returns the symbol's machine, creating an armed one on first use.
func (r *Registry) Machine(symbol string) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.machines[symbol]
	if !ok {
		m = New(r.cooldown)
		r.machines[symbol] = m
	}
	return m
}

// Restore replaces the symbol's machine with one rebuilt from state.
func (r *Registry) Restore(symbol string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machines[symbol] = Restore(state, r.cooldown)
}

// Symbols lists the symbols with a machine, sorted.
func (r *Registry) Symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.machines))
	for symbol := range r.machines {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
