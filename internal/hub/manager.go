package hub

import (
	"sync"
	"sync/atomic"
)

// Manager owns the single Adapter of a process. The adapter is created on
// first use and lives until Close; every caller of Adapter sees the same
// instance.
type Manager struct {
	opts Options
	// build is newAdapter outside of tests.
	build func(Options) *Adapter

	mu      sync.Mutex
	current atomic.Pointer[Adapter]
}

func NewManager(opts Options) *Manager {
	return &Manager{opts: opts, build: newAdapter}
}

// Adapter returns the process adapter, constructing it on the first call.
// Safe for concurrent use.
func (m *Manager) Adapter() *Adapter {
	if a := m.current.Load(); a != nil {
		return a
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.current.Load(); a != nil {
		return a
	}
	a := m.build(m.opts)
	m.current.Store(a)
	return a
}

// Gateway is shorthand for m.Adapter().Gateway().
func (m *Manager) Gateway() *Gateway { return m.Adapter().Gateway() }

// Reset closes and forgets the current adapter so the next Adapter call
// builds a fresh one. Intended for test harnesses.
func (m *Manager) Reset() error {
	m.mu.Lock()
	a := m.current.Swap(nil)
	m.mu.Unlock()
	if a == nil {
		return nil
	}
	return a.Close()
}

// Close releases the adapter, if one was created, at process shutdown.
func (m *Manager) Close() error {
	if a := m.current.Load(); a != nil {
		return a.Close()
	}
	return nil
}
