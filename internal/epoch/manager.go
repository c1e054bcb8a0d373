// Package epoch partitions register history into contiguous epochs and
// compacts old ones through summarizing garbage collection.
package epoch

import (
	"sync"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// Manager tracks the currently open epoch. Boundaries are externally
// supplied (height or wall-clock threshold); the manager only tags newly
// created registers with the open epoch id, it never decides boundaries
// itself.
type Manager struct {
	mu         sync.RWMutex
	current    domain.EpochID
	boundaries map[domain.EpochID]uint64
}

// NewManager opens epoch zero.
func NewManager() *Manager {
	return &Manager{boundaries: make(map[domain.EpochID]uint64)}
}

// Current returns the open epoch id.
func (m *Manager) Current() domain.EpochID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Advance closes the current epoch at the given boundary height and opens
// the next one, returning the newly opened id.
func (m *Manager) Advance(boundaryHeight uint64) domain.EpochID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boundaries[m.current] = boundaryHeight
	m.current++
	return m.current
}

// BoundaryHeight reports the closing height of an epoch, if it has closed.
func (m *Manager) BoundaryHeight(id domain.EpochID) (uint64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.boundaries[id]
	return h, ok
}
