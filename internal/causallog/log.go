// Package causallog persists the append-only sequence of causal entries that
// is sufficient to replay the entire ledger from genesis.
package causallog

import (
	"context"
	"slices"
	"sync"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// Log is the append-only causal record. Appends are totally ordered per log;
// entries are never rewritten.
type Log interface {
	Append(ctx context.Context, entry domain.CausalEntry) error
	// Entries returns entries [from, from+limit) in append order; limit <= 0
	// means the rest of the log.
	Entries(ctx context.Context, from int, limit int) ([]domain.CausalEntry, error)
	Len(ctx context.Context) (int, error)
}

// InMemoryLog keeps causal entries in process memory.
type InMemoryLog struct {
	mu      sync.RWMutex
	entries []domain.CausalEntry
}

// NewInMemoryLog returns an empty log.
func NewInMemoryLog() *InMemoryLog {
	return &InMemoryLog{}
}

func (l *InMemoryLog) Append(_ context.Context, entry domain.CausalEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *InMemoryLog) Entries(_ context.Context, from, limit int) ([]domain.CausalEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if from < 0 || from >= len(l.entries) {
		return nil, nil
	}
	end := len(l.entries)
	if limit > 0 && from+limit < end {
		end = from + limit
	}
	return slices.Clone(l.entries[from:end]), nil
}

func (l *InMemoryLog) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries), nil
}
