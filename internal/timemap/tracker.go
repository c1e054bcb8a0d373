// Package timemap maintains the ledger's current view of external domains
// and persists committed time maps as registers.
package timemap

import (
	"sync"

	"github.com/timewave-computer/causality-sub004/internal/clock"
	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// Tracker holds the ledger's current time map. Domain adapters deliver
// observed positions; the tracker merges them in, so the current map only
// ever advances.
type Tracker struct {
	mu      sync.RWMutex
	current domain.TimeMap
	clock   *clock.Clock
	clocks  *clock.Registry
}

// NewTracker returns a tracker whose observed_at stamps come from the given
// local clock.
func NewTracker(local *clock.Clock, registry *clock.Registry) *Tracker {
	return &Tracker{
		current: domain.NewTimeMap(0),
		clock:   local,
		clocks:  registry,
	}
}

// Observe merges newly delivered positions into the current map and returns
// the resulting snapshot. Each observed domain's logical clock ticks, and the
// local clock stamps the merge.
func (t *Tracker) Observe(positions ...domain.TimePosition) domain.TimeMap {
	for _, pos := range positions {
		t.clocks.ForDomain(pos.Domain).Tick()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	observed := domain.NewTimeMap(t.clock.Tick(), positions...)
	t.current = domain.Merge(t.current, observed)
	return t.current
}

// Current returns the ledger's current time map snapshot.
func (t *Tracker) Current() domain.TimeMap {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}
