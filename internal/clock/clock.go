// Package clock provides per-domain Lamport clocks for causal ordering of
// locally observed events.
package clock

import (
	"sync"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// Clock is a monotonic counter owned by whichever component observes its
// domain. Pure arithmetic, no failure modes; the counter never decreases.
type Clock struct {
	mu      sync.Mutex
	domain  domain.DomainID
	counter uint64
}

// New returns a clock for the given domain starting at zero.
func New(id domain.DomainID) *Clock {
	return &Clock{domain: id}
}

// Domain returns the owning domain.
func (c *Clock) Domain() domain.DomainID { return c.domain }

// Tick increments the counter by one and returns it.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter++
	return c.counter
}

// Update merges a received counter: the clock becomes max(local, received)+1.
func (c *Clock) Update(received uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if received > c.counter {
		c.counter = received
	}
	c.counter++
	return c.counter
}

// Now returns the current counter without advancing it.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

// Registry hands out one clock per domain.
type Registry struct {
	mu     sync.Mutex
	clocks map[domain.DomainID]*Clock
}

// NewRegistry returns an empty clock registry.
func NewRegistry() *Registry {
	return &Registry{clocks: make(map[domain.DomainID]*Clock)}
}

// ForDomain returns the clock for id, creating it on first use.
func (r *Registry) ForDomain(id domain.DomainID) *Clock {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clocks[id]
	if !ok {
		c = New(id)
		r.clocks[id] = c
	}
	return c
}
