package register

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/pkg/sentinel"
)

// InMemoryStore keeps registers in process memory. It intentionally favors
// clarity over performance; the Postgres store is the durable variant.
type InMemoryStore struct {
	mu        sync.RWMutex
	registers map[domain.RegisterID]*domain.Register
	order     []domain.RegisterID
	stubs     map[domain.RegisterID]domain.RegisterStub
	index     map[domain.ResourceClass][]domain.RegisterID
}

// NewInMemoryStore returns an empty in-memory register store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		registers: make(map[domain.RegisterID]*domain.Register),
		stubs:     make(map[domain.RegisterID]domain.RegisterStub),
		index:     make(map[domain.ResourceClass][]domain.RegisterID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, contents domain.Contents, owner domain.Owner, epoch domain.EpochID, metadata map[string]string) (*domain.Register, error) {
	id := domain.ComputeRegisterID(contents, owner, epoch)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.registers[id]; ok {
		// Idempotent by content address.
		return cloneRegister(existing), nil
	}

	now := time.Now()
	reg := &domain.Register{
		ID:          id,
		Owner:       owner,
		Contents:    contents,
		Epoch:       epoch,
		State:       domain.Active(),
		CreatedAt:   now,
		LastUpdated: now,
		Metadata:    metadata,
	}
	s.registers[id] = reg
	s.order = append(s.order, id)
	for class := range contents.Amounts() {
		s.index[class] = append(s.index[class], id)
	}
	return cloneRegister(reg), nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.RegisterID) (*domain.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if reg, ok := s.registers[id]; ok {
		return cloneRegister(reg), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Exists(_ context.Context, id domain.RegisterID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.registers[id]
	return ok, nil
}

func (s *InMemoryStore) Transition(_ context.Context, id domain.RegisterID, next domain.State) (*domain.Register, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !domain.ValidTransition(reg.State.Status, next.Status) {
		return cloneRegister(reg), sentinel.ErrInvalidState
	}
	if reg.State.Status == domain.StatusLocked && next.OperationID != reg.State.OperationID {
		// Only the lock holder may consume or release; an anonymous release is
		// the reclamation path and needs the lock expired.
		reclaim := next.Status == domain.StatusActive && next.OperationID == "" &&
			reg.State.LockExpiry.Before(time.Now())
		if !reclaim {
			return cloneRegister(reg), sentinel.ErrConflict
		}
	}
	if next.Status == domain.StatusActive {
		next.OperationID = ""
	}
	reg.State = next
	reg.LastUpdated = time.Now()
	return cloneRegister(reg), nil
}

func (s *InMemoryStore) ConsumedInEpoch(_ context.Context, epoch domain.EpochID, limit int) ([]*domain.Register, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Register
	for _, id := range s.order {
		reg := s.registers[id]
		if reg.Epoch != epoch || reg.State.Status != domain.StatusConsumed {
			continue
		}
		out = append(out, cloneRegister(reg))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) ArchivedThrough(_ context.Context, cutoff domain.EpochID, limit int) ([]domain.RegisterID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RegisterID
	for _, id := range s.order {
		reg := s.registers[id]
		if reg.Epoch > cutoff || reg.State.Status != domain.StatusArchived {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryStore) ExpiredLocks(_ context.Context, now time.Time) ([]domain.RegisterID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.RegisterID
	for _, id := range s.order {
		reg := s.registers[id]
		if reg.State.Status == domain.StatusLocked && reg.State.LockExpiry.Before(now) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *InMemoryStore) PutStub(_ context.Context, stub domain.RegisterStub) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registers[stub.RegisterID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if reg.State.Status != domain.StatusArchived {
		return sentinel.ErrInvalidState
	}
	s.stubs[stub.RegisterID] = stub

	// Lookups by class resolve to the summary from now on.
	for class := range reg.Contents.Amounts() {
		ids := s.index[class]
		for i, existing := range ids {
			if existing == stub.RegisterID {
				ids[i] = stub.SummaryID
			}
		}
		s.index[class] = dedupe(ids)
	}
	return nil
}

func (s *InMemoryStore) Stub(_ context.Context, id domain.RegisterID) (domain.RegisterStub, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stub, ok := s.stubs[id]
	return stub, ok, nil
}

func (s *InMemoryStore) ByClass(_ context.Context, class domain.ResourceClass) ([]domain.RegisterID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.index[class]), nil
}

func cloneRegister(reg *domain.Register) *domain.Register {
	out := *reg
	out.State.Successors = slices.Clone(reg.State.Successors)
	if reg.Metadata != nil {
		out.Metadata = make(map[string]string, len(reg.Metadata))
		for k, v := range reg.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

func dedupe(ids []domain.RegisterID) []domain.RegisterID {
	seen := make(map[domain.RegisterID]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
