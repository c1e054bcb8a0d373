package archive

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/pkg/sentinel"
)

// InMemoryArchive holds archived bodies in process memory. Test and
// single-node wiring; the Redis archive is the shared variant.
type InMemoryArchive struct {
	mu      sync.RWMutex
	records map[domain.ArchiveID]Record
}

// NewInMemoryArchive returns an empty archive.
func NewInMemoryArchive() *InMemoryArchive {
	return &InMemoryArchive{records: make(map[domain.ArchiveID]Record)}
}

func (a *InMemoryArchive) Put(_ context.Context, reg *domain.Register) (Record, error) {
	body, err := EncodeBody(reg)
	if err != nil {
		return Record{}, err
	}
	record := Record{
		ArchiveID:     domain.ArchiveID(uuid.NewString()),
		RegisterID:    reg.ID,
		Body:          body,
		IntegrityHash: HashBody(body),
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[record.ArchiveID] = record
	return record, nil
}

func (a *InMemoryArchive) Get(_ context.Context, id domain.ArchiveID) (Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if record, ok := a.records[id]; ok {
		return record, nil
	}
	return Record{}, sentinel.ErrNotFound
}

func (a *InMemoryArchive) Verify(ctx context.Context, id domain.ArchiveID) (bool, error) {
	record, err := a.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return HashBody(record.Body) == record.IntegrityHash, nil
}
