package register

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/pkg/sentinel"
)

func newBalance(t *testing.T, s *InMemoryStore, owner domain.Owner, amount int64) *domain.Register {
	t.Helper()
	reg, err := s.Create(context.Background(), domain.TokenBalance{Token: "X", Amount: amount}, owner, 0, nil)
	require.NoError(t, err)
	return reg
}

func TestCreateIsIdempotentByContentAddress(t *testing.T) {
	s := NewInMemoryStore()

	first := newBalance(t, s, "alice", 100)
	second := newBalance(t, s, "alice", 100)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.CreatedAt, second.CreatedAt, "re-creation returns the existing register")

	other := newBalance(t, s, "bob", 100)
	require.NotEqual(t, first.ID, other.ID)
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewInMemoryStore()
	reg := newBalance(t, s, "alice", 100)

	got, err := s.Get(context.Background(), reg.ID)
	require.NoError(t, err)
	got.State = domain.Tombstone()
	got.Metadata = map[string]string{"tampered": "yes"}

	fresh, err := s.Get(context.Background(), reg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, fresh.State.Status)
	require.Empty(t, fresh.Metadata)
}

func TestTransitionEnforcesStateMachine(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	reg := newBalance(t, s, "alice", 100)

	// Straight to Consumed skips the lock phase.
	_, err := s.Transition(ctx, reg.ID, domain.Consumed("op-1", "tx-1", nil))
	require.ErrorIs(t, err, sentinel.ErrInvalidState)

	locked, err := s.Transition(ctx, reg.ID, domain.Locked("op-1", time.Now().Add(time.Minute)))
	require.NoError(t, err)
	require.Equal(t, "op-1", locked.State.OperationID)

	// Abort path: the holder releases its own lock.
	_, err = s.Transition(ctx, reg.ID, domain.Locked("op-2", time.Now()))
	require.ErrorIs(t, err, sentinel.ErrInvalidState, "locked registers cannot be re-locked")
	released, err := s.Transition(ctx, reg.ID, domain.Unlocked("op-1"))
	require.NoError(t, err)
	require.Empty(t, released.State.OperationID, "a released register carries no holder")

	_, err = s.Transition(ctx, reg.ID, domain.Locked("op-3", time.Now().Add(time.Minute)))
	require.NoError(t, err)
	consumed, err := s.Transition(ctx, reg.ID, domain.Consumed("op-3", "tx-1", []domain.RegisterID{"out-1"}))
	require.NoError(t, err)
	require.Equal(t, domain.TransactionID("tx-1"), consumed.State.TransactionID)

	// Consumed is terminal for use.
	_, err = s.Transition(ctx, reg.ID, domain.Active())
	require.ErrorIs(t, err, sentinel.ErrInvalidState)
	_, err = s.Transition(ctx, reg.ID, domain.Locked("op-4", time.Now().Add(time.Minute)))
	require.ErrorIs(t, err, sentinel.ErrInvalidState)

	_, err = s.Transition(ctx, "missing", domain.Active())
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestConsumeRequiresLockOwnership(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	reg := newBalance(t, s, "alice", 100)

	// Operation A's lock expires and is reclaimed, then B re-locks.
	_, err := s.Transition(ctx, reg.ID, domain.Locked("op-a", time.Now().Add(-time.Second)))
	require.NoError(t, err)
	_, err = s.Transition(ctx, reg.ID, domain.Active())
	require.NoError(t, err, "anonymous release of an expired lock is the reclamation path")
	_, err = s.Transition(ctx, reg.ID, domain.Locked("op-b", time.Now().Add(time.Minute)))
	require.NoError(t, err)

	// A wakes up and tries to spend the register B now holds.
	_, err = s.Transition(ctx, reg.ID, domain.Consumed("op-a", "tx-a", nil))
	require.ErrorIs(t, err, sentinel.ErrConflict)
	_, err = s.Transition(ctx, reg.ID, domain.Unlocked("op-a"))
	require.ErrorIs(t, err, sentinel.ErrConflict, "only the holder may release a live lock")
	_, err = s.Transition(ctx, reg.ID, domain.Active())
	require.ErrorIs(t, err, sentinel.ErrConflict, "a live lock cannot be released anonymously")

	got, err := s.Get(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, "op-b", got.State.OperationID, "B still holds the lock")

	consumed, err := s.Transition(ctx, reg.ID, domain.Consumed("op-b", "tx-b", nil))
	require.NoError(t, err)
	require.Equal(t, domain.TransactionID("tx-b"), consumed.State.TransactionID)
}

func TestConcurrentLockSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	reg := newBalance(t, s, "alice", 100)

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan string, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(opID string) {
			defer wg.Done()
			if _, err := s.Transition(ctx, reg.ID, domain.Locked(opID, time.Now().Add(time.Minute))); err == nil {
				wins <- opID
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()
	close(wins)

	var winners []string
	for opID := range wins {
		winners = append(winners, opID)
	}
	require.Len(t, winners, 1, "exactly one racer may lock a register")

	got, err := s.Get(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, winners[0], got.State.OperationID)
}

func TestConsumedInEpochRespectsLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	var ids []domain.RegisterID
	for i := int64(1); i <= 4; i++ {
		reg := newBalance(t, s, "alice", i)
		_, err := s.Transition(ctx, reg.ID, domain.Locked("op", time.Now().Add(time.Minute)))
		require.NoError(t, err)
		_, err = s.Transition(ctx, reg.ID, domain.Consumed("op", "tx", nil))
		require.NoError(t, err)
		ids = append(ids, reg.ID)
	}
	newBalance(t, s, "alice", 99) // stays Active

	batch, err := s.ConsumedInEpoch(ctx, 0, 3)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	require.Equal(t, ids[0], batch[0].ID, "creation order")

	all, err := s.ConsumedInEpoch(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 4)

	none, err := s.ConsumedInEpoch(ctx, 7, 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestArchivedThroughListsOldEpochsOnly(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	archive := func(epoch domain.EpochID, amount int64) domain.RegisterID {
		reg, err := s.Create(ctx, domain.TokenBalance{Token: "X", Amount: amount}, "alice", epoch, nil)
		require.NoError(t, err)
		_, err = s.Transition(ctx, reg.ID, domain.Locked("op", time.Now().Add(time.Minute)))
		require.NoError(t, err)
		_, err = s.Transition(ctx, reg.ID, domain.Consumed("op", "tx", nil))
		require.NoError(t, err)
		_, err = s.Transition(ctx, reg.ID, domain.Archived("arch"))
		require.NoError(t, err)
		return reg.ID
	}

	old := archive(1, 10)
	older := archive(2, 20)
	archive(5, 30) // beyond the cutoff
	newBalance(t, s, "alice", 40) // Active, never listed

	ids, err := s.ArchivedThrough(ctx, 2, 0)
	require.NoError(t, err)
	require.Equal(t, []domain.RegisterID{old, older}, ids)

	limited, err := s.ArchivedThrough(ctx, 2, 1)
	require.NoError(t, err)
	require.Equal(t, []domain.RegisterID{old}, limited)
}

func TestExpiredLocks(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	expired := newBalance(t, s, "alice", 1)
	_, err := s.Transition(ctx, expired.ID, domain.Locked("op-1", time.Now().Add(-time.Second)))
	require.NoError(t, err)

	live := newBalance(t, s, "alice", 2)
	_, err = s.Transition(ctx, live.ID, domain.Locked("op-2", time.Now().Add(time.Minute)))
	require.NoError(t, err)

	got, err := s.ExpiredLocks(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, []domain.RegisterID{expired.ID}, got)
}

func TestPutStubRequiresArchivedAndRedirectsIndex(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	reg := newBalance(t, s, "alice", 100)

	stub := domain.RegisterStub{
		RegisterID:       reg.ID,
		ArchiveID:        "arch-1",
		SummaryID:        "summary-1",
		VerificationHash: "hash",
	}
	require.ErrorIs(t, s.PutStub(ctx, stub), sentinel.ErrInvalidState, "only archived registers get stubs")

	_, err := s.Transition(ctx, reg.ID, domain.Locked("op", time.Now().Add(time.Minute)))
	require.NoError(t, err)
	_, err = s.Transition(ctx, reg.ID, domain.Consumed("op", "tx", nil))
	require.NoError(t, err)
	_, err = s.Transition(ctx, reg.ID, domain.Archived("arch-1"))
	require.NoError(t, err)
	require.NoError(t, s.PutStub(ctx, stub))

	got, ok, err := s.Stub(ctx, reg.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, stub, got)

	ids, err := s.ByClass(ctx, "token:X")
	require.NoError(t, err)
	require.Equal(t, []domain.RegisterID{"summary-1"}, ids, "class lookups resolve to the summary")

	require.ErrorIs(t, s.PutStub(ctx, domain.RegisterStub{RegisterID: "missing"}), sentinel.ErrNotFound)
}
