package epoch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timewave-computer/causality-sub004/internal/archive"
	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/internal/register"
	"github.com/timewave-computer/causality-sub004/pkg/ledgererrors"
)

func testPolicy() domain.ArchivalPolicy {
	return domain.ArchivalPolicy{
		KeepEpochs:      2,
		PruneAfter:      5,
		SummaryStrategy: domain.SummarizeByResource,
		BatchSize:       10,
	}
}

// consumeRegister walks a fresh register through its full pre-GC lifecycle.
func consumeRegister(t *testing.T, store register.Store, token string, amount int64, epoch domain.EpochID) *domain.Register {
	t.Helper()
	ctx := context.Background()
	reg, err := store.Create(ctx, domain.TokenBalance{Token: token, Amount: amount}, "alice", epoch, nil)
	require.NoError(t, err)
	_, err = store.Transition(ctx, reg.ID, domain.Locked("op-1", time.Now().Add(time.Minute)))
	require.NoError(t, err)
	reg, err = store.Transition(ctx, reg.ID, domain.Consumed("op-1", "tx-1", nil))
	require.NoError(t, err)
	return reg
}

func TestCollectRejectsRecentEpoch(t *testing.T) {
	store := register.NewInMemoryStore()
	epochs := NewManager()
	for i := 0; i < 3; i++ {
		epochs.Advance(uint64(i + 1))
	}

	c, err := NewCollector(store, archive.NewInMemoryArchive(), epochs, testPolicy())
	require.NoError(t, err)

	// current is 3, prune_after is 5: epoch 1 is only 2 epochs old.
	_, err = c.Collect(context.Background(), 1)
	require.True(t, ledgererrors.HasCode(err, ledgererrors.CodeEpochTooRecent))

	_, err = c.Collect(context.Background(), 7)
	require.True(t, ledgererrors.HasCode(err, ledgererrors.CodeEpochTooRecent), "future epochs are always too recent")
}

func TestCollectArchivesAndStubsConsumedRegisters(t *testing.T) {
	ctx := context.Background()
	store := register.NewInMemoryStore()
	arch := archive.NewInMemoryArchive()
	epochs := NewManager()

	consumed := []*domain.Register{
		consumeRegister(t, store, "X", 100, 0),
		consumeRegister(t, store, "X", 40, 0),
		consumeRegister(t, store, "Y", 7, 0),
	}
	active, err := store.Create(ctx, domain.TokenBalance{Token: "X", Amount: 5}, "bob", 0, nil)
	require.NoError(t, err)
	otherEpoch := consumeRegister(t, store, "X", 9, 1)

	for i := 0; i < 6; i++ {
		epochs.Advance(uint64(i + 1))
	}

	c, err := NewCollector(store, arch, epochs, testPolicy())
	require.NoError(t, err)
	result, err := c.Collect(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 3, result.Archived)
	require.Zero(t, result.Failed)
	require.Len(t, result.Summaries, 2, "one summary per resource class")

	for _, reg := range consumed {
		got, err := store.Get(ctx, reg.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusArchived, got.State.Status)

		stub, ok, err := store.Stub(ctx, reg.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, reg.ID, stub.RegisterID)
		require.NotEmpty(t, stub.VerificationHash)

		verified, err := arch.Verify(ctx, stub.ArchiveID)
		require.NoError(t, err)
		require.True(t, verified, "stub must resolve to a verifiable archive record")
	}

	// Registers outside the target epoch, or still live, are untouched.
	got, err := store.Get(ctx, active.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, got.State.Status)
	got, err = store.Get(ctx, otherEpoch.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusConsumed, got.State.Status)
}

func TestCollectSummariesCarryNetAmounts(t *testing.T) {
	ctx := context.Background()
	store := register.NewInMemoryStore()
	epochs := NewManager()

	consumeRegister(t, store, "X", 100, 0)
	consumeRegister(t, store, "X", 40, 0)

	for i := 0; i < 6; i++ {
		epochs.Advance(uint64(i + 1))
	}

	policy := testPolicy()
	policy.SummaryStrategy = domain.SummarizeByOwner
	c, err := NewCollector(store, archive.NewInMemoryArchive(), epochs, policy)
	require.NoError(t, err)
	result, err := c.Collect(ctx, 0)
	require.NoError(t, err)
	require.Len(t, result.Summaries, 1, "same owner collapses to one summary")

	summary, err := store.Get(ctx, result.Summaries[0])
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, summary.State.Status)
	require.Equal(t, collectorOwner, summary.Owner)
	require.Equal(t, domain.EpochID(6), summary.Epoch, "summaries live in the current epoch")
}

type failingArchive struct {
	inner archive.Archive
	fail  bool
}

func (f *failingArchive) Put(ctx context.Context, reg *domain.Register) (archive.Record, error) {
	if f.fail {
		return archive.Record{}, context.DeadlineExceeded
	}
	return f.inner.Put(ctx, reg)
}

func (f *failingArchive) Get(ctx context.Context, id domain.ArchiveID) (archive.Record, error) {
	return f.inner.Get(ctx, id)
}

func (f *failingArchive) Verify(ctx context.Context, id domain.ArchiveID) (bool, error) {
	return f.inner.Verify(ctx, id)
}

func TestCollectRetriesFailedArchivalNextPass(t *testing.T) {
	ctx := context.Background()
	store := register.NewInMemoryStore()
	arch := &failingArchive{inner: archive.NewInMemoryArchive(), fail: true}
	epochs := NewManager()

	reg := consumeRegister(t, store, "X", 100, 0)
	for i := 0; i < 6; i++ {
		epochs.Advance(uint64(i + 1))
	}

	c, err := NewCollector(store, arch, epochs, testPolicy())
	require.NoError(t, err)

	result, err := c.Collect(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, result.Archived)
	require.Equal(t, 1, result.Failed)

	got, err := store.Get(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusConsumed, got.State.Status, "failed archival leaves the register consumed")

	arch.fail = false
	result, err = c.Collect(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, result.Archived)

	got, err = store.Get(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusArchived, got.State.Status)
}

func TestCollectTombstonesBeyondRetention(t *testing.T) {
	ctx := context.Background()
	store := register.NewInMemoryStore()
	epochs := NewManager()

	reg := consumeRegister(t, store, "X", 100, 0)
	for i := 0; i < 6; i++ {
		epochs.Advance(uint64(i + 1))
	}

	c, err := NewCollector(store, archive.NewInMemoryArchive(), epochs, testPolicy())
	require.NoError(t, err)

	// First pass archives; the body is retained for keep_epochs more.
	result, err := c.Collect(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 1, result.Archived)
	require.Zero(t, result.Tombstoned, "archived bodies survive until retention elapses")

	// prune_after (5) + keep_epochs (2) epochs past epoch 0.
	epochs.Advance(7)
	result, err = c.Collect(ctx, 0)
	require.NoError(t, err)
	require.Zero(t, result.Archived)
	require.Equal(t, 1, result.Tombstoned)

	got, err := store.Get(ctx, reg.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusTombstone, got.State.Status)

	// Only the verification hash outlives the body.
	stub, ok, err := store.Stub(ctx, reg.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, stub.VerificationHash)
}

func TestCollectCustomGrouping(t *testing.T) {
	ctx := context.Background()
	store := register.NewInMemoryStore()
	epochs := NewManager()

	consumeRegister(t, store, "X", 1, 0)
	consumeRegister(t, store, "Y", 2, 0)
	for i := 0; i < 6; i++ {
		epochs.Advance(uint64(i + 1))
	}

	policy := testPolicy()
	policy.SummaryStrategy = domain.SummarizeCustom

	_, err := NewCollector(store, archive.NewInMemoryArchive(), epochs, policy)
	require.Error(t, err, "custom strategy without a group function is a configuration error")

	c, err := NewCollector(store, archive.NewInMemoryArchive(), epochs, policy,
		WithGroupFunc(func(*domain.Register) string { return "all" }))
	require.NoError(t, err)

	result, err := c.Collect(ctx, 0)
	require.NoError(t, err)
	require.Len(t, result.Summaries, 1)
}
