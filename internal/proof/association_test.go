package proof

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/pkg/ledgererrors"
)

func testTimeMap(height uint64) domain.TimeMap {
	return domain.NewTimeMap(1, domain.TimePosition{
		Domain:    "eth",
		Height:    height,
		BlockHash: "0xabc",
		Timestamp: time.Unix(1700000000, 0),
	})
}

func balanceRegister(amount int64) *domain.Register {
	contents := domain.TokenBalance{Token: "X", Amount: amount}
	return &domain.Register{
		ID:       domain.ComputeRegisterID(contents, "alice", 0),
		Owner:    "alice",
		Contents: contents,
		State:    domain.Active(),
	}
}

func TestProveConservationZeroDelta(t *testing.T) {
	p := NewAssociationProver()
	tm := testTimeMap(100)

	op := domain.Operation{
		Type:   domain.OpTransfer,
		Inputs: []domain.RegisterID{"r1"},
		Outputs: []domain.ProposedOutput{
			{Owner: "alice", Contents: domain.TokenBalance{Token: "X", Amount: 70}},
			{Owner: "bob", Contents: domain.TokenBalance{Token: "X", Amount: 30}},
		},
	}
	pr, err := p.ProveConservation(context.Background(), tm, op, []*domain.Register{balanceRegister(100)})
	require.NoError(t, err)
	require.False(t, pr.Zero())

	ok, err := p.Verify(context.Background(), pr, ConservationStatement(tm, op, nil))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestProveConservationNonzeroDeltaRejected(t *testing.T) {
	p := NewAssociationProver()

	op := domain.Operation{
		Type:   domain.OpTransfer,
		Inputs: []domain.RegisterID{"r1"},
		Outputs: []domain.ProposedOutput{
			{Owner: "alice", Contents: domain.TokenBalance{Token: "X", Amount: 90}},
		},
	}
	_, err := p.ProveConservation(context.Background(), testTimeMap(100), op, []*domain.Register{balanceRegister(100)})
	require.True(t, ledgererrors.HasCode(err, ledgererrors.CodeConservationViolation))

	deltas, ok := ledgererrors.DeltasOf(err)
	require.True(t, ok)
	require.Equal(t, int64(-10), deltas["token:X"])
}

func TestBoundaryOperationsExemptFromConservation(t *testing.T) {
	p := NewAssociationProver()

	op := domain.Operation{
		Type: domain.OpDeposit,
		Outputs: []domain.ProposedOutput{
			{Owner: "alice", Contents: domain.TokenBalance{Token: "X", Amount: 100}},
		},
	}
	pr, err := p.ProveConservation(context.Background(), testTimeMap(100), op, nil)
	require.NoError(t, err)
	require.False(t, pr.Zero())
}

func TestProveTemporalUpdateRefusesRegression(t *testing.T) {
	p := NewAssociationProver()

	_, err := p.ProveTemporalUpdate(context.Background(), testTimeMap(102), testTimeMap(100), nil)
	require.Error(t, err)

	pr, err := p.ProveTemporalUpdate(context.Background(), testTimeMap(100), testTimeMap(102), nil)
	require.NoError(t, err)

	ok, err := p.Verify(context.Background(), pr, TemporalStatement(testTimeMap(100), testTimeMap(102)))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyFailsClosed(t *testing.T) {
	p := NewAssociationProver()

	ok, err := p.Verify(context.Background(), domain.Proof{}, nil)
	require.NoError(t, err)
	require.False(t, ok, "zero proof must not verify")

	forged := domain.Proof{ID: "made-up", StatementHash: "deadbeef", Backend: associationBackend}
	ok, err = p.Verify(context.Background(), forged, []byte("statement"))
	require.NoError(t, err)
	require.False(t, ok, "unissued proof must not verify")

	pr, err := p.ProveTemporalUpdate(context.Background(), testTimeMap(1), testTimeMap(2), nil)
	require.NoError(t, err)
	ok, err = p.Verify(context.Background(), pr, TemporalStatement(testTimeMap(1), testTimeMap(3)))
	require.NoError(t, err)
	require.False(t, ok, "proof bound to different public inputs must not verify")
}
