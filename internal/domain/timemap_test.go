package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pos(dom DomainID, height uint64, hash string) TimePosition {
	return TimePosition{
		Domain:    dom,
		Height:    height,
		BlockHash: hash,
		Timestamp: time.Unix(int64(1700000000+height), 0),
	}
}

func TestMergeGreaterHeightWins(t *testing.T) {
	a := NewTimeMap(1, pos("eth", 100, "0xaa"), pos("cosmos", 50, "0xbb"))
	b := NewTimeMap(2, pos("eth", 120, "0xcc"), pos("sol", 9000, "0xdd"))

	m := Merge(a, b)
	require.Equal(t, uint64(120), m.Positions["eth"].Height)
	require.Equal(t, "0xcc", m.Positions["eth"].BlockHash)
	require.Equal(t, uint64(50), m.Positions["cosmos"].Height)
	require.Equal(t, uint64(9000), m.Positions["sol"].Height)
	require.Equal(t, uint64(2), m.ObservedAt)
}

func TestMergeTiePrefersNonEmptyBlockHash(t *testing.T) {
	bare := NewTimeMap(1, pos("eth", 100, ""))
	full := NewTimeMap(1, pos("eth", 100, "0xaa"))

	require.Equal(t, "0xaa", Merge(bare, full).Positions["eth"].BlockHash)
	require.Equal(t, "0xaa", Merge(full, bare).Positions["eth"].BlockHash)
}

func TestMergeForkObservationResolvesDeterministically(t *testing.T) {
	// Two adapters report the same height with different block hashes.
	forkA := NewTimeMap(1, pos("eth", 100, "0xfork-a"))
	forkB := NewTimeMap(1, pos("eth", 100, "0xfork-b"))

	ab := Merge(forkA, forkB)
	ba := Merge(forkB, forkA)
	require.Equal(t, "0xfork-b", ab.Positions["eth"].BlockHash)
	require.Equal(t, ab.Positions["eth"], ba.Positions["eth"])
	require.Equal(t, ab.ContentHash(), ba.ContentHash())
}

func TestMergeLaws(t *testing.T) {
	a := NewTimeMap(1, pos("eth", 100, "0xaa"), pos("cosmos", 50, "0xbb"))
	b := NewTimeMap(2, pos("eth", 120, "0xcc"), pos("sol", 9000, "0xdd"))
	c := NewTimeMap(3, pos("cosmos", 55, "0xee"))

	require.True(t, Merge(a, b).Equal(Merge(b, a)), "commutativity")
	require.True(t, Merge(Merge(a, b), c).Equal(Merge(a, Merge(b, c))), "associativity")
	require.True(t, Merge(a, a).Equal(a), "idempotence")

	// The laws must survive equal-height forks too.
	forkA := NewTimeMap(1, pos("eth", 100, "0xfork-a"), pos("cosmos", 50, "0xbb"))
	forkB := NewTimeMap(1, pos("eth", 100, "0xfork-b"))
	require.True(t, Merge(forkA, forkB).Equal(Merge(forkB, forkA)), "fork commutativity")
	require.True(t, Merge(Merge(forkA, forkB), c).Equal(Merge(forkA, Merge(forkB, c))), "fork associativity")
}

func TestIsAheadOf(t *testing.T) {
	ref := NewTimeMap(1, pos("eth", 100, "0xaa"), pos("cosmos", 50, "0xbb"))

	require.True(t, ref.IsAheadOf(ref), "every map is ahead of itself")

	ahead := NewTimeMap(2, pos("eth", 101, "0xcc"), pos("cosmos", 50, "0xbb"))
	require.True(t, ahead.IsAheadOf(ref))
	require.False(t, ref.IsAheadOf(ahead))

	behind := NewTimeMap(2, pos("eth", 99, "0xdd"), pos("cosmos", 60, "0xee"))
	require.False(t, behind.IsAheadOf(ref), "one stale domain fails the whole check")

	missing := NewTimeMap(2, pos("eth", 200, "0xff"))
	require.False(t, missing.IsAheadOf(ref), "an absent domain counts as height zero")
	require.True(t, ref.IsAheadOf(missing), "extra domains in the candidate are fine")
}

func TestContentHashOrderIndependent(t *testing.T) {
	forward := NewTimeMap(1, pos("a", 1, "x"), pos("b", 2, "y"), pos("c", 3, "z"))
	reverse := NewTimeMap(1, pos("c", 3, "z"), pos("b", 2, "y"), pos("a", 1, "x"))

	require.Equal(t, forward.ContentHash(), reverse.ContentHash())

	changed := NewTimeMap(1, pos("a", 1, "x"), pos("b", 2, "y"), pos("c", 4, "z"))
	require.NotEqual(t, forward.ContentHash(), changed.ContentHash())
}

func TestContentHashIgnoresObservedAt(t *testing.T) {
	// ObservedAt is local bookkeeping, not part of the content address.
	a := NewTimeMap(1, pos("eth", 100, "0xaa"))
	b := NewTimeMap(99, pos("eth", 100, "0xaa"))

	require.Equal(t, a.ContentHash(), b.ContentHash())
	require.False(t, a.Equal(b), "equality still distinguishes observation counters")
}
