package domain

import (
	"encoding/hex"
	"sort"
	"time"

	"golang.org/x/crypto/blake2b"
)

// TimePosition is a domain's state at a point in its own timeline.
type TimePosition struct {
	Domain    DomainID  `json:"domain"`
	Height    uint64    `json:"height"`
	BlockHash string    `json:"block_hash"`
	Timestamp time.Time `json:"timestamp"`
}

// TimeMap is a snapshot mapping each known domain to its last-observed
// position. Immutable once hashed: it is superseded by later maps via Merge,
// never mutated in place.
type TimeMap struct {
	Positions  map[DomainID]TimePosition `json:"positions"`
	ObservedAt uint64                    `json:"observed_at"`
}

// TimeMapHash is the content address of a time map.
type TimeMapHash string

// NewTimeMap builds a time map from positions, keyed by their domain.
func NewTimeMap(observedAt uint64, positions ...TimePosition) TimeMap {
	tm := TimeMap{Positions: make(map[DomainID]TimePosition, len(positions)), ObservedAt: observedAt}
	for _, p := range positions {
		tm.Positions[p.Domain] = p
	}
	return tm
}

// Merge combines two time maps: for each domain present in either input the
// position with the greater height wins. Equal heights pick the maximum under
// a total order on (block hash, timestamp), so an empty hash loses to an
// observed one and fork observations at the same height resolve the same way
// regardless of argument order. Commutative, associative, and idempotent;
// replay depends on these holding exactly.
func Merge(a, b TimeMap) TimeMap {
	merged := TimeMap{
		Positions:  make(map[DomainID]TimePosition, len(a.Positions)+len(b.Positions)),
		ObservedAt: max(a.ObservedAt, b.ObservedAt),
	}
	for id, pos := range a.Positions {
		merged.Positions[id] = pos
	}
	for id, pos := range b.Positions {
		current, ok := merged.Positions[id]
		if !ok {
			merged.Positions[id] = pos
			continue
		}
		switch {
		case pos.Height > current.Height:
			merged.Positions[id] = pos
		case pos.Height == current.Height && positionLess(current, pos):
			merged.Positions[id] = pos
		}
	}
	return merged
}

// positionLess is the equal-height tiebreak order. Block hash compares first,
// so "" (unobserved) is the minimum; timestamps break exact hash ties.
func positionLess(a, b TimePosition) bool {
	if a.BlockHash != b.BlockHash {
		return a.BlockHash < b.BlockHash
	}
	return a.Timestamp.Before(b.Timestamp)
}

// IsAheadOf reports whether candidate has advanced at least as far as
// reference on every domain reference knows about. A domain absent from the
// candidate counts as height zero, so it fails the check.
func (tm TimeMap) IsAheadOf(reference TimeMap) bool {
	for id, ref := range reference.Positions {
		pos, ok := tm.Positions[id]
		if !ok || pos.Height < ref.Height {
			return false
		}
	}
	return true
}

// ContentHash returns the deterministic hash over the ordered position set.
// Two maps with identical positions hash identically regardless of
// construction order. Always recomputed, never cached.
func (tm TimeMap) ContentHash() TimeMapHash {
	ids := make([]DomainID, 0, len(tm.Positions))
	for id := range tm.Positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	h, _ := blake2b.New256(nil)
	for _, id := range ids {
		pos := tm.Positions[id]
		writeString(h, string(id))
		writeUint64(h, pos.Height)
		writeString(h, pos.BlockHash)
		writeInt64(h, pos.Timestamp.UnixNano())
	}
	return TimeMapHash(hex.EncodeToString(h.Sum(nil)))
}

// Equal reports position-set equality via content hashes.
func (tm TimeMap) Equal(other TimeMap) bool {
	return tm.ContentHash() == other.ContentHash() && tm.ObservedAt == other.ObservedAt
}

// TimeMapCommitment binds a time map to the register storing it and the
// temporal-update proof over its predecessor. Never mutated after creation.
type TimeMapCommitment struct {
	RegisterID        RegisterID `json:"register_id"`
	TimeMap           TimeMap    `json:"time_map"`
	Proof             Proof      `json:"proof"`
	LastUpdatedHeight uint64     `json:"last_updated_height"`
}
