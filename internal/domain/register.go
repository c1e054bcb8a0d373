package domain

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Status is a register's lifecycle phase. Transitions run strictly forward
// (Active→Locked→Consumed→Archived→Tombstone) with the single exception of
// Locked→Active on expiry or abort. A register is never reused once Consumed.
type Status string

const (
	// StatusActive: usable as operation input.
	StatusActive Status = "active"
	// StatusLocked: reserved for an in-flight operation until expiry.
	StatusLocked Status = "locked"
	// StatusConsumed: spent. Terminal for use, retained for audit.
	StatusConsumed Status = "consumed"
	// StatusArchived: consumed and compacted; only a verification stub remains
	// on the hot path.
	StatusArchived Status = "archived"
	// StatusTombstone: archive retention elapsed; only the hash remains.
	StatusTombstone Status = "tombstone"
)

// State is the full lifecycle state, carrying the per-status payload.
type State struct {
	Status Status `json:"status"`

	// Locked
	OperationID string    `json:"operation_id,omitempty"`
	LockExpiry  time.Time `json:"lock_expiry,omitempty"`

	// Consumed
	TransactionID TransactionID `json:"transaction_id,omitempty"`
	Successors    []RegisterID  `json:"successors,omitempty"`

	// Archived
	ArchiveID ArchiveID `json:"archive_id,omitempty"`
}

// Active is the initial state of every register.
func Active() State { return State{Status: StatusActive} }

// Locked reserves a register for an in-flight operation.
func Locked(operationID string, expiry time.Time) State {
	return State{Status: StatusLocked, OperationID: operationID, LockExpiry: expiry}
}

// Consumed marks a register spent by a transaction, recording its successors.
// operationID must name the lock holder; stores reject a consume by anyone
// else, so a stalled operation whose lock was reclaimed cannot spend a
// register now reserved by its successor.
func Consumed(operationID string, txID TransactionID, successors []RegisterID) State {
	return State{Status: StatusConsumed, OperationID: operationID, TransactionID: txID, Successors: successors}
}

// Unlocked releases a lock back to Active on behalf of its holder. Stores
// reject a release by any other operation; only an expired lock may be
// released anonymously via Active.
func Unlocked(operationID string) State {
	return State{Status: StatusActive, OperationID: operationID}
}

// Archived points a consumed register at its archive record.
func Archived(archiveID ArchiveID) State {
	return State{Status: StatusArchived, ArchiveID: archiveID}
}

// Tombstone is the terminal state after archive retention elapses.
func Tombstone() State { return State{Status: StatusTombstone} }

// allowedEdges is the complete transition relation. Anything not listed is an
// InvalidTransition, rejected rather than silently corrected.
var allowedEdges = map[Status]map[Status]bool{
	StatusActive:   {StatusLocked: true},
	StatusLocked:   {StatusActive: true, StatusConsumed: true},
	StatusConsumed: {StatusArchived: true},
	StatusArchived: {StatusTombstone: true},
}

// ValidTransition reports whether the edge from→to is on the state machine.
func ValidTransition(from, to Status) bool {
	return allowedEdges[from][to]
}

// Register is a one-time-use, content-addressed storage unit holding a
// resource or commitment.
type Register struct {
	ID          RegisterID        `json:"id"`
	Owner       Owner             `json:"owner"`
	Contents    Contents          `json:"-"`
	Epoch       EpochID           `json:"epoch"`
	State       State             `json:"state"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUpdated time.Time         `json:"last_updated"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ConsumedBy returns the consuming transaction, if any.
func (r *Register) ConsumedBy() (TransactionID, bool) {
	if r.State.Status == StatusConsumed && r.State.TransactionID != "" {
		return r.State.TransactionID, true
	}
	return "", false
}

// ComputeRegisterID content-addresses a register from its contents, owner,
// and creation epoch. Identical content and owner in the same epoch yield
// the same ID: they are the same resource occurrence, so creation is
// idempotent.
func ComputeRegisterID(contents Contents, owner Owner, epoch EpochID) RegisterID {
	h, _ := blake2b.New256(nil)
	canonicalize(h, contents)
	writeString(h, string(owner))
	writeUint64(h, uint64(epoch))
	return RegisterID(hex.EncodeToString(h.Sum(nil)))
}

// RegisterStub replaces an archived register body on the hot path. Lookups
// resolve here; the full body lives in the archive under ArchiveID.
type RegisterStub struct {
	RegisterID       RegisterID `json:"register_id"`
	ArchiveID        ArchiveID  `json:"archive_id"`
	SummaryID        RegisterID `json:"summary_id"`
	VerificationHash string     `json:"verification_hash"`
}
