package domain

import "time"

// OperationType classifies a register operation. Deposit and Withdraw are the
// two declared conservation exceptions, since they cross the domain boundary.
type OperationType string

const (
	OpTransfer OperationType = "transfer"
	OpSplit    OperationType = "split"
	OpMerge    OperationType = "merge"
	OpDeposit  OperationType = "deposit"
	OpWithdraw OperationType = "withdraw"
	OpCommit   OperationType = "commit_time_map"
)

// Conserving reports whether the per-class zero-delta rule applies to this
// operation type.
func (t OperationType) Conserving() bool {
	switch t {
	case OpDeposit, OpWithdraw:
		return false
	default:
		return true
	}
}

// Known reports whether t is a recognized operation type.
func (t OperationType) Known() bool {
	switch t {
	case OpTransfer, OpSplit, OpMerge, OpDeposit, OpWithdraw, OpCommit:
		return true
	default:
		return false
	}
}

// ProposedOutput describes a register the operation wants to create.
type ProposedOutput struct {
	Owner    Owner             `json:"owner"`
	Contents Contents          `json:"-"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Operation is the ephemeral request form: it exists only during validation
// and application. Its effects are recorded as register state transitions and
// a causal log entry, never as a persisted object of its own.
type Operation struct {
	Type            OperationType    `json:"type"`
	Caller          string           `json:"caller"`
	Inputs          []RegisterID     `json:"inputs"`
	Outputs         []ProposedOutput `json:"outputs"`
	ObservedTimeMap TimeMap          `json:"observed_time_map"`
	// AuthorizationEvidence is opaque to the core; the authorization
	// collaborator interprets it (a bearer token, a capability chain, ...).
	AuthorizationEvidence string `json:"authorization_evidence,omitempty"`
}

// Delta computes the signed per-class sum of quantities across consumed
// inputs (negative) and proposed outputs (positive). Zero entries are
// dropped so an empty map means the operation conserves every class.
func Delta(inputs []*Register, outputs []ProposedOutput) map[ResourceClass]int64 {
	delta := make(map[ResourceClass]int64)
	for _, in := range inputs {
		for class, amount := range in.Contents.Amounts() {
			delta[class] -= amount
		}
	}
	for _, out := range outputs {
		for class, amount := range out.Contents.Amounts() {
			delta[class] += amount
		}
	}
	for class, amount := range delta {
		if amount == 0 {
			delete(delta, class)
		}
	}
	return delta
}

// Receipt reports a committed operation back to the caller.
type Receipt struct {
	TransactionID TransactionID `json:"transaction_id"`
	Outputs       []RegisterID  `json:"outputs"`
	LogicalTime   uint64        `json:"logical_time"`
	CommittedAt   time.Time     `json:"committed_at"`
}

// CausalEntry is one record of the append-only causal log. The sequence of
// entries is sufficient to replay the ledger from genesis.
type CausalEntry struct {
	TransactionID TransactionID `json:"transaction_id"`
	InputIDs      []RegisterID  `json:"input_ids"`
	OutputIDs     []RegisterID  `json:"output_ids"`
	TimeMapHash   TimeMapHash   `json:"time_map_hash"`
	LogicalTime   uint64        `json:"logical_time"`
	Domain        DomainID      `json:"domain"`
	AppendedAt    time.Time     `json:"appended_at"`
}
