package validator

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// AdmissionToken is the validator's proof of admission. The engine must
// present it to apply the transition; it redeems exactly once.
type AdmissionToken struct {
	id       string
	op       domain.Operation
	inputs   []*domain.Register
	proof    domain.Proof
	admitted domain.TimeMap
	issuedAt time.Time
	redeemed atomic.Bool
}

func newAdmissionToken(op domain.Operation, inputs []*domain.Register, pr domain.Proof, admitted domain.TimeMap) *AdmissionToken {
	return &AdmissionToken{
		id:       uuid.NewString(),
		op:       op,
		inputs:   inputs,
		proof:    pr,
		admitted: admitted,
		issuedAt: time.Now(),
	}
}

// ID returns the token's unique identifier.
func (t *AdmissionToken) ID() string { return t.id }

// Operation returns the admitted request.
func (t *AdmissionToken) Operation() domain.Operation { return t.op }

// Inputs returns the input registers as resolved at admission time.
func (t *AdmissionToken) Inputs() []*domain.Register { return t.inputs }

// Proof returns the conservation proof issued at admission.
func (t *AdmissionToken) Proof() domain.Proof { return t.proof }

// AdmittedAgainst returns the ledger time map the operation was validated
// against; its hash goes into the causal log entry.
func (t *AdmissionToken) AdmittedAgainst() domain.TimeMap { return t.admitted }

// Redeem consumes the token. Only the first call returns true.
func (t *AdmissionToken) Redeem() bool {
	return t.redeemed.CompareAndSwap(false, true)
}
