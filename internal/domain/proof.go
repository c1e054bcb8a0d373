package domain

// Proof is an opaque attestation produced by the proof backend. The core
// treats it uniformly whether the backend is a genuine zero-knowledge system
// or the association-store stand-in: the contract is "verifies iff the stated
// property holds".
type Proof struct {
	ID string `json:"id"`
	// StatementHash binds the proof to the public inputs it attests to.
	StatementHash string `json:"statement_hash"`
	// Backend names the producing implementation, for audit only.
	Backend string `json:"backend"`
	Payload []byte `json:"payload,omitempty"`
}

// Zero reports whether the proof is absent.
func (p Proof) Zero() bool { return p.ID == "" && p.StatementHash == "" }
