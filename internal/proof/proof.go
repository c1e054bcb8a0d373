// Package proof defines the proof backend contract the ledger consumes. The
// core must behave identically whether the backend is a genuine
// zero-knowledge system or a logically-equivalent association store; only
// the guarantee "accepts iff the stated property holds" matters here.
package proof

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// Prover produces and verifies conservation and temporal-validity proofs.
type Prover interface {
	// ProveConservation attests that the operation's per-class delta is zero
	// (or that the operation type is a declared boundary exception). A
	// nonzero delta on a conserving operation returns a
	// CodeConservationViolation error carrying the deltas.
	ProveConservation(ctx context.Context, tm domain.TimeMap, op domain.Operation, inputs []*domain.Register) (domain.Proof, error)

	// ProveTemporalUpdate attests that next is a valid advance over prev
	// given the domain updates applied between them.
	ProveTemporalUpdate(ctx context.Context, prev, next domain.TimeMap, updates []domain.TimePosition) (domain.Proof, error)

	// Verify checks a proof against its public inputs. Fails closed: any
	// mismatch or unknown proof reports false, not an error.
	Verify(ctx context.Context, p domain.Proof, publicInputs []byte) (bool, error)
}

// ConservationStatement canonically encodes the public inputs of a
// conservation proof: the observed time map hash, the operation type, and
// the per-class deltas in class order.
func ConservationStatement(tm domain.TimeMap, op domain.Operation, deltas map[domain.ResourceClass]int64) []byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(tm.ContentHash()))
	h.Write([]byte(op.Type))

	classes := make([]string, 0, len(deltas))
	for class := range deltas {
		classes = append(classes, string(class))
	}
	sort.Strings(classes)
	for _, class := range classes {
		h.Write([]byte(class))
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(deltas[domain.ResourceClass(class)]))
		h.Write(buf[:])
	}
	for _, id := range op.Inputs {
		h.Write([]byte(id))
	}
	return h.Sum(nil)
}

// TemporalStatement canonically encodes the public inputs of a temporal
// update proof.
func TemporalStatement(prev, next domain.TimeMap) []byte {
	return TemporalStatementFromHashes(prev.ContentHash(), next.ContentHash())
}

// TemporalStatementFromHashes builds the same statement from stored content
// hashes, for verifiers that no longer hold the predecessor map.
func TemporalStatementFromHashes(prev, next domain.TimeMapHash) []byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(prev))
	h.Write([]byte(next))
	return h.Sum(nil)
}

func statementHash(statement []byte) string {
	sum := blake2b.Sum256(statement)
	return hex.EncodeToString(sum[:])
}
