package proof

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/pkg/ledgererrors"
)

const associationBackend = "association-store"

// AssociationProver is the logically-equivalent stand-in backend: it records
// (statement hash → proof id) pairs on prove and verifies association rather
// than cryptographic soundness. It still refuses to attest false statements,
// so the contract "accepts iff the stated property holds" is preserved for
// the properties the ledger checks.
type AssociationProver struct {
	mu     sync.RWMutex
	issued map[string]string // statement hash → proof id
}

// NewAssociationProver returns an empty association-store prover.
func NewAssociationProver() *AssociationProver {
	return &AssociationProver{issued: make(map[string]string)}
}

func (p *AssociationProver) ProveConservation(ctx context.Context, tm domain.TimeMap, op domain.Operation, inputs []*domain.Register) (domain.Proof, error) {
	if err := ctx.Err(); err != nil {
		return domain.Proof{}, err
	}

	deltas := domain.Delta(inputs, op.Outputs)
	if op.Type.Conserving() && len(deltas) != 0 {
		flat := make(map[string]int64, len(deltas))
		for class, amount := range deltas {
			flat[string(class)] = amount
		}
		return domain.Proof{}, ledgererrors.NewConservation(flat)
	}

	return p.issue(ConservationStatement(tm, op, deltas)), nil
}

func (p *AssociationProver) ProveTemporalUpdate(ctx context.Context, prev, next domain.TimeMap, updates []domain.TimePosition) (domain.Proof, error) {
	if err := ctx.Err(); err != nil {
		return domain.Proof{}, err
	}

	// Refuse to attest a regression: next must dominate prev.
	if !next.IsAheadOf(prev) {
		return domain.Proof{}, ledgererrors.New(ledgererrors.CodePreconditionInvalidated,
			"time map update regresses a domain position")
	}
	for _, update := range updates {
		pos, ok := next.Positions[update.Domain]
		if !ok || pos.Height < update.Height {
			return domain.Proof{}, ledgererrors.Newf(ledgererrors.CodePreconditionInvalidated,
				"update for domain %s not reflected in new time map", update.Domain)
		}
	}

	return p.issue(TemporalStatement(prev, next)), nil
}

func (p *AssociationProver) Verify(_ context.Context, pr domain.Proof, publicInputs []byte) (bool, error) {
	if pr.Zero() {
		return false, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	id, ok := p.issued[pr.StatementHash]
	if !ok || id != pr.ID {
		return false, nil
	}
	return pr.StatementHash == statementHash(publicInputs), nil
}

func (p *AssociationProver) issue(statement []byte) domain.Proof {
	hash := statementHash(statement)

	p.mu.Lock()
	defer p.mu.Unlock()

	id, ok := p.issued[hash]
	if !ok {
		id = uuid.NewString()
		p.issued[hash] = id
	}
	return domain.Proof{ID: id, StatementHash: hash, Backend: associationBackend}
}
