package timemap

import (
	"context"
	"log/slog"
	"sync"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/internal/proof"
	"github.com/timewave-computer/causality-sub004/internal/register"
	"github.com/timewave-computer/causality-sub004/pkg/ledgererrors"
)

// timeKeeper owns the registers that store committed time maps.
const timeKeeper = domain.Owner("time-keeper")

// CommitmentStore persists time maps as registers together with a temporal
// validity proof and exposes verification over the result.
type CommitmentStore struct {
	registers register.Store
	prover    proof.Prover
	epoch     func() domain.EpochID
	logger    *slog.Logger

	mu     sync.Mutex
	latest domain.TimeMap
}

// Option configures a CommitmentStore.
type Option func(*CommitmentStore)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *CommitmentStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCommitmentStore constructs a commitment store. currentEpoch supplies the
// epoch tag for commitment registers.
func NewCommitmentStore(registers register.Store, prover proof.Prover, currentEpoch func() domain.EpochID, opts ...Option) *CommitmentStore {
	s := &CommitmentStore{
		registers: registers,
		prover:    prover,
		epoch:     currentEpoch,
		logger:    slog.Default(),
		latest:    domain.NewTimeMap(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commit proves the time map is a valid update over its predecessor, stores
// it as register contents, and wraps it with the proof and its highest
// observed height.
func (s *CommitmentStore) Commit(ctx context.Context, tm domain.TimeMap) (domain.TimeMapCommitment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.latest
	pr, err := s.prover.ProveTemporalUpdate(ctx, prev, tm, nil)
	if err != nil {
		return domain.TimeMapCommitment{}, ledgererrors.Wrap(err, ledgererrors.CodeOf(err), "prove temporal update")
	}
	// The predecessor hash rides in the proof payload so verification can
	// rebuild the statement without holding the predecessor map.
	pr.Payload = []byte(prev.ContentHash())

	reg, err := s.registers.Create(ctx, domain.TimeMapContents{TimeMap: tm}, timeKeeper, s.epoch(), nil)
	if err != nil {
		return domain.TimeMapCommitment{}, ledgererrors.Wrap(err, ledgererrors.CodeInternal, "store time map register")
	}

	s.latest = tm
	s.logger.Debug("committed time map",
		"register_id", string(reg.ID),
		"hash", string(tm.ContentHash()))

	return domain.TimeMapCommitment{
		RegisterID:        reg.ID,
		TimeMap:           tm,
		Proof:             pr,
		LastUpdatedHeight: maxHeight(tm),
	}, nil
}

// Verify checks the commitment register still exists and the proof validates
// against the stored time map. Fails closed: a missing register reports
// false, not an error.
func (s *CommitmentStore) Verify(ctx context.Context, c domain.TimeMapCommitment) bool {
	exists, err := s.registers.Exists(ctx, c.RegisterID)
	if err != nil || !exists {
		return false
	}

	statement := proof.TemporalStatementFromHashes(
		domain.TimeMapHash(c.Proof.Payload), c.TimeMap.ContentHash())
	ok, err := s.prover.Verify(ctx, c.Proof, statement)
	if err != nil {
		s.logger.Warn("time map proof verification errored", "error", err)
		return false
	}
	return ok
}

func maxHeight(tm domain.TimeMap) uint64 {
	var h uint64
	for _, pos := range tm.Positions {
		if pos.Height > h {
			h = pos.Height
		}
	}
	return h
}
