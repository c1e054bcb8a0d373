// Package engine atomically applies admitted register operations:
// Proposed → Locking → Applying → Committed, or Proposed → Rejected with no
// mutation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/timewave-computer/causality-sub004/internal/causallog"
	"github.com/timewave-computer/causality-sub004/internal/clock"
	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/internal/platform/metrics"
	"github.com/timewave-computer/causality-sub004/internal/register"
	"github.com/timewave-computer/causality-sub004/internal/validator"
	"github.com/timewave-computer/causality-sub004/pkg/ledgererrors"
	"github.com/timewave-computer/causality-sub004/pkg/sentinel"
)

// Engine commits admitted operations against the register store. Per-register
// mutation is serialized by the store's state machine; operations on disjoint
// register sets proceed fully in parallel.
type Engine struct {
	registers   register.Store
	log         causallog.Log
	clocks      *clock.Registry
	localDomain domain.DomainID
	epoch       func() domain.EpochID
	lockTTL     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer

	// poisoned flips when an InvalidTransition is observed mid-apply. The
	// state machine's guarantees may no longer hold for this instance, so it
	// refuses further work.
	poisoned atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLockTTL sets how long input registers stay reserved before the
// watchdog may reclaim them.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// New constructs an engine. currentEpoch tags output registers with the open
// epoch; localDomain owns the logical clock stamped onto causal entries.
func New(registers register.Store, log causallog.Log, clocks *clock.Registry, localDomain domain.DomainID, currentEpoch func() domain.EpochID, opts ...Option) (*Engine, error) {
	if registers == nil {
		return nil, fmt.Errorf("register store is required")
	}
	if log == nil {
		return nil, fmt.Errorf("causal log is required")
	}
	if clocks == nil {
		return nil, fmt.Errorf("clock registry is required")
	}
	if currentEpoch == nil {
		return nil, fmt.Errorf("epoch source is required")
	}
	e := &Engine{
		registers:   registers,
		log:         log,
		clocks:      clocks,
		localDomain: localDomain,
		epoch:       currentEpoch,
		lockTTL:     30 * time.Second,
		logger:      slog.Default(),
		tracer:      otel.Tracer("causality/engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Poisoned reports whether the engine hit a state-machine invariant breach
// and refuses further operations.
func (e *Engine) Poisoned() bool { return e.poisoned.Load() }

// Apply commits the transition the token admits. Any failure before the
// Applying phase leaves the store unchanged; a failure during Applying
// poisons the engine instance, since the state machine's guarantees may no
// longer hold.
func (e *Engine) Apply(ctx context.Context, token *validator.AdmissionToken) (*domain.Receipt, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Apply")
	defer span.End()

	if e.poisoned.Load() {
		return nil, ledgererrors.New(ledgererrors.CodeInvalidTransition,
			"engine poisoned by a prior invariant breach; restart required")
	}
	if token == nil {
		return nil, ledgererrors.New(ledgererrors.CodeBadRequest, "admission token is required")
	}
	if !token.Redeem() {
		return nil, ledgererrors.New(ledgererrors.CodeBadRequest, "admission token already redeemed")
	}

	op := token.Operation()
	txID := domain.TransactionID(uuid.NewString())

	locked, err := e.lockInputs(ctx, token.ID(), op.Inputs)
	if err != nil {
		e.unlock(ctx, token.ID(), locked)
		if e.metrics != nil {
			e.metrics.IncRejected(string(ledgererrors.CodeOf(err)))
		}
		return nil, err
	}

	receipt, consumed, err := e.apply(ctx, op, token.ID(), txID)
	if err != nil {
		if consumed == 0 && errors.Is(err, sentinel.ErrConflict) {
			// The lock expired and another operation re-acquired an input
			// while this one stalled. Nothing was consumed under this
			// transaction; release whatever this operation still holds.
			e.unlock(ctx, token.ID(), op.Inputs)
			if e.metrics != nil {
				e.metrics.IncRejected(string(ledgererrors.CodeRegisterLocked))
			}
			return nil, ledgererrors.Wrap(err, ledgererrors.CodeRegisterLocked,
				"input lock was reclaimed and re-acquired by another operation")
		}
		// Applying already mutated state; this attempt is fatal for the
		// instance. Locked inputs return to Active via expiry reclamation.
		e.poisoned.Store(true)
		e.logger.Error("apply phase failed; engine poisoned",
			"transaction_id", string(txID), "error", err)
		return nil, ledgererrors.Wrap(err, ledgererrors.CodeInvalidTransition, "apply phase failed")
	}

	if err := e.commit(ctx, op, txID, receipt); err != nil {
		// Consumed inputs with no causal entry cannot be replayed; the
		// instance must not take further work.
		e.poisoned.Store(true)
		e.logger.Error("commit phase failed; engine poisoned",
			"transaction_id", string(txID), "error", err)
		return nil, err
	}
	return receipt, nil
}

// lockInputs transitions every input Active→Locked with an expiry. The first
// failure aborts; the caller unlocks whatever was already locked.
func (e *Engine) lockInputs(ctx context.Context, operationID string, inputs []domain.RegisterID) ([]domain.RegisterID, error) {
	expiry := time.Now().Add(e.lockTTL)
	var locked []domain.RegisterID
	for _, id := range inputs {
		reg, err := e.registers.Transition(ctx, id, domain.Locked(operationID, expiry))
		if err != nil {
			return locked, e.classifyLockFailure(id, reg, err)
		}
		locked = append(locked, id)
	}
	return locked, nil
}

// classifyLockFailure maps a lost locking race to the specific error kind the
// caller needs to choose a retry strategy.
func (e *Engine) classifyLockFailure(id domain.RegisterID, reg *domain.Register, cause error) error {
	if reg == nil {
		return ledgererrors.Wrap(cause, ledgererrors.CodeRegisterUnavailable,
			fmt.Sprintf("input register %s not found", id))
	}
	switch reg.State.Status {
	case domain.StatusLocked:
		return ledgererrors.Newf(ledgererrors.CodeRegisterLocked,
			"input register %s is reserved by operation %s", id, reg.State.OperationID)
	case domain.StatusConsumed, domain.StatusArchived, domain.StatusTombstone:
		return ledgererrors.Newf(ledgererrors.CodeRegisterAlreadyConsumed,
			"input register %s was already consumed", id)
	default:
		return ledgererrors.Wrap(cause, ledgererrors.CodeRegisterUnavailable,
			fmt.Sprintf("input register %s unavailable", id))
	}
}

// unlock returns inputs locked by this operation to Active after an abort.
func (e *Engine) unlock(ctx context.Context, operationID string, locked []domain.RegisterID) {
	for _, id := range locked {
		if _, err := e.registers.Transition(ctx, id, domain.Unlocked(operationID)); err != nil {
			// The expiry reclamation path will pick it up.
			e.logger.Warn("unlock aborted input", "register_id", string(id), "error", err)
		}
	}
}

// apply creates the output registers and consumes the inputs, reporting how
// many inputs were consumed before any failure.
func (e *Engine) apply(ctx context.Context, op domain.Operation, operationID string, txID domain.TransactionID) (*domain.Receipt, int, error) {
	epoch := e.epoch()
	outputIDs := make([]domain.RegisterID, 0, len(op.Outputs))
	for _, out := range op.Outputs {
		reg, err := e.registers.Create(ctx, out.Contents, out.Owner, epoch, out.Metadata)
		if err != nil {
			return nil, 0, fmt.Errorf("create output register: %w", err)
		}
		outputIDs = append(outputIDs, reg.ID)
	}

	for i, id := range op.Inputs {
		if _, err := e.registers.Transition(ctx, id, domain.Consumed(operationID, txID, outputIDs)); err != nil {
			return nil, i, fmt.Errorf("consume input register %s: %w", id, err)
		}
	}

	return &domain.Receipt{
		TransactionID: txID,
		Outputs:       outputIDs,
		CommittedAt:   time.Now(),
	}, len(op.Inputs), nil
}

// commit appends the causal log entry and stamps the receipt with the local
// logical time. After this the operation is irreversible.
func (e *Engine) commit(ctx context.Context, op domain.Operation, txID domain.TransactionID, receipt *domain.Receipt) error {
	logical := e.clocks.ForDomain(e.localDomain).Tick()
	receipt.LogicalTime = logical

	entry := domain.CausalEntry{
		TransactionID: txID,
		InputIDs:      op.Inputs,
		OutputIDs:     receipt.Outputs,
		TimeMapHash:   op.ObservedTimeMap.ContentHash(),
		LogicalTime:   logical,
		Domain:        e.localDomain,
		AppendedAt:    time.Now(),
	}
	if err := e.log.Append(ctx, entry); err != nil {
		e.logger.Error("append causal entry",
			"transaction_id", string(txID), "error", err)
		return ledgererrors.Wrap(err, ledgererrors.CodeInternal, "append causal log entry")
	}

	if e.metrics != nil {
		e.metrics.OperationsCommitted.Inc()
		e.metrics.RegistersConsumed.Add(float64(len(op.Inputs)))
		e.metrics.RegistersCreated.Add(float64(len(receipt.Outputs)))
	}
	e.logger.Info("operation committed",
		"transaction_id", string(txID),
		"inputs", len(op.Inputs),
		"outputs", len(receipt.Outputs),
		"logical_time", logical)
	return nil
}
