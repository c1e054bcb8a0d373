// Package validator is the decision point for every state-changing request:
// existence/activity, authorization, temporal validity, and conservation, in
// that order, short-circuiting on first failure.
package validator

//go:generate mockgen -source=validator.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/timewave-computer/causality-sub004/internal/domain"
	"github.com/timewave-computer/causality-sub004/internal/register"
	"github.com/timewave-computer/causality-sub004/pkg/ledgererrors"
)

// Authorizer is the external authorization collaborator contract consumed
// here.
type Authorizer interface {
	Check(ctx context.Context, caller string, opType domain.OperationType, inputs []domain.RegisterID) (bool, error)
}

// Prover is the slice of the proof backend the validator needs.
type Prover interface {
	ProveConservation(ctx context.Context, tm domain.TimeMap, op domain.Operation, inputs []*domain.Register) (domain.Proof, error)
}

// PreconditionChecker re-runs whatever external fact checks justified an
// operation (balance, inclusion) against the current time map. This is the
// reorg/staleness defense: a stale observation is not rejected outright as
// long as its preconditions still hold now.
type PreconditionChecker interface {
	Recheck(ctx context.Context, op domain.Operation, current domain.TimeMap) (bool, error)
}

// TimeMapSource supplies the ledger's current time map.
type TimeMapSource interface {
	Current() domain.TimeMap
}

// Validator runs the admission pipeline and issues single-use admission
// tokens on success.
type Validator struct {
	registers  register.Store
	authorizer Authorizer
	prover     Prover
	timemaps   TimeMapSource
	preconds   PreconditionChecker
	timeout    time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithPreconditionChecker installs the reorg-defense fact re-checker. Without
// one, any observation the ledger has advanced past is rejected.
func WithPreconditionChecker(checker PreconditionChecker) Option {
	return func(v *Validator) { v.preconds = checker }
}

// WithCollaboratorTimeout bounds each blocking authorization/proof call.
func WithCollaboratorTimeout(timeout time.Duration) Option {
	return func(v *Validator) {
		if timeout > 0 {
			v.timeout = timeout
		}
	}
}

// New constructs a validator.
func New(registers register.Store, authorizer Authorizer, prover Prover, timemaps TimeMapSource, opts ...Option) (*Validator, error) {
	if registers == nil {
		return nil, fmt.Errorf("register store is required")
	}
	if authorizer == nil {
		return nil, fmt.Errorf("authorizer is required")
	}
	if prover == nil {
		return nil, fmt.Errorf("prover is required")
	}
	if timemaps == nil {
		return nil, fmt.Errorf("time map source is required")
	}
	v := &Validator{
		registers:  registers,
		authorizer: authorizer,
		prover:     prover,
		timemaps:   timemaps,
		timeout:    5 * time.Second,
		logger:     slog.Default(),
		tracer:     otel.Tracer("causality/validator"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Admit runs the pipeline over the request. On success it returns a
// single-use admission token the engine must present to apply the
// transition; on failure it returns exactly one coded error with all
// referenced registers unmodified.
func (v *Validator) Admit(ctx context.Context, op domain.Operation) (*AdmissionToken, error) {
	ctx, span := v.tracer.Start(ctx, "validator.Admit")
	defer span.End()

	if !op.Type.Known() {
		return nil, ledgererrors.Newf(ledgererrors.CodeBadRequest, "unknown operation type %q", op.Type)
	}
	for i, out := range op.Outputs {
		if out.Contents == nil {
			return nil, ledgererrors.Newf(ledgererrors.CodeBadRequest, "output %d has no contents", i)
		}
	}
	seen := make(map[domain.RegisterID]bool, len(op.Inputs))
	for _, id := range op.Inputs {
		if seen[id] {
			return nil, ledgererrors.Newf(ledgererrors.CodeBadRequest, "duplicate input register %s", id)
		}
		seen[id] = true
	}

	inputs, err := v.checkInputs(ctx, op)
	if err != nil {
		return nil, err
	}
	if err := v.checkAuthorization(ctx, op); err != nil {
		return nil, err
	}
	current := v.timemaps.Current()
	if err := v.checkTemporal(ctx, op, current); err != nil {
		return nil, err
	}
	pr, err := v.checkConservation(ctx, op, current, inputs)
	if err != nil {
		return nil, err
	}

	return newAdmissionToken(op, inputs, pr, current), nil
}

// checkInputs verifies every input register exists and is Active.
func (v *Validator) checkInputs(ctx context.Context, op domain.Operation) ([]*domain.Register, error) {
	inputs := make([]*domain.Register, 0, len(op.Inputs))
	for _, id := range op.Inputs {
		reg, err := v.registers.Get(ctx, id)
		if err != nil {
			return nil, ledgererrors.Wrap(err, ledgererrors.CodeRegisterUnavailable,
				fmt.Sprintf("input register %s not found", id))
		}
		if reg.State.Status != domain.StatusActive {
			return nil, ledgererrors.Newf(ledgererrors.CodeRegisterUnavailable,
				"input register %s is %s, not active", id, reg.State.Status)
		}
		inputs = append(inputs, reg)
	}
	return inputs, nil
}

// checkAuthorization delegates to the external collaborator under a timeout.
func (v *Validator) checkAuthorization(ctx context.Context, op domain.Operation) error {
	caller := op.Caller
	if op.AuthorizationEvidence != "" {
		caller = op.AuthorizationEvidence
	}

	tctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	ok, err := v.authorizer.Check(tctx, caller, op.Type, op.Inputs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ledgererrors.Wrap(err, ledgererrors.CodeTimeout, "authorization check timed out")
		}
		return ledgererrors.Wrap(err, ledgererrors.CodeInternal, "authorization collaborator failed")
	}
	if !ok {
		return ledgererrors.Newf(ledgererrors.CodeAuthorizationFailed,
			"caller %s may not perform %s", op.Caller, op.Type)
	}
	return nil
}

// checkTemporal compares the observed time map against the ledger's current
// one. If the ledger advanced past the observation, the operation's
// preconditions are re-validated against the current map rather than
// rejected outright.
func (v *Validator) checkTemporal(ctx context.Context, op domain.Operation, current domain.TimeMap) error {
	if op.ObservedTimeMap.IsAheadOf(current) {
		return nil
	}

	if v.preconds == nil {
		return ledgererrors.New(ledgererrors.CodePreconditionInvalidated,
			"observed time map is stale and no precondition checker is configured")
	}

	tctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	ok, err := v.preconds.Recheck(tctx, op, current)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ledgererrors.Wrap(err, ledgererrors.CodeTimeout, "precondition recheck timed out")
		}
		return ledgererrors.Wrap(err, ledgererrors.CodePreconditionInvalidated, "precondition recheck failed")
	}
	if !ok {
		v.logger.Info("stale observation failed revalidation",
			"observed", string(op.ObservedTimeMap.ContentHash()),
			"current", string(current.ContentHash()))
		return ledgererrors.New(ledgererrors.CodePreconditionInvalidated,
			"preconditions no longer hold against the current time map")
	}
	return nil
}

// checkConservation requires a zero per-class delta for conserving operation
// types, proof-backed.
func (v *Validator) checkConservation(ctx context.Context, op domain.Operation, current domain.TimeMap, inputs []*domain.Register) (domain.Proof, error) {
	tctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	pr, err := v.prover.ProveConservation(tctx, current, op, inputs)
	if err != nil {
		if ledgererrors.HasCode(err, ledgererrors.CodeConservationViolation) {
			return domain.Proof{}, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.Proof{}, ledgererrors.Wrap(err, ledgererrors.CodeTimeout, "conservation proof timed out")
		}
		return domain.Proof{}, ledgererrors.Wrap(err, ledgererrors.CodeInternal, "proof backend failed")
	}
	return pr, nil
}
