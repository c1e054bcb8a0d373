// Package register is the substrate every other component reads and writes:
// content-addressed register records and their lifecycle state.
package register

import (
	"context"
	"time"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// Store holds registers and enforces the lifecycle state machine atomically
// per register. Implementations return pkg/sentinel errors; services
// translate them into coded ledger errors.
type Store interface {
	// Create adds an Active register content-addressed from (contents, owner,
	// epoch). Creation is idempotent: an existing register with the same
	// address is returned as-is, since by the conservation model it is the
	// same resource occurrence.
	Create(ctx context.Context, contents domain.Contents, owner domain.Owner, epoch domain.EpochID, metadata map[string]string) (*domain.Register, error)

	// Get returns the register or sentinel.ErrNotFound.
	Get(ctx context.Context, id domain.RegisterID) (*domain.Register, error)

	// Exists reports whether the register is present (in any state).
	Exists(ctx context.Context, id domain.RegisterID) (bool, error)

	// Transition moves the register to next if the edge is on the state
	// machine, atomically with respect to other transitions on the same
	// register. An off-machine edge returns sentinel.ErrInvalidState with the
	// store unchanged.
	Transition(ctx context.Context, id domain.RegisterID, next domain.State) (*domain.Register, error)

	// ConsumedInEpoch lists Consumed registers tagged with the epoch, up to
	// limit, in creation order. GC consumes this in bounded batches.
	ConsumedInEpoch(ctx context.Context, epoch domain.EpochID, limit int) ([]*domain.Register, error)

	// ArchivedThrough lists Archived registers from epochs at or before
	// cutoff, up to limit, in creation order. GC retention tombstones these
	// once the archive retention window elapses.
	ArchivedThrough(ctx context.Context, cutoff domain.EpochID, limit int) ([]domain.RegisterID, error)

	// ExpiredLocks lists registers whose lock expiry has passed as of now.
	ExpiredLocks(ctx context.Context, now time.Time) ([]domain.RegisterID, error)

	// PutStub replaces an archived register's body with a verification stub
	// and redirects the resource index entries to the summary register. The
	// register must already be Archived.
	PutStub(ctx context.Context, stub domain.RegisterStub) error

	// Stub returns the stub for an archived register, if one exists.
	Stub(ctx context.Context, id domain.RegisterID) (domain.RegisterStub, bool, error)

	// ByClass resolves a resource class to the registers (or, post-GC,
	// summary registers) currently indexed under it.
	ByClass(ctx context.Context, class domain.ResourceClass) ([]domain.RegisterID, error)
}
