// Package authz defines the authorization collaborator contract. The
// delegation model behind it is external; the ledger only consumes the call
// contract check(caller, operation type, input register ids).
package authz

import (
	"context"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// Authorizer decides whether a caller may submit an operation over the given
// input registers. Implementations may block on external systems; callers
// bound them with context timeouts.
type Authorizer interface {
	Check(ctx context.Context, caller string, opType domain.OperationType, inputs []domain.RegisterID) (bool, error)
}

// AllowAll admits every caller. Development and test wiring only.
type AllowAll struct{}

func (AllowAll) Check(context.Context, string, domain.OperationType, []domain.RegisterID) (bool, error) {
	return true, nil
}
