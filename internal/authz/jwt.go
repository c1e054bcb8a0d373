package authz

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/timewave-computer/causality-sub004/internal/domain"
)

// scopePrefix namespaces ledger scopes inside a token's scope claim.
const scopePrefix = "ledger:"

// JWTAuthorizer admits callers presenting an HS256 bearer token whose scope
// claim covers the operation type. The caller identity passed to Check is the
// raw token; the subject claim becomes the audited identity.
type JWTAuthorizer struct {
	signingKey []byte
}

// NewJWTAuthorizer constructs a JWT authorizer with the shared signing key.
func NewJWTAuthorizer(signingKey []byte) (*JWTAuthorizer, error) {
	if len(signingKey) == 0 {
		return nil, fmt.Errorf("jwt authorizer requires a signing key")
	}
	return &JWTAuthorizer{signingKey: signingKey}, nil
}

type ledgerClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

func (a *JWTAuthorizer) Check(ctx context.Context, caller string, opType domain.OperationType, _ []domain.RegisterID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	claims := &ledgerClaims{}
	token, err := jwt.ParseWithClaims(caller, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.signingKey, nil
	})
	if err != nil || !token.Valid {
		return false, nil
	}

	required := scopePrefix + string(opType)
	for _, scope := range claims.Scopes {
		if scope == required || scope == scopePrefix+"*" {
			return true, nil
		}
	}
	return false, nil
}
