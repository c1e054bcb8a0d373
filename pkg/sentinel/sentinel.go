package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and archive backends return
// these (optionally wrapped) so services can translate them into coded ledger
// errors.
//
// These represent factual states about records, not admission failures:
// - ErrNotFound: record does not exist in store
// - ErrConflict: concurrent writer won the race for this record
// - ErrExpired: lock or reservation has passed its expiry
// - ErrAlreadyUsed: one-time resource (register, admission token) already redeemed
// - ErrInvalidState: record in wrong lifecycle state for requested transition
// - ErrUnavailable: backend temporarily unreachable
//
// For admission failures (authorization, conservation, staleness), use
// pkg/ledgererrors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
