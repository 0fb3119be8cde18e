package models

import "errors"

// Caller-correctable, rejected before any state mutation.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidParams       = errors.New("invalid params")
)

// Seed lifecycle violations. Callers recover by rotating the seed pair.
var (
	ErrSeedState     = errors.New("seed state")
	ErrExhaustedSeed = errors.New("seed nonces exhausted")
	ErrNotRotated    = errors.New("seed not rotated")
	ErrSeedNotFound  = errors.New("seed not found")
)

var (
	// ErrResolutionConflict means another writer moved the bet first. The
	// engine answers it by replaying the stored result.
	ErrResolutionConflict = errors.New("resolution conflict")

	// ErrSettlementIO wraps persistence failures during a debit or credit.
	// It is the only class the engine retries.
	ErrSettlementIO = errors.New("settlement io")

	ErrBetNotFound       = errors.New("bet not found")
	ErrBetVoided         = errors.New("bet voided")
	ErrInvalidTransition = errors.New("invalid bet transition")
	ErrMalformedOutcome  = errors.New("malformed outcome")
	ErrDuplicateEntry    = errors.New("duplicate ledger entry")
)
