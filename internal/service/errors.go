package service

import "errors"

// Precondition errors are expected business outcomes. They map to 4xx
// responses and are never retried.
var (
	ErrAlreadyVerified         = errors.New("already verified")
	ErrRateLimited             = errors.New("code was sent recently, wait before retrying")
	ErrLocked                  = errors.New("verification is locked")
	ErrNoCodeRequested         = errors.New("no code has been requested")
	ErrCodeExpired             = errors.New("code has expired")
	ErrCodeMismatch            = errors.New("code does not match")
	ErrTooManyAttempts         = errors.New("too many failed attempts")
	ErrReviewPending           = errors.New("a submission is already under review")
	ErrRejectionReasonRequired = errors.New("rejection reason is required")
	ErrInsufficientFunds       = errors.New("insufficient verified funds")
	ErrNoVerifiedBankingInfo   = errors.New("no accepted banking info on file")
	ErrBelowMinimum            = errors.New("amount is below the withdrawal minimum")
	ErrDeliveryFailed          = errors.New("code delivery failed")
	ErrNotFound                = errors.New("not found")
)

// Consistency errors indicate terminal-state re-entry.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrAlreadyFinal      = errors.New("already in a final state")
)

// ErrLedgerCorrupted is an integrity failure: the cached wallet balance
// diverged from the recomputed ledger sum. It aborts the operation and
// must page an operator, never be fixed forward.
var ErrLedgerCorrupted = errors.New("wallet balance diverged from ledger")
