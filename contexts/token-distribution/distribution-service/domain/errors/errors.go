package errors

import "errors"

var (
	ErrDistributionNotFound     = errors.New("distribution not found")
	ErrDistributionExists       = errors.New("distribution already exists")
	ErrLeafNotFound             = errors.New("leaf not found")
	ErrAttemptNotFound          = errors.New("finalization attempt not found")
	ErrNotExpired               = errors.New("distribution is not expired")
	ErrAlreadyFinalized         = errors.New("distribution is already finalized")
	ErrInsufficientVaultBalance = errors.New("vault balance is insufficient for total allocation")
	ErrLedgerSubmission         = errors.New("ledger submission failed")
	ErrInvalidVaultType         = errors.New("unsupported vault type")
	ErrInvalidDuration          = errors.New("duration must be a positive number of days")
	ErrInvalidAddress           = errors.New("invalid recipient address")
	ErrInvalidAmount            = errors.New("invalid claim amount")
	ErrClaimExceedsAllocation   = errors.New("claimed amount exceeds allocation")
	ErrClaimRegression          = errors.New("claimed amount is lower than previously recorded")
	ErrRootMismatch             = errors.New("rebuilt merkle root does not match the recorded root")
)
