package services

import (
	"errors"

	"drops/internal/vault"
)

// Sentinel errors for every rejection the engine can produce. Callers
// distinguish categories with Categorize; tests assert with errors.Is.
var (
	// Validation, rejected before any state mutation.
	ErrInvalidTerms      = errors.New("invalid drop terms")
	ErrFundingMismatch   = errors.New("supplied value does not match expected funding")
	ErrInvalidName       = errors.New("participant name must not be empty")
	ErrIncorrectPayment  = errors.New("supplied value does not equal the entry fee")
	ErrUnexpectedPayment = errors.New("drop does not take an entry payment")
	ErrFeeTooHigh        = errors.New("platform fee exceeds the allowed maximum")
	ErrBadRandomWords    = errors.New("fulfillment carries the wrong number of random words")

	// Authorization.
	ErrUnauthorized = errors.New("caller is not allowed to perform this operation")

	// State conflicts that enforce the single-transition invariants.
	ErrNotFound             = errors.New("drop not found")
	ErrDropNotActive        = errors.New("drop is not active")
	ErrDropCompleted        = errors.New("drop is already completed")
	ErrAlreadyJoined        = errors.New("address already joined this drop")
	ErrDropFull             = errors.New("drop is at participant capacity")
	ErrNotManualSelection   = errors.New("drop uses automatic selection")
	ErrNotEnoughJoined      = errors.New("not enough participants to select winners")
	ErrUnknownRequest       = errors.New("unknown randomness request")
	ErrDuplicateFulfillment = errors.New("randomness request already fulfilled")
	ErrDropBusy             = errors.New("another operation on this drop is in flight")
)

// Category buckets an error for reporting; the HTTP layer maps each
// bucket to a status code.
type Category int

const (
	CategoryInternal Category = iota
	CategoryValidation
	CategoryUnauthorized
	CategoryNotFound
	CategoryConflict
	CategoryTransfer
)

// Categorize places an engine error into its taxonomy bucket.
func Categorize(err error) Category {
	switch {
	case errors.Is(err, ErrInvalidTerms),
		errors.Is(err, ErrFundingMismatch),
		errors.Is(err, ErrInvalidName),
		errors.Is(err, ErrIncorrectPayment),
		errors.Is(err, ErrUnexpectedPayment),
		errors.Is(err, ErrFeeTooHigh),
		errors.Is(err, ErrBadRandomWords):
		return CategoryValidation
	case errors.Is(err, ErrUnauthorized):
		return CategoryUnauthorized
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnknownRequest):
		return CategoryNotFound
	case errors.Is(err, ErrDropNotActive),
		errors.Is(err, ErrDropCompleted),
		errors.Is(err, ErrAlreadyJoined),
		errors.Is(err, ErrDropFull),
		errors.Is(err, ErrNotManualSelection),
		errors.Is(err, ErrNotEnoughJoined),
		errors.Is(err, ErrDuplicateFulfillment),
		errors.Is(err, ErrDropBusy):
		return CategoryConflict
	case errors.Is(err, vault.ErrInsufficientFunds),
		errors.Is(err, vault.ErrAccountFrozen):
		return CategoryTransfer
	default:
		return CategoryInternal
	}
}
