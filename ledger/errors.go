/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All engine errors in one place. Callers branch on error category, not on
  message text:

    1. Validation errors  - bad input, rejected before any store access
    2. Not-found errors   - referenced item/issuance/batch/sale missing
    3. Insufficient stock - business-rule rejection from a single fresh read
    4. Conflict           - the pre-commit re-check found the margin gone,
                            or the store reported a uniqueness violation
    5. Retry exhaustion   - the commit loop gave up; distinct from 3

USAGE:
  if errors.Is(err, ledger.ErrInsufficientStock) { ... }

  var conflict *ledger.ConflictError
  if errors.As(err, &conflict) {
      // conflict.Available is the freshly computed figure; callers should
      // refresh and retry with a smaller quantity.
  }
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientStock is returned when a stock-consuming write asks for
	// more than is available, based on a single fresh read.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStockConflict is returned when the pre-commit re-check found the
	// margin gone: state changed between check and write. Callers should
	// refresh and retry, possibly with a smaller quantity.
	ErrStockConflict = errors.New("stock changed, please retry")

	// ErrRetryExhausted is returned when the commit loop used up its retry
	// budget on uniqueness conflicts. Deliberately distinct from
	// ErrInsufficientStock: stock may well exist, the write just kept losing.
	ErrRetryExhausted = errors.New("write retries exhausted, try again")

	// ErrUniquenessViolation is how stores report a duplicate-key insert.
	// It is the engine's only fencing signal; the retry loop keys off it.
	ErrUniquenessViolation = errors.New("uniqueness violation")

	// ErrFutureDate is returned for any movement dated after today.
	ErrFutureDate = errors.New("date is in the future")

	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrScopeMismatch is returned when a referenced record belongs to a
	// different organization or branch than the caller's scope.
	ErrScopeMismatch = errors.New("record does not belong to caller scope")

	// ErrSameBranch is returned for transfers whose source and destination
	// branches are identical.
	ErrSameBranch = errors.New("source and destination branches are the same")

	// ErrReturnExceedsIssued is returned when a return would push the total
	// returned quantity past the issued quantity.
	ErrReturnExceedsIssued = errors.New("cannot return more than issued")

	// ErrConflictingBatchRefs is returned when a sale names both a
	// restocking batch and an opening-stock batch.
	ErrConflictingBatchRefs = errors.New("cannot specify both restocking and opening stock batch")

	ErrItemNotFound     = errors.New("item not found")
	ErrIssuanceNotFound = errors.New("issuance not found")
	ErrBatchNotFound    = errors.New("batch not found")
	ErrMovementNotFound = errors.New("movement not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the computed availability
// =============================================================================

// InsufficientStockError reports a shortage found on the first availability
// check. Detail is the human-readable derivation of the available figure.
type InsufficientStockError struct {
	ItemID    ItemID
	Requested decimal.Decimal
	Available decimal.Decimal
	Detail    string
}

func (e *InsufficientStockError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("cannot record %s: available stock %s (%s)",
			e.Requested, e.Available, e.Detail)
	}
	return fmt.Sprintf("cannot record %s: available stock %s", e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ConflictError reports that the fresh re-check before commit found the
// margin gone. Available is up to date as of that re-check.
type ConflictError struct {
	ItemID    ItemID
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stock changed: available is now %s, requested %s", e.Available, e.Requested)
}

func (e *ConflictError) Unwrap() error { return ErrStockConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is the caller's fault and should
// map to a 4xx response rather than a retry.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrFutureDate) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrScopeMismatch) ||
		errors.Is(err, ErrSameBranch) ||
		errors.Is(err, ErrReturnExceedsIssued) ||
		errors.Is(err, ErrConflictingBatchRefs)
}

// IsConflict reports whether the caller should refresh state and retry.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStockConflict)
}

// IsNotFound reports whether a referenced record is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrIssuanceNotFound) ||
		errors.Is(err, ErrBatchNotFound) ||
		errors.Is(err, ErrMovementNotFound)
}
