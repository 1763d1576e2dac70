/*
errors.go - Error types for the account ledger

ERROR CATEGORIES:
  1. Lookup errors    - missing or duplicate accounts
  2. Balance errors   - debit exceeding available points
  3. Input errors     - non-positive amounts

Business-rule failures are sentinels usable with errors.Is; the balance
shortage additionally carries a structured error so callers can report the
exact shortfall.
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/surveypoints/points-engine/points"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrAccountNotFound is returned when the referenced account doesn't exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountExists is returned when creating an account that already exists.
	ErrAccountExists = errors.New("account already exists")

	// ErrInsufficientPoints is returned when a debit exceeds the available balance.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrInvalidAmount is returned when a credit/debit amount is not positive.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InsufficientPointsError reports the exact shortage of a rejected debit.
type InsufficientPointsError struct {
	UserID    points.UserID
	Available int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}
