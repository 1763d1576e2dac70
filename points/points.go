/*
Package points holds the shared primitives of the points economy.

PURPOSE:
  Type-safe identifiers and the optimistic-concurrency contract shared by
  every component that mutates contended state (accounts, reward stock,
  redemption requests).

CONCURRENCY MODEL:
  Contended entities carry a Version. Writers read the entity, compute the
  new state, bump the version, and hand it back to the store, which applies
  it only if the persisted version is unchanged since the read. On conflict
  the store returns ErrConcurrentModification and the caller retries from
  the read. Retries are bounded: an operation never spins forever, it
  surfaces the conflict instead.

  Accounts and rewards are independent resources. No store or service may
  hold a lock spanning both; the redemption workflow composes them with a
  compensating sequence instead (see the redemption package).

SEE ALSO:
  - ledger: account balances built on this contract
  - catalog: reward stock built on this contract
*/
package points

import (
	"context"
	"errors"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type RewardID string
type RequestID string

// =============================================================================
// OPTIMISTIC CONCURRENCY
// =============================================================================

// ErrConcurrentModification is returned when a compare-and-swap write loses
// the race and the bounded retries are exhausted.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// MaxCASAttempts bounds the read-modify-write retry loop.
const MaxCASAttempts = 5

// RetryCAS runs fn up to MaxCASAttempts times while it keeps failing with
// ErrConcurrentModification. Any other result, success or failure, is
// returned immediately. The final conflict is returned as-is so callers can
// detect exhaustion with errors.Is.
func RetryCAS(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for i := 0; i < MaxCASAttempts; i++ {
		err = fn(ctx)
		if !errors.Is(err, ErrConcurrentModification) {
			return err
		}
	}
	return err
}
