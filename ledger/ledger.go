/*
Package ledger owns per-user point balances.

PURPOSE:
  The Ledger is the only component that mutates an account. Every balance
  change goes through credit, debit, or refund, so the two invariants can
  be enforced in exactly one place:

    points_available >= 0                                  (always)
    points_total - points_redeemed == points_available     (always)

FIELDS:
  PointsTotal     lifetime credited, monotonic non-decreasing
  PointsAvailable spendable now
  PointsRedeemed  lifetime debited

  A debit moves value from available to redeemed; a refund moves it back.
  Repeated debit/refund cycles are lossless because refund restores the
  pre-debit triple exactly.

CONCURRENCY:
  All mutations on one account are linearizable with respect to each other.
  The service runs a bounded read-modify-CAS loop against the AccountStore;
  conflicts surface as points.ErrConcurrentModification once retries are
  exhausted (see the points package).

AUDIT:
  When an EntryStore is configured, every mutation appends an immutable
  entry with its reason. Entries are a trail, not the source of truth: the
  balance lives on the account row.

SEE ALSO:
  - award: decides when and how much to credit
  - redemption: composes debit with stock reservation
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/surveypoints/points-engine/points"
)

// =============================================================================
// ACCOUNT - One per user, owned exclusively by this package
// =============================================================================

type Account struct {
	UserID          points.UserID
	PointsTotal     int64
	PointsAvailable int64
	PointsRedeemed  int64

	// Version is the optimistic-concurrency token. Bumped on every write.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountStore persists accounts with compare-and-swap semantics.
type AccountStore interface {
	// Get returns the account or ErrAccountNotFound.
	Get(ctx context.Context, userID points.UserID) (Account, error)

	// Create inserts a new account. Fails with ErrAccountExists.
	Create(ctx context.Context, acct Account) error

	// CompareAndSwap persists acct only if the stored version equals
	// acct.Version-1 (the version the caller read before mutating).
	// Returns points.ErrConcurrentModification otherwise.
	CompareAndSwap(ctx context.Context, acct Account) error
}

// =============================================================================
// ENTRY - Append-only audit trail of balance changes
// =============================================================================

type EntryKind string

const (
	EntryCredit EntryKind = "credit"
	EntryDebit  EntryKind = "debit"
	EntryRefund EntryKind = "refund"
)

// Entry records a single balance change. Entries are never updated or
// deleted; corrections happen through further credits/refunds.
type Entry struct {
	ID        string
	UserID    points.UserID
	Kind      EntryKind
	Delta     int64 // positive for credit/refund, negative for debit
	Reason    string
	Balance   int64 // points_available after the change
	CreatedAt time.Time
}

// EntryStore is the append-only persistence for audit entries.
type EntryStore interface {
	Append(ctx context.Context, e Entry) error
	ListByUser(ctx context.Context, userID points.UserID) ([]Entry, error)
}

// =============================================================================
// LEDGER SERVICE
// =============================================================================

type Ledger struct {
	Accounts AccountStore

	// Entries is optional; nil disables the audit trail.
	Entries EntryStore
}

func New(accounts AccountStore) *Ledger {
	return &Ledger{Accounts: accounts}
}

// CreateAccount provisions a zeroed account for a new user.
func (l *Ledger) CreateAccount(ctx context.Context, userID points.UserID) (Account, error) {
	now := time.Now().UTC()
	acct := Account{
		UserID:    userID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.Accounts.Create(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Balance returns the current account state.
func (l *Ledger) Balance(ctx context.Context, userID points.UserID) (Account, error) {
	return l.Accounts.Get(ctx, userID)
}

// History returns the audit trail for a user, oldest first. Empty when no
// EntryStore is configured.
func (l *Ledger) History(ctx context.Context, userID points.UserID) ([]Entry, error) {
	if l.Entries == nil {
		return nil, nil
	}
	return l.Entries.ListByUser(ctx, userID)
}

// Credit adds amount to the account. Always succeeds for an existing
// account; there is no upper bound.
func (l *Ledger) Credit(ctx context.Context, userID points.UserID, amount int64, reason string) (Account, error) {
	return l.mutate(ctx, userID, EntryCredit, amount, reason, func(a *Account) error {
		a.PointsTotal += amount
		a.PointsAvailable += amount
		return nil
	})
}

// Debit removes amount from the available balance, moving it to redeemed.
// The availability check and the mutation are a single atomic unit: either
// the whole debit applies or nothing does.
func (l *Ledger) Debit(ctx context.Context, userID points.UserID, amount int64) (Account, error) {
	return l.mutate(ctx, userID, EntryDebit, -amount, "redemption debit", func(a *Account) error {
		if amount > a.PointsAvailable {
			return &InsufficientPointsError{
				UserID:    userID,
				Available: a.PointsAvailable,
				Requested: amount,
			}
		}
		a.PointsAvailable -= amount
		a.PointsRedeemed += amount
		return nil
	})
}

// Refund is a credit that also decrements redeemed, restoring the exact
// pre-debit state of the triple.
func (l *Ledger) Refund(ctx context.Context, userID points.UserID, amount int64, reason string) (Account, error) {
	return l.mutate(ctx, userID, EntryRefund, amount, reason, func(a *Account) error {
		a.PointsAvailable += amount
		a.PointsRedeemed -= amount
		return nil
	})
}

// mutate runs the bounded read-modify-CAS loop shared by all mutations.
// delta is only used for the audit entry.
func (l *Ledger) mutate(ctx context.Context, userID points.UserID, kind EntryKind, delta int64, reason string, apply func(*Account) error) (Account, error) {
	if delta == 0 || (kind == EntryDebit && delta >= 0) || (kind != EntryDebit && delta <= 0) {
		return Account{}, ErrInvalidAmount
	}

	var result Account
	err := points.RetryCAS(ctx, func(ctx context.Context) error {
		acct, err := l.Accounts.Get(ctx, userID)
		if err != nil {
			return err
		}
		if err := apply(&acct); err != nil {
			return err
		}
		acct.Version++
		acct.UpdatedAt = time.Now().UTC()
		if err := l.Accounts.CompareAndSwap(ctx, acct); err != nil {
			return err
		}
		result = acct
		return nil
	})
	if err != nil {
		return Account{}, err
	}

	if l.Entries != nil {
		entry := Entry{
			ID:        uuid.NewString(),
			UserID:    userID,
			Kind:      kind,
			Delta:     delta,
			Reason:    reason,
			Balance:   result.PointsAvailable,
			CreatedAt: time.Now().UTC(),
		}
		if err := l.Entries.Append(ctx, entry); err != nil {
			// The balance change is already committed; a failed audit write
			// must not be reported as a failed mutation.
			return result, nil
		}
	}
	return result, nil
}
