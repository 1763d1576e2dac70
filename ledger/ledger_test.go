package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveypoints/points-engine/ledger"
	"github.com/surveypoints/points-engine/points"
	"github.com/surveypoints/points-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l := ledger.New(memory.NewAccountStore())
	l.Entries = memory.NewEntryStore()
	return l
}

// assertInvariants checks the balance identities that must hold after every
// operation.
func assertInvariants(t *testing.T, acct ledger.Account) {
	t.Helper()
	assert.GreaterOrEqual(t, acct.PointsAvailable, int64(0), "available must never be negative")
	assert.Equal(t, acct.PointsAvailable, acct.PointsTotal-acct.PointsRedeemed,
		"total - redeemed must equal available")
}

// =============================================================================
// ACCOUNT LIFECYCLE
// =============================================================================

func TestLedger_CreateAccount_StartsAtZero(t *testing.T) {
	// GIVEN: A fresh ledger
	// WHEN: Creating an account
	// THEN: All three balances are zero and the invariants hold

	l := newTestLedger(t)
	ctx := context.Background()

	acct, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, int64(0), acct.PointsTotal)
	assert.Equal(t, int64(0), acct.PointsAvailable)
	assert.Equal(t, int64(0), acct.PointsRedeemed)
	assertInvariants(t, acct)
}

func TestLedger_CreateAccount_Duplicate_Rejected(t *testing.T) {
	// GIVEN: An existing account
	// WHEN: Creating the same account again
	// THEN: ErrAccountExists

	l := newTestLedger(t)
	ctx := context.Background()

	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	_, err = l.CreateAccount(ctx, "user-1")
	assert.ErrorIs(t, err, ledger.ErrAccountExists)
}

func TestLedger_Balance_UnknownUser(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.Balance(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

// =============================================================================
// CREDIT / DEBIT / REFUND
// =============================================================================

func TestLedger_Credit_IncreasesTotalAndAvailable(t *testing.T) {
	// GIVEN: An account with zero balance
	// WHEN: Crediting 50 points
	// THEN: Total and available both rise by 50, redeemed stays zero

	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	acct, err := l.Credit(ctx, "user-1", 50, "survey completed")
	require.NoError(t, err)

	assert.Equal(t, int64(50), acct.PointsTotal)
	assert.Equal(t, int64(50), acct.PointsAvailable)
	assert.Equal(t, int64(0), acct.PointsRedeemed)
	assertInvariants(t, acct)
}

func TestLedger_Debit_MovesAvailableToRedeemed(t *testing.T) {
	// GIVEN: An account with 100 available points
	// WHEN: Debiting 30
	// THEN: Available drops to 70, redeemed rises to 30, total unchanged

	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)
	_, err = l.Credit(ctx, "user-1", 100, "seed")
	require.NoError(t, err)

	acct, err := l.Debit(ctx, "user-1", 30)
	require.NoError(t, err)

	assert.Equal(t, int64(100), acct.PointsTotal)
	assert.Equal(t, int64(70), acct.PointsAvailable)
	assert.Equal(t, int64(30), acct.PointsRedeemed)
	assertInvariants(t, acct)
}

func TestLedger_Debit_InsufficientPoints_Rejected(t *testing.T) {
	// GIVEN: An account with 10 available points
	// WHEN: Debiting 11
	// THEN: InsufficientPointsError carrying both amounts, balance untouched

	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)
	_, err = l.Credit(ctx, "user-1", 10, "seed")
	require.NoError(t, err)

	_, err = l.Debit(ctx, "user-1", 11)
	require.ErrorIs(t, err, ledger.ErrInsufficientPoints)

	var ipe *ledger.InsufficientPointsError
	require.ErrorAs(t, err, &ipe)
	assert.Equal(t, int64(10), ipe.Available)
	assert.Equal(t, int64(11), ipe.Requested)

	acct, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), acct.PointsAvailable)
	assertInvariants(t, acct)
}

func TestLedger_DebitRefund_RoundTrip(t *testing.T) {
	// GIVEN: An account with a known balance
	// WHEN: Debiting n then refunding n, for a range of n
	// THEN: The balance triple is exactly its pre-debit state

	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)
	_, err = l.Credit(ctx, "user-1", 1000, "seed")
	require.NoError(t, err)

	before, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)

	for _, n := range []int64{1, 7, 100, 999} {
		_, err = l.Debit(ctx, "user-1", n)
		require.NoError(t, err)

		acct, err := l.Refund(ctx, "user-1", n, "rejected")
		require.NoError(t, err)

		assert.Equal(t, before.PointsTotal, acct.PointsTotal)
		assert.Equal(t, before.PointsAvailable, acct.PointsAvailable)
		assert.Equal(t, before.PointsRedeemed, acct.PointsRedeemed)
		assertInvariants(t, acct)
	}
}

func TestLedger_InvalidAmounts_Rejected(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	_, err = l.Credit(ctx, "user-1", 0, "zero")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = l.Credit(ctx, "user-1", -5, "negative")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = l.Debit(ctx, "user-1", 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = l.Refund(ctx, "user-1", -1, "negative refund")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func TestLedger_History_RecordsEveryMutation(t *testing.T) {
	// GIVEN: A credit, a debit, and a refund
	// WHEN: Reading the history
	// THEN: Three entries in order with correct kinds and deltas

	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	_, err = l.Credit(ctx, "user-1", 100, "survey completed")
	require.NoError(t, err)
	_, err = l.Debit(ctx, "user-1", 40)
	require.NoError(t, err)
	_, err = l.Refund(ctx, "user-1", 40, "request cancelled")
	require.NoError(t, err)

	entries, err := l.History(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, ledger.EntryCredit, entries[0].Kind)
	assert.Equal(t, int64(100), entries[0].Delta)
	assert.Equal(t, ledger.EntryDebit, entries[1].Kind)
	assert.Equal(t, int64(-40), entries[1].Delta)
	assert.Equal(t, ledger.EntryRefund, entries[2].Kind)
	assert.Equal(t, int64(40), entries[2].Delta)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestLedger_ConcurrentCredits_AllApply(t *testing.T) {
	// GIVEN: 50 goroutines each crediting 10 points to the same account
	// WHEN: All complete
	// THEN: The balance reflects every credit and the invariants hold

	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	const workers = 50
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				_, err := l.Credit(ctx, "user-1", 10, "concurrent credit")
				if errors.Is(err, points.ErrConcurrentModification) {
					continue
				}
				errs <- err
				return
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	acct, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*10), acct.PointsTotal)
	assertInvariants(t, acct)
}

func TestLedger_ConcurrentDebits_NeverOverspend(t *testing.T) {
	// GIVEN: 100 available points and 20 goroutines each debiting 10
	// WHEN: All complete
	// THEN: Exactly 10 debits succeed and available ends at zero

	l := newTestLedger(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)
	_, err = l.Credit(ctx, "user-1", 100, "seed")
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	results := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Retry exhausted-conflict outcomes so every worker resolves to
			// a definite success or insufficient-points refusal.
			for {
				_, err := l.Debit(ctx, "user-1", 10)
				if errors.Is(err, points.ErrConcurrentModification) {
					continue
				}
				results <- err
				return
			}
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ledger.ErrInsufficientPoints)
		}
	}
	assert.Equal(t, 10, succeeded)

	acct, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.PointsAvailable)
	assert.Equal(t, int64(100), acct.PointsRedeemed)
	assertInvariants(t, acct)
}

// =============================================================================
// RETRY EXHAUSTION
// =============================================================================

// contestedStore loses every CAS attempt, simulating a permanently hot row.
type contestedStore struct {
	ledger.AccountStore
}

func (s contestedStore) CompareAndSwap(ctx context.Context, acct ledger.Account) error {
	return points.ErrConcurrentModification
}

func TestLedger_RetriesExhausted_SurfacesConflict(t *testing.T) {
	// GIVEN: A store that always reports a lost race
	// WHEN: Crediting
	// THEN: ErrConcurrentModification after the bounded retries

	inner := memory.NewAccountStore()
	l := ledger.New(contestedStore{inner})
	ctx := context.Background()

	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	_, err = l.Credit(ctx, "user-1", 10, "hot row")
	assert.ErrorIs(t, err, points.ErrConcurrentModification)
}
