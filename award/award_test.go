package award_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveypoints/points-engine/award"
	"github.com/surveypoints/points-engine/ledger"
	"github.com/surveypoints/points-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestPolicy(t *testing.T) (*award.Policy, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(memory.NewAccountStore())
	l.Entries = memory.NewEntryStore()

	p := &award.Policy{
		Events:             memory.NewEventStore(),
		Ledger:             l,
		ProfilePoints:      5,
		RegistrationPoints: 0,
	}
	return p, l
}

// =============================================================================
// SURVEY COMPLETION
// =============================================================================

func TestPolicy_SurveyCompletion_CreditsOnce(t *testing.T) {
	// GIVEN: A user with an account
	// WHEN: Awarding 25 points for survey s-1
	// THEN: The balance rises by 25 and the result reports the award

	p, l := newTestPolicy(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	result, err := p.ForSurveyCompletion(ctx, "user-1", "s-1", 25)
	require.NoError(t, err)

	assert.False(t, result.AlreadyAwarded)
	assert.Equal(t, int64(25), result.Points)
	assert.Equal(t, int64(25), result.Balance)
}

func TestPolicy_SurveyCompletion_ReplayIsNoOp(t *testing.T) {
	// GIVEN: Survey s-1 already awarded to the user
	// WHEN: Replaying the same event (transport retry)
	// THEN: No second credit; the result flags already_awarded

	p, l := newTestPolicy(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	_, err = p.ForSurveyCompletion(ctx, "user-1", "s-1", 25)
	require.NoError(t, err)

	result, err := p.ForSurveyCompletion(ctx, "user-1", "s-1", 25)
	require.NoError(t, err)

	assert.True(t, result.AlreadyAwarded)
	assert.Equal(t, int64(0), result.Points)
	assert.Equal(t, int64(25), result.Balance)

	acct, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), acct.PointsTotal)
}

func TestPolicy_SurveyCompletion_DistinctSurveysAccumulate(t *testing.T) {
	p, l := newTestPolicy(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	_, err = p.ForSurveyCompletion(ctx, "user-1", "s-1", 10)
	require.NoError(t, err)
	_, err = p.ForSurveyCompletion(ctx, "user-1", "s-2", 15)
	require.NoError(t, err)

	acct, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), acct.PointsAvailable)
}

func TestPolicy_SurveyCompletion_NonPositivePoints_Rejected(t *testing.T) {
	p, l := newTestPolicy(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	_, err = p.ForSurveyCompletion(ctx, "user-1", "s-1", 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = p.ForSurveyCompletion(ctx, "user-1", "s-1", -5)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestPolicy_SurveyCompletion_MissingAccount_GateRolledBack(t *testing.T) {
	// GIVEN: No account for the user
	// WHEN: Awarding fails on the credit step
	// THEN: The gate row is removed so a retry after account creation works

	p, l := newTestPolicy(t)
	ctx := context.Background()

	_, err := p.ForSurveyCompletion(ctx, "user-1", "s-1", 25)
	require.ErrorIs(t, err, ledger.ErrAccountNotFound)

	_, err = l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	result, err := p.ForSurveyCompletion(ctx, "user-1", "s-1", 25)
	require.NoError(t, err)
	assert.False(t, result.AlreadyAwarded)
	assert.Equal(t, int64(25), result.Balance)
}

func TestPolicy_SurveyCompletion_ConcurrentReplays_SingleCredit(t *testing.T) {
	// GIVEN: 10 goroutines delivering the same survey event
	// WHEN: All complete
	// THEN: Exactly one credit applied

	p, l := newTestPolicy(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.ForSurveyCompletion(ctx, "user-1", "s-1", 25)
		}()
	}
	wg.Wait()

	acct, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(25), acct.PointsTotal)
}

// =============================================================================
// PROMOTION MULTIPLIER
// =============================================================================

func TestPolicy_Multiplier_ScalesAndFloors(t *testing.T) {
	tests := []struct {
		name       string
		multiplier string
		pts        int64
		want       int64
	}{
		{"no promotion (zero value)", "0", 10, 10},
		{"double points", "2", 10, 20},
		{"fractional result floors", "1.5", 7, 10},
		{"sub-point result clamps to one", "0.05", 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, l := newTestPolicy(t)
			p.Multiplier = decimal.RequireFromString(tt.multiplier)
			ctx := context.Background()
			_, err := l.CreateAccount(ctx, "user-1")
			require.NoError(t, err)

			result, err := p.ForSurveyCompletion(ctx, "user-1", "s-1", tt.pts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Points)
		})
	}
}

// =============================================================================
// PROFILE COMPLETION
// =============================================================================

func TestPolicy_ProfileCompletion_OneTimeBonus(t *testing.T) {
	// GIVEN: The configured 5-point profile bonus
	// WHEN: Completing the profile, then editing it again
	// THEN: Exactly one 5-point credit

	p, l := newTestPolicy(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	first, err := p.ForProfileCompletion(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, first.AlreadyAwarded)
	assert.Equal(t, int64(5), first.Points)

	second, err := p.ForProfileCompletion(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyAwarded)
	assert.Equal(t, int64(5), second.Balance)
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestPolicy_Registration_ZeroConfigured_NoCredit(t *testing.T) {
	// GIVEN: Registration bonus configured to 0
	// WHEN: Awarding for registration
	// THEN: No credit, no gate row, balance unchanged

	p, l := newTestPolicy(t)
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	result, err := p.ForRegistration(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, result.AlreadyAwarded)
	assert.Equal(t, int64(0), result.Points)
	assert.Equal(t, int64(0), result.Balance)
}

func TestPolicy_Registration_ConfiguredBonus_AwardedOnce(t *testing.T) {
	p, l := newTestPolicy(t)
	p.RegistrationPoints = 10
	ctx := context.Background()
	_, err := l.CreateAccount(ctx, "user-1")
	require.NoError(t, err)

	first, err := p.ForRegistration(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.Points)

	second, err := p.ForRegistration(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, second.AlreadyAwarded)

	acct, err := l.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), acct.PointsTotal)
}
