package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveypoints/points-engine/catalog"
	"github.com/surveypoints/points-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return catalog.New(memory.NewRewardStore())
}

func stockOf(n int64) *int64 {
	return &n
}

func createReward(t *testing.T, c *catalog.Catalog, name string, cost int64, stock *int64) catalog.Reward {
	t.Helper()
	r, err := c.CreateReward(context.Background(), catalog.Reward{
		Name:       name,
		Kind:       catalog.KindDigital,
		CostPoints: cost,
		Stock:      stock,
	})
	require.NoError(t, err)
	return r
}

// =============================================================================
// CREATION
// =============================================================================

func TestCatalog_CreateReward_DerivesStatusFromStock(t *testing.T) {
	c := newTestCatalog(t)

	inStock := createReward(t, c, "Gift card", 100, stockOf(5))
	assert.Equal(t, catalog.StatusAvailable, inStock.Status)
	assert.True(t, inStock.Active)

	empty := createReward(t, c, "Sold out", 100, stockOf(0))
	assert.Equal(t, catalog.StatusOutOfStock, empty.Status)

	unlimited := createReward(t, c, "Discount code", 50, nil)
	assert.Equal(t, catalog.StatusAvailable, unlimited.Status)
	assert.Nil(t, unlimited.Stock)
}

func TestCatalog_CreateReward_InvalidCost_Rejected(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.CreateReward(context.Background(), catalog.Reward{
		Name: "Free", Kind: catalog.KindDigital, CostPoints: 0,
	})
	assert.ErrorIs(t, err, catalog.ErrInvalidCost)
}

// =============================================================================
// LISTING
// =============================================================================

func TestCatalog_ListAvailable_HidesUnredeemable(t *testing.T) {
	// GIVEN: An available reward, an out-of-stock one, and a suspended one
	// WHEN: Listing the redeemable catalog
	// THEN: Only the available reward appears; the admin view shows all

	c := newTestCatalog(t)
	ctx := context.Background()

	visible := createReward(t, c, "Visible", 100, stockOf(3))
	createReward(t, c, "Empty", 100, stockOf(0))
	suspended := createReward(t, c, "Paused", 100, stockOf(3))
	_, err := c.UpdateReward(ctx, suspended.ID, func(r *catalog.Reward) error {
		r.Status = catalog.StatusSuspended
		return nil
	})
	require.NoError(t, err)

	available, err := c.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, visible.ID, available[0].ID)

	all, err := c.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// STOCK DISCIPLINE
// =============================================================================

func TestCatalog_DecrementStock_LastUnitFlipsStatus(t *testing.T) {
	// GIVEN: A reward with stock 1
	// WHEN: Reserving the last unit
	// THEN: Stock is 0 and status flips to out_of_stock atomically

	c := newTestCatalog(t)
	ctx := context.Background()
	r := createReward(t, c, "Last one", 100, stockOf(1))

	after, err := c.DecrementStock(ctx, r.ID)
	require.NoError(t, err)

	require.NotNil(t, after.Stock)
	assert.Equal(t, int64(0), *after.Stock)
	assert.Equal(t, catalog.StatusOutOfStock, after.Status)

	// The next reservation must be refused.
	_, err = c.DecrementStock(ctx, r.ID)
	assert.ErrorIs(t, err, catalog.ErrRewardUnavailable)
}

func TestCatalog_DecrementStock_Unlimited_NoOp(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	r := createReward(t, c, "Unlimited", 50, nil)

	after, err := c.DecrementStock(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, after.Stock)
	assert.Equal(t, catalog.StatusAvailable, after.Status)
}

func TestCatalog_DecrementStock_SuspendedReward_Refused(t *testing.T) {
	// GIVEN: An admin suspended the reward after the user's pre-check
	// WHEN: Reserving a unit
	// THEN: RewardUnavailableError carrying the status

	c := newTestCatalog(t)
	ctx := context.Background()
	r := createReward(t, c, "Paused", 100, stockOf(5))
	_, err := c.UpdateReward(ctx, r.ID, func(rw *catalog.Reward) error {
		rw.Status = catalog.StatusSuspended
		return nil
	})
	require.NoError(t, err)

	_, err = c.DecrementStock(ctx, r.ID)
	require.ErrorIs(t, err, catalog.ErrRewardUnavailable)

	var rue *catalog.RewardUnavailableError
	require.ErrorAs(t, err, &rue)
	assert.Equal(t, catalog.StatusSuspended, rue.Status)
}

func TestCatalog_IncrementStock_RestoresAvailability(t *testing.T) {
	// GIVEN: A reward that ran out of stock
	// WHEN: A rejection returns the reserved unit
	// THEN: Stock is back to 1 and the reward is redeemable again

	c := newTestCatalog(t)
	ctx := context.Background()
	r := createReward(t, c, "Restockable", 100, stockOf(1))

	_, err := c.DecrementStock(ctx, r.ID)
	require.NoError(t, err)

	after, err := c.IncrementStock(ctx, r.ID)
	require.NoError(t, err)

	require.NotNil(t, after.Stock)
	assert.Equal(t, int64(1), *after.Stock)
	assert.Equal(t, catalog.StatusAvailable, after.Status)
}

func TestCatalog_IncrementStock_PreservesAdminSuspension(t *testing.T) {
	// GIVEN: A reward suspended by an admin while out of stock
	// WHEN: A refund returns a unit
	// THEN: The suspension stands; stock comes back but status does not

	c := newTestCatalog(t)
	ctx := context.Background()
	r := createReward(t, c, "Suspended", 100, stockOf(1))

	_, err := c.DecrementStock(ctx, r.ID)
	require.NoError(t, err)
	_, err = c.UpdateReward(ctx, r.ID, func(rw *catalog.Reward) error {
		rw.Status = catalog.StatusSuspended
		return nil
	})
	require.NoError(t, err)

	after, err := c.IncrementStock(ctx, r.ID)
	require.NoError(t, err)

	require.NotNil(t, after.Stock)
	assert.Equal(t, int64(1), *after.Stock)
	assert.Equal(t, catalog.StatusSuspended, after.Status)
}

// =============================================================================
// ADMIN UPDATES
// =============================================================================

func TestCatalog_UpdateReward_ReassertsStockStatusCoupling(t *testing.T) {
	// GIVEN: An available reward
	// WHEN: An admin sets stock to 0 without touching status
	// THEN: Status is corrected to out_of_stock

	c := newTestCatalog(t)
	ctx := context.Background()
	r := createReward(t, c, "Editable", 100, stockOf(5))

	after, err := c.UpdateReward(ctx, r.ID, func(rw *catalog.Reward) error {
		rw.Stock = stockOf(0)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusOutOfStock, after.Status)

	// And restocking through an edit restores availability.
	after, err = c.UpdateReward(ctx, r.ID, func(rw *catalog.Reward) error {
		rw.Stock = stockOf(3)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusAvailable, after.Status)
}

func TestCatalog_UpdateReward_DiscontinuedOutlivesRestock(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	r := createReward(t, c, "Retired", 100, stockOf(0))

	after, err := c.UpdateReward(ctx, r.ID, func(rw *catalog.Reward) error {
		rw.Status = catalog.StatusDiscontinued
		rw.Stock = stockOf(10)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusDiscontinued, after.Status)
	assert.False(t, after.Available())
}

func TestCatalog_UpdateReward_UnknownReward(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.UpdateReward(context.Background(), "ghost", func(rw *catalog.Reward) error {
		return nil
	})
	assert.ErrorIs(t, err, catalog.ErrRewardNotFound)
}
