/*
Package catalog holds reward definitions, stock, and availability rules.

PURPOSE:
  Rewards are created and edited by admins; their stock is mutated only by
  the redemption workflow (decrement on a successful request, increment on
  refund). The catalog keeps the stock/status coupling consistent:

    stock reaches 0   -> status becomes OUT_OF_STOCK (system-maintained)
    stock leaves 0    -> status returns to AVAILABLE, unless an admin set
                         SUSPENDED or DISCONTINUED, which always wins

STOCK DISCIPLINE:
  Stock is a contended resource shared by every user redeeming the same
  reward. Decrement/increment run the same bounded read-modify-CAS loop as
  account balances, but against the reward's own version - accounts and
  rewards are never locked together.

  A nil Stock means unlimited: decrement and increment become availability
  re-checks with no mutation.

SEE ALSO:
  - redemption: the only caller of DecrementStock/IncrementStock
*/
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/surveypoints/points-engine/points"
)

// =============================================================================
// REWARD
// =============================================================================

type Status string

const (
	StatusAvailable    Status = "available"
	StatusOutOfStock   Status = "out_of_stock"
	StatusSuspended    Status = "suspended"
	StatusDiscontinued Status = "discontinued"
)

// adminSet reports whether the status was set by an admin and must never be
// silently overridden by stock movements.
func (s Status) adminSet() bool {
	return s == StatusSuspended || s == StatusDiscontinued
}

// Kind classifies how a reward is fulfilled. Physical rewards require
// pickup or delivery.
type Kind string

const (
	KindPhysical Kind = "physical"
	KindDigital  Kind = "digital"
	KindDiscount Kind = "discount"
	KindService  Kind = "service"
)

type Reward struct {
	ID          points.RewardID
	Name        string
	Description string
	ImageURL    string
	Category    string
	Kind        Kind

	CostPoints int64

	// Stock is nil for unlimited rewards; otherwise >= 0.
	Stock *int64

	Status Status
	Active bool // soft-delete flag

	Instructions string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available reports whether the reward can be redeemed right now.
func (r Reward) Available() bool {
	if !r.Active || r.Status != StatusAvailable {
		return false
	}
	if r.Stock != nil && *r.Stock <= 0 {
		return false
	}
	return true
}

// StockTracked reports whether the reward has finite stock.
func (r Reward) StockTracked() bool { return r.Stock != nil }

// RewardStore persists rewards with compare-and-swap semantics.
type RewardStore interface {
	// Get returns the reward or ErrRewardNotFound.
	Get(ctx context.Context, id points.RewardID) (Reward, error)

	// List returns all rewards, active or not. Order is not meaningful.
	List(ctx context.Context) ([]Reward, error)

	// Create inserts a new reward. Fails with ErrRewardExists.
	Create(ctx context.Context, r Reward) error

	// CompareAndSwap persists r only if the stored version equals
	// r.Version-1; otherwise points.ErrConcurrentModification.
	CompareAndSwap(ctx context.Context, r Reward) error
}

// =============================================================================
// CATALOG SERVICE
// =============================================================================

type Catalog struct {
	Rewards RewardStore
}

func New(rewards RewardStore) *Catalog {
	return &Catalog{Rewards: rewards}
}

// Get returns a reward by id.
func (c *Catalog) Get(ctx context.Context, id points.RewardID) (Reward, error) {
	return c.Rewards.Get(ctx, id)
}

// ListAvailable returns the rewards a user can redeem: active, AVAILABLE,
// and in stock (or unlimited). Callers sort for display.
func (c *Catalog) ListAvailable(ctx context.Context) ([]Reward, error) {
	all, err := c.Rewards.List(ctx)
	if err != nil {
		return nil, err
	}
	available := make([]Reward, 0, len(all))
	for _, r := range all {
		if r.Available() {
			available = append(available, r)
		}
	}
	return available, nil
}

// ListAll returns every reward, including suspended and soft-deleted ones.
// Admin view only.
func (c *Catalog) ListAll(ctx context.Context) ([]Reward, error) {
	return c.Rewards.List(ctx)
}

// DecrementStock reserves one unit for a redemption. It re-validates
// availability under the CAS loop because a concurrent request may have
// taken the last unit (or an admin may have suspended the reward) since
// the caller's pre-check. Reaching zero flips the status to OUT_OF_STOCK
// in the same atomic step.
func (c *Catalog) DecrementStock(ctx context.Context, id points.RewardID) (Reward, error) {
	var result Reward
	err := points.RetryCAS(ctx, func(ctx context.Context) error {
		r, err := c.Rewards.Get(ctx, id)
		if err != nil {
			return err
		}
		if !r.Available() {
			return &RewardUnavailableError{RewardID: id, Status: r.Status, Active: r.Active}
		}
		if r.Stock == nil {
			// Unlimited: availability re-checked, nothing to mutate.
			result = r
			return nil
		}
		stock := *r.Stock - 1
		r.Stock = &stock
		if stock <= 0 && !r.Status.adminSet() {
			r.Status = StatusOutOfStock
		}
		r.Version++
		r.UpdatedAt = time.Now().UTC()
		if err := c.Rewards.CompareAndSwap(ctx, r); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return Reward{}, err
	}
	return result, nil
}

// IncrementStock returns one unit after a refund (or rolls back a failed
// reservation). Going from 0 back above 0 restores AVAILABLE unless an
// admin set SUSPENDED/DISCONTINUED in the meantime.
func (c *Catalog) IncrementStock(ctx context.Context, id points.RewardID) (Reward, error) {
	var result Reward
	err := points.RetryCAS(ctx, func(ctx context.Context) error {
		r, err := c.Rewards.Get(ctx, id)
		if err != nil {
			return err
		}
		if r.Stock == nil {
			result = r
			return nil
		}
		stock := *r.Stock + 1
		r.Stock = &stock
		if r.Status == StatusOutOfStock && stock > 0 {
			r.Status = StatusAvailable
		}
		r.Version++
		r.UpdatedAt = time.Now().UTC()
		if err := c.Rewards.CompareAndSwap(ctx, r); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return Reward{}, err
	}
	return result, nil
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

// CreateReward inserts a new admin-defined reward. Status is derived from
// the initial stock.
func (c *Catalog) CreateReward(ctx context.Context, r Reward) (Reward, error) {
	if r.CostPoints <= 0 {
		return Reward{}, ErrInvalidCost
	}
	if r.ID == "" {
		r.ID = points.RewardID(uuid.NewString())
	}
	now := time.Now().UTC()
	r.Active = true
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Stock != nil && *r.Stock <= 0 {
		r.Status = StatusOutOfStock
	} else if r.Status == "" {
		r.Status = StatusAvailable
	}
	if err := c.Rewards.Create(ctx, r); err != nil {
		return Reward{}, err
	}
	return r, nil
}

// UpdateReward applies an admin edit. mutate receives the current reward
// and returns the desired state; the stock/status coupling is re-asserted
// before the write so an admin cannot leave stock 0 marked AVAILABLE.
func (c *Catalog) UpdateReward(ctx context.Context, id points.RewardID, mutate func(*Reward) error) (Reward, error) {
	var result Reward
	err := points.RetryCAS(ctx, func(ctx context.Context) error {
		r, err := c.Rewards.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := mutate(&r); err != nil {
			return err
		}
		if r.CostPoints <= 0 {
			return ErrInvalidCost
		}
		if r.Stock != nil && *r.Stock <= 0 && !r.Status.adminSet() {
			r.Status = StatusOutOfStock
		}
		if r.Stock != nil && *r.Stock > 0 && r.Status == StatusOutOfStock {
			r.Status = StatusAvailable
		}
		r.Version++
		r.UpdatedAt = time.Now().UTC()
		if err := c.Rewards.CompareAndSwap(ctx, r); err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return Reward{}, err
	}
	return result, nil
}
