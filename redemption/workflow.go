/*
Package redemption orchestrates the exchange of points for rewards.

PURPOSE:
  A user-initiated redemption validates the reward and the balance, then
  performs the debit, the stock decrement, and the request creation as one
  all-or-nothing unit. Administrative actions (approve, reject, deliver,
  cancel) drive the request through the state machine in statemachine.go,
  issuing compensating refunds and restocks where the machine says so.

ATOMIC UNIT:
  Accounts and rewards are separate contended resources; no lock spans
  both. The workflow therefore uses a compensating sequence instead of a
  multi-entity transaction:

    1. reserve stock   (CAS decrement; re-validates availability)
    2. debit points    (CAS; re-validates balance)  - rollback 1 on failure
    3. insert request                               - rollback 1 and 2 on failure

  Every failure path restores the pre-operation state exactly, so a caller
  can always retry. The advisory pre-checks before step 1 only exist to
  give a fast user-facing error; step 1 and 2 re-validate under CAS because
  concurrent requests can invalidate the pre-check.

EXACT REFUNDS:
  points_spent is a snapshot of the reward's cost at request time and never
  changes, even if an admin edits cost_points later. Reject/cancel refund
  exactly points_spent.

SEE ALSO:
  - ledger: debit/refund primitives
  - catalog: stock reservation
*/
package redemption

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/surveypoints/points-engine/catalog"
	"github.com/surveypoints/points-engine/ledger"
	"github.com/surveypoints/points-engine/points"
)

// =============================================================================
// REDEMPTION REQUEST
// =============================================================================

// ErrRequestNotFound is returned when the referenced request doesn't exist.
var ErrRequestNotFound = errors.New("redemption request not found")

// DeliveryInfo is the user-supplied delivery metadata captured at request
// time.
type DeliveryInfo struct {
	Address   string
	Phone     string
	UserNotes string

	// RequiresPickup is derived from the reward kind, not user input.
	RequiresPickup bool
}

type Request struct {
	ID       points.RequestID
	UserID   points.UserID
	RewardID points.RewardID

	// RewardName and PointsSpent are snapshots taken at request time;
	// immutable thereafter so history and refunds survive reward edits.
	RewardName  string
	PointsSpent int64

	Status Status

	RequestedAt time.Time
	DecidedAt   *time.Time
	DeliveredAt *time.Time

	Delivery     DeliveryInfo
	AdminNotes   string
	TrackingCode string
	ApproverID   string

	Version int64
}

// RequestStore persists redemption requests. Update uses compare-and-swap
// on Version so that two concurrent decisions on the same request cannot
// both apply (and cannot refund twice).
type RequestStore interface {
	Create(ctx context.Context, r Request) error
	Get(ctx context.Context, id points.RequestID) (Request, error)

	// CompareAndSwap persists r only if the stored version equals
	// r.Version-1; otherwise points.ErrConcurrentModification.
	CompareAndSwap(ctx context.Context, r Request) error

	// ListByUser returns a user's requests, newest first.
	ListByUser(ctx context.Context, userID points.UserID) ([]Request, error)

	// ListByStatus returns requests in a given state, oldest first. Pass ""
	// for all. This feeds the admin decision queue.
	ListByStatus(ctx context.Context, status Status) ([]Request, error)
}

// =============================================================================
// WORKFLOW
// =============================================================================

type Workflow struct {
	Ledger   *ledger.Ledger
	Catalog  *catalog.Catalog
	Requests RequestStore
}

func NewWorkflow(l *ledger.Ledger, c *catalog.Catalog, requests RequestStore) *Workflow {
	return &Workflow{Ledger: l, Catalog: c, Requests: requests}
}

// Request exchanges points for one unit of a reward and creates the
// request in state SOLICITADO. See the package comment for the atomicity
// discipline.
func (w *Workflow) Request(ctx context.Context, userID points.UserID, rewardID points.RewardID, delivery DeliveryInfo) (Request, error) {
	// Advisory pre-checks for a fast user-facing error.
	reward, err := w.Catalog.Get(ctx, rewardID)
	if err != nil {
		return Request{}, err
	}
	if !reward.Available() {
		return Request{}, &catalog.RewardUnavailableError{
			RewardID: rewardID, Status: reward.Status, Active: reward.Active,
		}
	}
	acct, err := w.Ledger.Balance(ctx, userID)
	if err != nil {
		return Request{}, err
	}
	if acct.PointsAvailable < reward.CostPoints {
		return Request{}, &ledger.InsufficientPointsError{
			UserID: userID, Available: acct.PointsAvailable, Requested: reward.CostPoints,
		}
	}

	// Step 1: reserve the unit. This re-validates availability under CAS,
	// so losing a race for the last unit fails here, before any debit.
	reward, err = w.Catalog.DecrementStock(ctx, rewardID)
	if err != nil {
		return Request{}, err
	}

	// Step 2: debit. On failure the reservation is rolled back.
	if _, err := w.Ledger.Debit(ctx, userID, reward.CostPoints); err != nil {
		if reward.StockTracked() {
			_, _ = w.Catalog.IncrementStock(ctx, rewardID)
		}
		return Request{}, err
	}

	delivery.RequiresPickup = reward.Kind == catalog.KindPhysical

	req := Request{
		ID:          points.RequestID(uuid.NewString()),
		UserID:      userID,
		RewardID:    rewardID,
		RewardName:  reward.Name,
		PointsSpent: reward.CostPoints,
		Status:      StatusSolicitado,
		RequestedAt: time.Now().UTC(),
		Delivery:    delivery,
		Version:     1,
	}

	// Step 3: persist the request. On failure both prior steps are undone.
	if err := w.Requests.Create(ctx, req); err != nil {
		_, _ = w.Ledger.Refund(ctx, userID, reward.CostPoints, "redemption creation failed")
		if reward.StockTracked() {
			_, _ = w.Catalog.IncrementStock(ctx, rewardID)
		}
		return Request{}, err
	}

	return req, nil
}

// Decision is an admin verdict on a SOLICITADO request.
type Decision string

const (
	DecisionApprove Decision = "aprobado"
	DecisionReject  Decision = "rechazado"
)

// Decide applies an admin approval or rejection. Rejection refunds the
// snapshotted points and returns the reserved unit.
func (w *Workflow) Decide(ctx context.Context, id points.RequestID, approverID string, decision Decision, observations string) (Request, error) {
	action := ActionApprove
	if decision == DecisionReject {
		action = ActionReject
	}
	return w.transition(ctx, id, action, func(r *Request) {
		r.ApproverID = approverID
		if observations != "" {
			r.AdminNotes = observations
		}
	})
}

// MarkDelivered closes an APROBADO request. Terminal; no balance change.
func (w *Workflow) MarkDelivered(ctx context.Context, id points.RequestID, adminID, trackingCode, observations string) (Request, error) {
	return w.transition(ctx, id, ActionDeliver, func(r *Request) {
		if r.ApproverID == "" {
			r.ApproverID = adminID
		}
		if trackingCode != "" {
			r.TrackingCode = trackingCode
		}
		if observations != "" {
			r.AdminNotes = observations
		}
	})
}

// Cancel aborts a not-yet-delivered request (user or admin initiated) with
// the same refund and restock as a rejection.
func (w *Workflow) Cancel(ctx context.Context, id points.RequestID, actorID string) (Request, error) {
	return w.transition(ctx, id, ActionCancel, func(r *Request) {
		if r.ApproverID == "" && actorID != string(r.UserID) {
			r.ApproverID = actorID
		}
	})
}

// transition moves a request through the state machine. The CAS update is
// the linearization point: only the winner of a race performs the side
// effects, so a refund can never be issued twice for one request.
func (w *Workflow) transition(ctx context.Context, id points.RequestID, action Action, annotate func(*Request)) (Request, error) {
	var result Request
	var effects Effects

	err := points.RetryCAS(ctx, func(ctx context.Context) error {
		r, err := w.Requests.Get(ctx, id)
		if err != nil {
			return err
		}

		next, eff, err := Transition(r.Status, action)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		r.Status = next
		if eff.SetDecidedAt {
			r.DecidedAt = &now
		}
		if eff.SetDelivered {
			r.DeliveredAt = &now
		}
		annotate(&r)
		r.Version++

		if err := w.Requests.CompareAndSwap(ctx, r); err != nil {
			return err
		}
		result = r
		effects = eff
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	if effects.Refund {
		if _, err := w.Ledger.Refund(ctx, result.UserID, result.PointsSpent, "redemption "+string(result.Status)); err != nil {
			return result, err
		}
	}
	if effects.Restock {
		if _, err := w.Catalog.IncrementStock(ctx, result.RewardID); err != nil && !errors.Is(err, catalog.ErrRewardNotFound) {
			return result, err
		}
	}

	return result, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ListByUser returns a user's redemption history, newest first.
func (w *Workflow) ListByUser(ctx context.Context, userID points.UserID) ([]Request, error) {
	return w.Requests.ListByUser(ctx, userID)
}

// Queue returns requests by status for the admin decision queue.
func (w *Workflow) Queue(ctx context.Context, status Status) ([]Request, error) {
	return w.Requests.ListByStatus(ctx, status)
}

// Get returns a single request.
func (w *Workflow) Get(ctx context.Context, id points.RequestID) (Request, error) {
	return w.Requests.Get(ctx, id)
}

// Verdict answers "can this user redeem this reward right now?" without
// side effects.
type Verdict struct {
	CanRedeem       bool
	UserPoints      int64
	RequiredPoints  int64
	Stock           *int64
	RewardAvailable bool
}

// Availability computes the redeemability verdict for a user and reward.
func (w *Workflow) Availability(ctx context.Context, userID points.UserID, rewardID points.RewardID) (Verdict, error) {
	reward, err := w.Catalog.Get(ctx, rewardID)
	if err != nil {
		return Verdict{}, err
	}
	acct, err := w.Ledger.Balance(ctx, userID)
	if err != nil {
		return Verdict{}, err
	}
	available := reward.Available()
	return Verdict{
		CanRedeem:       available && acct.PointsAvailable >= reward.CostPoints,
		UserPoints:      acct.PointsAvailable,
		RequiredPoints:  reward.CostPoints,
		Stock:           reward.Stock,
		RewardAvailable: available,
	}, nil
}
