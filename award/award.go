/*
Package award decides when and how many points to credit.

PURPOSE:
  External collaborators report completed actions (a survey submitted, a
  profile completed for the first time, a fresh registration). This package
  turns each report into at most one credit, no matter how many times the
  collaborator retries.

IDEMPOTENCY:
  Each credit is gated by an AwardEvent keyed (user_id, event_type,
  event_ref). The event row is inserted before the credit; the store's
  uniqueness constraint makes the insert the linearization point. A
  duplicate insert means the award already happened and the call returns
  AlreadyAwarded with no side effects. If the credit itself fails (account
  missing, storage down) the gate row is removed again so the pre-call
  state is fully preserved and a later retry can succeed.

PROMOTIONS:
  Survey awards can run under a fractional multiplier (double-points week,
  1.5x campaigns). The multiplied value is floored to whole points; the
  points actually credited are recorded on the event.

SEE ALSO:
  - ledger: performs the actual credit
*/
package award

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/surveypoints/points-engine/ledger"
	"github.com/surveypoints/points-engine/points"
)

// =============================================================================
// AWARD EVENTS
// =============================================================================

type EventType string

const (
	EventSurveyCompletion  EventType = "survey_completion"
	EventProfileCompletion EventType = "profile_completion"
	EventRegistration      EventType = "registration"
)

// Sentinel refs for the one-shot event types. Surveys use the survey id.
const (
	RefProfile      = "profile"
	RefRegistration = "registration"
)

// Event is the ledger of why points were credited. At most one event per
// (user, type, ref) ever exists; events are never updated and only deleted
// as compensation for a failed credit.
type Event struct {
	ID        string
	UserID    points.UserID
	Type      EventType
	Ref       string
	Points    int64
	CreatedAt time.Time
}

// ErrDuplicateEvent is returned by the store when the (user, type, ref)
// key already exists. This is expected behavior for collaborator retries.
var ErrDuplicateEvent = errors.New("award event already exists")

// EventStore persists award events with a uniqueness constraint on
// (user_id, event_type, event_ref).
type EventStore interface {
	// Insert adds the event or fails with ErrDuplicateEvent.
	Insert(ctx context.Context, e Event) error

	// Delete removes an event by id. Used only to compensate a failed credit.
	Delete(ctx context.Context, id string) error

	// ListByUser returns a user's events, oldest first.
	ListByUser(ctx context.Context, userID points.UserID) ([]Event, error)
}

// =============================================================================
// AWARD POLICY
// =============================================================================

// Result is the outcome of an award call. AlreadyAwarded is not an error:
// the second report of the same action is a no-op.
type Result struct {
	AlreadyAwarded bool
	Points         int64 // points credited by this call (0 when AlreadyAwarded)
	Balance        int64 // points_available after the call
}

// Policy credits points for completed actions with one-time-per-event
// semantics.
type Policy struct {
	Events EventStore
	Ledger *ledger.Ledger

	// ProfilePoints and RegistrationPoints come from configuration.
	ProfilePoints      int64
	RegistrationPoints int64

	// Multiplier scales survey awards during promotions. Zero value means
	// no promotion (treated as 1).
	Multiplier decimal.Decimal
}

// ForSurveyCompletion credits the survey's point value exactly once per
// (user, survey). Safe to call again on transport retries.
func (p *Policy) ForSurveyCompletion(ctx context.Context, userID points.UserID, surveyID string, pts int64) (Result, error) {
	if pts <= 0 {
		return Result{}, ledger.ErrInvalidAmount
	}
	awarded := p.applyMultiplier(pts)
	reason := fmt.Sprintf("survey %s completed", surveyID)
	return p.awardOnce(ctx, userID, EventSurveyCompletion, surveyID, awarded, reason)
}

// ForProfileCompletion credits the configured profile bonus the first time
// a user completes their profile. Subsequent profile edits are no-ops.
func (p *Policy) ForProfileCompletion(ctx context.Context, userID points.UserID) (Result, error) {
	return p.awardOnce(ctx, userID, EventProfileCompletion, RefProfile, p.ProfilePoints, "profile completed")
}

// ForRegistration credits the configured signup bonus once per user.
func (p *Policy) ForRegistration(ctx context.Context, userID points.UserID) (Result, error) {
	return p.awardOnce(ctx, userID, EventRegistration, RefRegistration, p.RegistrationPoints, "initial registration")
}

func (p *Policy) awardOnce(ctx context.Context, userID points.UserID, typ EventType, ref string, pts int64, reason string) (Result, error) {
	if pts <= 0 {
		// Nothing to credit (e.g. registration bonus configured to 0), and
		// no gate row either so a later non-zero configuration still works.
		acct, err := p.Ledger.Balance(ctx, userID)
		if err != nil {
			return Result{}, err
		}
		return Result{Balance: acct.PointsAvailable}, nil
	}

	event := Event{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Ref:       ref,
		Points:    pts,
		CreatedAt: time.Now().UTC(),
	}

	// The insert is the idempotency gate: losing the uniqueness race means
	// another call already awarded this event.
	if err := p.Events.Insert(ctx, event); err != nil {
		if errors.Is(err, ErrDuplicateEvent) {
			acct, berr := p.Ledger.Balance(ctx, userID)
			if berr != nil {
				return Result{}, berr
			}
			return Result{AlreadyAwarded: true, Balance: acct.PointsAvailable}, nil
		}
		return Result{}, err
	}

	acct, err := p.Ledger.Credit(ctx, userID, pts, reason)
	if err != nil {
		// Roll the gate back so the caller can retry once the underlying
		// problem (missing account, storage) is resolved.
		_ = p.Events.Delete(ctx, event.ID)
		return Result{}, err
	}

	return Result{Points: pts, Balance: acct.PointsAvailable}, nil
}

// applyMultiplier floors pts * Multiplier to whole points. A zero or
// negative multiplier is treated as no promotion.
func (p *Policy) applyMultiplier(pts int64) int64 {
	if p.Multiplier.IsZero() || p.Multiplier.IsNegative() {
		return pts
	}
	scaled := decimal.NewFromInt(pts).Mul(p.Multiplier).Floor().IntPart()
	if scaled < 1 {
		return 1
	}
	return scaled
}
