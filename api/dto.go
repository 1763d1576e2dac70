/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator struct tags; handlers run
  them through the shared validator before touching domain logic. DTOs
  (responses) are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - catalog/catalog.go, redemption/workflow.go: Domain types behind them
*/
package api

import (
	"time"

	"github.com/surveypoints/points-engine/catalog"
	"github.com/surveypoints/points-engine/ledger"
	"github.com/surveypoints/points-engine/redemption"
)

// =============================================================================
// ACCOUNT / BALANCE
// =============================================================================

// CreateAccountRequest opens a points account for a newly registered user.
type CreateAccountRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// BalanceDTO is the three-field balance summary.
type BalanceDTO struct {
	UserID          string `json:"user_id"`
	PointsTotal     int64  `json:"points_total"`
	PointsAvailable int64  `json:"points_available"`
	PointsRedeemed  int64  `json:"points_redeemed"`
}

// EntryDTO is one row of a user's points history.
type EntryDTO struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Delta     int64  `json:"delta"`
	Reason    string `json:"reason,omitempty"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at"`
}

// =============================================================================
// AWARD EVENTS
// =============================================================================

// SurveyCompletedRequest credits a user for finishing a survey.
type SurveyCompletedRequest struct {
	UserID   string `json:"user_id" validate:"required"`
	SurveyID string `json:"survey_id" validate:"required"`
	Points   int64  `json:"points" validate:"required,gt=0"`
}

// ProfileCompletedRequest credits the one-time profile completion bonus.
type ProfileCompletedRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// AwardResultDTO reports the outcome of an award attempt.
type AwardResultDTO struct {
	AlreadyAwarded bool  `json:"already_awarded"`
	PointsAwarded  int64 `json:"points_awarded"`
	Balance        int64 `json:"balance"`
}

// =============================================================================
// REWARDS
// =============================================================================

// RewardDTO represents a catalog reward in API responses.
type RewardDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Category     string `json:"category,omitempty"`
	Kind         string `json:"kind"`
	CostPoints   int64  `json:"cost_points"`
	Stock        *int64 `json:"stock"`
	Status       string `json:"status"`
	Active       bool   `json:"active"`
	Instructions string `json:"instructions,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// CreateRewardRequest is the admin request to add a reward.
type CreateRewardRequest struct {
	Name         string `json:"name" validate:"required"`
	Description  string `json:"description"`
	ImageURL     string `json:"image_url" validate:"omitempty,url"`
	Category     string `json:"category"`
	Kind         string `json:"kind" validate:"required,oneof=physical digital discount service"`
	CostPoints   int64  `json:"cost_points" validate:"required,gt=0"`
	Stock        *int64 `json:"stock" validate:"omitempty,gte=0"`
	Instructions string `json:"instructions"`
}

// UpdateRewardRequest is the admin request to modify a reward. Nil fields
// are left unchanged. Status accepts the admin-settable states plus
// "available" to reactivate.
type UpdateRewardRequest struct {
	Name         *string `json:"name"`
	Description  *string `json:"description"`
	ImageURL     *string `json:"image_url" validate:"omitempty,url"`
	Category     *string `json:"category"`
	CostPoints   *int64  `json:"cost_points" validate:"omitempty,gt=0"`
	Stock        *int64  `json:"stock" validate:"omitempty,gte=0"`
	Status       *string `json:"status" validate:"omitempty,oneof=available suspended discontinued"`
	Active       *bool   `json:"active"`
	Instructions *string `json:"instructions"`
}

// AvailabilityDTO is the pre-redemption verdict for one user and reward.
type AvailabilityDTO struct {
	CanRedeem       bool   `json:"can_redeem"`
	UserPoints      int64  `json:"user_points"`
	RequiredPoints  int64  `json:"required_points"`
	Stock           *int64 `json:"stock"`
	RewardAvailable bool   `json:"reward_available"`
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

// CreateRedemptionRequest submits a redemption for the calling user.
type CreateRedemptionRequest struct {
	RewardID  string `json:"reward_id" validate:"required"`
	Address   string `json:"address"`
	Phone     string `json:"phone"`
	UserNotes string `json:"user_notes"`
}

// DecideRequest is the admin approve/reject decision.
type DecideRequest struct {
	Decision     string `json:"decision" validate:"required,oneof=aprobado rechazado"`
	Observations string `json:"observations"`
}

// DeliveredRequest marks an approved redemption as handed over.
type DeliveredRequest struct {
	TrackingCode string `json:"tracking_code"`
	Observations string `json:"observations"`
}

// RedemptionDTO represents a redemption request in API responses.
type RedemptionDTO struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	RewardID       string `json:"reward_id"`
	RewardName     string `json:"reward_name"`
	PointsSpent    int64  `json:"points_spent"`
	Status         string `json:"status"`
	RequestedAt    string `json:"requested_at"`
	DecidedAt      string `json:"decided_at,omitempty"`
	DeliveredAt    string `json:"delivered_at,omitempty"`
	Address        string `json:"address,omitempty"`
	Phone          string `json:"phone,omitempty"`
	UserNotes      string `json:"user_notes,omitempty"`
	RequiresPickup bool   `json:"requires_pickup"`
	AdminNotes     string `json:"admin_notes,omitempty"`
	TrackingCode   string `json:"tracking_code,omitempty"`
	ApproverID     string `json:"approver_id,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toBalanceDTO(acct ledger.Account) BalanceDTO {
	return BalanceDTO{
		UserID:          string(acct.UserID),
		PointsTotal:     acct.PointsTotal,
		PointsAvailable: acct.PointsAvailable,
		PointsRedeemed:  acct.PointsRedeemed,
	}
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:        e.ID,
		Kind:      string(e.Kind),
		Delta:     e.Delta,
		Reason:    e.Reason,
		Balance:   e.Balance,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func toRewardDTO(r catalog.Reward) RewardDTO {
	return RewardDTO{
		ID:           string(r.ID),
		Name:         r.Name,
		Description:  r.Description,
		ImageURL:     r.ImageURL,
		Category:     r.Category,
		Kind:         string(r.Kind),
		CostPoints:   r.CostPoints,
		Stock:        r.Stock,
		Status:       string(r.Status),
		Active:       r.Active,
		Instructions: r.Instructions,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
	}
}

func toRedemptionDTO(r redemption.Request) RedemptionDTO {
	dto := RedemptionDTO{
		ID:             string(r.ID),
		UserID:         string(r.UserID),
		RewardID:       string(r.RewardID),
		RewardName:     r.RewardName,
		PointsSpent:    r.PointsSpent,
		Status:         string(r.Status),
		RequestedAt:    r.RequestedAt.Format(time.RFC3339),
		Address:        r.Delivery.Address,
		Phone:          r.Delivery.Phone,
		UserNotes:      r.Delivery.UserNotes,
		RequiresPickup: r.Delivery.RequiresPickup,
		AdminNotes:     r.AdminNotes,
		TrackingCode:   r.TrackingCode,
		ApproverID:     r.ApproverID,
	}
	if r.DecidedAt != nil {
		dto.DecidedAt = r.DecidedAt.Format(time.RFC3339)
	}
	if r.DeliveredAt != nil {
		dto.DeliveredAt = r.DeliveredAt.Format(time.RFC3339)
	}
	return dto
}
