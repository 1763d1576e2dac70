/*
handlers.go - HTTP API handlers for the points engine

PURPOSE:
  Exposes the points economy via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    POST   /api/users                        Create account (registration award)
    GET    /api/users/{id}/balance           Balance summary
    GET    /api/users/{id}/history           Points history (ledger entries)
    GET    /api/users/{id}/redemptions       User's redemption requests

  Award events:
    POST   /api/events/survey-completed      Credit survey completion
    POST   /api/events/profile-completed     Credit profile completion bonus

  Rewards:
    GET    /api/rewards                      Available rewards (?all=1 admin view)
    GET    /api/rewards/{id}                 Reward details
    GET    /api/rewards/{id}/availability    Can the caller redeem this?

  Redemptions:
    POST   /api/redemptions                  Submit redemption request
    GET    /api/redemptions?status=...       Admin queue
    POST   /api/redemptions/{id}/decide      Admin approve/reject
    POST   /api/redemptions/{id}/delivered   Admin mark delivered
    POST   /api/redemptions/{id}/cancel      User/admin cancel

  Admin catalog:
    POST   /api/admin/rewards                Create reward
    PUT    /api/admin/rewards/{id}           Update reward / set admin status

IDENTITY:
  The engine performs no authentication. The upstream survey platform is
  trusted to set X-User-ID and X-User-Role ("admin" unlocks the admin
  surface) after authenticating the caller.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Non-admin on admin endpoints, wrong user on owned resources
  - 404: Account, reward, or request not found
  - 409: Lost concurrency races, duplicate accounts, invalid transitions
  - 422: Business refusals (insufficient points, reward unavailable)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/surveypoints/points-engine/award"
	"github.com/surveypoints/points-engine/catalog"
	"github.com/surveypoints/points-engine/ledger"
	"github.com/surveypoints/points-engine/points"
	"github.com/surveypoints/points-engine/redemption"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger      *ledger.Ledger
	Awards      *award.Policy
	Catalog     *catalog.Catalog
	Redemptions *redemption.Workflow

	validate *validator.Validate
}

// NewHandler creates a new handler with the given services.
func NewHandler(l *ledger.Ledger, a *award.Policy, c *catalog.Catalog, w *redemption.Workflow) *Handler {
	return &Handler{
		Ledger:      l,
		Awards:      a,
		Catalog:     c,
		Redemptions: w,
		validate:    validator.New(),
	}
}

// decode parses and validates a JSON request body.
func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// callerID returns the authenticated user set by the upstream platform.
func callerID(r *http.Request) points.UserID {
	return points.UserID(r.Header.Get("X-User-ID"))
}

func isAdmin(r *http.Request) bool {
	return r.Header.Get("X-User-Role") == "admin"
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// CreateAccount opens a points account and applies the registration award.
// POST /api/users
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	userID := points.UserID(req.UserID)
	acct, err := h.Ledger.CreateAccount(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to create account", err)
		return
	}

	// Registration award is best effort: a zero configured amount is a
	// no-op and a failure here must not undo the account.
	result, err := h.Awards.ForRegistration(r.Context(), userID)
	if err == nil && result.Points > 0 {
		creditsTotal.WithLabelValues(string(award.EventRegistration)).Inc()
		if fresh, err := h.Ledger.Balance(r.Context(), userID); err == nil {
			acct = fresh
		}
	}

	writeJSON(w, http.StatusCreated, toBalanceDTO(acct))
}

// GetBalance returns the three-field balance summary.
// GET /api/users/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))

	acct, err := h.Ledger.Balance(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(acct))
}

// GetHistory returns the user's points history, oldest first.
// GET /api/users/{id}/history
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))

	entries, err := h.Ledger.History(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to get history", err)
		return
	}

	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListUserRedemptions returns a user's redemption requests, newest first.
// GET /api/users/{id}/redemptions
func (h *Handler) ListUserRedemptions(w http.ResponseWriter, r *http.Request) {
	userID := points.UserID(chi.URLParam(r, "id"))
	if callerID(r) != userID && !isAdmin(r) {
		writeError(w, http.StatusForbidden, "Cannot view another user's redemptions", nil)
		return
	}

	requests, err := h.Redemptions.ListByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to list redemptions", err)
		return
	}

	dtos := make([]RedemptionDTO, len(requests))
	for i, req := range requests {
		dtos[i] = toRedemptionDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// AWARD EVENT HANDLERS
// =============================================================================

// SurveyCompleted credits points for a finished survey. Replaying the same
// survey for the same user is a no-op reported as already_awarded.
// POST /api/events/survey-completed
func (h *Handler) SurveyCompleted(w http.ResponseWriter, r *http.Request) {
	var req SurveyCompletedRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Awards.ForSurveyCompletion(r.Context(), points.UserID(req.UserID), req.SurveyID, req.Points)
	if err != nil {
		writeDomainError(w, "Failed to award survey points", err)
		return
	}
	if !result.AlreadyAwarded {
		creditsTotal.WithLabelValues(string(award.EventSurveyCompletion)).Inc()
	}

	writeJSON(w, http.StatusOK, AwardResultDTO{
		AlreadyAwarded: result.AlreadyAwarded,
		PointsAwarded:  result.Points,
		Balance:        result.Balance,
	})
}

// ProfileCompleted credits the one-time profile completion bonus.
// POST /api/events/profile-completed
func (h *Handler) ProfileCompleted(w http.ResponseWriter, r *http.Request) {
	var req ProfileCompletedRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Awards.ForProfileCompletion(r.Context(), points.UserID(req.UserID))
	if err != nil {
		writeDomainError(w, "Failed to award profile points", err)
		return
	}
	if !result.AlreadyAwarded && result.Points > 0 {
		creditsTotal.WithLabelValues(string(award.EventProfileCompletion)).Inc()
	}

	writeJSON(w, http.StatusOK, AwardResultDTO{
		AlreadyAwarded: result.AlreadyAwarded,
		PointsAwarded:  result.Points,
		Balance:        result.Balance,
	})
}

// =============================================================================
// REWARD HANDLERS
// =============================================================================

// ListRewards returns the redeemable catalog. Admins may pass ?all=1 to see
// every reward regardless of status.
// GET /api/rewards
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	var (
		rewards []catalog.Reward
		err     error
	)
	if r.URL.Query().Get("all") == "1" && isAdmin(r) {
		rewards, err = h.Catalog.ListAll(r.Context())
	} else {
		rewards, err = h.Catalog.ListAvailable(r.Context())
	}
	if err != nil {
		writeDomainError(w, "Failed to list rewards", err)
		return
	}

	dtos := make([]RewardDTO, len(rewards))
	for i, rw := range rewards {
		dtos[i] = toRewardDTO(rw)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReward returns a single reward.
// GET /api/rewards/{id}
func (h *Handler) GetReward(w http.ResponseWriter, r *http.Request) {
	id := points.RewardID(chi.URLParam(r, "id"))

	reward, err := h.Catalog.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get reward", err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardDTO(reward))
}

// GetAvailability answers "can the caller redeem this reward right now".
// GET /api/rewards/{id}/availability
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	id := points.RewardID(chi.URLParam(r, "id"))
	userID := callerID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	verdict, err := h.Redemptions.Availability(r.Context(), userID, id)
	if err != nil {
		writeDomainError(w, "Failed to check availability", err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityDTO{
		CanRedeem:       verdict.CanRedeem,
		UserPoints:      verdict.UserPoints,
		RequiredPoints:  verdict.RequiredPoints,
		Stock:           verdict.Stock,
		RewardAvailable: verdict.RewardAvailable,
	})
}

// =============================================================================
// REDEMPTION HANDLERS
// =============================================================================

// CreateRedemption submits a redemption for the calling user. Stock is
// reserved and points debited before the request row exists; either step
// failing rolls the other back.
// POST /api/redemptions
func (h *Handler) CreateRedemption(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "Missing X-User-ID header", nil)
		return
	}

	var req CreateRedemptionRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	request, err := h.Redemptions.Request(r.Context(), userID, points.RewardID(req.RewardID), redemption.DeliveryInfo{
		Address:   req.Address,
		Phone:     req.Phone,
		UserNotes: req.UserNotes,
	})
	if err != nil {
		redemptionsTotal.WithLabelValues(redemptionOutcome(err)).Inc()
		writeDomainError(w, "Failed to request redemption", err)
		return
	}

	redemptionsTotal.WithLabelValues("accepted").Inc()
	writeJSON(w, http.StatusCreated, toRedemptionDTO(request))
}

// ListQueue returns the admin work queue, oldest first.
// GET /api/redemptions?status=...
func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	status := redemption.Status(r.URL.Query().Get("status"))
	requests, err := h.Redemptions.Queue(r.Context(), status)
	if err != nil {
		writeDomainError(w, "Failed to list redemption queue", err)
		return
	}

	dtos := make([]RedemptionDTO, len(requests))
	for i, req := range requests {
		dtos[i] = toRedemptionDTO(req)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Decide approves or rejects a pending redemption. Rejection refunds the
// points and restores the reserved stock.
// POST /api/redemptions/{id}/decide
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	id := points.RequestID(chi.URLParam(r, "id"))
	var req DecideRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	request, err := h.Redemptions.Decide(r.Context(), id, string(callerID(r)), redemption.Decision(req.Decision), req.Observations)
	if err != nil {
		writeDomainError(w, "Failed to decide redemption", err)
		return
	}
	if request.Status == redemption.StatusRechazado {
		refundsTotal.Inc()
	}

	writeJSON(w, http.StatusOK, toRedemptionDTO(request))
}

// MarkDelivered records that an approved redemption was handed over.
// POST /api/redemptions/{id}/delivered
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	id := points.RequestID(chi.URLParam(r, "id"))
	var req DeliveredRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	request, err := h.Redemptions.MarkDelivered(r.Context(), id, string(callerID(r)), req.TrackingCode, req.Observations)
	if err != nil {
		writeDomainError(w, "Failed to mark delivered", err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionDTO(request))
}

// Cancel aborts a redemption that has not been delivered. The owner or an
// admin may cancel; the points and stock come back.
// POST /api/redemptions/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := points.RequestID(chi.URLParam(r, "id"))

	request, err := h.Redemptions.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to load redemption", err)
		return
	}
	if request.UserID != callerID(r) && !isAdmin(r) {
		writeError(w, http.StatusForbidden, "Cannot cancel another user's redemption", nil)
		return
	}

	request, err = h.Redemptions.Cancel(r.Context(), id, string(callerID(r)))
	if err != nil {
		writeDomainError(w, "Failed to cancel redemption", err)
		return
	}
	refundsTotal.Inc()

	writeJSON(w, http.StatusOK, toRedemptionDTO(request))
}

// =============================================================================
// ADMIN CATALOG HANDLERS
// =============================================================================

// CreateReward adds a reward to the catalog.
// POST /api/admin/rewards
func (h *Handler) CreateReward(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	var req CreateRewardRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reward, err := h.Catalog.CreateReward(r.Context(), catalog.Reward{
		Name:         req.Name,
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		Category:     req.Category,
		Kind:         catalog.Kind(req.Kind),
		CostPoints:   req.CostPoints,
		Stock:        req.Stock,
		Instructions: req.Instructions,
	})
	if err != nil {
		writeDomainError(w, "Failed to create reward", err)
		return
	}
	writeJSON(w, http.StatusCreated, toRewardDTO(reward))
}

// UpdateReward modifies a reward. Setting status to suspended or
// discontinued pulls it from the redeemable catalog regardless of stock;
// setting it to available reactivates it (stock permitting).
// PUT /api/admin/rewards/{id}
func (h *Handler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeError(w, http.StatusForbidden, "Admin role required", nil)
		return
	}

	id := points.RewardID(chi.URLParam(r, "id"))
	var req UpdateRewardRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reward, err := h.Catalog.UpdateReward(r.Context(), id, func(rw *catalog.Reward) error {
		if req.Name != nil {
			rw.Name = *req.Name
		}
		if req.Description != nil {
			rw.Description = *req.Description
		}
		if req.ImageURL != nil {
			rw.ImageURL = *req.ImageURL
		}
		if req.Category != nil {
			rw.Category = *req.Category
		}
		if req.CostPoints != nil {
			rw.CostPoints = *req.CostPoints
		}
		if req.Stock != nil {
			rw.Stock = req.Stock
		}
		if req.Status != nil {
			rw.Status = catalog.Status(*req.Status)
		}
		if req.Active != nil {
			rw.Active = *req.Active
		}
		if req.Instructions != nil {
			rw.Instructions = *req.Instructions
		}
		return nil
	})
	if err != nil {
		writeDomainError(w, "Failed to update reward", err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardDTO(reward))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, catalog.ErrRewardNotFound),
		errors.Is(err, redemption.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientPoints),
		errors.Is(err, catalog.ErrRewardUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, catalog.ErrInvalidCost):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrAccountExists),
		errors.Is(err, catalog.ErrRewardExists),
		errors.Is(err, redemption.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, points.ErrConcurrentModification):
		casConflictsTotal.Inc()
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// redemptionOutcome labels a failed redemption attempt for metrics.
func redemptionOutcome(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientPoints):
		return "insufficient_points"
	case errors.Is(err, catalog.ErrRewardUnavailable):
		return "reward_unavailable"
	case errors.Is(err, points.ErrConcurrentModification):
		return "conflict"
	default:
		return "error"
	}
}
