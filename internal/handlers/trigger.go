package handlers

import (
	"encoding/json"
	"net/http"

	"meal-match-backend/internal/middleware"
	"meal-match-backend/internal/models"
	"meal-match-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// TriggerHandler lets an external event source report user record changes
type TriggerHandler struct {
	dispatcher *services.Dispatcher
}

// NewTriggerHandler creates a new trigger handler
func NewTriggerHandler(dispatcher *services.Dispatcher) *TriggerHandler {
	return &TriggerHandler{
		dispatcher: dispatcher,
	}
}

// UserCreatedRequest represents a user-created event
type UserCreatedRequest struct {
	UserID string `json:"user_id"`
}

// UserEligibilityRequest represents a user-updated event
type UserEligibilityRequest struct {
	UserID   string `json:"user_id"`
	Eligible *bool  `json:"eligible"`
}

// UserCreated handles POST /api/v1/triggers/user-created
func (h *TriggerHandler) UserCreated(w http.ResponseWriter, r *http.Request) {
	var req UserCreatedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		respondError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.dispatcher.OnUserCreated(r.Context(), req.UserID)
	h.respond(w, r, req.UserID, result, err)
}

// UserEligibility handles POST /api/v1/triggers/user-eligibility
func (h *TriggerHandler) UserEligibility(w http.ResponseWriter, r *http.Request) {
	var req UserEligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" || req.Eligible == nil {
		respondError(w, "user_id and eligible are required", http.StatusBadRequest)
		return
	}

	result, err := h.dispatcher.OnEligibilityUpdated(r.Context(), req.UserID, *req.Eligible)
	if result == nil && err == nil {
		respondJSON(w, http.StatusOK, MatchSummary{
			Sessions:  []*models.Session{},
			Conflicts: []models.Pair{},
			Skipped:   true,
		})
		return
	}
	h.respond(w, r, req.UserID, result, err)
}

func (h *TriggerHandler) respond(w http.ResponseWriter, r *http.Request, userID string, result *services.RunResult, err error) {
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}

	log.Info().
		Str("user_id", userID).
		Str("caller", middleware.GetCaller(r.Context())).
		Int("status", status).
		Msg("Trigger handled")

	respondJSON(w, status, summarize(result, err))
}
