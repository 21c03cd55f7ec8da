package handlers

import (
	"encoding/json"
	"net/http"

	"meal-match-backend/internal/middleware"
	"meal-match-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req services.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.userService.CreateUser(ctx, req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("caller", middleware.GetCaller(ctx)).Msg("Failed to create user")
		}
		respondError(w, err.Error(), status)
		return
	}

	respondJSON(w, http.StatusCreated, UserResponse{
		User:  res.User,
		Match: summarize(res.Match, res.MatchErr),
	})
}

// GetUser handles GET /api/v1/users/{user_id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetUser(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Msg("Failed to get user")
		}
		respondError(w, err.Error(), status)
		return
	}

	respondJSON(w, http.StatusOK, UserResponse{User: user})
}

// UpdateEligibilityRequest represents the request body for changing eligibility
type UpdateEligibilityRequest struct {
	Eligible *bool `json:"eligible"`
}

// UpdateEligibility handles PUT /api/v1/users/{user_id}/eligibility
func (h *UserHandler) UpdateEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "user_id")

	var req UpdateEligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Eligible == nil {
		respondError(w, "eligible is required", http.StatusBadRequest)
		return
	}

	res, err := h.userService.SetEligibility(ctx, userID, *req.Eligible)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error().
				Err(err).
				Str("user_id", userID).
				Str("caller", middleware.GetCaller(ctx)).
				Msg("Failed to update eligibility")
		}
		respondError(w, err.Error(), status)
		return
	}

	respondJSON(w, http.StatusOK, UserResponse{
		User:  res.User,
		Match: summarize(res.Match, res.MatchErr),
	})
}
