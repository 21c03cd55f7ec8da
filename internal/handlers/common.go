package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"meal-match-backend/internal/models"
	"meal-match-backend/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// MatchSummary describes the matching run a request triggered
type MatchSummary struct {
	Sessions  []*models.Session       `json:"sessions"`
	Conflicts []models.Pair           `json:"conflicts"`
	Eligible  map[models.Timeslot]int `json:"eligible,omitempty"`
	Skipped   bool                    `json:"skipped,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// UserResponse is a user record plus the run its write triggered
type UserResponse struct {
	User  *models.User  `json:"user"`
	Match *MatchSummary `json:"match,omitempty"`
}

func summarize(result *services.RunResult, err error) *MatchSummary {
	if result == nil && err == nil {
		return nil
	}
	summary := &MatchSummary{
		Sessions:  []*models.Session{},
		Conflicts: []models.Pair{},
	}
	if result != nil {
		if result.Sessions != nil {
			summary.Sessions = result.Sessions
		}
		if result.Conflicts != nil {
			summary.Conflicts = result.Conflicts
		}
		summary.Eligible = result.Eligible
	}
	if err != nil {
		summary.Error = err.Error()
	}
	return summary
}

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	var queryErr *models.QueryError
	switch {
	case errors.Is(err, models.ErrInvalidUser):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUserExists):
		return http.StatusConflict
	case errors.As(err, &queryErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
