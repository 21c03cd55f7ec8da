package handlers

import (
	"net/http"

	"meal-match-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires every route. All /api/v1 routes require a bearer token.
func NewRouter(users *UserHandler, triggers *TriggerHandler, tokens middleware.TokenValidator) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(tokens))

		r.Post("/users", users.CreateUser)
		r.Get("/users/{user_id}", users.GetUser)
		r.Put("/users/{user_id}/eligibility", users.UpdateEligibility)

		r.Post("/triggers/user-created", triggers.UserCreated)
		r.Post("/triggers/user-eligibility", triggers.UserEligibility)
	})

	return r
}
