package routes

import (
	"github.com/ciro140903/airag-auth/internal/auth"
	"github.com/ciro140903/airag-auth/internal/handlers"
	"github.com/ciro140903/airag-auth/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	mfaHandler *handlers.MFAHandler,
	userHandler *handlers.UserHandler,
	tokenManager *auth.TokenManager,
	users auth.UserFetcher,
) {
	rateLimitConfig := middleware.DefaultAuthRateLimit()

	// Public routes. Login has its own database-backed rate limit inside
	// the service, so only the other endpoints get the in-process limiter.
	router.Post("/auth/login", authHandler.Login)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/register", authHandler.Register)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/refresh", authHandler.Refresh)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/forgot-password", authHandler.ForgotPassword)
	router.With(middleware.RateLimitByIP(rateLimitConfig)).Post("/auth/reset-password", authHandler.ResetPassword)

	// Authenticated routes
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(tokenManager))

		r.Post("/auth/logout", authHandler.Logout)
		r.Post("/auth/change-password", authHandler.ChangePassword)

		r.Get("/users/me", userHandler.Me)

		r.Route("/mfa", func(r chi.Router) {
			r.Get("/status", mfaHandler.Status)
			r.Post("/setup", mfaHandler.StartSetup)
			r.Post("/setup/confirm", mfaHandler.ConfirmSetup)
			r.Post("/disable", mfaHandler.Disable)
			r.Post("/backup-codes/regenerate", mfaHandler.RegenerateBackupCodes)
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(users, "admin"))

			r.Get("/users", userHandler.List)
			r.Get("/users/{id}", userHandler.Get)
			r.Put("/users/{id}/active", userHandler.SetActive)
			r.Put("/users/{id}/role", userHandler.SetRole)
			r.Put("/users/{id}/verified", userHandler.SetVerified)
			r.Post("/users/{id}/unlock", userHandler.Unlock)
			r.Get("/users/{id}/audit", userHandler.AuditByUser)
			r.Get("/audit/failures", userHandler.AuditFailures)
		})
	})
}
