package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/ciro140903/airag-auth/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds per-IP rate limiting configuration
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// DefaultAuthRateLimit returns the default limit for unauthenticated
// auth endpoints (registration, password reset requests).
func DefaultAuthRateLimit() RateLimitConfig {
	return RateLimitConfig{
		Requests: 10,
		Window:   1 * time.Minute,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// This is the in-process guard for a single instance; the login endpoint
// additionally has a database-backed counter shared across instances.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, config.Window)
		}),
	)
}
