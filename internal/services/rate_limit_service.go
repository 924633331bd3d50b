package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ciro140903/airag-auth/internal/models"
)

// RateLimitCounterRepository defines the interface for fixed-window counters
type RateLimitCounterRepository interface {
	Increment(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
	Reset(ctx context.Context, key string) error
}

// RateLimitConfig holds rate limiting behavior for the login endpoint
type RateLimitConfig struct {
	LoginLimit  int
	LoginWindow time.Duration
}

// RateLimitService throttles login attempts per client IP using a shared
// fixed-window counter, so the limit holds across instances.
type RateLimitService struct {
	repo   RateLimitCounterRepository
	config RateLimitConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewRateLimitService(repo RateLimitCounterRepository, config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Check counts this attempt against the key's window and reports whether it
// is allowed plus how many attempts remain. A counter-store failure fails
// open: losing rate limiting is preferable to losing the guarded operation.
func (s *RateLimitService) Check(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error) {
	count, expiresAt, err := s.repo.Increment(ctx, key, window)
	if err != nil {
		s.logger.Error("rate limit check failed, allowing request",
			slog.String("key", key),
			slog.Any("error", err))
		return true, limit, nil
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	if count > limit {
		retryAfter := expiresAt.Sub(s.now())
		if retryAfter < 0 {
			retryAfter = 0
		}
		s.logger.Warn("rate limit exceeded",
			slog.String("key", key),
			slog.Int("count", count))
		return false, 0, &models.RateLimitedError{RetryAfter: retryAfter}
	}

	return true, remaining, nil
}

// CheckLoginRate applies the configured login limit to the caller's IP.
func (s *RateLimitService) CheckLoginRate(ctx context.Context, ipAddress string) error {
	_, _, err := s.Check(ctx, "login:"+ipAddress, s.config.LoginLimit, s.config.LoginWindow)
	return err
}
