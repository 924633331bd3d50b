package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRateLimitService(repo *MockRateLimitCounterRepository) *RateLimitService {
	return NewRateLimitService(repo, RateLimitConfig{
		LoginLimit:  60,
		LoginWindow: time.Minute,
	}, discardLogger())
}

func TestCheckLoginRate_UnderLimit(t *testing.T) {
	var seenKey string
	repo := &MockRateLimitCounterRepository{
		IncrementFunc: func(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
			seenKey = key
			return 59, time.Now().Add(window), nil
		},
	}

	svc := newTestRateLimitService(repo)
	err := svc.CheckLoginRate(context.Background(), "203.0.113.10")
	require.NoError(t, err)
	assert.Equal(t, "login:203.0.113.10", seenKey)
}

func TestCheckLoginRate_AtLimitStillAllowed(t *testing.T) {
	repo := &MockRateLimitCounterRepository{
		IncrementFunc: func(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
			return 60, time.Now().Add(window), nil
		},
	}

	svc := newTestRateLimitService(repo)
	assert.NoError(t, svc.CheckLoginRate(context.Background(), "203.0.113.10"))
}

func TestCheckLoginRate_OverLimit(t *testing.T) {
	windowEnd := time.Now().Add(42 * time.Second)
	repo := &MockRateLimitCounterRepository{
		IncrementFunc: func(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
			return 61, windowEnd, nil
		},
	}

	svc := newTestRateLimitService(repo)
	err := svc.CheckLoginRate(context.Background(), "203.0.113.10")
	require.ErrorIs(t, err, models.ErrRateLimited)

	var rateErr *models.RateLimitedError
	require.ErrorAs(t, err, &rateErr)
	assert.InDelta(t, 42, rateErr.RetryAfter.Seconds(), 2)
}

func TestCheck_ReportsRemaining(t *testing.T) {
	repo := &MockRateLimitCounterRepository{
		IncrementFunc: func(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
			return 3, time.Now().Add(window), nil
		},
	}

	svc := newTestRateLimitService(repo)
	allowed, remaining, err := svc.Check(context.Background(), "reset:bob", 10, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 7, remaining)
}

func TestCheck_OverLimit(t *testing.T) {
	repo := &MockRateLimitCounterRepository{
		IncrementFunc: func(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
			return 11, time.Now().Add(30 * time.Second), nil
		},
	}

	svc := newTestRateLimitService(repo)
	allowed, remaining, err := svc.Check(context.Background(), "reset:bob", 10, time.Minute)
	assert.False(t, allowed)
	assert.Zero(t, remaining)
	require.ErrorIs(t, err, models.ErrRateLimited)
}

func TestCheckLoginRate_FailsOpenOnStoreError(t *testing.T) {
	repo := &MockRateLimitCounterRepository{
		IncrementFunc: func(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
			return 0, time.Time{}, errors.New("store down")
		},
	}

	svc := newTestRateLimitService(repo)
	assert.NoError(t, svc.CheckLoginRate(context.Background(), "203.0.113.10"))
}
