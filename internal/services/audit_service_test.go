package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRecord_PersistsEvent(t *testing.T) {
	var mu sync.Mutex
	var created *models.SecurityEvent
	done := make(chan struct{})

	repo := &MockAuditRepository{
		CreateFunc: func(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
			mu.Lock()
			created = event
			mu.Unlock()
			close(done)
			return event, nil
		},
	}

	svc := newTestAuditService(repo)
	actorID := "user-1"
	svc.Failure("login_failed:wrong_password", &actorID, testOrigin(), map[string]string{"failed_attempts": "3"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("audit event was never persisted")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, created)
	assert.Equal(t, "login_failed:wrong_password", created.Action)
	assert.Equal(t, models.AuditOutcomeFailure, created.Outcome)
	require.NotNil(t, created.ActorID)
	assert.Equal(t, "user-1", *created.ActorID)
	require.NotNil(t, created.IPAddress)
	assert.Equal(t, "203.0.113.10", *created.IPAddress)
	assert.Equal(t, "3", created.Metadata["failed_attempts"])
}

func TestAuditRecord_StoreFailureDoesNotPanic(t *testing.T) {
	done := make(chan struct{})
	repo := &MockAuditRepository{
		CreateFunc: func(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
			close(done)
			return nil, errors.New("insert failed")
		},
	}

	svc := newTestAuditService(repo)
	svc.Success("login_success", nil, testOrigin(), nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("audit event write was never attempted")
	}
}

func TestAuditListByActor(t *testing.T) {
	repo := &MockAuditRepository{
		ListByActorFunc: func(ctx context.Context, actorID string, limit int, offset int) ([]*models.SecurityEvent, error) {
			return []*models.SecurityEvent{{Action: "login_success"}}, nil
		},
		CountByActorFunc: func(ctx context.Context, actorID string) (int64, error) {
			return 1, nil
		},
	}

	svc := newTestAuditService(repo)
	events, total, err := svc.ListByActor(context.Background(), "user-1", 50, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, int64(1), total)
}
