package background

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeExpiringStore struct {
	calls   int
	deleted int64
	err     error
}

func (f *fakeExpiringStore) CleanupExpired(ctx context.Context) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

type fakeAuditStore struct {
	calls int
	days  int
}

func (f *fakeAuditStore) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	f.calls++
	f.days = olderThanDays
	return 3, nil
}

func TestCleanupManager_RunsAllStores(t *testing.T) {
	revoked := &fakeExpiringStore{deleted: 5}
	rates := &fakeExpiringStore{}
	audit := &fakeAuditStore{}

	cm := NewCleanupManager(revoked, rates, audit, 90,
		slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)

	cm.runCleanup(context.Background())

	assert.Equal(t, 1, revoked.calls)
	assert.Equal(t, 1, rates.calls)
	assert.Equal(t, 1, audit.calls)
	assert.Equal(t, 90, audit.days)
}

func TestCleanupManager_SkipsAuditWhenRetentionDisabled(t *testing.T) {
	audit := &fakeAuditStore{}

	cm := NewCleanupManager(&fakeExpiringStore{}, &fakeExpiringStore{}, audit, 0,
		slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)

	cm.runCleanup(context.Background())

	assert.Equal(t, 0, audit.calls)
}

func TestCleanupManager_StopTerminatesLoop(t *testing.T) {
	cm := NewCleanupManager(&fakeExpiringStore{}, &fakeExpiringStore{}, nil, 0,
		slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)

	done := make(chan struct{})
	go func() {
		cm.Start(context.Background())
		close(done)
	}()

	cm.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup manager did not stop")
	}
}
