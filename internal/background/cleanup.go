package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiringStore deletes rows whose retention window has passed.
type ExpiringStore interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// AuditStore prunes audit entries older than the retention period.
type AuditStore interface {
	Cleanup(ctx context.Context, olderThanDays int) (int64, error)
}

// CleanupManager periodically removes expired revocation entries, stale
// rate limit counters and old audit rows from the database.
type CleanupManager struct {
	revoked        ExpiringStore
	rateLimits     ExpiringStore
	audit          AuditStore
	auditRetention int
	logger         *slog.Logger
	interval       time.Duration
	stopCh         chan struct{}
}

// NewCleanupManager creates a new cleanup manager. auditRetentionDays of
// zero disables audit pruning.
func NewCleanupManager(
	revoked ExpiringStore,
	rateLimits ExpiringStore,
	audit AuditStore,
	auditRetentionDays int,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		revoked:        revoked,
		rateLimits:     rateLimits,
		audit:          audit,
		auditRetention: auditRetentionDays,
		logger:         logger,
		interval:       interval,
		stopCh:         make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if deleted, err := cm.revoked.CleanupExpired(cleanupCtx); err != nil {
		cm.logger.Error("failed to cleanup expired revoked tokens", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("expired revoked tokens removed", slog.Int64("rows_deleted", deleted))
	}

	if deleted, err := cm.rateLimits.CleanupExpired(cleanupCtx); err != nil {
		cm.logger.Error("failed to cleanup rate limit counters", slog.Any("error", err))
	} else if deleted > 0 {
		cm.logger.Info("stale rate limit counters removed", slog.Int64("rows_deleted", deleted))
	}

	if cm.audit != nil && cm.auditRetention > 0 {
		if deleted, err := cm.audit.Cleanup(cleanupCtx, cm.auditRetention); err != nil {
			cm.logger.Error("failed to prune audit log", slog.Any("error", err))
		} else if deleted > 0 {
			cm.logger.Info("old audit entries removed", slog.Int64("rows_deleted", deleted))
		}
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
