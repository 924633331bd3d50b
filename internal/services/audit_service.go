package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/ciro140903/airag-auth/internal/models"
	pkglogger "github.com/ciro140903/airag-auth/pkg/logger"
)

// AuditRepository defines the interface for security event persistence
type AuditRepository interface {
	Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error)
	ListByActor(ctx context.Context, actorID string, limit int, offset int) ([]*models.SecurityEvent, error)
	CountByActor(ctx context.Context, actorID string) (int64, error)
	ListFailures(ctx context.Context, limit int, offset int) ([]*models.SecurityEvent, error)
}

// AuditService records security events to both the structured log and the
// audit_logs table. Writes never fail the calling operation.
type AuditService struct {
	repo        AuditRepository
	auditLogger *pkglogger.AuditLogger
	logger      *slog.Logger
}

func NewAuditService(repo AuditRepository, auditLogger *pkglogger.AuditLogger, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		auditLogger: auditLogger,
		logger:      logger,
	}
}

// Record writes one security event. The log write is synchronous and cheap;
// the database write runs detached from the request context so a slow or
// failing insert cannot delay or fail the audited operation.
func (s *AuditService) Record(action string, actorID *string, origin models.RequestOrigin, outcome string, metadata map[string]string) {
	actor := ""
	if actorID != nil {
		actor = *actorID
	}
	s.auditLogger.Log(pkglogger.AuditEvent{
		Action:    action,
		ActorID:   actor,
		IPAddress: origin.IPAddress,
		UserAgent: origin.UserAgent,
		Success:   outcome == models.AuditOutcomeSuccess,
		Metadata:  metadata,
	})

	event := &models.SecurityEvent{
		ActorID:  actorID,
		Action:   action,
		Outcome:  outcome,
		Metadata: metadata,
	}
	if origin.IPAddress != "" {
		ip := origin.IPAddress
		event.IPAddress = &ip
	}
	if origin.UserAgent != "" {
		ua := origin.UserAgent
		event.UserAgent = &ua
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := s.repo.Create(ctx, event); err != nil {
			s.logger.Error("failed to persist security event",
				slog.String("action", action),
				slog.Any("error", err))
		}
	}()
}

// Success records a successful event.
func (s *AuditService) Success(action string, actorID *string, origin models.RequestOrigin, metadata map[string]string) {
	s.Record(action, actorID, origin, models.AuditOutcomeSuccess, metadata)
}

// Failure records a failed event.
func (s *AuditService) Failure(action string, actorID *string, origin models.RequestOrigin, metadata map[string]string) {
	s.Record(action, actorID, origin, models.AuditOutcomeFailure, metadata)
}

// ListByActor returns an actor's security events with a total count.
func (s *AuditService) ListByActor(ctx context.Context, actorID string, limit, offset int) ([]*models.SecurityEvent, int64, error) {
	events, err := s.repo.ListByActor(ctx, actorID, limit, offset)
	if err != nil {
		s.logger.Error("failed to list security events", slog.String("actor_id", actorID), slog.Any("error", err))
		return nil, 0, models.ErrInternalServer
	}

	count, err := s.repo.CountByActor(ctx, actorID)
	if err != nil {
		s.logger.Error("failed to count security events", slog.String("actor_id", actorID), slog.Any("error", err))
		return nil, 0, models.ErrInternalServer
	}

	return events, count, nil
}

// ListFailures returns recent failed events across all actors.
func (s *AuditService) ListFailures(ctx context.Context, limit, offset int) ([]*models.SecurityEvent, error) {
	events, err := s.repo.ListFailures(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list failed security events", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return events, nil
}
