package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ciro140903/airag-auth/internal/models"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	RecordFailedLogin(ctx context.Context, id string, maxAttempts int, lockout time.Duration) (int, *time.Time, error)
	RecordSuccessfulLogin(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id, role string) error
	SetVerified(ctx context.Context, id string, verified bool) error
	Unlock(ctx context.Context, id string) error
}

// UserService handles administrative user management
type UserService struct {
	repo   UserRepository
	audit  *AuditService
	logger *slog.Logger
}

func NewUserService(repo UserRepository, audit *AuditService, logger *slog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		audit:  audit,
		logger: logger,
	}
}

// UserListResponse wraps a page of users with the total count
type UserListResponse struct {
	Users []*UserResponse `json:"users"`
	Total int             `json:"total"`
}

func (s *UserService) Get(ctx context.Context, id string) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", id), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return userModelToResponse(user), nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) (*UserListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		s.logger.Error("failed to list users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	total, err := s.repo.Count(ctx)
	if err != nil {
		s.logger.Error("failed to count users", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	responses := make([]*UserResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, userModelToResponse(user))
	}

	return &UserListResponse{Users: responses, Total: total}, nil
}

// SetActive activates or deactivates an account. Admins cannot deactivate
// themselves, which preserves at least one working admin session.
func (s *UserService) SetActive(ctx context.Context, actorID, targetID string, active bool, origin models.RequestOrigin) error {
	if !active && actorID == targetID {
		return models.ErrForbidden
	}

	if err := s.repo.SetActive(ctx, targetID, active); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to set user active state", slog.String("user_id", targetID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	action := "user_deactivated"
	if active {
		action = "user_activated"
	}
	s.audit.Success(action, &actorID, origin, map[string]string{"target_id": targetID})

	return nil
}

// SetRole changes a user's role. Admins cannot demote themselves.
func (s *UserService) SetRole(ctx context.Context, actorID, targetID, role string, origin models.RequestOrigin) error {
	if role != "user" && role != "admin" {
		return models.ErrBadRequest
	}
	if actorID == targetID && role != "admin" {
		return models.ErrForbidden
	}

	if err := s.repo.SetRole(ctx, targetID, role); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to set user role", slog.String("user_id", targetID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Success("user_role_changed", &actorID, origin, map[string]string{
		"target_id": targetID,
		"role":      role,
	})

	return nil
}

// SetVerified marks an account as verified (or clears the mark). Verification
// is an admin action here; there is no self-service email confirmation flow.
func (s *UserService) SetVerified(ctx context.Context, actorID, targetID string, verified bool, origin models.RequestOrigin) error {
	if err := s.repo.SetVerified(ctx, targetID, verified); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to set user verified state", slog.String("user_id", targetID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	action := "user_unverified"
	if verified {
		action = "user_verified"
	}
	s.audit.Success(action, &actorID, origin, map[string]string{"target_id": targetID})

	return nil
}

// Unlock clears a lockout before it expires on its own.
func (s *UserService) Unlock(ctx context.Context, actorID, targetID string, origin models.RequestOrigin) error {
	if err := s.repo.Unlock(ctx, targetID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to unlock user", slog.String("user_id", targetID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Success("user_unlocked", &actorID, origin, map[string]string{"target_id": targetID})

	return nil
}
