package repositories

import (
	"context"
	"fmt"

	"github.com/ciro140903/airag-auth/internal/database"
	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLogRepository handles security event data access
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var event models.SecurityEvent

	err := row.Scan(
		&event.ID, &event.ActorID, &event.Action, &event.Outcome,
		&event.IPAddress, &event.UserAgent, &event.Metadata, &event.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &event, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)

	for rows.Next() {
		event, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// Create persists a security event
func (r *AuditLogRepository) Create(ctx context.Context, event *models.SecurityEvent) (*models.SecurityEvent, error) {
	query := `
		INSERT INTO audit_logs (actor_id, action, outcome, ip_address, user_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, actor_id, action, outcome, ip_address, user_agent, metadata, created_at
	`

	result, err := scanSecurityEventRow(r.pool.QueryRow(
		ctx, query,
		event.ActorID, event.Action, event.Outcome,
		event.IPAddress, event.UserAgent, event.Metadata,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create security event: %w", err)
	}

	return result, nil
}

// ListByActor retrieves events for a specific actor, newest first
func (r *AuditLogRepository) ListByActor(ctx context.Context, actorID string, limit int, offset int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, actor_id, action, outcome, ip_address, user_agent, metadata, created_at
		FROM audit_logs
		WHERE actor_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, actorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// ListByAction retrieves events by action name
func (r *AuditLogRepository) ListByAction(ctx context.Context, action string, limit int, offset int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, actor_id, action, outcome, ip_address, user_agent, metadata, created_at
		FROM audit_logs
		WHERE action = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, action, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// ListFailures retrieves failed events
func (r *AuditLogRepository) ListFailures(ctx context.Context, limit int, offset int) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, actor_id, action, outcome, ip_address, user_agent, metadata, created_at
		FROM audit_logs
		WHERE outcome = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, models.AuditOutcomeFailure, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// CountByActor counts events for a specific actor
func (r *AuditLogRepository) CountByActor(ctx context.Context, actorID string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE actor_id = $1`, actorID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}

	return count, nil
}

// Cleanup removes events older than the specified number of days
func (r *AuditLogRepository) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	query := `
		DELETE FROM audit_logs
		WHERE created_at < CURRENT_TIMESTAMP - INTERVAL '1 day' * $1
	`

	result, err := r.pool.Exec(ctx, query, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup security events: %w", err)
	}

	return result.RowsAffected(), nil
}
