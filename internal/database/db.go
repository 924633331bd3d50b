package database

import (
	"errors"
	"strings"

	"github.com/ciro140903/airag-auth/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapPostgresError translates driver errors into the domain's sentinel errors.
// Unique violations on the users table become field-specific conflicts so
// registration can report whether the username or the email collided.
func MapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return models.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			switch {
			case strings.Contains(pgErr.ConstraintName, "username"):
				return &models.ConflictError{Field: "username"}
			case strings.Contains(pgErr.ConstraintName, "email"):
				return &models.ConflictError{Field: "email"}
			}
			return models.ErrConflict
		case "23503": // foreign_key_violation
			return models.ErrBadRequest
		case "23502": // not_null_violation
			return models.ErrBadRequest
		}
	}

	return err
}
