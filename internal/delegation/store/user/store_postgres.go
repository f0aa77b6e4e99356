package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"authrelay/pkg/domain"
	dErrors "authrelay/pkg/domain-errors"
	"authrelay/pkg/platform/sentinel"

	"authrelay/internal/delegation/models"
)

// PostgresStore resolves delegated users from the users table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a user store backed by Postgres.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Resolve looks a user up by email, case-insensitively.
func (s *PostgresStore) Resolve(ctx context.Context, addr string) (*models.Identity, error) {
	const query = `
		SELECT id, email, roles, active
		FROM users
		WHERE LOWER(email) = LOWER($1)`

	var (
		rawID    string
		identity models.Identity
		roles    []string
	)
	err := s.db.QueryRowContext(ctx, query, addr).Scan(&rawID, &identity.Email, pq.Array(&roles), &identity.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query user by email")
	}

	identity.ID, err = domain.ParseUserID(rawID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "parse stored user id")
	}
	identity.Roles = make([]models.Role, 0, len(roles))
	for _, r := range roles {
		identity.Roles = append(identity.Roles, models.Role(r))
	}
	return &identity, nil
}

// Save upserts a user record, keyed by id.
func (s *PostgresStore) Save(ctx context.Context, identity *models.Identity) error {
	const query = `
		INSERT INTO users (id, email, roles, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET email = EXCLUDED.email, roles = EXCLUDED.roles, active = EXCLUDED.active`

	roles := make([]string, 0, len(identity.Roles))
	for _, r := range identity.Roles {
		roles = append(roles, string(r))
	}
	_, err := s.db.ExecContext(ctx, query, identity.ID.String(), identity.Email, pq.Array(roles), identity.Active)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "upsert user")
	}
	return nil
}
