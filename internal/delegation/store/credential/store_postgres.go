package credential

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

// PostgresStore loads service credentials from the credentials table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres creates a credential store backed by Postgres.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns the credential with the given id.
func (s *PostgresStore) Get(ctx context.Context, id domain.CredentialID) (*models.Credential, error) {
	const query = `
		SELECT id, name, permissions, delegation_enabled, allowed_domains, secret_hash
		FROM credentials
		WHERE id = $1`

	var (
		rawID       string
		cred        models.Credential
		permissions []string
		domains     []string
	)
	err := s.db.QueryRowContext(ctx, query, id.String()).Scan(
		&rawID, &cred.Name, pq.Array(&permissions), &cred.DelegationEnabled, pq.Array(&domains), &cred.SecretHash,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "query credential")
	}

	cred.ID, err = domain.ParseCredentialID(rawID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "parse stored credential id")
	}
	cred.Permissions = make([]models.Permission, 0, len(permissions))
	for _, p := range permissions {
		cred.Permissions = append(cred.Permissions, models.Permission(p))
	}
	cred.AllowedDomains = domains
	return &cred, nil
}

// Save upserts a credential record.
func (s *PostgresStore) Save(ctx context.Context, cred *models.Credential) error {
	const query = `
		INSERT INTO credentials (id, name, permissions, delegation_enabled, allowed_domains, secret_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    permissions = EXCLUDED.permissions,
		    delegation_enabled = EXCLUDED.delegation_enabled,
		    allowed_domains = EXCLUDED.allowed_domains,
		    secret_hash = EXCLUDED.secret_hash`

	permissions := make([]string, 0, len(cred.Permissions))
	for _, p := range cred.Permissions {
		permissions = append(permissions, string(p))
	}
	domains := cred.AllowedDomains
	if domains == nil {
		domains = []string{}
	}
	_, err := s.db.ExecContext(ctx, query,
		cred.ID.String(), cred.Name, pq.Array(permissions), cred.DelegationEnabled, pq.Array(domains), cred.SecretHash,
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "upsert credential")
	}
	return nil
}
