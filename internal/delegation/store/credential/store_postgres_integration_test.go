//go:build integration

package credential

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "authrelay/pkg/domain"
	"authrelay/pkg/platform/sentinel"
	"authrelay/pkg/testutil/containers"

	pgplatform "authrelay/internal/platform/postgres"

	"authrelay/internal/delegation/models"
)

type PostgresStoreIntegrationSuite struct {
	suite.Suite
	store *PostgresStore
	ctx   context.Context
}

func (s *PostgresStoreIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	pg := containers.NewPostgresContainer(s.T())
	s.Require().NoError(pgplatform.EnsureSchema(s.ctx, pg.DB))
	s.store = NewPostgres(pg.DB)
}

func (s *PostgresStoreIntegrationSuite) TestGetUnknownID() {
	_, err := s.store.Get(s.ctx, id.CredentialID(uuid.New()))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreIntegrationSuite) TestSaveAndGetRoundTrip() {
	cred, err := models.NewCredential(
		id.CredentialID(uuid.New()), "reporting-service",
		[]models.Permission{models.PermRequirementsRead, models.PermAssessmentsRead},
		true, []string{"@corp.example.com", "@partner.example.org"},
	)
	s.Require().NoError(err)
	cred.SecretHash = "$2a$10$examplehash"
	s.Require().NoError(s.store.Save(s.ctx, cred))

	got, err := s.store.Get(s.ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal(cred.Name, got.Name)
	s.ElementsMatch(cred.Permissions, got.Permissions)
	s.True(got.DelegationEnabled)
	s.ElementsMatch(cred.AllowedDomains, got.AllowedDomains)
	s.Equal(cred.SecretHash, got.SecretHash)
}

func (s *PostgresStoreIntegrationSuite) TestUpsertDisablesDelegation() {
	cred, err := models.NewCredential(
		id.CredentialID(uuid.New()), "legacy-service",
		[]models.Permission{models.PermStandardsRead},
		true, []string{"@corp.example.com"},
	)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(s.ctx, cred))

	cred.DelegationEnabled = false
	cred.AllowedDomains = nil
	s.Require().NoError(s.store.Save(s.ctx, cred))

	got, err := s.store.Get(s.ctx, cred.ID)
	s.Require().NoError(err)
	s.False(got.DelegationEnabled)
	s.Empty(got.AllowedDomains)
}

func TestPostgresStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreIntegrationSuite))
}
