package credential

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"authrelay/pkg/domain"
	"authrelay/pkg/platform/sentinel"

	"authrelay/internal/delegation/models"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) TestGetUnknownID() {
	_, err := s.store.Get(s.ctx, domain.CredentialID(uuid.New()))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemoryStoreSuite) TestSaveAndGet() {
	cred, err := models.NewCredential(
		domain.CredentialID(uuid.New()),
		"reporting-service",
		[]models.Permission{models.PermRequirementsRead, models.PermAssessmentsRead},
		true,
		[]string{"@example.com"},
	)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(s.ctx, cred))

	got, err := s.store.Get(s.ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal(cred.Name, got.Name)
	s.Equal(cred.Permissions, got.Permissions)
	s.True(got.DelegationEnabled)
	s.Equal([]string{"@example.com"}, got.AllowedDomains)
}

func (s *InMemoryStoreSuite) TestListReturnsAll() {
	for _, name := range []string{"svc-a", "svc-b"} {
		cred, err := models.NewCredential(
			domain.CredentialID(uuid.New()), name,
			[]models.Permission{models.PermStandardsRead}, false, nil,
		)
		s.Require().NoError(err)
		s.Require().NoError(s.store.Save(s.ctx, cred))
	}

	all, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}
