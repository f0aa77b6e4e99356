//go:build integration

package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	id "authrelay/pkg/domain"
	audit "authrelay/pkg/platform/audit"
	auditconsumer "authrelay/pkg/platform/audit/consumer"
	auditpg "authrelay/pkg/platform/audit/store/postgres"
	"authrelay/pkg/testutil/containers"

	"authrelay/internal/platform/kafka"
	pgplatform "authrelay/internal/platform/postgres"
)

type RelayIntegrationSuite struct {
	suite.Suite
	ctx      context.Context
	pg       *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	store    *auditpg.Store
	producer *kafka.Producer
}

func (s *RelayIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())
	s.Require().NoError(pgplatform.EnsureSchema(s.ctx, s.pg.DB))
	s.store = auditpg.New(s.pg.DB)

	s.redpanda = containers.NewRedpandaContainer(s.T())
	var err error
	s.producer, err = kafka.NewProducer(s.ctx, s.redpanda.Broker)
	s.Require().NoError(err)
	s.T().Cleanup(s.producer.Close)
}

func (s *RelayIntegrationSuite) TestRelayPublishesPendingEntries() {
	credID := id.CredentialID(uuid.New())
	event := audit.Event{
		Timestamp:    time.Now(),
		CredentialID: credID,
		Action:       string(audit.EventDelegationRejected),
		Decision:     "rejected",
		Reason:       "domain_not_allowed",
	}
	s.Require().NoError(s.store.Append(s.ctx, event))

	relayCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	relay := NewRelay(s.pg.DB, s.producer, slog.Default(), WithInterval(100*time.Millisecond))
	go func() { _ = relay.Run(relayCtx) }()

	record := s.consumeOne("audit.security", 30*time.Second)

	var payload map[string]any
	s.Require().NoError(json.Unmarshal(record.Value, &payload))
	s.Equal(string(audit.EventDelegationRejected), payload["Action"])
	s.Equal(credID.String(), payload["CredentialID"])
	s.Equal(credID.String(), string(record.Key))

	// The row is marked published so the next poll does not resend it.
	s.Require().Eventually(func() bool {
		var pending int
		err := s.pg.DB.QueryRowContext(s.ctx,
			`SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending)
		return err == nil && pending == 0
	}, 10*time.Second, 200*time.Millisecond)

	// Read side: materializing the consumed record makes the event visible
	// to the admin trail query.
	materializer := auditconsumer.NewMaterializer(s.store, slog.Default())
	s.Require().NoError(materializer.Handle(s.ctx, &kafka.Message{
		Topic: record.Topic,
		Key:   record.Key,
		Value: record.Value,
	}))

	events, err := s.store.ListByCredential(s.ctx, credID)
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventDelegationRejected), events[0].Action)
	s.Equal("domain_not_allowed", events[0].Reason)
}

func (s *RelayIntegrationSuite) consumeOne(topic string, timeout time.Duration) *kgo.Record {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(s.T(), err)
	defer client.Close()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pollCtx, cancel := context.WithTimeout(s.ctx, 2*time.Second)
		fetches := client.PollFetches(pollCtx)
		cancel()
		if records := fetches.Records(); len(records) > 0 {
			return records[0]
		}
	}
	s.T().Fatalf("no record received on %s within %s", topic, timeout)
	return nil
}

func TestRelayIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RelayIntegrationSuite))
}
