// Package kafka wraps the franz-go client for the audit outbox relay.
package kafka

import (
	"context"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// AuditTopics are the topics the relay produces to and the materializer
// consumes from, created on startup when missing.
var AuditTopics = []string{"audit.compliance", "audit.security", "audit.operations"}

// Producer publishes audit payloads to Kafka.
type Producer struct {
	client *kgo.Client
}

// NewProducer connects to the given brokers (comma-separated) and ensures
// the audit topics exist.
func NewProducer(ctx context.Context, brokers string) (*Producer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
		kgo.ProducerLinger(0),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopics(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	return &Producer{client: client}, nil
}

func ensureTopics(ctx context.Context, client *kgo.Client) error {
	adm := kadm.NewClient(client)

	existing, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	var missing []string
	for _, topic := range AuditTopics {
		if !existing.Has(topic) {
			missing = append(missing, topic)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if _, err := adm.CreateTopics(ctx, 3, 1, nil, missing...); err != nil {
		return fmt.Errorf("create audit topics: %w", err)
	}
	return nil
}

// Produce publishes one record synchronously. The outbox relay retries on
// error, so there is no in-process retry here.
func (p *Producer) Produce(ctx context.Context, topic string, key, payload []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: payload}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}
	return nil
}

// Close flushes and closes the underlying client.
func (p *Producer) Close() {
	p.client.Close()
}
