package failure

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	id "authrelay/pkg/domain"

	"authrelay/internal/delegation/models"
)

// RedisStore implements the failure tracker on a Redis sorted set per
// credential, scored by failure timestamp. Pruning is a range delete, the
// alert claim is SET NX with the window as TTL, so multi-instance
// deployments share one view of the window and raise exactly one alert per
// breach.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed failure store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func failuresKey(credentialID id.CredentialID) string {
	return "delegation:failures:" + credentialID.String()
}

func alertKey(credentialID id.CredentialID) string {
	return "delegation:alerted:" + credentialID.String()
}

// RecordFailure appends the record, prunes stale entries, and returns the
// in-window count plus the oldest surviving timestamp.
func (s *RedisStore) RecordFailure(ctx context.Context, record models.FailureRecord, window time.Duration) (int, time.Time, error) {
	key := failuresKey(record.CredentialID)
	cutoff := record.Timestamp.Add(-window)

	// Member carries email and reason for forensics; the uuid suffix keeps
	// simultaneous failures distinct.
	member := fmt.Sprintf("%s|%s|%s", record.Email, record.Reason, uuid.NewString())

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff.UnixNano()))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(record.Timestamp.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)
	pipe.Expire(ctx, key, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("record failure: %w", err)
	}

	windowStart := record.Timestamp
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		windowStart = time.Unix(0, int64(oldest[0].Score))
	}
	return int(countCmd.Val()), windowStart, nil
}

// CountInWindow prunes and counts without recording.
func (s *RedisStore) CountInWindow(ctx context.Context, credentialID id.CredentialID, now time.Time, window time.Duration) (int, error) {
	key := failuresKey(credentialID)
	cutoff := now.Add(-window)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return int(countCmd.Val()), nil
}

// TryMarkAlerted claims the breach alert via SET NX with the window as TTL.
func (s *RedisStore) TryMarkAlerted(ctx context.Context, credentialID id.CredentialID, _ time.Time, window time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, alertKey(credentialID), 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("mark alerted: %w", err)
	}
	return ok, nil
}
