// Package dedup remembers which AS2 message IDs already produced a delivered
// notification so that a resent message is not announced twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/as2hooks/internal/models"
)

const keyPrefix = "as2hooks:delivered:"

// Store records delivered message IDs.
type Store interface {
	// Seen reports whether messageID was already delivered.
	Seen(ctx context.Context, messageID string) (bool, error)
	// Mark records messageID as delivered.
	Mark(ctx context.Context, messageID, deliveryID string) error
	Close() error
}

// RedisStore keeps one expiring key per delivered message ID.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisStoreFromClient(client, ttl), nil
}

// NewRedisStoreFromClient wraps an existing connection.
func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

// Seen reports whether messageID has a delivery marker. UNKNOWN IDs are
// never considered seen.
func (s *RedisStore) Seen(ctx context.Context, messageID string) (bool, error) {
	if !trackable(messageID) {
		return false, nil
	}

	n, err := s.client.Exists(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return n > 0, nil
}

// Mark stores the delivery ID under messageID for the configured TTL.
func (s *RedisStore) Mark(ctx context.Context, messageID, deliveryID string) error {
	if !trackable(messageID) {
		return nil
	}

	if err := s.client.Set(ctx, keyPrefix+messageID, deliveryID, s.ttl).Err(); err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func trackable(messageID string) bool {
	return messageID != "" && messageID != models.UnknownID
}

// NoOpStore never reports a message as seen.
type NoOpStore struct{}

func (NoOpStore) Seen(context.Context, string) (bool, error) { return false, nil }

func (NoOpStore) Mark(context.Context, string, string) error { return nil }

func (NoOpStore) Close() error { return nil }
