package revoke

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis, letting the server's TTL
// machinery do the pruning.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func revokedKey(token string) string {
	return "revoked:" + token
}

// Revoke records the token with a TTL matching its remaining lifetime.
// Tokens already past expiry are not recorded at all.
func (s *RedisStore) Revoke(ctx context.Context, token, userID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	// SET is idempotent, so a duplicate revocation just refreshes the entry.
	return s.client.Set(ctx, revokedKey(token), userID, ttl).Err()
}

// IsRevoked reports whether the token has a live revocation entry.
func (s *RedisStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Remember implements first-writer-wins with SETNX; on a duplicate the
// original value is read back.
func (s *RedisStore) Remember(ctx context.Context, key, value string, ttl time.Duration) (string, bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return value, false, nil
	}

	existing, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// Expired between SETNX and GET; treat as fresh.
		return value, false, s.client.Set(ctx, key, value, ttl).Err()
	}
	if err != nil {
		return "", false, err
	}
	return existing, true, nil
}
