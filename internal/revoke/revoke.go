// Package revoke records revoked session tokens until their natural
// expiry. The authentication perimeter consults it on every request; the
// messaging core never calls it directly. The same expiring key-value
// surface also backs send-idempotency keys.
package revoke

import (
	"context"
	"time"
)

// Store is the session revocation contract plus the generic
// remember-with-TTL operation used for send deduplication.
type Store interface {
	// Revoke records a token until expiresAt. Revoking the same token twice
	// is a no-op, not an error. Entries whose expiry has passed are pruned
	// automatically.
	Revoke(ctx context.Context, token, userID string, expiresAt time.Time) error

	// IsRevoked reports whether token is currently revoked.
	IsRevoked(ctx context.Context, token string) (bool, error)

	// Remember stores value under key for ttl unless the key already
	// exists, in which case the existing value is returned with
	// duplicate=true.
	Remember(ctx context.Context, key, value string, ttl time.Duration) (existing string, duplicate bool, err error)

	Close() error
}
