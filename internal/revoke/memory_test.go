package revoke

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RevokeAndCheck(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	revoked, err := s.IsRevoked(ctx, "tok-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.Revoke(ctx, "tok-1", "user-a", time.Now().Add(time.Hour)))

	revoked, err = s.IsRevoked(ctx, "tok-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// Duplicate revocation is a no-op, not an error.
	require.NoError(t, s.Revoke(ctx, "tok-1", "user-a", time.Now().Add(time.Hour)))
}

func TestMemoryStore_ExpiryPrunes(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Revoke(ctx, "tok-2", "user-a", time.Now().Add(20*time.Millisecond)))

	revoked, err := s.IsRevoked(ctx, "tok-2")
	require.NoError(t, err)
	assert.True(t, revoked)

	time.Sleep(40 * time.Millisecond)

	revoked, err = s.IsRevoked(ctx, "tok-2")
	require.NoError(t, err)
	assert.False(t, revoked, "entries past expiry must read as not revoked")
}

func TestMemoryStore_RevokeAlreadyExpiredToken(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Revoke(ctx, "tok-3", "user-a", time.Now().Add(-time.Minute)))

	revoked, err := s.IsRevoked(ctx, "tok-3")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestMemoryStore_Remember(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	got, dup, err := s.Remember(ctx, "send:k1", "msg-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, "msg-1", got)

	// Second writer gets the first value back.
	got, dup, err = s.Remember(ctx, "send:k1", "msg-2", time.Hour)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, "msg-1", got)
}

func TestMemoryStore_RememberExpires(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	defer s.Close()
	ctx := context.Background()

	_, dup, err := s.Remember(ctx, "send:k2", "msg-1", 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, dup)

	time.Sleep(40 * time.Millisecond)

	got, dup, err := s.Remember(ctx, "send:k2", "msg-3", time.Hour)
	require.NoError(t, err)
	assert.False(t, dup, "an expired key is free to reuse")
	assert.Equal(t, "msg-3", got)
}

func TestMemoryStore_SweepRemovesEntries(t *testing.T) {
	s := NewMemoryStore(10 * time.Millisecond)
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Revoke(ctx, "tok-4", "user-a", time.Now().Add(15*time.Millisecond)))
	time.Sleep(50 * time.Millisecond)

	s.mu.Lock()
	_, present := s.entries[revokedKey("tok-4")]
	s.mu.Unlock()
	assert.False(t, present, "sweep should drop expired entries")
}
