package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestHashAndCheckPassword(t *testing.T) {
	pwd := "s3cr3t-password"
	hash, err := HashPassword(pwd)
	require.NoError(t, err)

	assert.NoError(t, CheckPassword(hash, pwd))
	assert.Error(t, CheckPassword(hash, "wrong"))
}

func TestJWTManager_GenerateAndVerify(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)

	id := bson.NewObjectID()
	token, expiresAt, err := m.GenerateToken(id, "Alice")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, id.Hex(), claims.UserID)
	assert.Equal(t, "Alice", claims.DisplayName)
	assert.NotEmpty(t, claims.ID, "jti must be set so logout can blacklist the token")

	parsed, err := claims.UserObjectID()
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestJWTManager_UniqueJTI(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)
	id := bson.NewObjectID()

	t1, _, err := m.GenerateToken(id, "Alice")
	require.NoError(t, err)
	t2, _, err := m.GenerateToken(id, "Alice")
	require.NoError(t, err)

	c1, err := m.VerifyToken(t1)
	require.NoError(t, err)
	c2, err := m.VerifyToken(t2)
	require.NoError(t, err)

	assert.NotEqual(t, c1.ID, c2.ID, "each session must carry its own jti")
}

func TestJWTManager_RejectsForeignSecret(t *testing.T) {
	m := NewJWTManager("test-secret", 5*time.Minute)
	other := NewJWTManager("other-secret", 5*time.Minute)

	token, _, err := m.GenerateToken(bson.NewObjectID(), "Alice")
	require.NoError(t, err)

	_, err = other.VerifyToken(token)
	assert.Error(t, err)
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)

	token, _, err := m.GenerateToken(bson.NewObjectID(), "Alice")
	require.NoError(t, err)

	_, err = m.VerifyToken(token)
	assert.Error(t, err)
}
