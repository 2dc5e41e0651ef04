// Package auth signs and validates the JWT tokens the API perimeter
// trusts, and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"
)

// JWTManager signs and validates the API's JWT tokens.
type JWTManager struct {
	secretKey string
	duration  time.Duration
}

// Claims is the token payload. ID (the registered jti) is a uuid so a
// single token can be blacklisted on logout without touching the user's
// other sessions.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// NewJWTManager returns a configured JWTManager.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{secretKey: secretKey, duration: duration}
}

// GenerateToken issues a signed token for a user.
func (m *JWTManager) GenerateToken(userID bson.ObjectID, displayName string) (string, time.Time, error) {
	expiresAt := time.Now().Add(m.duration)

	claims := &Claims{
		UserID:      userID.Hex(),
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// The API only ever signs with HMAC; reject anything else.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// UserObjectID converts the claims' user id back to an ObjectID.
func (c *Claims) UserObjectID() (bson.ObjectID, error) {
	return bson.ObjectIDFromHex(c.UserID)
}

// HashPassword returns a bcrypt hash for the provided plaintext.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
// Timing-safe.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
