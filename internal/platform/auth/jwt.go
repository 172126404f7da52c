package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// User roles as carried in access tokens.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var (
	// ErrInvalidToken is returned for malformed, expired, or mis-signed tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims issued by the identity provider. Nickname
// is denormalized so audit log entries can record it without a lookup.
type Claims struct {
	UserID   uuid.UUID `json:"uid"`
	Nickname string    `json:"nickname"`
	Role     string    `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager verifies and issues access tokens.
type JWTManager struct {
	secret        []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	signingMethod jwt.SigningMethod
}

// NewJWTManager creates a JWTManager with the given secret and lifetimes.
func NewJWTManager(secret string, accessTTL, refreshTTL time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		signingMethod: jwt.SigningMethodHS256,
	}
}

// Generate issues a signed access token for the given user.
func (m *JWTManager) Generate(userID uuid.UUID, nickname, role string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:   userID,
		Nickname: nickname,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
			Subject:   userID.String(),
		},
	}
	return jwt.NewWithClaims(m.signingMethod, claims).SignedString(m.secret)
}

// Verify parses and validates an access token, returning its claims.
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != m.signingMethod {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
