package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/amirk1998/stocktalk/pkg/errors"
)

// DefaultTokenTTL is how long an issued token stays valid
const DefaultTokenTTL = 24 * time.Hour

// Claims carried by every session token
type Claims struct {
	UserID int `json:"uid"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies stateless HS256 session tokens
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type TokenOption func(*TokenService)

// WithClock replaces the wall clock, for tests
func WithClock(now func() time.Time) TokenOption {
	return func(ts *TokenService) { ts.now = now }
}

// NewTokenService creates a token service. A non-positive ttl means DefaultTokenTTL.
func NewTokenService(secret []byte, ttl time.Duration, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("token secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	ts := &TokenService{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(ts)
	}
	return ts, nil
}

// Issue signs a token for userID and returns it with its expiry
func (ts *TokenService) Issue(userID int) (string, time.Time, error) {
	now := ts.now()
	expiresAt := now.Add(ts.ttl)

	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify checks the signature and expiry and returns the user id.
// Expired tokens yield ErrTokenExpired, anything else that fails ErrInvalidToken.
func (ts *TokenService) Verify(tokenString string) (int, error) {
	if tokenString == "" {
		return 0, apperrors.ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return ts.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, apperrors.ErrTokenExpired
		}
		return 0, apperrors.ErrInvalidToken
	}

	if !token.Valid || claims.UserID <= 0 {
		return 0, apperrors.ErrInvalidToken
	}

	return claims.UserID, nil
}
