package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims are the session token claims: sub is the user id, jti identifies the
// token for revocation. iat_ms carries the issue instant in milliseconds
// because the registered iat only has second precision.
type Claims struct {
	jwt.RegisteredClaims
	IssuedAtMilli int64 `json:"iat_ms,omitempty"`
}

func (c *Claims) UserID() string { return c.Subject }

func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAtMilli > 0 {
		return time.UnixMilli(c.IssuedAtMilli).UTC()
	}
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// TokenCodec issues and verifies HS256 session tokens.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenCodec builds a codec from the process-wide secret and TTL.
func NewTokenCodec(secret []byte, ttl time.Duration) *TokenCodec {
	return &TokenCodec{secret: secret, ttl: ttl, issuer: "aimedicare", now: time.Now}
}

// WithClock replaces the codec's clock. Used by tests.
func (tc *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	tc.now = now
	return tc
}

func (tc *TokenCodec) TTL() time.Duration { return tc.ttl }

// Issue signs a token for userID expiring after the configured TTL.
func (tc *TokenCodec) Issue(userID string) (string, *Claims, error) {
	return tc.issue(userID, tc.ttl)
}

// IssueRevoked signs a token with zero remaining lifetime. It is returned on
// logout as an explicit signal to discard the session.
func (tc *TokenCodec) IssueRevoked(userID string) (string, *Claims, error) {
	return tc.issue(userID, 0)
}

func (tc *TokenCodec) issue(userID string, ttl time.Duration) (string, *Claims, error) {
	if userID == "" {
		return "", nil, fmt.Errorf("issue token: empty user id")
	}
	now := tc.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    tc.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		IssuedAtMilli: now.UnixMilli(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tc.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Verify checks signature, algorithm and expiry. It returns ErrTokenExpired
// once the expiry instant is reached and ErrInvalidToken for anything else.
func (tc *TokenCodec) Verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return tc.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tc.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tc.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
