// Package token issues and validates the short-lived signed tokens that bind
// a connection attempt to a user identity.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

// ErrNotConfigured is returned when no signing secret is configured. Issuing
// an unsigned token would be worse than failing, so both Issue and Verify
// refuse to operate.
var ErrNotConfigured = errors.New("token: signing secret is not configured")

// DefaultTTL is applied when the caller does not supply an expiry.
const DefaultTTL = 15 * time.Minute

// Claims is the validated identity asserted by a token.
type Claims struct {
	UserID    string
	SessionID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type relayClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid,omitempty"`
}

// Codec signs and verifies relay tokens (HS256, fixed issuer/audience).
type Codec struct {
	secret     []byte
	issuer     string
	audience   string
	defaultTTL time.Duration
	clock      clockwork.Clock
}

func NewCodec(secret, issuer, audience string, defaultTTL time.Duration, clock clockwork.Clock) *Codec {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Codec{
		secret:     []byte(secret),
		issuer:     issuer,
		audience:   audience,
		defaultTTL: defaultTTL,
		clock:      clock,
	}
}

// Issue produces a signed token with subject userID and an optional session
// claim. A non-positive ttl falls back to the codec default.
func (c *Codec) Issue(userID, sessionID string, ttl time.Duration) (string, error) {
	if len(c.secret) == 0 {
		return "", ErrNotConfigured
	}
	if userID == "" {
		return "", errors.New("token: userID is required")
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := c.clock.Now()
	claims := relayClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SessionID: sessionID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify validates signature, issuer, audience and expiry. Any mismatch,
// expiry or malformed input returns an error; callers must treat failure as
// rejection, never as an empty identity.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	if len(c.secret) == 0 {
		return Claims{}, ErrNotConfigured
	}

	var parsed relayClaims
	_, err := jwt.ParseWithClaims(tokenString, &parsed,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("token: verify: %w", err)
	}
	if parsed.Subject == "" {
		return Claims{}, errors.New("token: verify: missing subject")
	}

	claims := Claims{
		UserID:    parsed.Subject,
		SessionID: parsed.SessionID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}
