// Package auth verifies the bearer tokens issued by the campus identity provider and maps their
// claims onto an application principal.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/facility-booking/internal/application"
	"github.com/example/facility-booking/internal/floor"
)

// ErrInvalidToken is returned for tokens that fail signature, expiry or claim checks.
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the token payload. Subject carries the user id.
type Claims struct {
	Role  string `json:"role"`
	Floor string `json:"floor,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 tokens signed with a shared secret.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
	leeway time.Duration
}

// Option customises a TokenVerifier.
type Option func(*TokenVerifier)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(v *TokenVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithLeeway tolerates clock skew between the issuer and this service.
func WithLeeway(leeway time.Duration) Option {
	return func(v *TokenVerifier) {
		if leeway > 0 {
			v.leeway = leeway
		}
	}
}

// NewTokenVerifier returns a verifier for secret.
func NewTokenVerifier(secret string, opts ...Option) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("auth: secret is required")
	}
	v := &TokenVerifier{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify parses raw and returns the principal it names. Staff floor claims are canonicalised.
func (v *TokenVerifier) Verify(raw string) (application.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return application.Principal{}, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return application.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return application.Principal{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	role := application.Role(strings.ToLower(strings.TrimSpace(claims.Role)))
	if !role.Valid() {
		return application.Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	principal := application.Principal{UserID: subject, Role: role}
	if role != application.RoleStudent {
		principal.Floor = floor.Normalize(claims.Floor)
	}
	return principal, nil
}

// TokenIssuer signs tokens with the same secret. The portal's identity provider owns issuance;
// this exists for local development and tests.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
	ttl    time.Duration
}

// NewTokenIssuer returns an issuer whose tokens live for ttl.
func NewTokenIssuer(secret string, ttl time.Duration, now func() time.Time) *TokenIssuer {
	if now == nil {
		now = time.Now
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), now: now, ttl: ttl}
}

// Issue signs a token for principal.
func (i *TokenIssuer) Issue(principal application.Principal) (string, error) {
	issuedAt := i.now()
	claims := Claims{
		Role:  string(principal.Role),
		Floor: principal.Floor,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
