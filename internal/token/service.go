// Package token issues and validates the signed identity tokens that feed
// the authentication pipeline.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hilite-app/hilite/internal/shared"
)

// DefaultTTL is the token lifetime when none is configured.
const DefaultTTL = time.Hour

// Service signs and verifies HS256 tokens with a process-lifetime key.
// Rotating the key invalidates every outstanding token.
type Service struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewService constructs a Service. The secret is loaded once at process
// start and must stay constant for the process lifetime.
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("token: secret required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{key: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue creates a signed token for the subject with a fixed TTL from now.
func (s *Service) Issue(subject string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("token: subject required")
	}
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return raw, nil
}

// Validate parses and verifies a token and returns its subject. Malformed
// tokens, bad signatures and expired tokens all collapse into the single
// ErrInvalidToken so the response does not reveal which check failed.
func (s *Service) Validate(raw string) (string, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", shared.ErrInvalidToken.WithCause(err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", shared.ErrInvalidToken
	}
	return claims.Subject, nil
}

// TTL reports the configured token lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }
