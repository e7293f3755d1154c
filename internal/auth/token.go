// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultTokenLifetime is used when no lifetime is configured.
const DefaultTokenLifetime = time.Hour

// InvalidReason says why a token failed verification. It is meant for logs;
// callers must only branch on Verification.Valid.
type InvalidReason string

// Token rejection reasons.
const (
	ReasonMalformed InvalidReason = "malformed"
	ReasonSignature InvalidReason = "signature"
	ReasonExpired   InvalidReason = "expired"
)

// sessionClaims is the JWT payload: sub, role and the registered time claims.
type sessionClaims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// IssuedToken is a freshly minted session token.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// Verification is the outcome of checking a session token.
type Verification struct {
	Valid   bool
	Subject string
	Role    Role
	Reason  InvalidReason
}

// TokenIssuer mints and verifies HS256 session tokens.
type TokenIssuer struct {
	secret   []byte
	lifetime time.Duration
	issuer   string
	now      func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock overrides the time source used for iat/exp and validation.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// WithIssuer sets the iss claim and requires it on verification.
func WithIssuer(issuer string) TokenOption {
	return func(t *TokenIssuer) {
		t.issuer = issuer
	}
}

// NewTokenIssuer creates a TokenIssuer. An empty secret is a configuration
// fault and is reported as AUTH_TOKEN_SIGNING_FAILED.
func NewTokenIssuer(secret []byte, lifetime time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Code("AUTH_TOKEN_SIGNING_FAILED").Errorf("token signing key is required")
	}
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}

	t := &TokenIssuer{
		secret:   append([]byte(nil), secret...),
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Lifetime returns the configured token lifetime.
func (t *TokenIssuer) Lifetime() time.Duration {
	return t.lifetime
}

// Issue mints a token for subject valid over [now, now+lifetime).
func (t *TokenIssuer) Issue(subject string, role Role) (IssuedToken, error) {
	now := t.now()
	expiresAt := now.Add(t.lifetime)

	claims := sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return IssuedToken{}, oops.Code("AUTH_TOKEN_SIGNING_FAILED").
			With("subject", subject).
			Wrap(err)
	}

	return IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// Verify checks signature, structure and expiry of raw.
func (t *TokenIssuer) Verify(raw string) Verification {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	claims := &sessionClaims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	})
	if err != nil {
		return Verification{Reason: classifyTokenError(err)}
	}
	if !token.Valid || claims.Subject == "" || !claims.Role.Valid() {
		return Verification{Reason: ReasonMalformed}
	}

	return Verification{
		Valid:   true,
		Subject: claims.Subject,
		Role:    claims.Role,
	}
}

func classifyTokenError(err error) InvalidReason {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignature
	default:
		return ReasonMalformed
	}
}
