package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrEmptyToken   = errors.New("token is empty")
)

// Claims are the identity claims the dashboard reads from a backend access token
type Claims struct {
	jwt.RegisteredClaims
	CustomerID string `json:"customer_id,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Email      string `json:"email,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Customer returns the tenant the token is scoped to
func (c *Claims) Customer() string {
	if c.CustomerID != "" {
		return c.CustomerID
	}
	return c.TenantID
}

// User returns the best available user identifier
func (c *Claims) User() string {
	switch {
	case c.UserID != "":
		return c.UserID
	case c.Email != "":
		return c.Email
	default:
		return c.Subject
	}
}

// ExpiresAtTime returns the expiry time, or the zero time for non-expiring tokens
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Expired reports whether the token is past its expiry at now, allowing leeway
func (c *Claims) Expired(now time.Time, leeway time.Duration) bool {
	exp := c.ExpiresAtTime()
	return !exp.IsZero() && now.After(exp.Add(leeway))
}

// Inspect decodes a token's claims without verifying its signature. The
// backend remains the authority on validity; the dashboard only needs the
// tenant and expiry to avoid pointless round trips.
// Opaque (non-JWT) tokens return ErrInvalidToken.
func Inspect(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// Signer issues and verifies HS256 tokens. The development backend uses it
// to mint tokens for local logins.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSigner creates a Signer
func NewSigner(secret, issuer string, ttl time.Duration) *Signer {
	return &Signer{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Issue signs a token for the given user and customer
func (s *Signer) Issue(userID, customerID, email string, now time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		CustomerID: customerID,
		UserID:     userID,
		Email:      email,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates signature, issuer and expiry
func (s *Signer) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
