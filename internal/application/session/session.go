// Package session keeps dashboard logins: the backend access token, the
// tenant it acts for, and the serialised dashboard state of the browser.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smartedu/dashboard/internal/domain/shared"
	"github.com/smartedu/dashboard/internal/infrastructure/apiclient"
	"github.com/smartedu/dashboard/internal/infrastructure/auth"
	"github.com/smartedu/dashboard/internal/infrastructure/cache"
	"go.uber.org/zap"
)

// ErrNotFound is returned for unknown or expired sessions
var ErrNotFound = errors.New("session not found")

// Session is one signed-in browser
type Session struct {
	ID         string          `json:"id"`
	Token      string          `json:"token"`
	CustomerID string          `json:"customer_id"`
	UserID     string          `json:"user_id,omitempty"`
	Email      string          `json:"email,omitempty"`
	Name       string          `json:"name,omitempty"`
	ExpiresAt  time.Time       `json:"expires_at"`
	CreatedAt  time.Time       `json:"created_at"`
	Dashboard  json.RawMessage `json:"dashboard,omitempty"`
}

// Credentials returns what the API client needs to act for this session
func (s *Session) Credentials() apiclient.Credentials {
	return apiclient.Credentials{Token: s.Token, CustomerID: s.CustomerID, UserID: s.UserID}
}

// DisplayName is the name shown in the header
func (s *Session) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Email != "":
		return s.Email
	case s.UserID != "":
		return s.UserID
	default:
		return "Admissions team"
	}
}

// LoginInput is what the login form posts
type LoginInput struct {
	Token      string `json:"token" form:"token" binding:"required"`
	CustomerID string `json:"customer_id" form:"customer_id"`
}

// Manager creates and persists sessions
type Manager struct {
	store           cache.StateStore
	ttl             time.Duration
	defaultCustomer string
	defaultUser     string
	logger          *zap.Logger
	now             func() time.Time
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithDefaults sets the customer and user used when a token carries neither
func WithDefaults(customerID, userID string) ManagerOption {
	return func(m *Manager) {
		m.defaultCustomer = customerID
		m.defaultUser = userID
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the clock
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session manager backed by store
func NewManager(store cache.StateStore, ttl time.Duration, opts ...ManagerOption) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	m := &Manager{store: store, ttl: ttl, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Login starts a session for an access token issued by the admissions
// platform. JWT claims supply the tenant and user when present; the
// session never outlives the token.
func (m *Manager) Login(ctx context.Context, in LoginInput) (*Session, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(in.Token), "Bearer "))
	if token == "" {
		return nil, shared.NewValidationError("token", "is required")
	}

	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	claims, err := auth.Inspect(token)
	if err == nil {
		if claims.Expired(now, 0) {
			return nil, shared.NewDomainError("TOKEN_EXPIRED", "This access token has expired")
		}
		s.CustomerID = claims.Customer()
		s.UserID = claims.User()
		s.Email = claims.Email
		s.Name = claims.Name
		if exp := claims.ExpiresAtTime(); !exp.IsZero() && exp.Before(s.ExpiresAt) {
			s.ExpiresAt = exp
		}
	}

	if c := strings.TrimSpace(in.CustomerID); c != "" {
		s.CustomerID = c
	}
	if s.CustomerID == "" {
		s.CustomerID = m.defaultCustomer
	}
	if s.UserID == "" {
		s.UserID = m.defaultUser
	}
	if s.CustomerID == "" {
		return nil, shared.NewValidationError("customer_id", "is required for this token")
	}

	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	m.logger.Info("dashboard session started",
		zap.String("session_id", s.ID),
		zap.String("customer_id", s.CustomerID),
		zap.String("user_id", s.UserID))
	return s, nil
}

// Load returns a live session
func (m *Manager) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := m.store.Get(ctx, key(id))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		m.logger.Warn("discarding unreadable session", zap.String("session_id", id), zap.Error(err))
		_ = m.store.Delete(ctx, key(id))
		return nil, ErrNotFound
	}
	if !m.now().Before(s.ExpiresAt) {
		_ = m.store.Delete(ctx, key(id))
		return nil, ErrNotFound
	}
	return &s, nil
}

// Save persists s until it expires
func (m *Manager) Save(ctx context.Context, s *Session) error {
	ttl := s.ExpiresAt.Sub(m.now())
	if ttl <= 0 {
		return ErrNotFound
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := m.store.Set(ctx, key(s.ID), data, ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Destroy ends a session
func (m *Manager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return m.store.Delete(ctx, key(id))
}

// TTL returns the maximum session lifetime
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func key(id string) string {
	return "sess:" + id
}
