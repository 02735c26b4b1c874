// Package savedview lets dashboard users name a parent-list filter and
// reapply it later.
package savedview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/domain/shared"
	"github.com/smartedu/dashboard/internal/domain/view"
	"github.com/smartedu/dashboard/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// maxCreateAttempts bounds retries when a concurrent save takes the slug
const maxCreateAttempts = 3

// Service manages saved views for one backing repository
type Service struct {
	repo view.Repository
	now  func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a saved view service
func NewService(repo view.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the customer's views, most recently used first
func (s *Service) List(ctx context.Context, customerID string) ([]view.SavedView, error) {
	views, err := s.repo.List(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if views == nil {
		views = []view.SavedView{}
	}
	return views, nil
}

// Save stores filters under name. The slug is derived from the name and
// suffixed when it is already taken.
func (s *Service) Save(ctx context.Context, customerID, userID, name string, filters parent.Filters) (*view.SavedView, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		existing, err := s.repo.List(ctx, customerID)
		if err != nil {
			return nil, err
		}
		v, err := view.NewSavedView(customerID, name, userID, filters, existing)
		if err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, v)
		if errors.Is(err, shared.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		logger.L(ctx).Info("Saved view created",
			zap.String("slug", v.Slug),
			zap.String("customer_id", customerID),
		)
		return v, nil
	}
	return nil, fmt.Errorf("save view %q: %w", name, shared.ErrAlreadyExists)
}

// Apply returns the view's filters and records the use
func (s *Service) Apply(ctx context.Context, customerID, slug string) (*view.SavedView, error) {
	v, err := s.repo.FindBySlug(ctx, customerID, slug)
	if err != nil {
		return nil, err
	}
	at := s.now().UTC()
	if err := s.repo.Touch(ctx, customerID, slug, at); err != nil {
		return nil, err
	}
	v.Touch(at)
	return v, nil
}

// Delete removes a view
func (s *Service) Delete(ctx context.Context, customerID, slug string) error {
	if err := s.repo.Delete(ctx, customerID, slug); err != nil {
		return err
	}
	logger.L(ctx).Info("Saved view deleted",
		zap.String("slug", slug),
		zap.String("customer_id", customerID),
	)
	return nil
}
