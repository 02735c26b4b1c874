// Package view models saved searches: named parent-list filters a user can
// reapply from the dashboard.
package view

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/smartedu/dashboard/internal/domain/parent"
	"github.com/smartedu/dashboard/internal/domain/shared"
)

const maxSlugLen = 63

// SavedView is a named set of parent filters scoped to one customer
type SavedView struct {
	ID         uuid.UUID      `json:"id"`
	CustomerID string         `json:"customer_id"`
	Slug       string         `json:"slug"`
	Name       string         `json:"name"`
	Filters    parent.Filters `json:"filters"`
	CreatedBy  string         `json:"created_by,omitempty"`
	UseCount   int            `json:"use_count"`
	LastUsedAt *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewSavedView validates the filters and derives a slug that does not clash
// with existing ones.
func NewSavedView(customerID, name, createdBy string, filters parent.Filters, existing []SavedView) (*SavedView, error) {
	name = strings.TrimSpace(name)
	if customerID == "" {
		return nil, shared.NewValidationError("customer_id", "is required")
	}
	if name == "" {
		return nil, shared.NewValidationError("name", "is required")
	}
	if len(name) > 100 {
		return nil, shared.NewValidationError("name", "must be at most 100 characters")
	}
	filters = filters.Normalize()
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &SavedView{
		ID:         uuid.New(),
		CustomerID: customerID,
		Slug:       UniqueSlug(existing, name),
		Name:       name,
		Filters:    filters,
		CreatedBy:  createdBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Touch records a use of the view
func (v *SavedView) Touch(at time.Time) {
	v.UseCount++
	v.LastUsedAt = &at
}

// Slugify lowercases raw and collapses anything outside [a-z0-9_-] into single dashes
func Slugify(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))

	var b strings.Builder
	b.Grow(len(raw))
	lastDash := false
	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		switch {
		case (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9'):
			b.WriteByte(ch)
			lastDash = false
		case b.Len() > 0 && !lastDash:
			if ch == '_' {
				b.WriteByte('_')
			} else {
				b.WriteByte('-')
			}
			lastDash = true
		}
	}

	slug := strings.Trim(b.String(), "-_")
	if slug == "" {
		slug = "view"
	}
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-_")
	}
	return slug
}

// UniqueSlug slugifies name and appends -2, -3, ... until it is unused
func UniqueSlug(existing []SavedView, name string) string {
	base := Slugify(name)
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v.Slug] = true
	}
	if !seen[base] {
		return base
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf("-%d", i)
		candidate := base
		if len(candidate)+len(suffix) > maxSlugLen {
			candidate = candidate[:maxSlugLen-len(suffix)]
		}
		candidate += suffix
		if !seen[candidate] {
			return candidate
		}
	}
}

// Repository persists saved views
type Repository interface {
	// List returns the customer's views, most recently used first
	List(ctx context.Context, customerID string) ([]SavedView, error)
	// FindBySlug returns shared.ErrNotFound when no view matches
	FindBySlug(ctx context.Context, customerID, slug string) (*SavedView, error)
	Create(ctx context.Context, v *SavedView) error
	// Touch increments the use counter and stamps last_used_at
	Touch(ctx context.Context, customerID, slug string, at time.Time) error
	Delete(ctx context.Context, customerID, slug string) error
}
