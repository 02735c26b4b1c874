package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smartedu/dashboard/internal/domain/shared"
	"github.com/smartedu/dashboard/internal/domain/view"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSavedViewRepository implements view.Repository using GORM
type GormSavedViewRepository struct {
	db *gorm.DB
}

// NewGormSavedViewRepository creates a new GormSavedViewRepository
func NewGormSavedViewRepository(db *gorm.DB) *GormSavedViewRepository {
	return &GormSavedViewRepository{db: db}
}

// List returns the customer's views, most recently used first
func (r *GormSavedViewRepository) List(ctx context.Context, customerID string) ([]view.SavedView, error) {
	var rows []SavedViewModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order(clause.OrderBy{Expression: clause.Expr{SQL: "CASE WHEN last_used_at IS NULL THEN 1 ELSE 0 END, last_used_at DESC, name ASC"}}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list saved views: %w", err)
	}

	views := make([]view.SavedView, 0, len(rows))
	for i := range rows {
		v, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

// FindBySlug returns shared.ErrNotFound when no view matches
func (r *GormSavedViewRepository) FindBySlug(ctx context.Context, customerID, slug string) (*view.SavedView, error) {
	var row SavedViewModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND slug = ?", customerID, slug).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find saved view: %w", err)
	}
	return row.toDomain()
}

// Create inserts v; a clashing slug yields shared.ErrAlreadyExists
func (r *GormSavedViewRepository) Create(ctx context.Context, v *view.SavedView) error {
	model, err := savedViewToModel(v)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "customer_id"}, {Name: "slug"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return fmt.Errorf("create saved view: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrAlreadyExists
	}
	return nil
}

// Touch increments the use counter and stamps last_used_at
func (r *GormSavedViewRepository) Touch(ctx context.Context, customerID, slug string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&SavedViewModel{}).
		Where("customer_id = ? AND slug = ?", customerID, slug).
		Updates(map[string]any{
			"use_count":    gorm.Expr("use_count + 1"),
			"last_used_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("touch saved view: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a view
func (r *GormSavedViewRepository) Delete(ctx context.Context, customerID, slug string) error {
	result := r.db.WithContext(ctx).
		Where("customer_id = ? AND slug = ?", customerID, slug).
		Delete(&SavedViewModel{})
	if result.Error != nil {
		return fmt.Errorf("delete saved view: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ view.Repository = (*GormSavedViewRepository)(nil)
