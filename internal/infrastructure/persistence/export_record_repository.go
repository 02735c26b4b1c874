package persistence

import (
	"context"
	"fmt"

	"github.com/smartedu/dashboard/internal/domain/export"
	"gorm.io/gorm"
)

// GormExportRecordRepository implements export.Repository using GORM
type GormExportRecordRepository struct {
	db *gorm.DB
}

// NewGormExportRecordRepository creates a new GormExportRecordRepository
func NewGormExportRecordRepository(db *gorm.DB) *GormExportRecordRepository {
	return &GormExportRecordRepository{db: db}
}

// Create inserts an export record
func (r *GormExportRecordRepository) Create(ctx context.Context, rec *export.Record) error {
	if err := r.db.WithContext(ctx).Create(exportRecordToModel(rec)).Error; err != nil {
		return fmt.Errorf("create export record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first
func (r *GormExportRecordRepository) ListRecent(ctx context.Context, customerID string, limit int) ([]export.Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []ExportRecordModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list export records: %w", err)
	}
	out := make([]export.Record, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

var _ export.Repository = (*GormExportRecordRepository)(nil)
