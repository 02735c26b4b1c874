package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smartedu/dashboard/internal/domain/export"
	"github.com/smartedu/dashboard/internal/domain/view"
)

// SavedViewModel is the saved_views row
type SavedViewModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	CustomerID string `gorm:"size:64;not null"`
	Slug       string `gorm:"size:63;not null"`
	Name       string `gorm:"size:100;not null"`
	Filters    string `gorm:"type:text;not null"`
	CreatedBy  string `gorm:"size:100;not null;default:''"`
	UseCount   int    `gorm:"not null;default:0"`
	LastUsedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName implements gorm's tabler
func (SavedViewModel) TableName() string { return "saved_views" }

func savedViewToModel(v *view.SavedView) (*SavedViewModel, error) {
	filters, err := json.Marshal(v.Filters)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}
	return &SavedViewModel{
		ID:         v.ID.String(),
		CustomerID: v.CustomerID,
		Slug:       v.Slug,
		Name:       v.Name,
		Filters:    string(filters),
		CreatedBy:  v.CreatedBy,
		UseCount:   v.UseCount,
		LastUsedAt: v.LastUsedAt,
		CreatedAt:  v.CreatedAt,
		UpdatedAt:  v.UpdatedAt,
	}, nil
}

func (m *SavedViewModel) toDomain() (*view.SavedView, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("saved view %q has invalid id: %w", m.Slug, err)
	}
	v := &view.SavedView{
		ID:         id,
		CustomerID: m.CustomerID,
		Slug:       m.Slug,
		Name:       m.Name,
		CreatedBy:  m.CreatedBy,
		UseCount:   m.UseCount,
		LastUsedAt: m.LastUsedAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(m.Filters), &v.Filters); err != nil {
		return nil, fmt.Errorf("saved view %q has invalid filters: %w", m.Slug, err)
	}
	return v, nil
}

// ExportRecordModel is the export_records row
type ExportRecordModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	CustomerID string `gorm:"size:64;not null"`
	ObjectKey  string `gorm:"size:512;not null"`
	FileName   string `gorm:"size:255;not null"`
	RowCount   int
	SizeBytes  int64
	Source     string `gorm:"size:16;not null"`
	CreatedBy  string `gorm:"size:100"`
	CreatedAt  time.Time
}

// TableName implements gorm's tabler
func (ExportRecordModel) TableName() string { return "export_records" }

func exportRecordToModel(r *export.Record) *ExportRecordModel {
	return &ExportRecordModel{
		ID:         r.ID.String(),
		CustomerID: r.CustomerID,
		ObjectKey:  r.ObjectKey,
		FileName:   r.FileName,
		RowCount:   r.RowCount,
		SizeBytes:  r.SizeBytes,
		Source:     string(r.Source),
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
	}
}

func (m *ExportRecordModel) toDomain() export.Record {
	id, _ := uuid.Parse(m.ID)
	return export.Record{
		ID:         id,
		CustomerID: m.CustomerID,
		ObjectKey:  m.ObjectKey,
		FileName:   m.FileName,
		RowCount:   m.RowCount,
		SizeBytes:  m.SizeBytes,
		Source:     export.Source(m.Source),
		CreatedBy:  m.CreatedBy,
		CreatedAt:  m.CreatedAt,
	}
}
