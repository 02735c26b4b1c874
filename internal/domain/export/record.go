// Package export describes archived CSV exports of the parent list.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Source records where the CSV rows came from
type Source string

const (
	// SourceBackend means the admissions backend generated the CSV
	SourceBackend Source = "backend"
	// SourceLocal means the dashboard paged through search results and built it
	SourceLocal Source = "local"
)

// Record is one archived export
type Record struct {
	ID         uuid.UUID `json:"id"`
	CustomerID string    `json:"customer_id"`
	ObjectKey  string    `json:"object_key"`
	FileName   string    `json:"file_name"`
	RowCount   int       `json:"row_count"`
	SizeBytes  int64     `json:"size_bytes"`
	Source     Source    `json:"source"`
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// FileName returns the download name for an export taken at t,
// e.g. parents-export-2024-03-01.csv
func FileName(t time.Time) string {
	return fmt.Sprintf("parents-export-%s.csv", t.Format(time.DateOnly))
}

// ObjectKey returns the archive key for an export under prefix
func ObjectKey(prefix, customerID string, id uuid.UUID, t time.Time) string {
	return fmt.Sprintf("%s%s/%s/%s.csv", prefix, customerID, t.Format("2006/01/02"), id)
}

// Repository persists export records
type Repository interface {
	Create(ctx context.Context, r *Record) error
	// ListRecent returns up to limit records, newest first
	ListRecent(ctx context.Context, customerID string, limit int) ([]Record, error)
}

// ObjectStore holds the archived CSV bodies
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// DownloadURL returns a time-limited link to key
	DownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}
