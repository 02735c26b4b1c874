package archive

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smartedu/dashboard/internal/domain/export"
	"github.com/smartedu/dashboard/internal/infrastructure/config"
	"github.com/smartedu/dashboard/internal/infrastructure/migration"
	"github.com/smartedu/dashboard/internal/infrastructure/persistence"
	"github.com/smartedu/dashboard/internal/infrastructure/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRepo(t *testing.T) export.Repository {
	t.Helper()
	db, err := persistence.NewDatabase(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         ":memory:",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	m, err := migration.New(sqlDB, "sqlite", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	return persistence.NewGormExportRecordRepository(db.DB)
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, []byte, string) error {
	return errors.New("bucket unavailable")
}

func (failingStore) DownloadURL(context.Context, string, time.Duration) (string, time.Time, error) {
	return "", time.Time{}, errors.New("bucket unavailable")
}

func TestService_Archive(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	store := storage.NewMemoryArchiveStore("http://localhost:3000/archive")
	repo := newTestRepo(t)
	svc := NewService(store, repo, "exports/", WithClock(func() time.Time { return now }))
	require.True(t, svc.Enabled())

	rec, err := svc.Archive(context.Background(), Export{
		Data:       []byte("id,name\n1,Jane\n"),
		Rows:       1,
		Source:     export.SourceLocal,
		CustomerID: "7",
		UserID:     "42",
	})
	require.NoError(t, err)
	assert.Equal(t, "parents-export-2024-03-01.csv", rec.FileName)
	assert.Equal(t, "exports/7/2024/03/01/"+rec.ID.String()+".csv", rec.ObjectKey)
	assert.Equal(t, int64(15), rec.SizeBytes)

	data, contentType, ok := store.Get(rec.ObjectKey)
	require.True(t, ok)
	assert.Equal(t, "id,name\n1,Jane\n", string(data))
	assert.Equal(t, "text/csv", contentType)

	links, err := svc.Recent(context.Background(), "7", 10)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, rec.ID, links[0].ID)
	assert.Equal(t, "42", links[0].CreatedBy)
	assert.Contains(t, links[0].URL, rec.ObjectKey)

	others, err := svc.Recent(context.Background(), "8", 10)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestService_ArchiveFailures(t *testing.T) {
	t.Run("disabled without a store", func(t *testing.T) {
		svc := NewService(nil, nil, "exports/")
		assert.False(t, svc.Enabled())
		_, err := svc.Archive(context.Background(), Export{CustomerID: "7"})
		assert.ErrorIs(t, err, ErrDisabled)
		_, err = svc.Recent(context.Background(), "7", 10)
		assert.ErrorIs(t, err, ErrDisabled)
	})

	t.Run("customer required", func(t *testing.T) {
		svc := NewService(storage.NewMemoryArchiveStore(""), newTestRepo(t), "exports/")
		_, err := svc.Archive(context.Background(), Export{Data: []byte("x")})
		require.Error(t, err)
	})

	t.Run("upload failure leaves no record", func(t *testing.T) {
		repo := newTestRepo(t)
		svc := NewService(failingStore{}, repo, "exports/")
		_, err := svc.Archive(context.Background(), Export{Data: []byte("x"), CustomerID: "7"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bucket unavailable")

		recs, err := repo.ListRecent(context.Background(), "7", 10)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("unsignable links are skipped", func(t *testing.T) {
		repo := newTestRepo(t)
		require.NoError(t, repo.Create(context.Background(), &export.Record{
			ID: uuid.New(), CustomerID: "7", ObjectKey: "k.csv", CreatedAt: time.Now(),
		}))
		svc := NewService(failingStore{}, repo, "exports/")
		links, err := svc.Recent(context.Background(), "7", 10)
		require.NoError(t, err)
		assert.Empty(t, links)
	})
}
