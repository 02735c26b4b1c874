package migration

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAvailable(t *testing.T) {
	names, err := Available()
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_create_saved_views", "000002_create_export_records"}, names)
}

func TestMigrator_SQLiteUpDown(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)

	m, err := New(db, "sqlite", zap.NewNop())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM saved_views`).Scan(&count))
	assert.Zero(t, count)

	require.NoError(t, m.Up(), "re-running is a no-op")

	require.NoError(t, m.Steps(-1))
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.Down())
	version, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(nil, "mysql", zap.NewNop())
	assert.ErrorContains(t, err, "unsupported migration driver")
}
