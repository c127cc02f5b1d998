package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soapscribe/internal/config"
	"soapscribe/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(config.DatabaseConfig{Driver: "sqlite3", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, Migrate(db, DriverSQLite))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDriver(t *testing.T) {
	assert.Equal(t, DriverSQLite, Driver(config.DatabaseConfig{Driver: "SQLite"}))
	assert.Equal(t, DriverMySQL, Driver(config.DatabaseConfig{Driver: "mysql"}))
	assert.Equal(t, "", Driver(config.DatabaseConfig{Driver: "none"}))
}

func TestOpenCreatesSQLiteDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "data", "runs.db")
	db, err := Open(config.DatabaseConfig{Driver: "sqlite3", DSN: dsn})
	require.NoError(t, err)
	defer db.Close()

	_, err = os.Stat(filepath.Dir(dsn))
	assert.NoError(t, err)
}

func TestSQLiteDir(t *testing.T) {
	assert.Equal(t, "", sqliteDir(":memory:"))
	assert.Equal(t, "", sqliteDir("file:shared?mode=memory&cache=shared"))
	assert.Equal(t, "data", sqliteDir("./data/soapscribe.db"))
	assert.Equal(t, "/var/lib/app", sqliteDir("file:/var/lib/app/runs.db?_busy_timeout=5000"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "none"})
	require.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, Migrate(db, DriverSQLite))
}

func TestRunLedgerRoundTrip(t *testing.T) {
	ledger := NewRunLedger(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	older := models.PipelineRun{
		ID: "run-1", FileName: "notes.txt", FileKind: "text", Size: 30,
		Status: models.RunStatusCompleted, Duration: 1500 * time.Millisecond,
		StartedAt: base, FinishedAt: base.Add(1500 * time.Millisecond),
	}
	newer := models.PipelineRun{
		ID: "run-2", FileName: "scan.pdf", FileKind: "unknown", Size: 10,
		Status: models.RunStatusFailed, ErrorKind: "unsupported_file_kind",
		StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute),
	}
	require.NoError(t, ledger.ObserveRun(ctx, older))
	require.NoError(t, ledger.ObserveRun(ctx, newer))

	runs, err := ledger.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
	assert.Equal(t, "unsupported_file_kind", runs[0].ErrorKind)
	assert.Equal(t, 1500*time.Millisecond, runs[1].Duration)
	assert.True(t, runs[1].StartedAt.Equal(base))
}
