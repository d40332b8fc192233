package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

// newTestDB opens a migrated in-memory SQLite database private to the test.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfig)
}

func TestDB_HealthCheckAndMigrateTwice(t *testing.T) {
	db := newTestDB(t)
	assert.Equal(t, "sqlite3", db.Dialect())
	require.NoError(t, db.HealthCheck(context.Background(), 0))
	require.NoError(t, db.Migrate(context.Background()))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(common.DefaultConfig().Database)
	assert.Equal(t, DriverSQLite, cfg.Driver)
	assert.NotEmpty(t, cfg.DSN)
}
