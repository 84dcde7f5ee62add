package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	log, hook := test.NewNullLogger()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "data", "reminders.db"), 0)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, MigrateSQLite(ctx, db, log))
	files, err := migrationFiles("sqlite")
	require.NoError(t, err)
	assert.Len(t, hook.AllEntries(), len(files))

	hook.Reset()
	require.NoError(t, MigrateSQLite(ctx, db, log))
	assert.Empty(t, hook.AllEntries())

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, len(files), n)
}

func TestMigrationFilesAreOrdered(t *testing.T) {
	for _, dialect := range []string{"postgres", "sqlite"} {
		files, err := migrationFiles(dialect)
		require.NoError(t, err)
		require.NotEmpty(t, files)
		assert.IsIncreasing(t, files)
	}
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ", 0)
	assert.Error(t, err)
}
