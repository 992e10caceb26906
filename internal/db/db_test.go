package db

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diewo77/go-quotes/internal/config"
	"github.com/diewo77/go-quotes/internal/logging"
)

func TestOpenAndAutoMigrateSQLite(t *testing.T) {
	cfg := config.FromViper(config.New())
	cfg.Database.Path = filepath.Join(t.TempDir(), "quotes.db")

	db, err := Open(cfg.Database, logging.Nop())
	require.NoError(t, err)
	require.NoError(t, Migrate(db, cfg, logging.Nop()))
	require.NoError(t, Ping(context.Background(), db))

	for _, table := range []string{"clients", "quotes", "quote_items"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex("quotes", "idx_quotes_reference"))
}

func TestMaskDSN(t *testing.T) {
	assert.Equal(t, "host=h user=u password=*** dbname=d", MaskDSN("host=h user=u password=s3cret dbname=d"))
	assert.Equal(t, "postgres://u:***@h:5432/d", MaskDSN("postgres://u:s3cret@h:5432/d"))
	assert.Equal(t, "host=h user=u", MaskDSN("host=h user=u"))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "q.db?_foreign_keys=on&_busy_timeout=5000", SQLiteDSN("q.db"))
	assert.Equal(t, "file:x?mode=memory", SQLiteDSN("file:x?mode=memory"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)
	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}
