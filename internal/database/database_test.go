package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteDSN(t *testing.T) {
	dsn := SQLiteDSN("/tmp/fit.db")

	assert.Contains(t, dsn, "file:/tmp/fit.db?")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "foreign_keys%281%29")
}

func TestOpenSQLite_AppliesSchemaIdempotently(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fit.db")

	db, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must not fail on existing tables.
	db, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer db.Close()

	var tables int
	err = db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('users', 'courses', 'reservations')`,
	).Scan(&tables)
	require.NoError(t, err)
	assert.Equal(t, 3, tables)

	var fk int
	require.NoError(t, db.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
	assert.Equal(t, 1, fk)
}
