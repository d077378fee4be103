package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func writeMigration(t *testing.T, dir, name, sql string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644))
}

func TestRunMigrationsAppliesInOrder(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()

	writeMigration(t, dir, "002_add_column.sql", "ALTER TABLE items ADD COLUMN note TEXT;")
	writeMigration(t, dir, "001_create_items.sql", "CREATE TABLE items (id INTEGER PRIMARY KEY);")
	writeMigration(t, dir, "README.md", "not a migration")

	migrator := NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations(dir))

	// Version 2 depends on version 1's table, so ordering matters.
	_, err := db.Exec("INSERT INTO items (id, note) VALUES (1, 'ok')")
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 2, count)

	var name string
	require.NoError(t, db.QueryRow("SELECT name FROM schema_migrations WHERE version = 1").Scan(&name))
	assert.Equal(t, "create_items", name)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()

	writeMigration(t, dir, "001_create_items.sql", "CREATE TABLE items (id INTEGER PRIMARY KEY);")

	migrator := NewMigrator(db, zap.NewNop())
	require.NoError(t, migrator.RunMigrations(dir))
	// A second run sees version 1 as applied and must not re-execute it.
	require.NoError(t, migrator.RunMigrations(dir))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRunMigrationsRejectsUnversionedFile(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()

	writeMigration(t, dir, "initial.sql", "CREATE TABLE items (id INTEGER PRIMARY KEY);")

	migrator := NewMigrator(db, zap.NewNop())
	err := migrator.RunMigrations(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid migration filename")
}

func TestRunMigrationsRollsBackFailedMigration(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()

	writeMigration(t, dir, "001_broken.sql", "CREATE TABLE items (id INTEGER PRIMARY KEY); THIS IS NOT SQL;")

	migrator := NewMigrator(db, zap.NewNop())
	require.Error(t, migrator.RunMigrations(dir))

	// The failed migration must not be recorded as applied.
	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 0, count)
}
