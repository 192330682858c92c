package migrator

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestNewWithFS(t *testing.T) {
	fs := fstest.MapFS{
		"0001_test.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
	}
	m, err := NewWithFS(fs)
	require.NoError(t, err)
	assert.NotNil(t, m)
}

func TestNewWithFS_NilFS(t *testing.T) {
	m, err := NewWithFS(nil)
	assert.Error(t, err)
	assert.Nil(t, m)
}

func TestMigrator_Up_AppliesOnce(t *testing.T) {
	db := openDB(t)
	fs := fstest.MapFS{
		"0002_index.sql": &fstest.MapFile{Data: []byte("-- index\nCREATE INDEX IF NOT EXISTS idx_items_name ON items (name);\n")},
		"0001_table.sql": &fstest.MapFile{Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT);\nINSERT INTO items (name) VALUES ('a');")},
		"README.md":      &fstest.MapFile{Data: []byte("not a migration")},
	}
	m, err := NewWithFS(fs)
	require.NoError(t, err)

	applied, err := m.Up(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_table.sql", "0002_index.sql"}, applied)

	applied, err = m.Up(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, applied)

	var count int64
	require.NoError(t, db.Table("items").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	version, err := m.Version(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, "0002_index.sql", version)
}

func TestMigrator_Up_FailureIsNotRecorded(t *testing.T) {
	db := openDB(t)
	fs := fstest.MapFS{
		"0001_bad.sql": &fstest.MapFile{Data: []byte("CREATE TABLE ok (id INTEGER);\nNOT SQL AT ALL;")},
	}
	m, err := NewWithFS(fs)
	require.NoError(t, err)

	_, err = m.Up(context.Background(), db)
	require.Error(t, err)

	version, err := m.Version(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, version)
}

func TestMigrator_Version_Empty(t *testing.T) {
	m, err := NewWithFS(fstest.MapFS{})
	require.NoError(t, err)

	version, err := m.Version(context.Background(), openDB(t))
	require.NoError(t, err)
	assert.Empty(t, version)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- c\nSELECT 1;\n\n  SELECT 2 ;\n")
	assert.Equal(t, []string{"SELECT 1", "SELECT 2"}, stmts)
}
