package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Migrates(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	defer db.Close()

	version, err := db.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	var count int
	err = db.Conn().QueryRow("SELECT COUNT(*) FROM submissions").Scan(&count)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMigrateDown(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.MigrateDown())

	_, err = db.Conn().Exec("SELECT 1 FROM submissions")
	assert.Error(t, err)

	require.NoError(t, db.Migrate())
	_, err = db.Conn().Exec("SELECT 1 FROM submissions")
	assert.NoError(t, err)
}
