package db

import (
	"testing"
	"testing/fstest"

	"receivables/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverMigrations_SortsAndHashes(t *testing.T) {
	fsys := fstest.MapFS{
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("ignored")},
	}
	ms, err := DiscoverMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "001", ms[0].Version)
	assert.Equal(t, "002_second.sql", ms[1].Filename)
	assert.Len(t, ms[0].Checksum, 64)
	assert.NotEqual(t, ms[0].Checksum, ms[1].Checksum)
}

func TestDiscoverMigrations_Rejects(t *testing.T) {
	_, err := DiscoverMigrations(fstest.MapFS{
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"001_b.sql": {Data: []byte("SELECT 1;")},
	})
	assert.ErrorContains(t, err, "duplicate migration version 001")

	_, err = DiscoverMigrations(fstest.MapFS{"schema.sql": {Data: []byte("SELECT 1;")}})
	assert.ErrorContains(t, err, "invalid migration filename")
}

func TestEmbeddedMigrations(t *testing.T) {
	ms, err := DiscoverMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, "001_receivables.sql", ms[0].Filename)
	assert.Contains(t, ms[0].SQL, "CREATE TABLE")
	require.Len(t, ms, 2)
	assert.Equal(t, "002_applied_amount.sql", ms[1].Filename)
	assert.Contains(t, ms[1].SQL, "applied_amount")
}
