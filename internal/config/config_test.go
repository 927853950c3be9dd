package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/receivables")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 3, cfg.MatchWindowDays)
	assert.Equal(t, 4, cfg.SyncConcurrency)
	assert.Equal(t, 20, cfg.SyncErrorCap)
	assert.Equal(t, 10*time.Second, cfg.FSPFetchTimeout)
	assert.False(t, cfg.FSPConfigured())
	assert.Error(t, cfg.RequireServer())

	sc := cfg.GetSyncConfig()
	assert.Equal(t, 4, sc.Concurrency)
	assert.Equal(t, 10*time.Second, sc.FetchTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/receivables")
	t.Setenv("MATCH_WINDOW_DAYS", "5")
	t.Setenv("FSP_FETCH_TIMEOUT", "2500ms")
	t.Setenv("FSP_CLIENT_ID", "id")
	t.Setenv("FSP_CLIENT_SECRET", "secret")
	t.Setenv("FSP_TENANT_ID", "42")
	t.Setenv("FSP_APP_KEY", "key")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MatchWindowDays)
	assert.Equal(t, 2500*time.Millisecond, cfg.FSPFetchTimeout)
	assert.True(t, cfg.FSPConfigured())
	assert.NoError(t, cfg.RequireServer())
	assert.Equal(t, "42", cfg.GetFieldServiceConfig().TenantID)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database url", map[string]string{"DATABASE_URL": ""}},
		{"non-numeric window", map[string]string{"MATCH_WINDOW_DAYS": "three"}},
		{"zero concurrency", map[string]string{"SYNC_CONCURRENCY": "0"}},
		{"bad timeout", map[string]string{"FSP_FETCH_TIMEOUT": "ten"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "postgres://localhost/receivables")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorContains(t, err, "config validation failed")
		})
	}
}
