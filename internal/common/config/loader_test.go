package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: memory
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "gigflow", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "header", cfg.Auth.Mode)
	assert.Equal(t, "X-User-ID", cfg.Auth.IdentityHeader)
	assert.Equal(t, 5000, cfg.Hiring.TransactionTimeout)
	assert.Equal(t, "notifications.hire", cfg.Notifications.Channel)
	assert.Equal(t, 16, cfg.Notifications.SubscriberBuffer)
	assert.Equal(t, "gigs", cfg.Database.Elasticsearch.TaskIndex)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_PostgresRequiresHost(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  postgres:
    database: gigflow
    user: gigflow
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.postgres.host is required")
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("GIGFLOW_TEST_PG_HOST", "db.internal")
	path := writeConfig(t, `
database:
  driver: postgres
  postgres:
    host: ${GIGFLOW_TEST_PG_HOST}
    database: gigflow
    user: gigflow
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Contains(t, cfg.Database.Postgres.GetDSN(), "host=db.internal")
}

func TestLoadFromFile_EnvOverridesKey(t *testing.T) {
	t.Setenv("AUTH_MODE", "keycloak")
	path := writeConfig(t, `
database:
  driver: memory
auth:
  mode: header
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.keycloak.url")
}

func TestLoadFromFile_RejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: mongo
`)

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestGetWorkerConfig_FallsBackToDefaults(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"hire-proposal": {Enabled: false, MaxJobsActive: 2},
	}}

	assert.False(t, GetWorkerConfig(cfg, "hire-proposal").Enabled)
	def := GetWorkerConfig(cfg, "submit-proposal")
	assert.True(t, def.Enabled)
	assert.Equal(t, 5, def.MaxJobsActive)
}
