package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sportsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("SPORTSYNC_TEST_API_KEY", "secret-key")

	yamlContent := `
database:
  path: "test.db"
provider:
  base_url: "https://v3.football.api-sports.io"
  api_key: "${SPORTSYNC_TEST_API_KEY}"
sync:
  season: 2024
  active_leagues: [39, 140]
jobs:
  concurrency: 2
  lock_window: 2m
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.Provider.APIKey)
	assert.Equal(t, []int64{39, 140}, cfg.Sync.ActiveLeagues)
	assert.Equal(t, 2024, cfg.Sync.Season)
	assert.Equal(t, 2, cfg.Jobs.Concurrency)
	assert.Equal(t, 2*time.Minute, cfg.Jobs.LockWindow)
	assert.Equal(t, models.DriverSQLite, cfg.Database.Driver)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Database: DatabaseConfig{Path: "path"},
			Provider: ProviderConfig{BaseURL: "https://example.test"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing base url", mutate: func(c *Config) { c.Provider.BaseURL = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }, wantErr: true},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database.Driver = models.DriverPostgres }, wantErr: true},
		{name: "header template without placeholder", mutate: func(c *Config) { c.Provider.HeaderTemplate = "Bearer" }, wantErr: true},
		{name: "negative fixture window", mutate: func(c *Config) { c.Sync.FixturePastDays = -1 }, wantErr: true},
		{name: "cron specs", mutate: func(c *Config) { c.Scheduler = SchedulerConfig{OddsLive: "@every 1m", Cleanup: "0 3 * * *"} }},
		{name: "bad cron spec", mutate: func(c *Config) { c.Scheduler.Fixtures = "every hour" }, wantErr: true},
		{
			name: "duplicate api key",
			mutate: func(c *Config) {
				c.API.Auth.APIKeys = []APIClientKey{{Key: "k", Name: "a"}, {Key: "k", Name: "b"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, models.DefaultAPIKeyHeader, cfg.Provider.HeaderName)
	assert.Equal(t, models.APIKeyPlaceholder, cfg.Provider.HeaderTemplate)
	assert.Equal(t, models.DefaultFixturePastDays, cfg.Sync.FixturePastDays)
	assert.Equal(t, models.DefaultFixtureFutureDays, cfg.Sync.FixtureFutureDays)
	assert.Equal(t, models.MaxUpcomingOddsBatch, cfg.Sync.OddsUpcomingBatch)
	assert.Equal(t, models.MaxLiveOddsBatch, cfg.Sync.OddsLiveBatch)
	assert.Equal(t, models.DefaultJobRetentionDays, cfg.Jobs.RetentionDays)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, 30*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 1.0, cfg.Notify.Telegram.CommandRate)
	assert.Equal(t, 3, cfg.Notify.Telegram.CommandBurst)
}

func TestValidateAPIKeys(t *testing.T) {
	assert.NoError(t, ValidateAPIKeys(nil))
	assert.Error(t, ValidateAPIKeys([]APIClientKey{{Key: "  ", Name: "blank"}}))
	assert.NoError(t, ValidateAPIKeys([]APIClientKey{{Key: "a"}, {Key: "b"}}))
}

func TestShippedConfigLoads(t *testing.T) {
	t.Setenv("SPORTSYNC_ADMIN_KEY", "admin-secret")
	t.Setenv("SPORTSYNC_DASHBOARD_KEY", "dashboard-secret")
	t.Setenv("API_FOOTBALL_KEY", "provider-secret")

	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "provider-secret", cfg.Provider.APIKey)
	assert.Len(t, cfg.API.Auth.APIKeys, 2)
	assert.Equal(t, 5*time.Minute, cfg.Jobs.LockWindow)
	assert.True(t, cfg.Jobs.RetryBackoff.Enabled)
	assert.NoError(t, cfg.Scheduler.Validate())
}
