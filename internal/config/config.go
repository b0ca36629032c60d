package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"sportsync/internal/models"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Provider   ProviderConfig   `yaml:"provider"`
	Sync       SyncConfig       `yaml:"sync"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	API        APIConfig        `yaml:"api"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Backup     BackupConfig     `yaml:"backup"`
	Notify     NotifyConfig     `yaml:"notify"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ProviderConfig describes the upstream sports data API. It seeds the
// data_providers record on startup; the record is the runtime source of truth.
type ProviderConfig struct {
	Name           string        `yaml:"name"`
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	HeaderName     string        `yaml:"header_name"`
	HeaderTemplate string        `yaml:"header_template"`
	Timeout        time.Duration `yaml:"timeout"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	RateLimitBurst int           `yaml:"rate_limit_burst"`
}

type SyncConfig struct {
	Sport              string  `yaml:"sport"`
	Season             int     `yaml:"season"`
	ActiveLeagues      []int64 `yaml:"active_leagues"`
	Bookmaker          int     `yaml:"bookmaker"`
	FixturePastDays    int     `yaml:"fixture_past_days"`
	FixtureFutureDays  int     `yaml:"fixture_future_days"`
	FixtureConcurrency int     `yaml:"fixture_concurrency"`
	OddsUpcomingHours  int     `yaml:"odds_upcoming_hours"`
	OddsUpcomingBatch  int     `yaml:"odds_upcoming_batch"`
	OddsLiveBatch      int     `yaml:"odds_live_batch"`
}

type JobsConfig struct {
	Concurrency        int           `yaml:"concurrency"`
	MaxRetries         int           `yaml:"max_retries"`
	LockWindow         time.Duration `yaml:"lock_window"`
	StallCheckInterval time.Duration `yaml:"stall_check_interval"`
	RetentionDays      int           `yaml:"retention_days"`
	QueuePrefix        string        `yaml:"queue_prefix"`
	RetryBackoff       BackoffConfig `yaml:"retry_backoff"`
}

type BackoffConfig struct {
	Enabled      bool          `yaml:"enabled"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Factor       float64       `yaml:"factor"`
}

// SchedulerConfig holds cron specs ("@every 6h", "0 3 * * *"). Empty spec
// disables the trigger.
type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Leagues      string `yaml:"leagues"`
	Teams        string `yaml:"teams"`
	Fixtures     string `yaml:"fixtures"`
	OddsUpcoming string `yaml:"odds_upcoming"`
	OddsLive     string `yaml:"odds_live"`
	Cleanup      string `yaml:"cleanup"`
	Backup       string `yaml:"backup"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig configures operator alerts. With Commands set, the same
// chats may also drive the job queue through bot commands.
type TelegramConfig struct {
	Enabled      bool    `yaml:"enabled"`
	BotToken     string  `yaml:"bot_token"`
	ChatIDs      []int64 `yaml:"chat_ids"`
	Commands     bool    `yaml:"commands"`
	CommandRate  float64 `yaml:"command_rate"`
	CommandBurst int     `yaml:"command_burst"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; only a malformed file is an error.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case models.DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite3")
		}
	case models.DriverPostgres:
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for postgres")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Provider.BaseURL == "" {
		return errors.New("provider base_url is required")
	}
	if !strings.Contains(c.Provider.HeaderTemplate, models.APIKeyPlaceholder) {
		return fmt.Errorf("provider header_template must contain %s", models.APIKeyPlaceholder)
	}
	if c.Sync.FixturePastDays < 0 || c.Sync.FixtureFutureDays < 0 {
		return errors.New("fixture day limits must be non-negative")
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}

	return ValidateAPIKeys(c.API.Auth.APIKeys)
}

// Specs maps trigger names to their cron specs, including empty ones.
func (s SchedulerConfig) Specs() map[string]string {
	return map[string]string{
		"leagues":       s.Leagues,
		"teams":         s.Teams,
		"fixtures":      s.Fixtures,
		"odds_upcoming": s.OddsUpcoming,
		"odds_live":     s.OddsLive,
		"cleanup":       s.Cleanup,
		"backup":        s.Backup,
	}
}

func (s SchedulerConfig) Validate() error {
	for name, spec := range s.Specs() {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("scheduler %s: invalid spec %q: %w", name, spec, err)
		}
	}
	return nil
}

func ValidateAPIKeys(keys []APIClientKey) error {
	seen := make(map[string]bool)
	for _, k := range keys {
		if strings.TrimSpace(k.Key) == "" {
			return fmt.Errorf("api key '%s' is empty", k.Name)
		}
		if seen[k.Key] {
			return fmt.Errorf("duplicate api key for client '%s'", k.Name)
		}
		seen[k.Key] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "sportsync"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = models.DriverSQLite
	}

	if c.Provider.Name == "" {
		c.Provider.Name = models.DefaultProviderName
	}
	if c.Provider.HeaderName == "" {
		c.Provider.HeaderName = models.DefaultAPIKeyHeader
	}
	if c.Provider.HeaderTemplate == "" {
		c.Provider.HeaderTemplate = models.APIKeyPlaceholder
	}
	if c.Provider.Timeout <= 0 {
		c.Provider.Timeout = 30 * time.Second
	}
	if c.Provider.RateLimitBurst <= 0 {
		c.Provider.RateLimitBurst = 1
	}

	if c.Sync.Sport == "" {
		c.Sync.Sport = models.SportFootball
	}
	if c.Sync.Season == 0 {
		c.Sync.Season = time.Now().Year()
	}
	if c.Sync.FixturePastDays == 0 {
		c.Sync.FixturePastDays = models.DefaultFixturePastDays
	}
	if c.Sync.FixtureFutureDays == 0 {
		c.Sync.FixtureFutureDays = models.DefaultFixtureFutureDays
	}
	if c.Sync.FixtureConcurrency <= 0 {
		c.Sync.FixtureConcurrency = 4
	}
	if c.Sync.OddsUpcomingHours <= 0 {
		c.Sync.OddsUpcomingHours = models.DefaultOddsUpcomingHours
	}
	if c.Sync.OddsUpcomingBatch <= 0 {
		c.Sync.OddsUpcomingBatch = models.MaxUpcomingOddsBatch
	}
	if c.Sync.OddsLiveBatch <= 0 {
		c.Sync.OddsLiveBatch = models.MaxLiveOddsBatch
	}

	if c.Jobs.Concurrency <= 0 {
		c.Jobs.Concurrency = 4
	}
	if c.Jobs.MaxRetries <= 0 {
		c.Jobs.MaxRetries = 3
	}
	if c.Jobs.LockWindow <= 0 {
		c.Jobs.LockWindow = 5 * time.Minute
	}
	if c.Jobs.StallCheckInterval <= 0 {
		c.Jobs.StallCheckInterval = 30 * time.Second
	}
	if c.Jobs.RetentionDays <= 0 {
		c.Jobs.RetentionDays = models.DefaultJobRetentionDays
	}
	if c.Jobs.QueuePrefix == "" {
		c.Jobs.QueuePrefix = "sportsync:jobs"
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Notify.Telegram.CommandRate <= 0 {
		c.Notify.Telegram.CommandRate = 1
	}
	if c.Notify.Telegram.CommandBurst <= 0 {
		c.Notify.Telegram.CommandBurst = 3
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 14
	}
}
