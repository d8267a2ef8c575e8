package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	Reminders  RemindersConfig  `mapstructure:"reminders"`
	SMS        SMSConfig        `mapstructure:"sms"`
	Discounts  DiscountsConfig  `mapstructure:"discounts"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	TimeoutSeconds int      `mapstructure:"timeoutSeconds"`
	CORSOrigins    []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
	// AutoMigrate creates missing tables at startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type RemindersConfig struct {
	Timezone string `mapstructure:"timezone"`
	// CronSpec drives the scheduler tick; each tick fires rules whose
	// send_time has passed today.
	CronSpec               string        `mapstructure:"cron_spec"`
	CatchUp                bool          `mapstructure:"catch_up"`
	LookbackDays           int           `mapstructure:"lookback_days"`
	SpecificDateScope      string        `mapstructure:"specific_date_scope"`
	SpecificDateWindowDays int           `mapstructure:"specific_date_window_days"`
	DefaultTemplate        string        `mapstructure:"default_template"`
	BulkWorkers            int           `mapstructure:"bulk_workers"`
	SendLogRetention       time.Duration `mapstructure:"send_log_retention"`
	DirectoryCacheTTL      time.Duration `mapstructure:"directory_cache_ttl"`
	// IdempotencyBackend is "postgres" or "redis".
	IdempotencyBackend string `mapstructure:"idempotency_backend"`
	// Channel is used for rule-driven reminders.
	Channel string `mapstructure:"channel"`
}

type SMSConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Sender            string        `mapstructure:"sender"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

type DiscountsConfig struct {
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
}

// OutboxConfig tunes the relay that publishes in-app notification pushes.
type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
	Lease         time.Duration `mapstructure:"lease"`
	Retention     time.Duration `mapstructure:"retention"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool   `mapstructure:"prometheus_enabled"`
	MetricsPath       string `mapstructure:"metrics_path"`
	Namespace         string `mapstructure:"namespace"`
}

// secrets are read from the environment after the file, so deployments
// never need credentials in config.yaml.
type secrets struct {
	DBHost     string `envconfig:"DB_HOST"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	RedisURL   string `envconfig:"REDIS_URL"`
	JWTSecret  string `envconfig:"JWT_SECRET"`
	SMSAPIKey  string `envconfig:"SMS_API_KEY"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeoutSeconds", 30)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("jwt.issuer", "academy-api")
	v.SetDefault("jwt.ttl", "12h")
	v.SetDefault("log.level", "info")
	v.SetDefault("reminders.timezone", "UTC")
	v.SetDefault("reminders.cron_spec", "* * * * *")
	v.SetDefault("reminders.catch_up", false)
	v.SetDefault("reminders.lookback_days", 3)
	v.SetDefault("reminders.specific_date_scope", "window")
	v.SetDefault("reminders.specific_date_window_days", 30)
	v.SetDefault("reminders.default_template",
		"Hello {{ recipient_name }}, {{ player_name }}'s subscription ends on {{ end_date }} ({{ days_remaining }} days left).")
	v.SetDefault("reminders.bulk_workers", 8)
	v.SetDefault("reminders.send_log_retention", "2160h")
	v.SetDefault("reminders.idempotency_backend", "postgres")
	v.SetDefault("reminders.directory_cache_ttl", "1m")
	v.SetDefault("reminders.channel", "notification")
	v.SetDefault("sms.timeout", "10s")
	v.SetDefault("sms.requests_per_second", 5)
	v.SetDefault("sms.burst", 5)
	v.SetDefault("discounts.maintenance_interval", "1h")
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", "2s")
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.retry_delay", "5s")
	v.SetDefault("outbox.max_retry_delay", "5m")
	v.SetDefault("outbox.lease", "30s")
	v.SetDefault("outbox.retention", "168h")
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.namespace", "academy")
}

// LoadConfig reads config.yaml from the usual locations, then applies
// ACADEMY_* environment overrides.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app/config")

	v.SetEnvPrefix("ACADEMY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env secrets
	if err := envconfig.Process("ACADEMY", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	config.applySecrets(env)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applySecrets(env secrets) {
	if env.DBHost != "" {
		c.Database.Host = env.DBHost
	}
	if env.DBPassword != "" {
		c.Database.Password = env.DBPassword
	}
	if env.RedisURL != "" {
		c.Redis.URL = env.RedisURL
	}
	if env.JWTSecret != "" {
		c.JWT.Secret = env.JWTSecret
	}
	if env.SMSAPIKey != "" {
		c.SMS.APIKey = env.SMSAPIKey
	}
}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Reminders.Timezone); err != nil {
		return fmt.Errorf("invalid reminders.timezone %q: %w", c.Reminders.Timezone, err)
	}
	switch c.Reminders.SpecificDateScope {
	case "window", "all_active":
	default:
		return fmt.Errorf("invalid reminders.specific_date_scope %q", c.Reminders.SpecificDateScope)
	}
	switch c.Reminders.IdempotencyBackend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("invalid reminders.idempotency_backend %q", c.Reminders.IdempotencyBackend)
	}
	switch c.Reminders.Channel {
	case "notification", "sms", "both":
	default:
		return fmt.Errorf("invalid reminders.channel %q", c.Reminders.Channel)
	}
	if c.Reminders.LookbackDays < 0 {
		return fmt.Errorf("reminders.lookback_days must not be negative")
	}
	if c.Reminders.BulkWorkers <= 0 {
		return fmt.Errorf("reminders.bulk_workers must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be greater than 0")
	}
	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox.max_attempts must be greater than 0")
	}
	return nil
}

// Location returns the academy's time zone; Validate guarantees it loads.
func (c *RemindersConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DSN builds the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}
