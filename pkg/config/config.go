package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Line      LineConfig      `yaml:"line"`
	Server    ServerConfig    `yaml:"server"`
	Estimator EstimatorConfig `yaml:"estimator"`
	Store     StoreConfig     `yaml:"store"`
	Session   SessionConfig   `yaml:"session"`
	Retention RetentionConfig `yaml:"retention"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`

	// Timezone is the IANA zone used to interpret dates (default Asia/Taipei).
	Timezone string `yaml:"timezone"`
}

// LineConfig holds the messaging channel credentials.
type LineConfig struct {
	ChannelAccessToken string `yaml:"channel_access_token"`
	ChannelSecret      string `yaml:"channel_secret"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
	// EventTimeout bounds the processing of one chat event.
	EventTimeout time.Duration `yaml:"event_timeout"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// EstimatorConfig selects the nutrition estimator.
type EstimatorConfig struct {
	// Provider is "gemini", "openai" or "mock".
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	GeminiAPIKey string        `yaml:"gemini_api_key"`
	OpenAIAPIKey string        `yaml:"openai_api_key"`
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

// APIKey returns the key for the selected provider.
func (e EstimatorConfig) APIKey() string {
	switch e.Provider {
	case "gemini":
		return e.GeminiAPIKey
	case "openai":
		return e.OpenAIAPIKey
	default:
		return ""
	}
}

// StoreConfig selects the record store.
type StoreConfig struct {
	// Backend is "firestore", "redis" or "memory".
	Backend            string `yaml:"backend"`
	DietCollection     string `yaml:"diet_collection"`
	ExerciseCollection string `yaml:"exercise_collection"`

	GCPProject     string `yaml:"gcp_project"`
	GCPCredentials string `yaml:"gcp_credentials"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// SessionConfig tunes the conversation lifecycle.
type SessionConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	AckDelay time.Duration `yaml:"ack_delay"`
}

// RetentionConfig tunes the archive sweep.
type RetentionConfig struct {
	Days int `yaml:"days"`
	// Schedule is a cron expression; empty disables the in-process job.
	Schedule string        `yaml:"schedule"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Rate limit defaults. The burst admits a trigger plus the largest photo
// batch the chat app sends at once (20) with room for notes.
const (
	DefaultEventsPerSecond = 5
	DefaultEventBurst      = 30
)

// RateLimitConfig throttles inbound events per user.
type RateLimitConfig struct {
	EventsPerSecond float64 `yaml:"events_per_second"`
	Burst           int     `yaml:"burst"`
}

// LogConfig configures logrus.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads an optional .env file and an optional YAML file, then
// applies environment overrides and defaults. An empty path skips the
// YAML file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Line.ChannelAccessToken, "CHANNEL_ACCESS_TOKEN")
	setString(&c.Line.ChannelSecret, "CHANNEL_SECRET")
	setString(&c.Estimator.Provider, "ESTIMATOR_PROVIDER")
	setString(&c.Estimator.Model, "ESTIMATOR_MODEL")
	setString(&c.Estimator.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.Estimator.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Store.Backend, "STORE_BACKEND")
	setString(&c.Store.DietCollection, "DIET_COLLECTION")
	setString(&c.Store.ExerciseCollection, "EXERCISE_COLLECTION")
	setString(&c.Store.GCPProject, "GCP_PROJECT")
	setString(&c.Store.GCPCredentials, "GOOGLE_APPLICATION_CREDENTIALS")
	setString(&c.Store.RedisAddr, "REDIS_ADDR")
	setString(&c.Store.RedisPassword, "REDIS_PASSWORD")
	setString(&c.Retention.Schedule, "RETENTION_SCHEDULE")
	setString(&c.Timezone, "TIMEZONE")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Log.Format, "LOG_FORMAT")

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RETENTION_DAYS %q: %w", v, err)
		}
		c.Retention.Days = days
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.EventTimeout == 0 {
		c.Server.EventTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Estimator.Provider == "" {
		c.Estimator.Provider = "gemini"
	}
	if c.Estimator.Timeout == 0 {
		c.Estimator.Timeout = 45 * time.Second
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "firestore"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 5 * time.Minute
	}
	if c.Session.AckDelay == 0 {
		c.Session.AckDelay = 800 * time.Millisecond
	}
	if c.Retention.Days == 0 {
		c.Retention.Days = 30
	}
	if c.Retention.Timeout == 0 {
		c.Retention.Timeout = 5 * time.Minute
	}
	if c.RateLimit.EventsPerSecond == 0 {
		c.RateLimit.EventsPerSecond = DefaultEventsPerSecond
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = DefaultEventBurst
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Taipei"
	}
}

// Validate checks the settings needed to serve webhooks.
func (c *Config) Validate() error {
	var errs []error
	if c.Line.ChannelAccessToken == "" {
		errs = append(errs, errors.New("channel access token is required"))
	}
	if c.Line.ChannelSecret == "" {
		errs = append(errs, errors.New("channel secret is required"))
	}
	if c.Store.DietCollection == "" {
		errs = append(errs, errors.New("diet collection is required"))
	}
	if err := c.ValidateStore(); err != nil {
		errs = append(errs, err)
	}
	if c.Estimator.Provider != "mock" && c.Estimator.APIKey() == "" {
		errs = append(errs, fmt.Errorf("API key for estimator %q is required", c.Estimator.Provider))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Retention.Days < 0 {
		errs = append(errs, fmt.Errorf("invalid retention days %d", c.Retention.Days))
	}
	return errors.Join(errs...)
}

// ValidateStore checks only the record store settings. It is enough for
// the cleanup command.
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case "firestore":
		if c.Store.GCPProject == "" {
			return errors.New("gcp project is required for the firestore store")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("redis address is required for the redis store")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	return nil
}

// Location loads Timezone, falling back to a fixed UTC+8 zone when the
// zone database is unavailable.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}
