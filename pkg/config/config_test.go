package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CHANNEL_ACCESS_TOKEN", "CHANNEL_SECRET", "ESTIMATOR_PROVIDER", "ESTIMATOR_MODEL",
	"GEMINI_API_KEY", "OPENAI_API_KEY", "STORE_BACKEND", "DIET_COLLECTION",
	"EXERCISE_COLLECTION", "GCP_PROJECT", "GOOGLE_APPLICATION_CREDENTIALS",
	"REDIS_ADDR", "REDIS_PASSWORD", "RETENTION_SCHEDULE", "RETENTION_DAYS",
	"TIMEZONE", "LOG_LEVEL", "LOG_FORMAT", "PORT",
}

// isolate clears the environment and runs from an empty directory so no
// stray .env file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 800*time.Millisecond, cfg.Session.AckDelay)
	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, "gemini", cfg.Estimator.Provider)
	assert.Equal(t, "firestore", cfg.Store.Backend)
	assert.Equal(t, "Asia/Taipei", cfg.Timezone)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, float64(DefaultEventsPerSecond), cfg.RateLimit.EventsPerSecond)
	assert.GreaterOrEqual(t, cfg.RateLimit.Burst, 21, "burst admits a trigger and a full photo batch")
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nutrilog.yaml")
	writeFile(t, path, `
line:
  channel_access_token: yaml-token
  channel_secret: yaml-secret
server:
  port: 8080
estimator:
  provider: openai
  openai_api_key: sk-yaml
store:
  backend: redis
  redis_addr: localhost:6379
  diet_collection: diet
session:
  ttl: 2m
  ack_delay: 500ms
retention:
  days: 14
  schedule: "0 4 * * *"
`)
	t.Setenv("PORT", "9090")
	t.Setenv("CHANNEL_SECRET", "env-secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "yaml-token", cfg.Line.ChannelAccessToken)
	assert.Equal(t, "env-secret", cfg.Line.ChannelSecret, "env overrides the file")
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sk-yaml", cfg.Estimator.APIKey())
	assert.Equal(t, 2*time.Minute, cfg.Session.TTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Session.AckDelay)
	assert.Equal(t, 14, cfg.Retention.Days)
	assert.Equal(t, "0 4 * * *", cfg.Retention.Schedule)
	require.NoError(t, cfg.Validate())
}

func TestLoadDotEnv(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), "DIET_COLLECTION=from-dotenv\n")
	// godotenv never overrides variables that are already set, and
	// t.Setenv("", ...) counts as set, so unset this one explicitly.
	require.NoError(t, os.Unsetenv("DIET_COLLECTION"))
	t.Cleanup(func() { _ = os.Unsetenv("DIET_COLLECTION") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Store.DietCollection)
}

func TestLoadErrors(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	bad := filepath.Join(dir, "bad.yaml")
	writeFile(t, bad, "server: [unterminated")
	_, err = Load(bad)
	assert.ErrorContains(t, err, "failed to parse config")

	t.Setenv("PORT", "eighty")
	_, err = Load("")
	assert.ErrorContains(t, err, "invalid PORT")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := &Config{
			Line:      LineConfig{ChannelAccessToken: "t", ChannelSecret: "s"},
			Estimator: EstimatorConfig{Provider: "gemini", GeminiAPIKey: "g"},
			Store:     StoreConfig{Backend: "firestore", GCPProject: "p", DietCollection: "diet"},
		}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing token", func(c *Config) { c.Line.ChannelAccessToken = "" }, "channel access token"},
		{"missing secret", func(c *Config) { c.Line.ChannelSecret = "" }, "channel secret"},
		{"missing diet collection", func(c *Config) { c.Store.DietCollection = "" }, "diet collection"},
		{"missing project", func(c *Config) { c.Store.GCPProject = "" }, "gcp project"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "sqlite" }, "unknown store backend"},
		{"missing api key", func(c *Config) { c.Estimator.GeminiAPIKey = "" }, "API key"},
		{"mock needs no key", func(c *Config) { c.Estimator = EstimatorConfig{Provider: "mock"} }, ""},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "invalid port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	c := &Config{Timezone: "Not/AZone"}
	loc := c.Location()
	_, offset := time.Date(2026, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 8*3600, offset)
}
