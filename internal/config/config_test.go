package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Aggregator.Deadline)
	assert.Equal(t, 300*time.Second, cfg.Redis.SearchTTL)
	assert.Empty(t, cfg.Database.URL)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
  cors_origins: ["https://jobs.example.com"]
quota:
  daily: 5
  monthly: 50
  alert_threshold: 0.5
aggregator:
  deadline: 30s
smtp:
  host: smtp.example.com
  port: 465
alerts:
  recipient: me@example.com
`), 0o600))

	cfg, err := LoadYAML(path, Default)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://jobs.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 5, cfg.Quota.Daily)
	assert.Equal(t, 0.5, cfg.Quota.AlertThreshold)
	assert.Equal(t, 30*time.Second, cfg.Aggregator.Deadline)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "me@example.com", cfg.Alerts.Recipient)
	assert.Equal(t, 8, cfg.Aggregator.Concurrency, "unset keys keep defaults")
}

func TestLoadYAMLMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := LoadYAML(filepath.Join(t.TempDir(), "absent.yaml"), Default)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = LoadYAML("", Default)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAMLParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o600))
	_, err := LoadYAML(path, Default)
	assert.ErrorContains(t, err, "parse config")
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"PORT":                "3000",
		"DATABASE_URL":        "postgres://localhost/jobradar",
		"REDIS_URL":           "redis://localhost:6379/0",
		"GEMINI_API_KEY":      "k",
		"LLM_DAILY_LIMIT":     "7",
		"SOURCES":             "remotive, remoteok ,,",
		"AGGREGATOR_DEADLINE": "45s",
		"ALERT_CRON_ENABLED":  "true",
		"SMTP_TIMEOUT":        "12s",
		"CRON_SECRET":         "",
	}))
	require.NoError(t, err)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/jobradar", cfg.Database.URL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, "k", cfg.AI.GeminiAPIKey)
	assert.Equal(t, 7, cfg.Quota.Daily)
	assert.Equal(t, []string{"remotive", "remoteok"}, cfg.Sources.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Aggregator.Deadline)
	assert.True(t, cfg.Alerts.CronEnabled)
	assert.Equal(t, 12*time.Second, cfg.SMTP.Timeout)
	assert.Empty(t, cfg.Server.CronSecret, "empty values do not override")
}

func TestApplyEnvRejectsMalformedValues(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(envMap(map[string]string{
		"LLM_DAILY_LIMIT":     "lots",
		"AGGREGATOR_DEADLINE": "soon",
		"ALERT_CRON_ENABLED":  "maybe",
	}))
	require.Error(t, err)
	assert.ErrorContains(t, err, "LLM_DAILY_LIMIT")
	assert.ErrorContains(t, err, "AGGREGATOR_DEADLINE")
	assert.ErrorContains(t, err, "ALERT_CRON_ENABLED")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }, "port is required"},
		{"bad port", func(c *Config) { c.Server.Port = "99999" }, "not a valid port"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "invalid log level"},
		{"bad provider", func(c *Config) { c.AI.Provider = "oracle" }, "unknown ai provider"},
		{"threshold", func(c *Config) { c.Quota.AlertThreshold = 1.5 }, "threshold"},
		{"concurrency", func(c *Config) { c.Aggregator.Concurrency = 0 }, "concurrency"},
		{"smtp port", func(c *Config) { c.SMTP.Host = "smtp"; c.SMTP.Port = 0 }, "smtp port"},
		{"smtp timeout", func(c *Config) { c.SMTP.Host = "smtp"; c.SMTP.Timeout = 0 }, "smtp timeout"},
		{"cron spec", func(c *Config) { c.Alerts.CronEnabled = true; c.Alerts.RunSchedule = "" }, "run schedule"},
		{"workers", func(c *Config) { c.Tasks.Workers = 0 }, "task workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)

	l, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)
}
