// Package config builds the runtime configuration from defaults, an
// optional YAML file, an optional .env file and the environment, in that
// order of precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/baxromumarov/jobradar/internal/ai"
	"github.com/baxromumarov/jobradar/internal/notify"
	"github.com/baxromumarov/jobradar/internal/quota"
)

type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Log        LogConfig         `yaml:"log"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	AI         ai.Config         `yaml:"ai"`
	Quota      quota.Limits      `yaml:"quota"`
	Sources    SourcesConfig     `yaml:"sources"`
	Aggregator AggregatorConfig  `yaml:"aggregator"`
	SMTP       notify.SMTPConfig `yaml:"smtp"`
	Alerts     AlertsConfig      `yaml:"alerts"`
	Tasks      TasksConfig       `yaml:"tasks"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	CronSecret      string        `yaml:"cron_secret"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig leaves URL empty to run on the in-memory store.
type DatabaseConfig struct {
	URL            string `yaml:"url"`
	SchemaPath     string `yaml:"schema_path"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type RedisConfig struct {
	URL       string        `yaml:"url"`
	SearchTTL time.Duration `yaml:"search_ttl"`
}

type SourcesConfig struct {
	Enabled       []string `yaml:"enabled"`
	UserAgent     string   `yaml:"user_agent"`
	AdzunaAppID   string   `yaml:"adzuna_app_id"`
	AdzunaAppKey  string   `yaml:"adzuna_app_key"`
	AdzunaCountry string   `yaml:"adzuna_country"`
	ITJobsAPIKey  string   `yaml:"itjobs_api_key"`
}

type AggregatorConfig struct {
	Concurrency int           `yaml:"concurrency"`
	Deadline    time.Duration `yaml:"deadline"`
	TopSkills   int           `yaml:"top_skills"`
	MaxPasses   int           `yaml:"max_passes"`
}

type AlertsConfig struct {
	Recipient     string        `yaml:"recipient"`
	CronEnabled   bool          `yaml:"cron_enabled"`
	RunSchedule   string        `yaml:"run_schedule"`
	Retention     time.Duration `yaml:"retention"`
	RetentionCron string        `yaml:"retention_schedule"`
	QuotaRefresh  string        `yaml:"quota_refresh_schedule"`
	EnrichTimeout time.Duration `yaml:"enrich_timeout"`
}

type TasksConfig struct {
	Workers int `yaml:"workers"`
}

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			CORSOrigins:     []string{"*"},
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Log:      LogConfig{Level: "info", Format: "json"},
		Database: DatabaseConfig{MigrateOnStart: true},
		Redis:    RedisConfig{SearchTTL: 300 * time.Second},
		AI:       ai.Config{MaxTokens: 4096},
		Quota:    quota.Limits{Daily: 100, Monthly: 2000, AlertThreshold: 0.8},
		Sources: SourcesConfig{
			UserAgent:     DefaultUserAgent,
			AdzunaCountry: "br",
		},
		Aggregator: AggregatorConfig{
			Concurrency: 8,
			Deadline:    60 * time.Second,
			TopSkills:   5,
			MaxPasses:   3,
		},
		SMTP: notify.SMTPConfig{Port: 587, Timeout: 30 * time.Second},
		Alerts: AlertsConfig{
			RunSchedule:   "0 * * * *",
			Retention:     30 * 24 * time.Hour,
			RetentionCron: "30 3 * * *",
			QuotaRefresh:  "* * * * *",
			EnrichTimeout: 20 * time.Second,
		},
		Tasks: TasksConfig{Workers: 2},
	}
}

// LoadYAML fills the value built by fn from the file at path. A missing
// path or file leaves the defaults untouched.
func LoadYAML[T any](path string, fn func() *T) (*T, error) {
	cfg := fn()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads .env (if present), the YAML file at path and the environment,
// then validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}

	cfg, err := LoadYAML(path, Default)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
				return
			}
			*dst = d
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			var out []string
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
			*dst = out
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
				return
			}
			*dst = b
		}
	}

	str("PORT", &c.Server.Port)
	str("CRON_SECRET", &c.Server.CronSecret)
	list("CORS_ORIGINS", &c.Server.CORSOrigins)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	str("DATABASE_URL", &c.Database.URL)
	str("SCHEMA_PATH", &c.Database.SchemaPath)
	flag("MIGRATE_ON_START", &c.Database.MigrateOnStart)
	str("REDIS_URL", &c.Redis.URL)
	dur("SEARCH_CACHE_TTL", &c.Redis.SearchTTL)

	str("AI_PROVIDER", &c.AI.Provider)
	str("GEMINI_API_KEY", &c.AI.GeminiAPIKey)
	str("GEMINI_MODEL", &c.AI.GeminiModel)
	str("TOGETHER_API_KEY", &c.AI.TogetherAPIKey)
	str("TOGETHER_MODEL", &c.AI.TogetherModel)
	str("TOGETHER_URL", &c.AI.TogetherURL)
	num("AI_MAX_TOKENS", &c.AI.MaxTokens)
	num("LLM_DAILY_LIMIT", &c.Quota.Daily)
	num("LLM_MONTHLY_LIMIT", &c.Quota.Monthly)

	list("SOURCES", &c.Sources.Enabled)
	str("SCRAPER_USER_AGENT", &c.Sources.UserAgent)
	str("ADZUNA_APP_ID", &c.Sources.AdzunaAppID)
	str("ADZUNA_APP_KEY", &c.Sources.AdzunaAppKey)
	str("ADZUNA_COUNTRY", &c.Sources.AdzunaCountry)
	str("ITJOBS_API_KEY", &c.Sources.ITJobsAPIKey)
	num("AGGREGATOR_CONCURRENCY", &c.Aggregator.Concurrency)
	dur("AGGREGATOR_DEADLINE", &c.Aggregator.Deadline)

	str("SMTP_HOST", &c.SMTP.Host)
	num("SMTP_PORT", &c.SMTP.Port)
	str("SMTP_USERNAME", &c.SMTP.Username)
	str("SMTP_PASSWORD", &c.SMTP.Password)
	str("SMTP_FROM", &c.SMTP.From)
	dur("SMTP_TIMEOUT", &c.SMTP.Timeout)

	str("ALERT_EMAIL_TO", &c.Alerts.Recipient)
	flag("ALERT_CRON_ENABLED", &c.Alerts.CronEnabled)
	str("ALERT_CRON", &c.Alerts.RunSchedule)
	dur("JOB_RETENTION", &c.Alerts.Retention)
	num("TASK_WORKERS", &c.Tasks.Workers)

	return errors.Join(errs...)
}

// Validate fails fast on settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	} else if p, err := strconv.Atoi(c.Server.Port); err != nil || p < 1 || p > 65535 {
		errs = append(errs, fmt.Errorf("server port %q is not a valid port", c.Server.Port))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.AI.Provider) {
	case "", "gemini", "together", "mock":
	default:
		errs = append(errs, fmt.Errorf("unknown ai provider %q", c.AI.Provider))
	}
	if c.Quota.Daily < 0 || c.Quota.Monthly < 0 {
		errs = append(errs, errors.New("quota limits cannot be negative"))
	}
	if c.Quota.AlertThreshold < 0 || c.Quota.AlertThreshold > 1 {
		errs = append(errs, fmt.Errorf("quota alert threshold %.2f must be within 0..1", c.Quota.AlertThreshold))
	}
	if c.Aggregator.Concurrency < 1 {
		errs = append(errs, errors.New("aggregator concurrency must be at least 1"))
	}
	if c.Aggregator.Deadline <= 0 {
		errs = append(errs, errors.New("aggregator deadline must be positive"))
	}
	if c.SMTP.Host != "" && (c.SMTP.Port < 1 || c.SMTP.Port > 65535) {
		errs = append(errs, fmt.Errorf("smtp port %d is not a valid port", c.SMTP.Port))
	}
	if c.SMTP.Host != "" && c.SMTP.Timeout <= 0 {
		errs = append(errs, errors.New("smtp timeout must be positive"))
	}
	if c.Alerts.CronEnabled && c.Alerts.RunSchedule == "" {
		errs = append(errs, errors.New("alert cron is enabled without a run schedule"))
	}
	if c.Tasks.Workers < 1 {
		errs = append(errs, errors.New("task workers must be at least 1"))
	}
	return errors.Join(errs...)
}

func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}
