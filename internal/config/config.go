// Package config defines service configuration and how it is loaded.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":5000".
	Addr string `koanf:"addr"`

	// DataDir is the base for relative data paths below.
	DataDir string `koanf:"data_dir"`

	QuestionnairePath string `koanf:"questionnaire_path"`
	ResultsDir        string `koanf:"results_dir"`
	StatisticsPath    string `koanf:"statistics_path"`

	// ResultsBackend is file, sqlite or memory.
	ResultsBackend string `koanf:"results_backend"`
	SQLitePath     string `koanf:"sqlite_path"`

	// SessionBackend is memory or redis.
	SessionBackend    string `koanf:"session_backend"`
	RedisAddr         string `koanf:"redis_addr"`
	RedisPassword     string `koanf:"redis_password"`
	RedisDB           int    `koanf:"redis_db"`
	SessionTTLSeconds int    `koanf:"session_ttl_seconds"`

	// LLMAPIKey enables the analysis collaborator when set.
	LLMAPIKey      string  `koanf:"llm_api_key"`
	LLMBaseURL     string  `koanf:"llm_base_url"`
	LLMModel       string  `koanf:"llm_model"`
	LLMTimeoutMS   int     `koanf:"llm_timeout_ms"`
	LLMTemperature float64 `koanf:"llm_temperature"`

	// ShutdownTimeoutMS bounds graceful HTTP shutdown.
	ShutdownTimeoutMS int `koanf:"shutdown_timeout_ms"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":5000",
		DataDir:           "data",
		QuestionnairePath: "questionnaire.json",
		ResultsDir:        "results",
		StatisticsPath:    "statistics.json",
		ResultsBackend:    BackendFile,
		SQLitePath:        "results.db",
		SessionBackend:    BackendMemory,
		RedisAddr:         "localhost:6379",
		LLMBaseURL:        "https://api.openai.com/v1",
		LLMModel:          "gpt-4o-mini",
		LLMTimeoutMS:      30_000,
		LLMTemperature:    0.7,
		ShutdownTimeoutMS: 10_000,
	}
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	case c.ResultsBackend != BackendFile && c.ResultsBackend != BackendSQLite && c.ResultsBackend != BackendMemory:
		return fmt.Errorf("%w: unknown results_backend %q", ErrInvalidConfig, c.ResultsBackend)
	case c.SessionBackend != BackendMemory && c.SessionBackend != BackendRedis:
		return fmt.Errorf("%w: unknown session_backend %q", ErrInvalidConfig, c.SessionBackend)
	case c.SessionBackend == BackendRedis && c.RedisAddr == "":
		return fmt.Errorf("%w: redis_addr is required for the redis session backend", ErrInvalidConfig)
	case c.SessionTTLSeconds < 0:
		return fmt.Errorf("%w: session_ttl_seconds must not be negative", ErrInvalidConfig)
	case c.LLMTimeoutMS <= 0:
		return fmt.Errorf("%w: llm_timeout_ms must be positive", ErrInvalidConfig)
	case c.ShutdownTimeoutMS <= 0:
		return fmt.Errorf("%w: shutdown_timeout_ms must be positive", ErrInvalidConfig)
	}
	return nil
}

// Path resolves p against DataDir unless it is absolute.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.DataDir == "" {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// SessionTTL returns the redis session expiry; zero keeps sessions forever.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// LLMTimeout returns the collaborator request budget.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}
