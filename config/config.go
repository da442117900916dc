// Package config loads server settings from the environment and optional
// .env files.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
)

// DefaultEnvFiles are read in order when present; later files win only for
// keys the earlier ones did not set.
var DefaultEnvFiles = []string{".env", ".env.local"}

type RateLimitOptions struct {
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	// ulule/limiter formatted rate, e.g. "20-S" or "1000-H".
	Validate string `env:"RATE_LIMIT_VALIDATE" envDefault:"20-S"`
}

type AlertOptions struct {
	Enabled  bool          `env:"ALERT_MONITOR_ENABLED" envDefault:"true"`
	Interval time.Duration `env:"ALERT_MONITOR_INTERVAL" envDefault:"1m"`
}

type Configuration struct {
	RateLimit RateLimitOptions
	Alert     AlertOptions

	Port           int      `env:"PORT" envDefault:"8080"`
	DBPath         string   `env:"DB_PATH" envDefault:"capacity.db"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"text"` // text or json
	MetricsEnabled bool     `env:"METRICS_ENABLED" envDefault:"true"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:8080"`
	ScenarioDir    string   `env:"SCENARIO_DIR"`
}

// LoadEnv loads the env files that exist and returns how many were found.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files, then parses and validates the environment.
func Load(envFiles []string) (*Configuration, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	c := &Configuration{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks values env tags cannot express.
func (c *Configuration) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT=%d", c.Port)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT=%q (expected text|json)", c.LogFormat)
	}
	if c.RateLimit.Enabled {
		if _, err := limiter.NewRateFromFormatted(c.RateLimit.Validate); err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_VALIDATE=%q: %w", c.RateLimit.Validate, err)
		}
	}
	if c.Alert.Enabled && c.Alert.Interval <= 0 {
		return fmt.Errorf("ALERT_MONITOR_INTERVAL must be positive, got %s", c.Alert.Interval)
	}
	return nil
}

// Addr is the listen address.
func (c *Configuration) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// LogrusLogLevel maps LOG_LEVEL to a logrus level, defaulting to info.
func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch strings.ToLower(c.LogLevel) {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger builds the process logger.
func (c *Configuration) Logger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogrusLogLevel())
	if strings.EqualFold(c.LogFormat, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
