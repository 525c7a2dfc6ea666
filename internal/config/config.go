package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: MEMORIA_ENGINE__POLL_INTERVAL=30s sets engine.poll_interval.
const EnvPrefix = "MEMORIA_"

// Config holds all memoria configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Engine   EngineConfig   `koanf:"engine"`
	Notify   NotifyConfig   `koanf:"notify"`
	Summary  SummaryConfig  `koanf:"summary"`
	Log      LogConfig      `koanf:"log"`
}

type ServerConfig struct {
	Bind           string   `koanf:"bind"`
	Port           int      `koanf:"port"`
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"` // empty resolves to store.DefaultDBPath()
}

type EngineConfig struct {
	Tolerance        time.Duration `koanf:"tolerance"`
	PollInterval     time.Duration `koanf:"poll_interval"`
	OverdueWindow    time.Duration `koanf:"overdue_window"`
	HistoryLimit     int           `koanf:"history_limit"`
	HistoryRetention time.Duration `koanf:"history_retention"`
	HousekeepingSpec string        `koanf:"housekeeping_spec"`
	DispatchTimeout  time.Duration `koanf:"dispatch_timeout"`
}

type NotifyConfig struct {
	Expiry    time.Duration `koanf:"expiry"`
	Heartbeat time.Duration `koanf:"heartbeat"`
	Log       bool          `koanf:"log"` // also log every notification
}

// SummaryConfig controls the nightly daily-summary job.
type SummaryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Spec     string `koanf:"spec"`     // cron spec; runs summarize the previous day
	Language string `koanf:"language"` // ar or en
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Engine: EngineConfig{
			Tolerance:        time.Minute,
			PollInterval:     time.Minute,
			OverdueWindow:    time.Hour,
			HistoryLimit:     1000,
			HistoryRetention: 30 * 24 * time.Hour,
			HousekeepingSpec: "0 3 * * *",
			DispatchTimeout:  10 * time.Second,
		},
		Notify: NotifyConfig{
			Expiry:    24 * time.Hour,
			Heartbeat: 30 * time.Second,
		},
		Summary: SummaryConfig{
			Enabled:  true,
			Spec:     "5 0 * * *",
			Language: "ar",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultMap() map[string]any {
	d := Default()
	return map[string]any{
		"server.bind":              d.Server.Bind,
		"server.port":              d.Server.Port,
		"server.allowed_origins":   []string{},
		"database.path":            d.Database.Path,
		"engine.tolerance":         d.Engine.Tolerance.String(),
		"engine.poll_interval":     d.Engine.PollInterval.String(),
		"engine.overdue_window":    d.Engine.OverdueWindow.String(),
		"engine.history_limit":     d.Engine.HistoryLimit,
		"engine.history_retention": d.Engine.HistoryRetention.String(),
		"engine.housekeeping_spec": d.Engine.HousekeepingSpec,
		"engine.dispatch_timeout":  d.Engine.DispatchTimeout.String(),
		"notify.expiry":            d.Notify.Expiry.String(),
		"notify.heartbeat":         d.Notify.Heartbeat.String(),
		"notify.log":               d.Notify.Log,
		"summary.enabled":          d.Summary.Enabled,
		"summary.spec":             d.Summary.Spec,
		"summary.language":         d.Summary.Language,
		"log.level":                d.Log.Level,
		"log.format":               d.Log.Format,
	}
}

// Load layers defaults, the optional YAML file at configPath, and MEMORIA_*
// environment variables, in that order. A .env file in the working directory
// is read into the environment first. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		configPath = expandPath(configPath)
		if _, err := os.Stat(configPath); err == nil {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file: %w", err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Database.Path = expandPath(cfg.Database.Path)

	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	e := c.Engine
	if e.Tolerance <= 0 {
		return fmt.Errorf("engine.tolerance must be positive")
	}
	if e.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be positive")
	}
	if e.PollInterval > e.Tolerance {
		return fmt.Errorf("engine.poll_interval (%s) must not exceed engine.tolerance (%s)",
			e.PollInterval, e.Tolerance)
	}
	if e.HistoryLimit <= 0 {
		return fmt.Errorf("engine.history_limit must be positive")
	}
	if e.HousekeepingSpec != "" {
		if _, err := cron.ParseStandard(e.HousekeepingSpec); err != nil {
			return fmt.Errorf("engine.housekeeping_spec: %w", err)
		}
	}

	if c.Notify.Heartbeat <= 0 {
		return fmt.Errorf("notify.heartbeat must be positive")
	}
	if c.Notify.Expiry < 0 {
		return fmt.Errorf("notify.expiry must not be negative")
	}

	if c.Summary.Enabled {
		if _, err := cron.ParseStandard(c.Summary.Spec); err != nil {
			return fmt.Errorf("summary.spec: %w", err)
		}
	}
	switch c.Summary.Language {
	case "ar", "en":
	default:
		return fmt.Errorf("unknown summary.language: %s (supported: ar, en)", c.Summary.Language)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log.level: %s (supported: debug, info, warn, error)", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log.format: %s (supported: json, console)", c.Log.Format)
	}

	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
