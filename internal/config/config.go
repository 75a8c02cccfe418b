// Package config loads runtime settings from defaults, an optional YAML
// file, the environment and command-line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	Port     string `yaml:"port"`

	Store       string `yaml:"store"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Migrate     bool   `yaml:"migrate"`
	RedisAddr   string `yaml:"redis_addr"`

	WorkerID      string        `yaml:"worker_id"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	LockTTL       time.Duration `yaml:"lock_ttl"`
	AnnounceList  string        `yaml:"announce_list"`
	GoalInterval  time.Duration `yaml:"goal_interval"`
	RCInterval    time.Duration `yaml:"rc_interval"`
	RCRetention   time.Duration `yaml:"rc_retention"`
	SendgridKey   string        `yaml:"sendgrid_api_key"`
	AlertFrom     string        `yaml:"alert_from"`
	AlertFromName string        `yaml:"alert_from_name"`
	AlertTo       string        `yaml:"alert_to"`
	AlertCooldown time.Duration `yaml:"alert_cooldown"`
}

func Default() *Config {
	return &Config{
		Env:           "development",
		LogLevel:      "info",
		Port:          "8080",
		Store:         StorePostgres,
		WorkerID:      "worker-" + uuid.NewString()[:8],
		PollInterval:  5 * time.Second,
		LockTTL:       30 * time.Second,
		AnnounceList:  "wordsprint:announcements",
		GoalInterval:  15 * time.Minute,
		RCInterval:    time.Hour,
		RCRetention:   24 * time.Hour,
		AlertFromName: "wordsprint",
		AlertCooldown: time.Hour,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE if any, then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Env = getEnv("ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Port = getEnv("PORT", c.Port)
	c.Store = getEnv("STORE", c.Store)
	c.PostgresDSN = getEnv("POSTGRES_DSN", c.PostgresDSN)
	c.Migrate = getEnvAsBool("MIGRATE", c.Migrate)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.WorkerID = getEnv("WORKER_ID", c.WorkerID)
	c.PollInterval = getEnvAsDuration("POLL_INTERVAL", c.PollInterval)
	c.LockTTL = getEnvAsDuration("LOCK_TTL", c.LockTTL)
	c.AnnounceList = getEnv("ANNOUNCE_LIST", c.AnnounceList)
	c.GoalInterval = getEnvAsDuration("GOAL_INTERVAL", c.GoalInterval)
	c.RCInterval = getEnvAsDuration("RC_INTERVAL", c.RCInterval)
	c.RCRetention = getEnvAsDuration("RC_RETENTION", c.RCRetention)
	c.SendgridKey = getEnv("SENDGRID_API_KEY", c.SendgridKey)
	c.AlertFrom = getEnv("ALERT_FROM", c.AlertFrom)
	c.AlertFromName = getEnv("ALERT_FROM_NAME", c.AlertFromName)
	c.AlertTo = getEnv("ALERT_TO", c.AlertTo)
	c.AlertCooldown = getEnvAsDuration("ALERT_COOLDOWN", c.AlertCooldown)
}

// BindFlags registers command-line overrides that write straight into c.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Env, "env", c.Env, "runtime environment (development, production)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level")
	fs.StringVar(&c.Port, "port", c.Port, "HTTP listen port")
	fs.StringVar(&c.Store, "store", c.Store, "storage backend (postgres, memory)")
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", c.PostgresDSN, "Postgres connection string")
	fs.BoolVar(&c.Migrate, "migrate", c.Migrate, "apply database migrations at start")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address for locks and announcements")
	fs.StringVar(&c.WorkerID, "worker-id", c.WorkerID, "scheduler instance id")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "task poll interval")
	fs.DurationVar(&c.RCInterval, "rc-interval", c.RCInterval, "stale sprint collection interval")
	fs.DurationVar(&c.RCRetention, "rc-retention", c.RCRetention, "age at which unfinished sprints are collected")
}

// AlertsEnabled reports whether operator e-mail alerts are configured.
func (c *Config) AlertsEnabled() bool {
	return c.SendgridKey != "" && c.AlertFrom != "" && c.AlertTo != ""
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Store {
	case StorePostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.RCInterval <= 0 {
		errs = append(errs, errors.New("rc interval must be positive"))
	}
	if c.GoalInterval <= 0 {
		errs = append(errs, errors.New("goal interval must be positive"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts a Go duration ("90s") or a bare number of
// seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
