package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/Guizzs26/single_ballot_poll_system/internal/store"
)

// Config is shared by every binary; each one reads the fields it needs.
type Config struct {
	HTTPAddr string `env:"POLL_HTTP_ADDR" envDefault:":8081"`
	BaseURL  string `env:"POLL_BASE_URL" envDefault:"http://localhost:8081"`

	StoreDriver string `env:"POLL_STORE_DRIVER" envDefault:"bolt"`
	StoreDSN    string `env:"POLL_STORE_DSN" envDefault:"data/polls.db"`

	KafkaBrokers []string `env:"POLL_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"POLL_KAFKA_TOPIC" envDefault:"poll-votes"`
	KafkaGroupID string   `env:"POLL_KAFKA_GROUP_ID" envDefault:"poll-auditor"`

	TokenSecret string        `env:"POLL_TOKEN_SECRET"`
	TokenIssuer string        `env:"POLL_TOKEN_ISSUER" envDefault:"pollsvc"`
	TokenTTL    time.Duration `env:"POLL_TOKEN_TTL" envDefault:"1h"`

	MetricsNamespace string `env:"POLL_METRICS_NAMESPACE" envDefault:"ballot"`

	// MetricsAddr is where binaries without an API listener serve /metrics.
	MetricsAddr string `env:"POLL_METRICS_ADDR" envDefault:":9091"`

	LogLevel  string `env:"POLL_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"POLL_LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case store.DriverMemory:
	case store.DriverBolt, store.DriverSQLite, store.DriverRedis:
		if strings.TrimSpace(c.StoreDSN) == "" {
			return fmt.Errorf("POLL_STORE_DSN is required for driver %q", c.StoreDriver)
		}
	default:
		return fmt.Errorf("POLL_STORE_DRIVER %q is not one of memory, bolt, sqlite, redis", c.StoreDriver)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("POLL_TOKEN_TTL must be positive")
	}
	return nil
}

// RequireTokenSecret is for binaries that verify or mint bearer tokens.
func (c Config) RequireTokenSecret() error {
	if strings.TrimSpace(c.TokenSecret) == "" {
		return fmt.Errorf("POLL_TOKEN_SECRET is required")
	}
	return nil
}

func (c Config) StoreOptions() store.Options {
	return store.Options{Driver: c.StoreDriver, DSN: c.StoreDSN}
}
