package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName         string        `envconfig:"APP_NAME" default:"TokenLedger"`
	AppEnv          string        `envconfig:"APP_ENV" default:"development"`
	Port            string        `envconfig:"PORT" default:"8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	DatabaseURL     string        `envconfig:"DATABASE_URL"`
	RedisURL        string        `envconfig:"REDIS_URL"`
	ShutdownPeriod  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL  time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	JWTSecret       string        `envconfig:"JWT_SECRET"`
	DustPolicy      string        `envconfig:"DUST_POLICY"`
	TreasuryAccount *uint64       `envconfig:"TREASURY_ACCOUNT"`
	BlockInterval   time.Duration `envconfig:"BLOCK_INTERVAL" default:"0s"`
	MetricsEnabled  bool          `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration values from the environment and validates them.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.DustPolicy = strings.ToLower(strings.TrimSpace(cfg.DustPolicy))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the cross-field rules the struct tags cannot express.
func (c Config) Validate() error {
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}

	switch c.DustPolicy {
	case "burn":
	case "treasury":
		if c.TreasuryAccount == nil {
			return fmt.Errorf("TREASURY_ACCOUNT must be set when DUST_POLICY=treasury")
		}
	case "":
		return fmt.Errorf("DUST_POLICY must be set to burn or treasury")
	default:
		return fmt.Errorf("DUST_POLICY must be burn or treasury, got %q", c.DustPolicy)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.BlockInterval < 0 {
		return fmt.Errorf("BLOCK_INTERVAL must not be negative")
	}

	if !c.IsDevelopment() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
		}
	}
	return nil
}

// IsDevelopment reports whether in-process fallbacks are allowed.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
