package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
)

// Environment names accepted in APP_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SweepDisabled turns the stale swap sweeper off when used as SWAP_SWEEP_SCHEDULE.
const SweepDisabled = "off"

const devJWTSecret = "dev-secret-change-me"

// Config holds the application configuration. It is built once at startup
// and passed by pointer to every component that needs it.
type Config struct {
	Env  string `env:"APP_ENV"`
	Host string `env:"HOST"`
	Port int    `env:"PORT"`

	DatabaseDriver string `env:"DATABASE_DRIVER"`
	DatabaseURL    string `env:"DATABASE_URL"`

	JWTSecret string        `env:"JWT_SECRET_KEY"`
	JWTIssuer string        `env:"JWT_ISSUER"`
	TokenTTL  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRES"`

	AllowedOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"` // console or json

	// Optional admin account created on startup if it does not exist yet.
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`

	// Per-client limits on the login and register endpoints.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST"`

	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a reverse proxy that sets those headers.
	TrustProxy bool `env:"TRUST_PROXY"`

	SwapProposalTTL   time.Duration `env:"SWAP_PROPOSAL_TTL"`
	SwapSweepSchedule string        `env:"SWAP_SWEEP_SCHEDULE"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`

	// ConfigFile is an optional JSON file merged below environment variables.
	ConfigFile string `env:"CONFIG_FILE"`
}

// Load builds the configuration from environment variables, the optional
// JSON file named by CONFIG_FILE and the defaults of the selected APP_ENV
// profile, in that order of precedence.
func Load() (*Config, error) {
	return load(nil)
}

// load is Load with an explicit environment; nil means the process environment.
func load(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("error getting env configs: %w", err)
	}

	// mergo treats zero as unset, but a zero proposal TTL turns expiry off
	_, ttlSet := lookupEnv(environ, "SWAP_PROPOSAL_TTL")

	if cfg.ConfigFile != "" {
		fileCfg, fileTTLSet, err := parseJSON(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(cfg, fileCfg); err != nil {
			return nil, fmt.Errorf("error merging json configs: %w", err)
		}
		ttlSet = ttlSet || fileTTLSet
	}
	explicitTTL := cfg.SwapProposalTTL

	if cfg.Env == "" {
		cfg.Env = EnvDevelopment
	}
	profile, err := profileDefaults(cfg.Env)
	if err != nil {
		return nil, err
	}
	if err := mergo.Merge(cfg, profile); err != nil {
		return nil, fmt.Errorf("error merging default configs: %w", err)
	}
	if ttlSet {
		cfg.SwapProposalTTL = explicitTTL
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func lookupEnv(environ map[string]string, key string) (string, bool) {
	if environ == nil {
		return os.LookupEnv(key)
	}
	value, ok := environ[key]
	return value, ok
}

// profileDefaults returns the fallback values for an environment.
func profileDefaults(name string) (*Config, error) {
	base := Config{
		Host:              "0.0.0.0",
		Port:              5000,
		DatabaseDriver:    DriverSQLite,
		DatabaseURL:       "./rewear.db",
		JWTIssuer:         "rewear",
		TokenTTL:          24 * time.Hour,
		AllowedOrigins:    []string{"http://localhost:3000"},
		LogLevel:          "debug",
		LogFormat:         "console",
		RateLimitRPS:      5,
		RateLimitBurst:    10,
		SwapProposalTTL:   14 * 24 * time.Hour,
		SwapSweepSchedule: "@every 1h",
		ShutdownTimeout:   10 * time.Second,
	}

	switch name {
	case EnvDevelopment:
		base.JWTSecret = devJWTSecret
	case EnvProduction:
		base.TokenTTL = time.Hour
		base.LogLevel = "info"
		base.LogFormat = "json"
	case EnvTesting:
		base.JWTSecret = devJWTSecret
		base.DatabaseURL = ":memory:"
		base.TokenTTL = 15 * time.Minute
		base.LogLevel = "disabled"
		base.LogFormat = "json"
		base.SwapSweepSchedule = SweepDisabled
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEnvironment, name)
	}

	base.Env = name
	return &base, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownDriver, c.DatabaseDriver))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if c.JWTSecret == "" || (c.IsProduction() && c.JWTSecret == devJWTSecret) {
		errs = append(errs, ErrInsecureSecret)
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPort, c.Port))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, ErrInvalidTokenTTL)
	}
	if c.SwapProposalTTL < 0 {
		errs = append(errs, ErrInvalidProposalTTL)
	}

	return errors.Join(errs...)
}

// Addr returns the host:port pair the HTTP server binds to.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// IsProduction reports whether the production profile is active.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// SweeperEnabled reports whether stale swap proposals should be expired.
func (c *Config) SweeperEnabled() bool {
	return c.SwapSweepSchedule != SweepDisabled && c.SwapProposalTTL > 0
}
