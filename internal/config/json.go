package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// fileConfig mirrors Config for JSON config files.
type fileConfig struct {
	Env               string    `json:"env"`
	Host              string    `json:"host"`
	Port              int       `json:"port"`
	DatabaseDriver    string    `json:"database_driver"`
	DatabaseURL       string    `json:"database_url"`
	JWTSecret         string    `json:"jwt_secret_key"`
	JWTIssuer         string    `json:"jwt_issuer"`
	TokenTTL          Duration  `json:"jwt_access_token_expires"`
	AllowedOrigins    []string  `json:"cors_origins"`
	LogLevel          string    `json:"log_level"`
	LogFormat         string    `json:"log_format"`
	AdminEmail        string    `json:"admin_email"`
	AdminPassword     string    `json:"admin_password"`
	RateLimitRPS      float64   `json:"rate_limit_rps"`
	RateLimitBurst    int       `json:"rate_limit_burst"`
	TrustProxy        bool      `json:"trust_proxy"`
	SwapProposalTTL   *Duration `json:"swap_proposal_ttl"`
	SwapSweepSchedule string    `json:"swap_sweep_schedule"`
	ShutdownTimeout   Duration  `json:"shutdown_timeout"`
}

// parseJSON reads a config file. ttlSet reports whether the file names
// swap_proposal_ttl, which may legitimately be zero.
func parseJSON(path string) (cfg *Config, ttlSet bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("error reading a json file: %w", err)
	}
	defer f.Close()

	var fc fileConfig
	if err := json.NewDecoder(f).Decode(&fc); err != nil {
		return nil, false, fmt.Errorf("error decoding json configs: %w", err)
	}

	var proposalTTL time.Duration
	if fc.SwapProposalTTL != nil {
		proposalTTL = time.Duration(*fc.SwapProposalTTL)
	}

	return &Config{
		Env:               fc.Env,
		Host:              fc.Host,
		Port:              fc.Port,
		DatabaseDriver:    fc.DatabaseDriver,
		DatabaseURL:       fc.DatabaseURL,
		JWTSecret:         fc.JWTSecret,
		JWTIssuer:         fc.JWTIssuer,
		TokenTTL:          time.Duration(fc.TokenTTL),
		AllowedOrigins:    fc.AllowedOrigins,
		LogLevel:          fc.LogLevel,
		LogFormat:         fc.LogFormat,
		AdminEmail:        fc.AdminEmail,
		AdminPassword:     fc.AdminPassword,
		RateLimitRPS:      fc.RateLimitRPS,
		RateLimitBurst:    fc.RateLimitBurst,
		TrustProxy:        fc.TrustProxy,
		SwapProposalTTL:   proposalTTL,
		SwapSweepSchedule: fc.SwapSweepSchedule,
		ShutdownTimeout:   time.Duration(fc.ShutdownTimeout),
	}, fc.SwapProposalTTL != nil, nil
}

// Duration accepts either a Go duration string ("15m") or nanoseconds in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}
