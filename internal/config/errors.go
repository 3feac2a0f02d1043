package config

import "errors"

// Validation errors returned by Load.
var (
	ErrUnknownEnvironment = errors.New("unknown APP_ENV")
	ErrUnknownDriver      = errors.New("unknown database driver")
	ErrMissingDatabaseURL = errors.New("database url is empty")
	// ErrInsecureSecret is returned when no JWT secret is set, or production
	// runs with the development default.
	ErrInsecureSecret     = errors.New("jwt secret key is missing or insecure")
	ErrInvalidPort        = errors.New("invalid port")
	ErrInvalidTokenTTL    = errors.New("token lifetime must be positive")
	ErrInvalidProposalTTL = errors.New("swap proposal ttl cannot be negative")
)
