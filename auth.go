// Package auth implements the authentication core of the village
// administrative portal: session validation with timeout and hijack
// detection, password login with lockout, attempt rate limiting,
// remember-me token exchange, CSRF token lifecycle, and the static
// role-to-permission table. Persistence goes through the Storage interface
// with SQLite and PostgreSQL implementations.
package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config assembles an AuthService.
type Config struct {
	// Storage is required.
	Storage Storage

	// SecurityConfig zero values fall back to defaults.
	SecurityConfig SecurityConfig

	// Logger defaults to slog.Default(). Security events go to a child
	// logger tagged stream=security.
	Logger *slog.Logger
}

// AuthService is the authentication core. All methods are safe for
// concurrent use; no state is held outside Storage.
type AuthService struct {
	storage  Storage
	config   SecurityConfig
	logger   *slog.Logger
	security *slog.Logger
	limiter  *RateLimiter
	validate *validator.Validate

	// now is swappable for tests.
	now func() time.Time
}

// NewAuthService creates the auth core from the given configuration.
func NewAuthService(cfg Config) (*AuthService, error) {
	if cfg.Storage == nil {
		return nil, errors.New("auth: storage is required")
	}

	sc := cfg.SecurityConfig
	sc.applyDefaults()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &AuthService{
		storage:  cfg.Storage,
		config:   sc,
		logger:   logger,
		security: logger.With("stream", "security"),
		validate: validator.New(),
		// UTC keeps stored timestamps directly comparable across
		// backends and hosts.
		now: func() time.Time { return time.Now().UTC() },
	}
	a.limiter = NewRateLimiter(cfg.Storage, sc.RateLimitMaxAttempts, sc.RateLimitWindow)
	a.limiter.now = func() time.Time { return a.now() }

	return a, nil
}

// SecurityConfig returns the effective policy, defaults applied.
func (a *AuthService) SecurityConfig() SecurityConfig {
	return a.config
}

// storageFailure logs the real storage error with context and returns the
// generic unavailability error so internals never reach the caller.
func (a *AuthService) storageFailure(op string, err error) error {
	a.logger.Error("Storage operation failed", "op", op, "error", err)
	return ErrStorageUnavailable
}
