package auth

import "time"

// SecurityConfig controls the timing and threshold policy of the auth core.
// Zero values fall back to the defaults from DefaultSecurityConfig.
type SecurityConfig struct {
	// SessionTimeout is the sliding inactivity window after which a
	// session is destroyed.
	SessionTimeout time.Duration

	// MaxLoginAttempts failed logins lock the account for LockoutDuration.
	MaxLoginAttempts int
	LockoutDuration  time.Duration

	// RateLimitMaxAttempts failed attempts per source address or per
	// username within RateLimitWindow refuse further logins. This gate is
	// independent of the per-account lockout above.
	RateLimitMaxAttempts int
	RateLimitWindow      time.Duration

	// RememberTokenLifetime bounds the remember-me cookie and token.
	RememberTokenLifetime time.Duration

	// Environment is "production" unless configured otherwise. In
	// "development" a login request without any CSRF token skips the CSRF
	// check; never enable this relaxation in production deployments.
	Environment string
}

// DefaultSecurityConfig mirrors the portal's stock policy: one hour sessions,
// five attempts then a fifteen minute lock, five attempts per hour per
// address or username, seven day remember tokens.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		SessionTimeout:        time.Hour,
		MaxLoginAttempts:      5,
		LockoutDuration:       15 * time.Minute,
		RateLimitMaxAttempts:  5,
		RateLimitWindow:       time.Hour,
		RememberTokenLifetime: 7 * 24 * time.Hour,
		Environment:           "production",
	}
}

func (c *SecurityConfig) applyDefaults() {
	d := DefaultSecurityConfig()
	if c.SessionTimeout <= 0 {
		c.SessionTimeout = d.SessionTimeout
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = d.MaxLoginAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = d.LockoutDuration
	}
	if c.RateLimitMaxAttempts <= 0 {
		c.RateLimitMaxAttempts = d.RateLimitMaxAttempts
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = d.RateLimitWindow
	}
	if c.RememberTokenLifetime <= 0 {
		c.RememberTokenLifetime = d.RememberTokenLifetime
	}
	if c.Environment == "" {
		c.Environment = d.Environment
	}
}

// IsDevelopment reports whether the deliberately relaxed development mode is
// active.
func (c SecurityConfig) IsDevelopment() bool {
	return c.Environment == "development"
}
