package auth

import (
	"context"
	"time"
)

// RateLimiter refuses logins once the trailing window holds too many failed
// attempts tied to the source address or to the attempted username. The two
// counts are independent gates with OR semantics: either tripping denies
// the request. This runs before credentials are checked and is separate
// from the per-account lockout.
type RateLimiter struct {
	storage     Storage
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewRateLimiter builds a limiter over the shared attempt log.
func NewRateLimiter(storage Storage, maxAttempts int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		storage:     storage,
		maxAttempts: maxAttempts,
		window:      window,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Allow reports whether a login attempt for username from ip may proceed.
func (l *RateLimiter) Allow(ctx context.Context, username, ip string) (bool, error) {
	since := l.now().Add(-l.window)

	ipCount, err := l.storage.CountFailedAttemptsByIP(ctx, ip, since)
	if err != nil {
		return false, err
	}
	if ipCount >= l.maxAttempts {
		return false, nil
	}

	nameCount, err := l.storage.CountFailedAttemptsByUsername(ctx, username, since)
	if err != nil {
		return false, err
	}
	return nameCount < l.maxAttempts, nil
}
