package auth

import (
	"context"
	"errors"
	"time"
)

// defaultQueryTimeout bounds every storage call; past it the operation is
// reported as a transient failure, never silently retried.
const defaultQueryTimeout = 30 * time.Second

// Storage-level sentinel errors. Anything else returned from a Storage
// implementation is treated as the store being unavailable.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
)

// FailedLoginOutcome reports what a transactional failed-login record did to
// the matched account, if any.
type FailedLoginOutcome struct {
	// UserID is the matched account, 0 when the username hit no account.
	UserID uint

	// Attempts is the counter value after the increment.
	Attempts int

	// Locked is true when this attempt crossed the threshold and set the
	// lock. It is false for attempts against an already-locked account.
	Locked bool

	LockedUntil time.Time
}

// Storage is the persistence boundary of the auth core: user records,
// server-side sessions, the append-only attempt log, and the activity audit
// trail. Implementations must bound every call with a query timeout and keep
// the failed-login record and counter increment atomic under concurrency.
type Storage interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uint) (*User, error)
	// GetUserByLogin matches username or email among non-deleted users.
	GetUserByLogin(ctx context.Context, usernameOrEmail string) (*User, error)
	// GetUserByRememberToken matches only active, non-deleted users.
	GetUserByRememberToken(ctx context.Context, token string) (*User, error)
	// RecordLoginSuccess sets last_login and clears the attempt counter
	// and lock in one statement.
	RecordLoginSuccess(ctx context.Context, userID uint, at time.Time) error
	// SetRememberToken overwrites any previous token, invalidating it.
	SetRememberToken(ctx context.Context, userID uint, token string) error
	ClearRememberToken(ctx context.Context, userID uint) error

	// RecordFailedLogin appends a failed attempt row and, when the
	// username matches a real account, increments its counter and applies
	// the lock once the counter reaches maxAttempts. The whole operation
	// is one transaction so concurrent failures cannot under-count.
	RecordFailedLogin(ctx context.Context, attempt *LoginAttempt, maxAttempts int, lockUntil time.Time) (*FailedLoginOutcome, error)
	// RecordLoginAttempt appends an attempt row without touching any
	// account state. Used for successful logins.
	RecordLoginAttempt(ctx context.Context, attempt *LoginAttempt) error
	CountFailedAttemptsByIP(ctx context.Context, ip string, since time.Time) (int, error)
	CountFailedAttemptsByUsername(ctx context.Context, username string, since time.Time) (int, error)

	// Sessions
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	TouchSession(ctx context.Context, id string, lastActivity time.Time) error
	BindSessionUserAgent(ctx context.Context, id, userAgent string) error
	DeleteSession(ctx context.Context, id string) error
	// DeleteExpiredSessions is housekeeping for the surrounding
	// application; the guard already fails closed on stale rows.
	DeleteExpiredSessions(ctx context.Context, lastActivityBefore time.Time) (int64, error)

	// Audit trail
	RecordActivity(ctx context.Context, activity *Activity) error

	Close() error
}
