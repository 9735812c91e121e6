package auth

import "time"

// Role is the administrative role assigned to a user account.
// Roles map to fixed permission sets, see permissions.go.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleOperator   Role = "operator"
	RoleUser       Role = "user"
)

// Status is the account status. Only active accounts may authenticate.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// User is a portal account record.
type User struct {
	ID           uint   `json:"id"`
	UUID         string `json:"uuid"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	FullName     string `json:"full_name"`
	Role         Role   `json:"role"`
	Status       Status `json:"status"`

	// Login security state, mutated only by the login path.
	LoginAttempts int        `json:"-"`
	LockedUntil   *time.Time `json:"-"`
	RememberToken string     `json:"-"`
	LastLogin     *time.Time `json:"last_login,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// Deleted reports whether the account is soft-deleted.
func (u *User) Deleted() bool {
	return u.DeletedAt != nil
}

// Session is the server-side state for one authenticated (or pre-login)
// browser, keyed by an opaque identifier carried in the session cookie.
// A session with UserID == 0 is anonymous: it exists only to carry a CSRF
// token for the login form.
type Session struct {
	ID           string    `json:"session_id"`
	UserID       uint      `json:"-"`
	Role         Role      `json:"-"`
	LoginTime    time.Time `json:"-"`
	LastActivity time.Time `json:"-"`

	// UserAgent is pinned on the first guarded request and checked on
	// every subsequent one as a basic hijack tripwire.
	UserAgent string `json:"-"`

	CSRFToken string    `json:"csrf_token"`
	CreatedAt time.Time `json:"-"`
}

// LoginAttempt is one append-only row in the attempt log. Rows are never
// updated or deleted; the rate limiter only counts them over a window.
type LoginAttempt struct {
	ID        uint
	Username  string
	IPAddress string
	UserAgent string
	Success   bool
	CreatedAt time.Time
}

// Activity is one append-only row in the user activity audit trail.
type Activity struct {
	ID          uint
	UserID      uint
	Action      string
	Description string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
}

// Audit action names as written to the activity trail.
const (
	ActionLoginSuccess  = "login_success"
	ActionLoginFailed   = "login_failed"
	ActionLogout        = "logout"
	ActionRememberLogin = "remember_login"
	ActionAccountLocked = "account_locked"
	ActionRateLimited   = "rate_limited"
	ActionHijackDetect  = "session_hijack"
)
