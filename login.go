package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// LoginRedirectURL is where clients are sent after logout.
const LoginRedirectURL = "/admin/login"

// LoginRequest is the login form payload.
type LoginRequest struct {
	Username   string `json:"username" validate:"required,min=3"`
	Password   string `json:"password" validate:"required,min=6"`
	RememberMe bool   `json:"remember_me"`
	CSRFToken  string `json:"csrf_token"`
}

// LoginResult is a successful authentication: the user, their fresh
// session, the resolved permission set, and the minted remember token when
// the remember flag was set (empty otherwise).
type LoginResult struct {
	User        *User
	Session     *Session
	Permissions []string

	RememberToken string
}

// Login verifies credentials and issues a new session. Checks run in a
// fixed order and the first failure wins: input shape, CSRF, rate limit,
// credentials, account status, lock state. Failures from the credential
// check onward are recorded in the attempt log under the supplied username
// and, when it matched a real account, increment that account's failed
// counter up to the lockout threshold.
func (a *AuthService) Login(ctx context.Context, req LoginRequest, rc RequestContext) (*LoginResult, error) {
	if err := a.validate.Struct(req); err != nil {
		return nil, ErrInvalidInput.WithMessage(loginValidationMessage(err))
	}

	// Development deployments may omit the token entirely; a token that
	// is present is always checked.
	if !(a.config.IsDevelopment() && req.CSRFToken == "") {
		ok, err := a.csrfMatches(ctx, rc.SessionID, req.CSRFToken)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbiddenCSRF
		}
	}

	allowed, err := a.limiter.Allow(ctx, req.Username, rc.IPAddress)
	if err != nil {
		return nil, a.storageFailure("rate limit check", err)
	}
	if !allowed {
		a.logSecurityEvent(ctx, 0, ActionRateLimited,
			fmt.Sprintf("Login rate limit tripped for %q", req.Username), rc)
		return nil, ErrTooManyAttempts
	}

	user, err := a.storage.GetUserByLogin(ctx, req.Username)
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, a.storageFailure("lookup user", err)
	}
	// Unknown user and wrong password are indistinguishable to the caller
	// so usernames cannot be enumerated.
	if user == nil || !checkPasswordHash(req.Password, user.PasswordHash) {
		a.recordLoginFailure(ctx, req.Username, rc)
		return nil, ErrInvalidCredentials
	}

	if user.Status != StatusActive {
		a.recordLoginFailure(ctx, req.Username, rc)
		return nil, ErrAccountInactive
	}

	now := a.now()
	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		a.recordLoginFailure(ctx, req.Username, rc)
		return nil, ErrAccountLocked
	}

	// All gates passed. Replace whatever session the request carried with
	// a freshly identified one.
	if rc.SessionID != "" {
		a.destroySession(ctx, rc.SessionID)
	}
	sess, err := a.establishSession(ctx, user, now)
	if err != nil {
		return nil, err
	}

	if err := a.storage.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		// Keep state consistent: no half-issued session on failure.
		a.destroySession(ctx, sess.ID)
		return nil, a.storageFailure("record login success", err)
	}
	user.LastLogin = &now
	user.LoginAttempts = 0
	user.LockedUntil = nil

	result := &LoginResult{
		User:        user,
		Session:     sess,
		Permissions: PermissionsForRole(user.Role),
	}

	if req.RememberMe {
		token := generateHexToken(32)
		if err := a.storage.SetRememberToken(ctx, user.ID, token); err != nil {
			a.destroySession(ctx, sess.ID)
			return nil, a.storageFailure("set remember token", err)
		}
		user.RememberToken = token
		result.RememberToken = token
	}

	if err := a.storage.RecordLoginAttempt(ctx, &LoginAttempt{
		Username:  req.Username,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		Success:   true,
		CreatedAt: now,
	}); err != nil {
		a.logger.Warn("Failed to record successful attempt", "error", err)
	}

	a.logActivity(ctx, user.ID, ActionLoginSuccess, "User logged in successfully", rc)

	return result, nil
}

// Logout destroys the current session and invalidates the stored remember
// token. It returns the post-logout redirect URL, or fails when the request
// carries no valid session.
func (a *AuthService) Logout(ctx context.Context, rc RequestContext) (string, error) {
	user, sess, err := a.CheckSession(ctx, rc)
	if err != nil {
		return "", err
	}

	a.destroySession(ctx, sess.ID)
	if err := a.storage.ClearRememberToken(ctx, user.ID); err != nil {
		return "", a.storageFailure("clear remember token", err)
	}

	a.logActivity(ctx, user.ID, ActionLogout, "User logged out", rc)
	return LoginRedirectURL, nil
}

// recordLoginFailure appends the failed attempt and applies the lockout
// policy in one storage transaction. A lock crossing emits a security
// audit event.
func (a *AuthService) recordLoginFailure(ctx context.Context, username string, rc RequestContext) {
	now := a.now()
	outcome, err := a.storage.RecordFailedLogin(ctx, &LoginAttempt{
		Username:  username,
		IPAddress: rc.IPAddress,
		UserAgent: rc.UserAgent,
		CreatedAt: now,
	}, a.config.MaxLoginAttempts, now.Add(a.config.LockoutDuration))
	if err != nil {
		a.logger.Error("Failed to record login failure", "username", username, "error", err)
		return
	}

	if outcome.Locked {
		a.logSecurityEvent(ctx, outcome.UserID, ActionAccountLocked,
			fmt.Sprintf("Account locked for %s after %d failed login attempts",
				a.config.LockoutDuration, outcome.Attempts), rc)
	}
}

// loginValidationMessage turns validator output into the portal's
// form-level messages.
func loginValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid input"
	}

	for _, fe := range verrs {
		switch fe.Field() {
		case "Username":
			if fe.Tag() == "required" {
				return "Username is required"
			}
			return "Username must be at least 3 characters"
		case "Password":
			if fe.Tag() == "required" {
				return "Password is required"
			}
			return "Password must be at least 6 characters"
		}
	}
	return "Invalid input"
}
