package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CheckSession validates the request's session against timeout and
// integrity rules. It returns the resolved user and session, or one of
// ErrNotAuthenticated, ErrSessionExpired, ErrSessionHijacked,
// ErrAccountInactive. Expired, hijacked and deactivated sessions are
// destroyed before the failure is reported (fail closed); on success the
// last-activity timestamp advances, so validity slides forward.
func (a *AuthService) CheckSession(ctx context.Context, rc RequestContext) (*User, *Session, error) {
	if rc.SessionID == "" {
		return nil, nil, ErrNotAuthenticated
	}

	sess, err := a.storage.GetSession(ctx, rc.SessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, nil, a.storageFailure("get session", err)
	}
	if sess.UserID == 0 {
		// Anonymous pre-login session, only good for CSRF issuance.
		return nil, nil, ErrNotAuthenticated
	}

	now := a.now()
	if now.Sub(sess.LastActivity) > a.config.SessionTimeout {
		a.destroySession(ctx, sess.ID)
		return nil, nil, ErrSessionExpired
	}

	if sess.UserAgent != "" && sess.UserAgent != rc.UserAgent {
		a.destroySession(ctx, sess.ID)
		a.logSecurityEvent(ctx, sess.UserID, ActionHijackDetect,
			"Possible session hijacking: user agent changed mid-session", rc)
		return nil, nil, ErrSessionHijacked
	}
	if sess.UserAgent == "" && rc.UserAgent != "" {
		// First-use pinning, not device fingerprinting.
		if err := a.storage.BindSessionUserAgent(ctx, sess.ID, rc.UserAgent); err != nil {
			return nil, nil, a.storageFailure("bind user agent", err)
		}
		sess.UserAgent = rc.UserAgent
	}

	if err := a.storage.TouchSession(ctx, sess.ID, now); err != nil {
		return nil, nil, a.storageFailure("touch session", err)
	}
	sess.LastActivity = now

	user, err := a.storage.GetUserByID(ctx, sess.UserID)
	if errors.Is(err, ErrUserNotFound) {
		a.destroySession(ctx, sess.ID)
		return nil, nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, nil, a.storageFailure("get session user", err)
	}
	if user.Status != StatusActive {
		a.destroySession(ctx, sess.ID)
		return nil, nil, ErrAccountInactive
	}

	return user, sess, nil
}

// Authenticate is the gate every protected request passes through: the
// session guard first, then the remember-me exchange when the guard found
// no usable session and a remember token is present. When the remember
// exchange issued a fresh session its ID differs from rc.SessionID and the
// caller must reissue the session cookie.
func (a *AuthService) Authenticate(ctx context.Context, rc RequestContext) (*User, *Session, error) {
	user, sess, err := a.CheckSession(ctx, rc)
	if err == nil {
		return user, sess, nil
	}

	if rc.RememberToken != "" &&
		(errors.Is(err, ErrNotAuthenticated) || errors.Is(err, ErrSessionExpired)) {
		if u, s, rerr := a.AuthenticateRemembered(ctx, rc.RememberToken, rc); rerr == nil {
			return u, s, nil
		}
	}

	return nil, nil, err
}

// establishSession creates a brand-new session for the user: fresh opaque
// identifier (never reusing the pre-login one, to defeat fixation), fresh
// CSRF token, and no bound user agent so the next guarded request pins it.
func (a *AuthService) establishSession(ctx context.Context, user *User, now time.Time) (*Session, error) {
	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       user.ID,
		Role:         user.Role,
		LoginTime:    now,
		LastActivity: now,
		CSRFToken:    generateHexToken(32),
		CreatedAt:    now,
	}
	if err := a.storage.CreateSession(ctx, sess); err != nil {
		return nil, a.storageFailure("create session", err)
	}
	return sess, nil
}

// CreateAnonymousSession issues a pre-login session whose only purpose is
// carrying the CSRF token for the login form.
func (a *AuthService) CreateAnonymousSession(ctx context.Context) (*Session, error) {
	now := a.now()
	sess := &Session{
		ID:           uuid.NewString(),
		LoginTime:    now,
		LastActivity: now,
		CSRFToken:    generateHexToken(32),
		CreatedAt:    now,
	}
	if err := a.storage.CreateSession(ctx, sess); err != nil {
		return nil, a.storageFailure("create anonymous session", err)
	}
	return sess, nil
}

// csrfMatches compares the submitted token against the one bound to the
// request's session, in constant time.
func (a *AuthService) csrfMatches(ctx context.Context, sessionID, token string) (bool, error) {
	if sessionID == "" || token == "" {
		return false, nil
	}
	sess, err := a.storage.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, a.storageFailure("get session for csrf", err)
	}
	return constantTimeEquals(sess.CSRFToken, token), nil
}

// destroySession removes the server-side session. Best effort: the session
// is already being rejected, so a delete failure is logged, not surfaced.
func (a *AuthService) destroySession(ctx context.Context, id string) {
	if err := a.storage.DeleteSession(ctx, id); err != nil {
		a.logger.Warn("Failed to destroy session", "session_id", id, "error", err)
	}
}
