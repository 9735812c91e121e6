package auth

import (
	"context"
	"errors"
)

// AuthenticateRemembered exchanges a remember-me cookie value for a fresh
// session. It is invoked only when the session guard found no usable
// session. The token must exactly match an active, non-deleted user's
// stored token; on a miss the caller should expire the client cookie. The
// token itself is deliberately not rotated on use, matching the portal's
// original trade-off: a reissued token would log out the user's other
// remembered browsers.
func (a *AuthService) AuthenticateRemembered(ctx context.Context, token string, rc RequestContext) (*User, *Session, error) {
	user, err := a.storage.GetUserByRememberToken(ctx, token)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, nil, a.storageFailure("lookup remember token", err)
	}

	// Drop the stale or anonymous session the request carried before
	// issuing the replacement.
	if rc.SessionID != "" {
		a.destroySession(ctx, rc.SessionID)
	}

	sess, err := a.establishSession(ctx, user, a.now())
	if err != nil {
		return nil, nil, err
	}

	a.logActivity(ctx, user.ID, ActionRememberLogin, "User logged in via remember me", rc)
	return user, sess, nil
}
