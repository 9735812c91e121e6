package auth

import (
	"context"
	"testing"
	"time"
)

func loggedInSession(t *testing.T, svc *AuthService, username string) (*Session, RequestContext) {
	t.Helper()

	rc, req := loginRC(t, svc, username, "secret1")
	result, err := svc.Login(context.Background(), req, rc)
	if err != nil {
		t.Fatal("Login failed:", err)
	}
	rc.SessionID = result.Session.ID
	return result.Session, rc
}

func TestCheckSessionHappyPath(t *testing.T) {
	svc := newTestService(t)
	clock := freezeTime(svc)
	u := createTestUser(t, svc, "bob", "secret1", RoleAdmin, StatusActive)
	_, rc := loggedInSession(t, svc, "bob")

	*clock = clock.Add(10 * time.Minute)
	user, sess, err := svc.CheckSession(context.Background(), rc)
	if err != nil {
		t.Fatal("CheckSession failed:", err)
	}
	if user.ID != u.ID {
		t.Errorf("user ID = %d, want %d", user.ID, u.ID)
	}
	if !sess.LastActivity.Equal(*clock) {
		t.Errorf("LastActivity = %v, want %v", sess.LastActivity, *clock)
	}
}

func TestCheckSessionMissingOrUnknown(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.CheckSession(ctx, RequestContext{}); !errorIs(err, ErrNotAuthenticated) {
		t.Errorf("no session id: error = %v, want ErrNotAuthenticated", err)
	}

	rc := testRC()
	rc.SessionID = "no-such-session"
	if _, _, err := svc.CheckSession(ctx, rc); !errorIs(err, ErrNotAuthenticated) {
		t.Errorf("unknown session: error = %v, want ErrNotAuthenticated", err)
	}
}

func TestCheckSessionRejectsAnonymous(t *testing.T) {
	svc := newTestService(t)
	sess, err := svc.CreateAnonymousSession(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	rc := testRC()
	rc.SessionID = sess.ID
	if _, _, err := svc.CheckSession(context.Background(), rc); !errorIs(err, ErrNotAuthenticated) {
		t.Errorf("error = %v, want ErrNotAuthenticated", err)
	}
}

func TestSessionTimeoutSlides(t *testing.T) {
	svc := newTestService(t)
	clock := freezeTime(svc)
	createTestUser(t, svc, "bob", "secret1", RoleUser, StatusActive)
	_, rc := loggedInSession(t, svc, "bob")
	ctx := context.Background()

	// Each check inside the window pushes the deadline forward.
	for i := 0; i < 3; i++ {
		*clock = clock.Add(50 * time.Minute)
		if _, _, err := svc.CheckSession(ctx, rc); err != nil {
			t.Fatalf("check %d inside window failed: %v", i+1, err)
		}
	}

	// Crossing the timeout without activity ends the session.
	*clock = clock.Add(61 * time.Minute)
	if _, _, err := svc.CheckSession(ctx, rc); !errorIs(err, ErrSessionExpired) {
		t.Fatalf("error = %v, want ErrSessionExpired", err)
	}

	// The expired session was destroyed server-side, so a retry inside a
	// fresh window still fails.
	*clock = clock.Add(-time.Hour)
	if _, _, err := svc.CheckSession(ctx, rc); !errorIs(err, ErrNotAuthenticated) {
		t.Errorf("error after expiry = %v, want ErrNotAuthenticated", err)
	}
}

func TestUserAgentPinnedOnFirstCheck(t *testing.T) {
	svc := newTestService(t)
	freezeTime(svc)
	createTestUser(t, svc, "bob", "secret1", RoleUser, StatusActive)
	sess, rc := loggedInSession(t, svc, "bob")
	ctx := context.Background()

	if sess.UserAgent != "" {
		t.Fatal("session should start with no bound user agent")
	}

	_, checked, err := svc.CheckSession(ctx, rc)
	if err != nil {
		t.Fatal("first check failed:", err)
	}
	if checked.UserAgent != rc.UserAgent {
		t.Errorf("UserAgent = %q, want %q", checked.UserAgent, rc.UserAgent)
	}

	stored, err := svc.storage.GetSession(ctx, rc.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.UserAgent != rc.UserAgent {
		t.Error("pinned user agent should persist")
	}
}

func TestHijackDetectionDestroysSession(t *testing.T) {
	svc := newTestService(t)
	freezeTime(svc)
	createTestUser(t, svc, "bob", "secret1", RoleUser, StatusActive)
	_, rc := loggedInSession(t, svc, "bob")
	ctx := context.Background()

	// Pin the agent, then present a different one.
	if _, _, err := svc.CheckSession(ctx, rc); err != nil {
		t.Fatal(err)
	}

	hijacker := rc
	hijacker.UserAgent = "curl/8.0"
	if _, _, err := svc.CheckSession(ctx, hijacker); !errorIs(err, ErrSessionHijacked) {
		t.Fatalf("error = %v, want ErrSessionHijacked", err)
	}

	// The original holder is locked out too: the session is gone.
	if _, _, err := svc.CheckSession(ctx, rc); !errorIs(err, ErrNotAuthenticated) {
		t.Errorf("original holder: error = %v, want ErrNotAuthenticated", err)
	}
}

func TestDeactivatedUserLosesSession(t *testing.T) {
	svc := newTestService(t)
	freezeTime(svc)
	user := createTestUser(t, svc, "bob", "secret1", RoleUser, StatusActive)
	_, rc := loggedInSession(t, svc, "bob")
	ctx := context.Background()

	store := svc.storage.(*SQLiteStorage)
	if _, err := store.db.Exec(
		`UPDATE users SET status = ? WHERE id = ?`, StatusInactive, user.ID); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.CheckSession(ctx, rc); !errorIs(err, ErrAccountInactive) {
		t.Fatalf("error = %v, want ErrAccountInactive", err)
	}
	if _, _, err := svc.CheckSession(ctx, rc); !errorIs(err, ErrNotAuthenticated) {
		t.Error("session should be destroyed once the account goes inactive")
	}
}

func TestLogout(t *testing.T) {
	svc := newTestService(t)
	freezeTime(svc)
	createTestUser(t, svc, "bob", "secret1", RoleUser, StatusActive)
	ctx := context.Background()

	rc, req := loginRC(t, svc, "bob", "secret1")
	req.RememberMe = true
	result, err := svc.Login(ctx, req, rc)
	if err != nil {
		t.Fatal(err)
	}
	rc.SessionID = result.Session.ID

	redirect, err := svc.Logout(ctx, rc)
	if err != nil {
		t.Fatal("Logout failed:", err)
	}
	if redirect != LoginRedirectURL {
		t.Errorf("redirect = %q, want %q", redirect, LoginRedirectURL)
	}

	if _, _, err := svc.CheckSession(ctx, rc); !errorIs(err, ErrNotAuthenticated) {
		t.Error("session should not survive logout")
	}
	if _, err := svc.storage.GetUserByRememberToken(ctx, result.RememberToken); err == nil {
		t.Error("remember token should be invalidated on logout")
	}

	// Logging out without a session is itself an auth failure.
	if _, err := svc.Logout(ctx, testRC()); !errorIs(err, ErrNotAuthenticated) {
		t.Errorf("error = %v, want ErrNotAuthenticated", err)
	}
}

func TestAuthenticateFallsBackToRememberToken(t *testing.T) {
	svc := newTestService(t)
	clock := freezeTime(svc)
	createTestUser(t, svc, "bob", "secret1", RoleUser, StatusActive)
	ctx := context.Background()

	rc, req := loginRC(t, svc, "bob", "secret1")
	req.RememberMe = true
	result, err := svc.Login(ctx, req, rc)
	if err != nil {
		t.Fatal(err)
	}

	// Session times out; the remember cookie carries the request through.
	rc.SessionID = result.Session.ID
	rc.RememberToken = result.RememberToken
	*clock = clock.Add(2 * time.Hour)

	user, sess, err := svc.Authenticate(ctx, rc)
	if err != nil {
		t.Fatal("Authenticate failed:", err)
	}
	if user.Username != "bob" {
		t.Errorf("Username = %q, want bob", user.Username)
	}
	if sess.ID == result.Session.ID {
		t.Error("remember exchange should issue a fresh session")
	}
	if sess.CSRFToken == result.Session.CSRFToken {
		t.Error("fresh session should carry a fresh CSRF token")
	}

	// Without the remember cookie the same request stays rejected.
	rc.RememberToken = ""
	rc.SessionID = "no-such-session"
	if _, _, err := svc.Authenticate(ctx, rc); !errorIs(err, ErrNotAuthenticated) {
		t.Errorf("error = %v, want ErrNotAuthenticated", err)
	}
}
