package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Cookie names used by the HTTP layer.
const (
	SessionCookieName  = "desa_session"
	RememberCookieName = "remember_token"
)

// apiResponse is the JSON envelope shared by every auth endpoint.
type apiResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	Data        any    `json:"data,omitempty"`
	ErrorCode   string `json:"error_code,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// sessionData is the client-facing view of a session.
type sessionData struct {
	SessionID string `json:"session_id"`
	CSRFToken string `json:"csrf_token"`
	ExpiresAt int64  `json:"expires_at"`
}

// loginData is the payload of a successful login response.
type loginData struct {
	User        *User       `json:"user"`
	Session     sessionData `json:"session"`
	Permissions []string    `json:"permissions"`
}

func (a *AuthService) writeJSON(w http.ResponseWriter, status int, resp apiResponse) {
	resp.Timestamp = a.now().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Warn("Failed to encode response", "error", err)
	}
}

func (a *AuthService) writeError(w http.ResponseWriter, err error) {
	ae := AsAuthError(err)
	a.writeJSON(w, ae.Status, apiResponse{
		Success:   false,
		Message:   ae.Message,
		ErrorCode: ae.Code,
	})
}

func (a *AuthService) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthService) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthService) setRememberCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RememberCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.config.RememberTokenLifetime / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthService) clearRememberCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RememberCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// LoginHandler serves POST /auth/login.
func (a *AuthService) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, ErrInvalidInput.WithMessage("Invalid JSON input"))
		return
	}

	rc := NewRequestContext(r)
	result, err := a.Login(r.Context(), req, rc)
	if err != nil {
		a.writeError(w, err)
		return
	}

	a.setSessionCookie(w, result.Session.ID)
	if result.RememberToken != "" {
		a.setRememberCookie(w, result.RememberToken)
	}

	a.writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "Login successful",
		Data: loginData{
			User: result.User,
			Session: sessionData{
				SessionID: result.Session.ID,
				CSRFToken: result.Session.CSRFToken,
				ExpiresAt: result.Session.LastActivity.Add(a.config.SessionTimeout).Unix(),
			},
			Permissions: result.Permissions,
		},
	})
}

// LogoutHandler serves POST /auth/logout.
func (a *AuthService) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	rc := NewRequestContext(r)
	redirect, err := a.Logout(r.Context(), rc)

	// Client-side state is cleared either way; a rejected session has
	// already been destroyed server-side.
	a.clearSessionCookie(w)
	a.clearRememberCookie(w)

	if err != nil {
		a.writeError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, apiResponse{
		Success:     true,
		Message:     "Logout successful",
		RedirectURL: redirect,
	})
}

// CSRFHandler serves GET /auth/csrf: it returns the CSRF token of the
// request's session, establishing an anonymous pre-login session when
// there is none. The token is only ever regenerated together with a new
// session, never on repeat calls.
func (a *AuthService) CSRFHandler(w http.ResponseWriter, r *http.Request) {
	rc := NewRequestContext(r)

	if rc.SessionID != "" {
		if sess, err := a.storage.GetSession(r.Context(), rc.SessionID); err == nil {
			a.writeJSON(w, http.StatusOK, apiResponse{
				Success: true,
				Message: "CSRF token",
				Data: sessionData{
					SessionID: sess.ID,
					CSRFToken: sess.CSRFToken,
					ExpiresAt: sess.LastActivity.Add(a.config.SessionTimeout).Unix(),
				},
			})
			return
		}
	}

	sess, err := a.CreateAnonymousSession(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.setSessionCookie(w, sess.ID)
	a.writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Message: "CSRF token",
		Data: sessionData{
			SessionID: sess.ID,
			CSRFToken: sess.CSRFToken,
			ExpiresAt: sess.LastActivity.Add(a.config.SessionTimeout).Unix(),
		},
	})
}

// Routes returns the auth endpoints, ready to mount:
//
//	r.Mount("/auth", authService.Routes())
func (a *AuthService) Routes() chi.Router {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		a.writeJSON(w, http.StatusMethodNotAllowed, apiResponse{
			Success:   false,
			Message:   "Method not allowed. Use POST method.",
			ErrorCode: "METHOD_NOT_ALLOWED",
		})
	})

	r.Get("/csrf", a.CSRFHandler)
	r.Post("/login", a.LoginHandler)
	r.Post("/logout", a.LogoutHandler)
	return r
}
