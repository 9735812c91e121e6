package auth

import (
	"net"
	"net/http"
	"strings"
)

// RequestContext is the request-scoped state the auth core needs: the
// session identifier, the remember-me cookie value, and the client identity
// headers. It replaces any ambient access to cookies or headers inside the
// core so every operation is explicit about its inputs.
type RequestContext struct {
	SessionID     string
	RememberToken string
	UserAgent     string
	IPAddress     string
}

// NewRequestContext extracts the auth-relevant fields from an HTTP request.
func NewRequestContext(r *http.Request) RequestContext {
	rc := RequestContext{
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		rc.SessionID = c.Value
	}
	if c, err := r.Cookie(RememberCookieName); err == nil {
		rc.RememberToken = c.Value
	}
	return rc
}

// clientIP resolves the client address, preferring X-Forwarded-For (first
// valid entry), then X-Real-IP, then the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			ip := strings.TrimSpace(part)
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		if net.ParseIP(xrip) != nil {
			return xrip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
