package auth

import (
	"errors"
	"net/http"
)

// AuthError is a typed authentication failure with a stable machine-readable
// code and an HTTP status equivalent. Two AuthErrors match under errors.Is
// when their codes match, so callers can compare against the sentinels below
// even when the message was customized.
type AuthError struct {
	Code    string `json:"error_code"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of the error carrying a different human message.
// The code and status are preserved so errors.Is keeps matching.
func (e *AuthError) WithMessage(msg string) *AuthError {
	return &AuthError{Code: e.Code, Status: e.Status, Message: msg}
}

var (
	ErrInvalidInput = &AuthError{
		Code:    "INVALID_INPUT",
		Status:  http.StatusBadRequest,
		Message: "Invalid input",
	}
	ErrForbiddenCSRF = &AuthError{
		Code:    "FORBIDDEN_CSRF",
		Status:  http.StatusForbidden,
		Message: "Invalid CSRF token",
	}
	ErrTooManyAttempts = &AuthError{
		Code:    "TOO_MANY_ATTEMPTS",
		Status:  http.StatusTooManyRequests,
		Message: "Too many login attempts. Please try again later.",
	}
	ErrInvalidCredentials = &AuthError{
		Code:    "INVALID_CREDENTIALS",
		Status:  http.StatusUnauthorized,
		Message: "Invalid username or password",
	}
	ErrAccountInactive = &AuthError{
		Code:    "ACCOUNT_INACTIVE",
		Status:  http.StatusForbidden,
		Message: "Account is inactive. Please contact administrator.",
	}
	ErrAccountLocked = &AuthError{
		Code:    "ACCOUNT_LOCKED",
		Status:  http.StatusLocked,
		Message: "Account is temporarily locked due to multiple failed attempts.",
	}
	ErrNotAuthenticated = &AuthError{
		Code:    "AUTHENTICATION_REQUIRED",
		Status:  http.StatusUnauthorized,
		Message: "Authentication required",
	}
	ErrSessionExpired = &AuthError{
		Code:    "SESSION_EXPIRED",
		Status:  http.StatusUnauthorized,
		Message: "Session expired. Please login again.",
	}
	ErrSessionHijacked = &AuthError{
		Code:    "SESSION_HIJACKED",
		Status:  http.StatusUnauthorized,
		Message: "Session integrity check failed. Please login again.",
	}
	ErrPermissionDenied = &AuthError{
		Code:    "PERMISSION_DENIED",
		Status:  http.StatusForbidden,
		Message: "Access denied. Insufficient permissions.",
	}
	ErrStorageUnavailable = &AuthError{
		Code:    "STORAGE_UNAVAILABLE",
		Status:  http.StatusInternalServerError,
		Message: "An error occurred. Please try again later.",
	}
	ErrUnexpected = &AuthError{
		Code:    "INTERNAL_ERROR",
		Status:  http.StatusInternalServerError,
		Message: "An error occurred. Please try again later.",
	}
)

// AsAuthError unwraps err to its AuthError, or maps it to ErrUnexpected so
// handlers never leak internal failure details to clients.
func AsAuthError(err error) *AuthError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae
	}
	return ErrUnexpected
}
