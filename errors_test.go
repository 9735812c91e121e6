package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAuthErrorMatchingByCode(t *testing.T) {
	custom := ErrInvalidInput.WithMessage("Username is required")
	if !errors.Is(custom, ErrInvalidInput) {
		t.Error("customized message should still match its sentinel")
	}
	if errors.Is(custom, ErrInvalidCredentials) {
		t.Error("different codes must not match")
	}

	wrapped := fmt.Errorf("login: %w", ErrAccountLocked)
	if !errors.Is(wrapped, ErrAccountLocked) {
		t.Error("wrapped sentinel should match")
	}
}

func TestAsAuthError(t *testing.T) {
	if ae := AsAuthError(ErrSessionExpired); ae != ErrSessionExpired {
		t.Errorf("AsAuthError = %v, want the sentinel itself", ae)
	}

	wrapped := fmt.Errorf("guard: %w", ErrSessionHijacked)
	if ae := AsAuthError(wrapped); ae.Code != ErrSessionHijacked.Code {
		t.Errorf("code = %s, want %s", ae.Code, ErrSessionHijacked.Code)
	}

	// Anything else collapses to the generic internal error; the client
	// never sees driver or SQL details.
	ae := AsAuthError(errors.New("pq: connection refused"))
	if ae != ErrUnexpected {
		t.Errorf("AsAuthError = %v, want ErrUnexpected", ae)
	}
	if ae.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", ae.Status)
	}
}

func TestSentinelStatuses(t *testing.T) {
	cases := []struct {
		err    *AuthError
		status int
	}{
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrForbiddenCSRF, http.StatusForbidden},
		{ErrAccountLocked, http.StatusLocked},
		{ErrTooManyAttempts, http.StatusTooManyRequests},
		{ErrStorageUnavailable, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if tc.err.Status != tc.status {
			t.Errorf("%s status = %d, want %d", tc.err.Code, tc.err.Status, tc.status)
		}
	}
}
