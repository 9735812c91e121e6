package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, maxAttempts int, window time.Duration) (*RateLimiter, Storage) {
	t.Helper()

	store, err := NewInMemorySQLiteStorage()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewRateLimiter(store, maxAttempts, window), store
}

func recordFailure(t *testing.T, store Storage, username, ip string, at time.Time) {
	t.Helper()
	err := store.RecordLoginAttempt(context.Background(), &LoginAttempt{
		Username:  username,
		IPAddress: ip,
		CreatedAt: at,
	})
	require.NoError(t, err)
}

func TestRateLimiterAllowsUnderThreshold(t *testing.T) {
	limiter, store := newTestLimiter(t, 5, time.Hour)
	now := time.Now().UTC()

	for i := 0; i < 4; i++ {
		recordFailure(t, store, "bob", "203.0.113.10", now)
	}

	ok, err := limiter.Allow(context.Background(), "bob", "203.0.113.10")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterBlocksByIPAcrossUsernames(t *testing.T) {
	limiter, store := newTestLimiter(t, 5, time.Hour)
	now := time.Now().UTC()

	// An attacker cycling usernames from one address still trips the gate.
	for _, name := range []string{"alice", "bob", "carol", "dave", "erin"} {
		recordFailure(t, store, name, "203.0.113.10", now)
	}

	ok, err := limiter.Allow(context.Background(), "frank", "203.0.113.10")
	require.NoError(t, err)
	assert.False(t, ok, "fifth failure from the address should block a sixth attempt")

	// The same username from a clean address is unaffected by the IP gate.
	ok, err = limiter.Allow(context.Background(), "frank", "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterBlocksByUsernameAcrossIPs(t *testing.T) {
	limiter, store := newTestLimiter(t, 5, time.Hour)
	now := time.Now().UTC()

	// A distributed attack on one account trips the username gate even
	// though every address is under its own limit.
	ips := []string{"203.0.113.1", "203.0.113.2", "203.0.113.3", "203.0.113.4", "203.0.113.5"}
	for _, ip := range ips {
		recordFailure(t, store, "bob", ip, now)
	}

	ok, err := limiter.Allow(context.Background(), "bob", "203.0.113.99")
	require.NoError(t, err)
	assert.False(t, ok)

	// Other accounts from a fresh address remain unaffected.
	ok, err = limiter.Allow(context.Background(), "alice", "203.0.113.99")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterWindowExpires(t *testing.T) {
	limiter, store := newTestLimiter(t, 5, time.Hour)

	base := time.Now().UTC()
	cur := base
	limiter.now = func() time.Time { return cur }

	for i := 0; i < 5; i++ {
		recordFailure(t, store, "bob", "203.0.113.10", base)
	}

	ok, err := limiter.Allow(context.Background(), "bob", "203.0.113.10")
	require.NoError(t, err)
	assert.False(t, ok)

	// Attempt rows are append-only; they simply age out of the count.
	cur = base.Add(time.Hour + time.Minute)
	ok, err = limiter.Allow(context.Background(), "bob", "203.0.113.10")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiterIgnoresSuccessfulAttempts(t *testing.T) {
	limiter, store := newTestLimiter(t, 5, time.Hour)
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		err := store.RecordLoginAttempt(context.Background(), &LoginAttempt{
			Username:  "bob",
			IPAddress: "203.0.113.10",
			Success:   true,
			CreatedAt: now,
		})
		require.NoError(t, err)
	}

	ok, err := limiter.Allow(context.Background(), "bob", "203.0.113.10")
	require.NoError(t, err)
	assert.True(t, ok, "successful attempts must not count against the limit")
}

func TestLoginRateLimited(t *testing.T) {
	svc := newTestService(t)
	freezeTime(svc)
	createTestUser(t, svc, "bob", "secret1", RoleUser, StatusActive)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		rc, req := loginRC(t, svc, "bob", "wrong-password")
		_, err := svc.Login(ctx, req, rc)
		require.Error(t, err)
	}

	// The limiter fires before credentials are even looked at.
	rc, req := loginRC(t, svc, "bob", "secret1")
	_, err := svc.Login(ctx, req, rc)
	assert.True(t, errorIs(err, ErrTooManyAttempts), "error = %v, want ErrTooManyAttempts", err)
}
