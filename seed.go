package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// EnsureAdminUser creates the initial super_admin account when no account
// with that username exists yet. Part of the bootstrap step alongside the
// migrations; request handlers never create accounts.
func EnsureAdminUser(ctx context.Context, storage Storage, username, email, password string) (*User, error) {
	existing, err := storage.GetUserByLogin(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check for admin user: %w", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	user := &User{
		UUID:         uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		FullName:     "Administrator",
		Role:         RoleSuperAdmin,
		Status:       StatusActive,
	}
	if err := storage.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create admin user: %w", err)
	}
	return user, nil
}
