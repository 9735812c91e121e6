package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStorage implements Storage on PostgreSQL using pure SQL through
// the pgx stdlib driver.
type PostgresStorage struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewPostgresStorage opens a PostgreSQL connection pool for the given DSN.
// Run RunMigrations against the same database before serving requests; the
// storage assumes its tables exist and reports unavailability otherwise.
func NewPostgresStorage(dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStorage{
		db:           db,
		queryTimeout: defaultQueryTimeout,
	}, nil
}

// DB exposes the underlying pool for the migration runner.
func (p *PostgresStorage) DB() *sql.DB {
	return p.db
}

// SetQueryTimeout overrides the per-call timeout (default 30s).
func (p *PostgresStorage) SetQueryTimeout(d time.Duration) {
	if d > 0 {
		p.queryTimeout = d
	}
}

func (p *PostgresStorage) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.queryTimeout)
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	return p.db.Close()
}

const pgUserColumns = `id, uuid, username, email, password_hash, full_name, role, status,
	login_attempts, locked_until, remember_token, last_login, created_at, updated_at, deleted_at`

func (p *PostgresStorage) CreateUser(ctx context.Context, user *User) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	now := time.Now().UTC()
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users (uuid, username, email, password_hash, full_name, role, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		user.UUID, user.Username, user.Email, user.PasswordHash, user.FullName,
		user.Role, user.Status, now, now).Scan(&user.ID)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (p *PostgresStorage) GetUserByID(ctx context.Context, id uint) (*User, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	row := p.db.QueryRowContext(ctx,
		`SELECT `+pgUserColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanUser(row)
}

func (p *PostgresStorage) GetUserByLogin(ctx context.Context, usernameOrEmail string) (*User, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	row := p.db.QueryRowContext(ctx,
		`SELECT `+pgUserColumns+` FROM users
		 WHERE (username = $1 OR email = $1) AND deleted_at IS NULL`,
		usernameOrEmail)
	return scanUser(row)
}

func (p *PostgresStorage) GetUserByRememberToken(ctx context.Context, token string) (*User, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	row := p.db.QueryRowContext(ctx,
		`SELECT `+pgUserColumns+` FROM users
		 WHERE remember_token = $1 AND status = 'active' AND deleted_at IS NULL`,
		token)
	return scanUser(row)
}

func (p *PostgresStorage) RecordLoginSuccess(ctx context.Context, userID uint, at time.Time) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`UPDATE users SET last_login = $1, login_attempts = 0, locked_until = NULL, updated_at = $1
		 WHERE id = $2`,
		at, userID)
	if err != nil {
		return fmt.Errorf("failed to record login success: %w", err)
	}
	return nil
}

func (p *PostgresStorage) SetRememberToken(ctx context.Context, userID uint, token string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`UPDATE users SET remember_token = $1, updated_at = $2 WHERE id = $3`,
		token, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set remember token: %w", err)
	}
	return nil
}

func (p *PostgresStorage) ClearRememberToken(ctx context.Context, userID uint) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`UPDATE users SET remember_token = NULL, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to clear remember token: %w", err)
	}
	return nil
}

func (p *PostgresStorage) RecordFailedLogin(ctx context.Context, attempt *LoginAttempt, maxAttempts int, lockUntil time.Time) (*FailedLoginOutcome, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO login_attempts (username, ip_address, user_agent, success, created_at)
		 VALUES ($1, $2, $3, FALSE, $4)`,
		attempt.Username, attempt.IPAddress, attempt.UserAgent, attempt.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}

	// Atomic increment in the same transaction as the attempt row; the
	// row lock taken by the UPDATE serializes concurrent failures.
	outcome := &FailedLoginOutcome{}
	err = tx.QueryRowContext(ctx,
		`UPDATE users SET login_attempts = login_attempts + 1, updated_at = $1
		 WHERE (username = $2 OR email = $2) AND deleted_at IS NULL
		 RETURNING id, login_attempts`,
		attempt.CreatedAt, attempt.Username).Scan(&outcome.UserID, &outcome.Attempts)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to increment login attempts: %w", err)
	}

	if outcome.UserID != 0 && outcome.Attempts >= maxAttempts {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET locked_until = $1 WHERE id = $2`,
			lockUntil, outcome.UserID); err != nil {
			return nil, fmt.Errorf("failed to lock account: %w", err)
		}
		outcome.Locked = outcome.Attempts == maxAttempts
		outcome.LockedUntil = lockUntil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit failed login: %w", err)
	}
	return outcome, nil
}

func (p *PostgresStorage) RecordLoginAttempt(ctx context.Context, attempt *LoginAttempt) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO login_attempts (username, ip_address, user_agent, success, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		attempt.Username, attempt.IPAddress, attempt.UserAgent, attempt.Success, attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

func (p *PostgresStorage) CountFailedAttemptsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts
		 WHERE ip_address = $1 AND success = FALSE AND created_at > $2`,
		ip, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts by IP: %w", err)
	}
	return count, nil
}

func (p *PostgresStorage) CountFailedAttemptsByUsername(ctx context.Context, username string, since time.Time) (int, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var count int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts
		 WHERE username = $1 AND success = FALSE AND created_at > $2`,
		username, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts by username: %w", err)
	}
	return count, nil
}

func (p *PostgresStorage) CreateSession(ctx context.Context, session *Session) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, role, login_time, last_activity, user_agent, csrf_token, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.UserID, session.Role, session.LoginTime,
		session.LastActivity, session.UserAgent, session.CSRFToken, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (p *PostgresStorage) GetSession(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	var sess Session
	err := p.db.QueryRowContext(ctx,
		`SELECT id, user_id, role, login_time, last_activity, user_agent, csrf_token, created_at
		 FROM sessions WHERE id = $1`, id).Scan(
		&sess.ID, &sess.UserID, &sess.Role, &sess.LoginTime,
		&sess.LastActivity, &sess.UserAgent, &sess.CSRFToken, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &sess, nil
}

func (p *PostgresStorage) TouchSession(ctx context.Context, id string, lastActivity time.Time) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = $1 WHERE id = $2`, lastActivity, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (p *PostgresStorage) BindSessionUserAgent(ctx context.Context, id, userAgent string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET user_agent = $1 WHERE id = $2 AND user_agent = ''`, userAgent, id)
	if err != nil {
		return fmt.Errorf("failed to bind session user agent: %w", err)
	}
	return nil
}

func (p *PostgresStorage) DeleteSession(ctx context.Context, id string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (p *PostgresStorage) DeleteExpiredSessions(ctx context.Context, lastActivityBefore time.Time) (int64, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	result, err := p.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE last_activity < $1`, lastActivityBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

func (p *PostgresStorage) RecordActivity(ctx context.Context, activity *Activity) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO user_activities (user_id, action, description, ip_address, user_agent, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		activity.UserID, activity.Action, activity.Description,
		activity.IPAddress, activity.UserAgent, activity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}
