package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStorage implements Storage on SQLite using pure SQL. It is the
// backend used by the test suite and by single-host deployments.
type SQLiteStorage struct {
	db           *sql.DB
	queryTimeout time.Duration
}

// NewSQLiteStorage opens a SQLite database at dbPath with foreign keys
// enabled and WAL journaling.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	return &SQLiteStorage{
		db:           db,
		queryTimeout: defaultQueryTimeout,
	}, nil
}

// NewInMemorySQLiteStorage creates an in-memory storage for testing, with
// its schema already in place. The pool is pinned to one connection because
// each new connection to ":memory:" would see its own empty database.
func NewInMemorySQLiteStorage() (*SQLiteStorage, error) {
	s, err := NewSQLiteStorage(":memory:")
	if err != nil {
		return nil, err
	}
	s.db.SetMaxOpenConns(1)
	if err := s.CreateTables(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetQueryTimeout overrides the per-call timeout (default 30s).
func (s *SQLiteStorage) SetQueryTimeout(d time.Duration) {
	if d > 0 {
		s.queryTimeout = d
	}
}

func (s *SQLiteStorage) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// CreateTables creates the auth schema. Idempotent and safe to race.
func (s *SQLiteStorage) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT UNIQUE NOT NULL,
			username TEXT UNIQUE NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			full_name TEXT DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			status TEXT NOT NULL DEFAULT 'active',
			login_attempts INTEGER NOT NULL DEFAULT 0,
			locked_until DATETIME,
			remember_token TEXT,
			last_login DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			deleted_at DATETIME
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL DEFAULT 0,
			role TEXT NOT NULL DEFAULT '',
			login_time DATETIME NOT NULL,
			last_activity DATETIME NOT NULL,
			user_agent TEXT NOT NULL DEFAULT '',
			csrf_token TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS login_attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			user_agent TEXT DEFAULT '',
			success BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_login_attempts_username ON login_attempts(username)`,
		`CREATE INDEX IF NOT EXISTS idx_login_attempts_ip ON login_attempts(ip_address)`,
		`CREATE INDEX IF NOT EXISTS idx_login_attempts_created ON login_attempts(created_at)`,

		`CREATE TABLE IF NOT EXISTS user_activities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			description TEXT DEFAULT '',
			ip_address TEXT DEFAULT '',
			user_agent TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_user_activities_user ON user_activities(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_activities_action ON user_activities(action)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

const sqliteUserColumns = `id, uuid, username, email, password_hash, full_name, role, status,
	login_attempts, locked_until, remember_token, last_login, created_at, updated_at, deleted_at`

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var lockedUntil, lastLogin, deletedAt sql.NullTime
	var rememberToken sql.NullString

	err := row.Scan(&u.ID, &u.UUID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName,
		&u.Role, &u.Status, &u.LoginAttempts, &lockedUntil, &rememberToken,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if lockedUntil.Valid {
		u.LockedUntil = &lockedUntil.Time
	}
	if lastLogin.Valid {
		u.LastLogin = &lastLogin.Time
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	u.RememberToken = rememberToken.String
	return &u, nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, user *User) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (uuid, username, email, password_hash, full_name, role, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.UUID, user.Username, user.Email, user.PasswordHash, user.FullName,
		user.Role, user.Status, now, now)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get user ID: %w", err)
	}
	user.ID = uint(id)
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) GetUserByID(ctx context.Context, id uint) (*User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id)
	return scanUser(row)
}

func (s *SQLiteStorage) GetUserByLogin(ctx context.Context, usernameOrEmail string) (*User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users
		 WHERE (username = ? OR email = ?) AND deleted_at IS NULL`,
		usernameOrEmail, usernameOrEmail)
	return scanUser(row)
}

func (s *SQLiteStorage) GetUserByRememberToken(ctx context.Context, token string) (*User, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteUserColumns+` FROM users
		 WHERE remember_token = ? AND status = 'active' AND deleted_at IS NULL`,
		token)
	return scanUser(row)
}

func (s *SQLiteStorage) RecordLoginSuccess(ctx context.Context, userID uint, at time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login = ?, login_attempts = 0, locked_until = NULL, updated_at = ?
		 WHERE id = ?`,
		at, at, userID)
	if err != nil {
		return fmt.Errorf("failed to record login success: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SetRememberToken(ctx context.Context, userID uint, token string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET remember_token = ?, updated_at = ? WHERE id = ?`,
		token, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to set remember token: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ClearRememberToken(ctx context.Context, userID uint) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET remember_token = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to clear remember token: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) RecordFailedLogin(ctx context.Context, attempt *LoginAttempt, maxAttempts int, lockUntil time.Time) (*FailedLoginOutcome, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO login_attempts (username, ip_address, user_agent, success, created_at)
		 VALUES (?, ?, ?, FALSE, ?)`,
		attempt.Username, attempt.IPAddress, attempt.UserAgent, attempt.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}

	// The increment and the threshold check run inside the same
	// transaction as the attempt row, so two concurrent failures cannot
	// under-count the lockout.
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET login_attempts = login_attempts + 1, updated_at = ?
		 WHERE (username = ? OR email = ?) AND deleted_at IS NULL`,
		attempt.CreatedAt, attempt.Username, attempt.Username); err != nil {
		return nil, fmt.Errorf("failed to increment login attempts: %w", err)
	}

	outcome := &FailedLoginOutcome{}
	err = tx.QueryRowContext(ctx,
		`SELECT id, login_attempts FROM users
		 WHERE (username = ? OR email = ?) AND deleted_at IS NULL`,
		attempt.Username, attempt.Username).Scan(&outcome.UserID, &outcome.Attempts)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read login attempts: %w", err)
	}

	if outcome.UserID != 0 && outcome.Attempts >= maxAttempts {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET locked_until = ? WHERE id = ?`,
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

func (s *SQLiteStorage) RecordLoginAttempt(ctx context.Context, attempt *LoginAttempt) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO login_attempts (username, ip_address, user_agent, success, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		attempt.Username, attempt.IPAddress, attempt.UserAgent, attempt.Success, attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CountFailedAttemptsByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts
		 WHERE ip_address = ? AND success = FALSE AND created_at > ?`,
		ip, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts by IP: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) CountFailedAttemptsByUsername(ctx context.Context, username string, since time.Time) (int, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM login_attempts
		 WHERE username = ? AND success = FALSE AND created_at > ?`,
		username, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count attempts by username: %w", err)
	}
	return count, nil
}

func (s *SQLiteStorage) CreateSession(ctx context.Context, session *Session) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, role, login_time, last_activity, user_agent, csrf_token, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Role, session.LoginTime,
		session.LastActivity, session.UserAgent, session.CSRFToken, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var sess Session
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, role, login_time, last_activity, user_agent, csrf_token, created_at
		 FROM sessions WHERE id = ?`, id).Scan(
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

func (s *SQLiteStorage) TouchSession(ctx context.Context, id string, lastActivity time.Time) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = ? WHERE id = ?`, lastActivity, id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) BindSessionUserAgent(ctx context.Context, id, userAgent string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET user_agent = ? WHERE id = ? AND user_agent = ''`, userAgent, id)
	if err != nil {
		return fmt.Errorf("failed to bind session user agent: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteSession(ctx context.Context, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteExpiredSessions(ctx context.Context, lastActivityBefore time.Time) (int64, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE last_activity < ?`, lastActivityBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStorage) RecordActivity(ctx context.Context, activity *Activity) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_activities (user_id, action, description, ip_address, user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		activity.UserID, activity.Action, activity.Description,
		activity.IPAddress, activity.UserAgent, activity.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}
