package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/todo-sync/internal/model"
)

// CreateUser inserts a new account. The email must not be registered yet.
func (s *SQLiteStore) CreateUser(
	ctx context.Context,
	email string,
	passwordHash string,
) (*User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, fmt.Errorf("user email must not be empty")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	u := User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return &u, nil
}

// GetUserByID retrieves an account by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves an account by its email address.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx, "email", email)
}

// getUser loads a single user row matching column = value.
func (s *SQLiteStore) getUser(ctx context.Context, column, value string) (*User, error) {
	var u User
	err := s.db.QueryRowxContext(ctx,
		"SELECT id, email, password_hash, created_at FROM users WHERE "+column+" = ?",
		value,
	).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by %s: %w", column, err)
	}
	return &u, nil
}

// UpdatePasswordHash replaces a user's password hash.
func (s *SQLiteStore) UpdatePasswordHash(
	ctx context.Context,
	userID string,
	passwordHash string,
) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, userID)
	if err != nil {
		return fmt.Errorf("updating password for user %s: %w", userID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSession issues a new access token for userID valid for ttl.
func (s *SQLiteStore) CreateSession(
	ctx context.Context,
	userID string,
	ttl time.Duration,
) (*model.Session, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	session := &model.Session{
		AccessToken: uuid.New().String(),
		User:        u.Identity(),
		ExpiresAt:   now.Add(ttl),
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		session.AccessToken, userID, now, session.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return session, nil
}

// GetSession resolves an access token. Expired sessions are removed and
// reported as ErrSessionExpired.
func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*model.Session, error) {
	var session model.Session
	err := s.db.QueryRowxContext(ctx, `
		SELECT sessions.token, sessions.expires_at, users.id, users.email
		FROM sessions
		INNER JOIN users ON users.id = sessions.user_id
		WHERE sessions.token = ?`,
		token,
	).Scan(&session.AccessToken, &session.ExpiresAt, &session.User.ID, &session.User.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}

	if session.Expired(time.Now()) {
		if err := s.DeleteSession(ctx, token); err != nil {
			s.logger.Warn("failed to remove expired session", "err", err)
		}
		return nil, ErrSessionExpired
	}
	return &session, nil
}

// DeleteSession revokes an access token. Unknown tokens are ignored.
func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// CreatePasswordReset issues a single-use reset token for userID.
func (s *SQLiteStore) CreatePasswordReset(
	ctx context.Context,
	userID string,
	ttl time.Duration,
) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	token := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
		token, userID, now, now.Add(ttl),
	)
	if err != nil {
		return "", fmt.Errorf("creating password reset: %w", err)
	}
	return token, nil
}

// ConsumePasswordReset marks a reset token used and returns its user ID.
func (s *SQLiteStore) ConsumePasswordReset(ctx context.Context, token string) (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		userID    string
		expiresAt time.Time
		used      int
	)
	err = tx.QueryRowxContext(ctx,
		"SELECT user_id, expires_at, used FROM password_resets WHERE token = ?", token,
	).Scan(&userID, &expiresAt, &used)
	if errors.Is(err, sql.ErrNoRows) || used != 0 {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting password reset: %w", err)
	}
	if !time.Now().Before(expiresAt) {
		return "", ErrSessionExpired
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE password_resets SET used = 1 WHERE token = ?", token); err != nil {
		return "", fmt.Errorf("consuming password reset: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing password reset: %w", err)
	}
	return userID, nil
}
