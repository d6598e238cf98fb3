package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/todo-sync/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when signing up with a registered email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrSessionExpired is returned for a session or reset token past its expiry.
	ErrSessionExpired = errors.New("session expired")

	// ErrUnscopedFilter is returned when a mutation filter has no owner.
	ErrUnscopedFilter = errors.New("filter must include user_id")

	// ErrEmptyPatch is returned for an update that sets no field.
	ErrEmptyPatch = errors.New("patch sets no fields")
)

// User is a registered account as persisted by the backend.
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// Identity returns the client-facing view of the user.
func (u User) Identity() model.Identity {
	return model.Identity{ID: u.ID, Email: u.Email}
}

// TodoFilter selects todo rows. UserID is mandatory for every query;
// ID narrows the match to a single row.
type TodoFilter struct {
	UserID      string
	ID          string
	NewestFirst bool
}

// Store defines the persistence interface for accounts, sessions and
// todos, plus the change feed that todo writes are published to.
type Store interface {
	// === Users ===

	CreateUser(ctx context.Context, email, passwordHash string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error

	// === Sessions ===

	CreateSession(ctx context.Context, userID string, ttl time.Duration) (*model.Session, error)
	GetSession(ctx context.Context, token string) (*model.Session, error)
	DeleteSession(ctx context.Context, token string) error

	// === Password resets ===

	CreatePasswordReset(ctx context.Context, userID string, ttl time.Duration) (string, error)
	ConsumePasswordReset(ctx context.Context, token string) (string, error)

	// === Todos ===

	ListTodos(ctx context.Context, filter TodoFilter) ([]model.Todo, error)
	InsertTodo(ctx context.Context, todo model.Todo) (model.Todo, error)
	UpdateTodos(ctx context.Context, filter TodoFilter, patch model.TodoPatch) ([]model.Todo, error)
	DeleteTodos(ctx context.Context, filter TodoFilter) ([]model.Todo, error)

	// === Change feed ===

	Subscribe(buffer int) *Subscription
}
