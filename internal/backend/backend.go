// Package backend defines the narrow client boundary to the BaaS: an auth
// module, owner-scoped table operations on todos and a realtime change
// feed. Implementations live in backend/local (in process) and
// backend/remote (HTTP and websocket).
package backend

import (
	"context"

	"github.com/nhle/todo-sync/internal/model"
)

// Query selects todo rows. UserID restricts the result to one owner;
// NewestFirst orders by creation time descending.
type Query struct {
	UserID      string
	NewestFirst bool
}

// Where scopes an update or delete. UserID is mandatory; ID narrows the
// match to a single row.
type Where struct {
	ID     string
	UserID string
}

// AuthStateHandler observes auth state changes. session is nil after a
// sign-out.
type AuthStateHandler func(event model.AuthEvent, session *model.Session)

// ChangeHandler receives realtime row changes.
type ChangeHandler func(evt model.ChangeEvent)

// Auth is the authentication module of the BaaS.
type Auth interface {
	// GetUser returns the signed-in user, or nil when signed out.
	GetUser(ctx context.Context) (*model.Identity, error)

	// GetSession returns the current session, or nil when signed out.
	GetSession(ctx context.Context) (*model.Session, error)

	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)

	// SignInWithOAuth returns the provider authorization URL to open.
	SignInWithOAuth(ctx context.Context, provider string) (string, error)

	SignOut(ctx context.Context) error

	// ResetPasswordForEmail mails a reset token. Unknown addresses succeed
	// without sending anything.
	ResetPasswordForEmail(ctx context.Context, email string) error

	// UpdatePassword sets a new password using a mailed reset token.
	UpdatePassword(ctx context.Context, resetToken, newPassword string) error

	// OnAuthStateChange registers handler and returns a function that
	// unregisters it.
	OnAuthStateChange(handler AuthStateHandler) (unsubscribe func())
}

// Todos is the owner-scoped todos table.
type Todos interface {
	Select(ctx context.Context, q Query) ([]model.Todo, error)

	// Insert stores a row and returns it as created.
	Insert(ctx context.Context, todo model.Todo) (model.Todo, error)

	// Update applies patch to the rows matched by where and returns them.
	// A match of zero rows is not an error.
	Update(ctx context.Context, where Where, patch model.TodoPatch) ([]model.Todo, error)

	// Delete removes the rows matched by where.
	Delete(ctx context.Context, where Where) error
}

// Realtime opens change subscriptions.
type Realtime interface {
	Subscribe(ctx context.Context, table string, handler ChangeHandler) (Subscription, error)
}

// Subscription is an open realtime channel. After Close returns, the
// handler is not invoked again.
type Subscription interface {
	Close() error
}

// Client bundles the three BaaS modules.
type Client interface {
	Auth() Auth
	Todos() Todos
	Realtime() Realtime
	Close() error
}
