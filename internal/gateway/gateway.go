// Package gateway translates todo intents into owner-scoped backend calls.
// It keeps no state between calls: the acting identity is read from the
// auth module on every operation.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/model"
)

var (
	// ErrNoBackend is returned when the gateway has no backend client.
	ErrNoBackend = errors.New("backend client not initialized")

	// ErrNotAuthenticated is returned when no user is signed in.
	ErrNotAuthenticated = errors.New("User not authenticated")

	// ErrNotFoundOrDenied is returned when an update matched no row. A row
	// owned by someone else is indistinguishable from a missing one.
	ErrNotFoundOrDenied = errors.New("Todo not found or access denied")
)

// Gateway is the remote data gateway for todos. It is safe for
// concurrent use.
type Gateway struct {
	client  backend.Client
	timeout time.Duration
	logger  *log.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout bounds every backend call. A deadline hit is returned as an
// ordinary error wrapping context.DeadlineExceeded.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithLogger sets the logger used for failure diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a gateway over client.
func New(client backend.Client, opts ...Option) *Gateway {
	g := &Gateway{
		client: client,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// identity resolves the signed-in user.
func (g *Gateway) identity(ctx context.Context) (*model.Identity, error) {
	if g.client == nil {
		return nil, ErrNoBackend
	}
	user, err := g.client.Auth().GetUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	return user, nil
}

// fail logs a failed operation at debug level and returns err.
func (g *Gateway) fail(op string, err error) error {
	g.logger.Debug("gateway call failed", "op", op, "err", err)
	return err
}

// FetchAll returns every todo owned by the signed-in user, newest first.
func (g *Gateway) FetchAll(ctx context.Context) ([]model.Todo, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	user, err := g.identity(ctx)
	if err != nil {
		return nil, g.fail("fetch", err)
	}

	todos, err := g.client.Todos().Select(ctx, backend.Query{
		UserID:      user.ID,
		NewestFirst: true,
	})
	if err != nil {
		return nil, g.fail("fetch", err)
	}
	return todos, nil
}

// Add creates an incomplete todo owned by the signed-in user and returns
// the row as stored.
func (g *Gateway) Add(ctx context.Context, text string) (model.Todo, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	user, err := g.identity(ctx)
	if err != nil {
		return model.Todo{}, g.fail("add", err)
	}

	todo, err := g.client.Todos().Insert(ctx, model.Todo{
		Text:      text,
		UserID:    user.ID,
		Completed: false,
	})
	if err != nil {
		return model.Todo{}, g.fail("add", err)
	}
	return todo, nil
}

// Update applies patch to the signed-in user's todo id and returns the
// updated row.
func (g *Gateway) Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	return g.update(ctx, "update", id, patch)
}

// ToggleCompletion sets the completion flag of todo id to the opposite of
// currentCompleted. The flag is not re-read, so two toggles computed from
// the same stale value both write the same result.
func (g *Gateway) ToggleCompletion(ctx context.Context, id string, currentCompleted bool) (model.Todo, error) {
	return g.update(ctx, "toggle", id, model.SetCompleted(!currentCompleted))
}

func (g *Gateway) update(ctx context.Context, op, id string, patch model.TodoPatch) (model.Todo, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	user, err := g.identity(ctx)
	if err != nil {
		return model.Todo{}, g.fail(op, err)
	}

	rows, err := g.client.Todos().Update(ctx, backend.Where{ID: id, UserID: user.ID}, patch)
	if err != nil {
		return model.Todo{}, g.fail(op, err)
	}
	if len(rows) == 0 {
		return model.Todo{}, g.fail(op, ErrNotFoundOrDenied)
	}
	return rows[0], nil
}

// Remove deletes the signed-in user's todo id. Deleting a row that does
// not exist is not an error.
func (g *Gateway) Remove(ctx context.Context, id string) error {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	user, err := g.identity(ctx)
	if err != nil {
		return g.fail("remove", err)
	}

	if err := g.client.Todos().Delete(ctx, backend.Where{ID: id, UserID: user.ID}); err != nil {
		return g.fail("remove", fmt.Errorf("failed to delete todo: %w", err))
	}
	return nil
}

// SubscribeToChanges opens a realtime subscription on the todos table and
// passes every change to onEvent. Events are not filtered by owner here.
func (g *Gateway) SubscribeToChanges(ctx context.Context, onEvent backend.ChangeHandler) (backend.Subscription, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if _, err := g.identity(ctx); err != nil {
		return nil, g.fail("subscribe", err)
	}

	sub, err := g.client.Realtime().Subscribe(ctx, model.TodosTable, onEvent)
	if err != nil {
		return nil, g.fail("subscribe", err)
	}
	return sub, nil
}
