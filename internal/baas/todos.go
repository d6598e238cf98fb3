package baas

import (
	"context"
	"net/http"
	"strings"

	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/store"
)

// Row-level security: every operation acts as actorID and only ever sees
// or changes rows owned by actorID. A filter naming another owner simply
// matches nothing.

// Select lists the actor's todos.
func (s *Service) Select(ctx context.Context, actorID string, q backend.Query) ([]model.Todo, error) {
	if actorID == "" {
		return nil, backend.ErrSessionMissing
	}
	if q.UserID != "" && q.UserID != actorID {
		return []model.Todo{}, nil
	}
	return s.store.ListTodos(ctx, store.TodoFilter{UserID: actorID, NewestFirst: q.NewestFirst})
}

// Insert stores todo on behalf of the actor. The row must be owned by the
// actor.
func (s *Service) Insert(ctx context.Context, actorID string, todo model.Todo) (model.Todo, error) {
	if actorID == "" {
		return model.Todo{}, backend.ErrSessionMissing
	}
	if todo.UserID != actorID {
		return model.Todo{}, backend.ErrRowLevelSecurity
	}
	if strings.TrimSpace(todo.Text) == "" {
		return model.Todo{}, emptyTextError()
	}
	return s.store.InsertTodo(ctx, todo)
}

// Update patches the actor's rows matched by where.
func (s *Service) Update(
	ctx context.Context,
	actorID string,
	where backend.Where,
	patch model.TodoPatch,
) ([]model.Todo, error) {
	if actorID == "" {
		return nil, backend.ErrSessionMissing
	}
	if patch.IsEmpty() {
		return nil, backend.Errorf(http.StatusBadRequest, backend.CodeValidation,
			"update must set text or completed")
	}
	if where.UserID != "" && where.UserID != actorID {
		return []model.Todo{}, nil
	}
	if patch.Text != nil && strings.TrimSpace(*patch.Text) == "" {
		return nil, emptyTextError()
	}
	return s.store.UpdateTodos(ctx, store.TodoFilter{UserID: actorID, ID: where.ID}, patch)
}

// Delete removes the actor's rows matched by where.
func (s *Service) Delete(ctx context.Context, actorID string, where backend.Where) ([]model.Todo, error) {
	if actorID == "" {
		return nil, backend.ErrSessionMissing
	}
	if where.UserID != "" && where.UserID != actorID {
		return []model.Todo{}, nil
	}
	return s.store.DeleteTodos(ctx, store.TodoFilter{UserID: actorID, ID: where.ID})
}

// Subscribe opens a raw subscription on the change feed. Events are not
// filtered by owner; callers apply model.ChangeEvent.VisibleTo as needed.
func (s *Service) Subscribe(buffer int) *store.Subscription {
	return s.store.Subscribe(buffer)
}

func emptyTextError() *backend.Error {
	return backend.Errorf(http.StatusBadRequest, backend.CodeCheckViolation,
		`new row for relation "todos" violates check constraint "todos_text_check"`)
}
