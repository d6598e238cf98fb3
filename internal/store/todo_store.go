package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/todo-sync/internal/model"
)

const todoColumns = "todos.id, todos.text, todos.completed, todos.user_id, todos.created_at"

// ListTodos retrieves the todos matching the filter.
func (s *SQLiteStore) ListTodos(
	ctx context.Context,
	filter TodoFilter,
) ([]model.Todo, error) {
	if filter.UserID == "" {
		return nil, ErrUnscopedFilter
	}
	return listTodos(ctx, s.db, filter)
}

// InsertTodo stores a new todo and publishes an INSERT change. The ID and
// creation time are assigned here; any values on the input are ignored.
func (s *SQLiteStore) InsertTodo(ctx context.Context, todo model.Todo) (model.Todo, error) {
	if strings.TrimSpace(todo.Text) == "" {
		return model.Todo{}, fmt.Errorf("todo text must not be empty")
	}
	if todo.UserID == "" {
		return model.Todo{}, ErrUnscopedFilter
	}
	todo.ID = uuid.New().String()
	todo.CreatedAt = time.Now().UTC()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO todos (id, text, completed, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		todo.ID, todo.Text, boolToInt(todo.Completed), todo.UserID, todo.CreatedAt,
	)
	if err != nil {
		return model.Todo{}, fmt.Errorf("creating todo: %w", err)
	}

	inserted := todo
	s.feed.Publish(model.ChangeEvent{
		Kind:            model.ChangeInsert,
		Table:           model.TodosTable,
		New:             &inserted,
		CommitTimestamp: time.Now().UTC(),
	})
	return todo, nil
}

// UpdateTodos applies patch to every row matching filter and publishes one
// UPDATE change per row. It returns the rows as they are after the update;
// a filter that matches nothing yields an empty slice. An empty patch fails
// with ErrEmptyPatch.
func (s *SQLiteStore) UpdateTodos(
	ctx context.Context,
	filter TodoFilter,
	patch model.TodoPatch,
) ([]model.Todo, error) {
	if filter.UserID == "" {
		return nil, ErrUnscopedFilter
	}
	if patch.IsEmpty() {
		return nil, ErrEmptyPatch
	}
	if patch.Text != nil && strings.TrimSpace(*patch.Text) == "" {
		return nil, fmt.Errorf("todo text must not be empty")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	before, err := listTodos(ctx, tx, filter)
	if err != nil {
		return nil, err
	}
	if len(before) == 0 {
		return before, nil
	}

	var (
		sets []string
		args []interface{}
	)
	if patch.Text != nil {
		sets = append(sets, "text = ?")
		args = append(args, *patch.Text)
	}
	if patch.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, boolToInt(*patch.Completed))
	}
	where, whereArgs := todoConditions(filter)
	args = append(args, whereArgs...)

	if _, err := tx.ExecContext(ctx,
		"UPDATE todos SET "+strings.Join(sets, ", ")+" WHERE "+where, args...); err != nil {
		return nil, fmt.Errorf("updating todos: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing todo update: %w", err)
	}

	now := time.Now().UTC()
	after := make([]model.Todo, len(before))
	for i := range before {
		old := before[i]
		updated := patch.Apply(old)
		after[i] = updated
		s.feed.Publish(model.ChangeEvent{
			Kind:            model.ChangeUpdate,
			Table:           model.TodosTable,
			New:             &updated,
			Old:             &old,
			CommitTimestamp: now,
		})
	}
	return after, nil
}

// DeleteTodos removes every row matching filter, publishes one DELETE
// change per row and returns the removed rows.
func (s *SQLiteStore) DeleteTodos(
	ctx context.Context,
	filter TodoFilter,
) ([]model.Todo, error) {
	if filter.UserID == "" {
		return nil, ErrUnscopedFilter
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	removed, err := listTodos(ctx, tx, filter)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return removed, nil
	}

	where, args := todoConditions(filter)
	if _, err := tx.ExecContext(ctx, "DELETE FROM todos WHERE "+where, args...); err != nil {
		return nil, fmt.Errorf("deleting todos: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing todo delete: %w", err)
	}

	now := time.Now().UTC()
	for i := range removed {
		old := removed[i]
		s.feed.Publish(model.ChangeEvent{
			Kind:            model.ChangeDelete,
			Table:           model.TodosTable,
			Old:             &old,
			CommitTimestamp: now,
		})
	}
	return removed, nil
}

// listTodos runs a filtered select on either the database or a transaction.
func listTodos(
	ctx context.Context,
	q sqlx.QueryerContext,
	filter TodoFilter,
) ([]model.Todo, error) {
	query, args := buildTodoQuery("SELECT "+todoColumns, filter)

	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying todos: %w", err)
	}
	defer rows.Close()

	todos := []model.Todo{}
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, todo)
	}
	return todos, rows.Err()
}

// todoConditions renders the WHERE clause for a filter.
func todoConditions(filter TodoFilter) (string, []interface{}) {
	conditions := []string{"todos.user_id = ?"}
	args := []interface{}{filter.UserID}
	if filter.ID != "" {
		conditions = append(conditions, "todos.id = ?")
		args = append(args, filter.ID)
	}
	return strings.Join(conditions, " AND "), args
}

// buildTodoQuery constructs the SQL query and args for a TodoFilter.
func buildTodoQuery(selectClause string, filter TodoFilter) (string, []interface{}) {
	where, args := todoConditions(filter)
	query := selectClause + " FROM todos WHERE " + where

	// Rows created in the same instant fall back to insertion order.
	direction := "ASC"
	if filter.NewestFirst {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY todos.created_at %s, todos.rowid %s", direction, direction)

	return query, args
}

// rowScanner is implemented by *sqlx.Rows and *sqlx.Row.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTodo scans a todo row from sqlx.Rows.
func scanTodo(rows rowScanner) (model.Todo, error) {
	var (
		todo         model.Todo
		completedInt int
	)

	err := rows.Scan(
		&todo.ID, &todo.Text, &completedInt, &todo.UserID, &todo.CreatedAt,
	)
	if err != nil {
		return model.Todo{}, fmt.Errorf("scanning todo row: %w", err)
	}

	todo.Completed = completedInt != 0
	return todo, nil
}
