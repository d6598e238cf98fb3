package sync

import "github.com/nhle/todo-sync/internal/model"

// todoList is an ordered list of todos indexed by ID. Every merge is
// keyed by ID, so applying the same change twice leaves the list as
// applying it once.
type todoList struct {
	byID  map[string]model.Todo
	order []string
}

func newTodoList() todoList {
	return todoList{byID: make(map[string]model.Todo)}
}

// reset empties the list.
func (l *todoList) reset() {
	l.byID = make(map[string]model.Todo)
	l.order = nil
}

// replace sets the list to todos in the given order. Later duplicates of
// an ID are dropped.
func (l *todoList) replace(todos []model.Todo) {
	l.reset()
	for _, t := range todos {
		if _, ok := l.byID[t.ID]; ok {
			continue
		}
		l.byID[t.ID] = t
		l.order = append(l.order, t.ID)
	}
}

// upsertFront replaces t in place when present, otherwise prepends it.
// It reports whether the list changed.
func (l *todoList) upsertFront(t model.Todo) bool {
	if old, ok := l.byID[t.ID]; ok {
		l.byID[t.ID] = t
		return !old.Equal(t)
	}
	l.byID[t.ID] = t
	l.order = append([]string{t.ID}, l.order...)
	return true
}

// update replaces t in place. Unknown IDs are ignored so a late echo
// cannot bring back a deleted row.
func (l *todoList) update(t model.Todo) bool {
	old, ok := l.byID[t.ID]
	if !ok {
		return false
	}
	l.byID[t.ID] = t
	return !old.Equal(t)
}

// remove deletes id and reports whether it was present.
func (l *todoList) remove(id string) bool {
	if _, ok := l.byID[id]; !ok {
		return false
	}
	delete(l.byID, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

// snapshot returns the todos in list order.
func (l *todoList) snapshot() []model.Todo {
	out := make([]model.Todo, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

func (l *todoList) len() int {
	return len(l.order)
}
