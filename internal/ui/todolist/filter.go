package todolist

import (
	"fmt"
	"strings"

	"github.com/nhle/todo-sync/internal/model"
)

// Filter selects which todos the list shows.
type Filter int

const (
	FilterAll Filter = iota
	FilterActive
	FilterCompleted
)

var filters = []Filter{FilterAll, FilterActive, FilterCompleted}

func (f Filter) String() string {
	switch f {
	case FilterActive:
		return "Active"
	case FilterCompleted:
		return "Completed"
	default:
		return "All"
	}
}

// ParseFilter parses a filter name as printed by String, ignoring case.
func ParseFilter(name string) (Filter, error) {
	for _, f := range filters {
		if strings.EqualFold(name, f.String()) {
			return f, nil
		}
	}
	return FilterAll, fmt.Errorf("unknown filter %q", name)
}

// Next returns the filter after f, wrapping around.
func (f Filter) Next() Filter {
	return filters[(int(f)+1)%len(filters)]
}

// Match reports whether t passes the filter.
func (f Filter) Match(t model.Todo) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// Apply returns the todos passing the filter, in their original order.
func (f Filter) Apply(todos []model.Todo) []model.Todo {
	out := make([]model.Todo, 0, len(todos))
	for _, t := range todos {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// EmptyMessage is shown when the filtered list is empty. total is the
// unfiltered count.
func (f Filter) EmptyMessage(total int) string {
	const noTasks = "No tasks yet. Add a task to get started!"
	if total == 0 {
		return noTasks
	}
	switch f {
	case FilterActive:
		return "No active tasks."
	case FilterCompleted:
		return "No completed tasks."
	default:
		return noTasks
	}
}

// Op names a list operation the user started.
type Op int

const (
	OpAdd Op = iota
	OpEdit
	OpToggle
	OpDelete
)

// FailureMessage is the banner shown when op fails. Editing and toggling
// both report as an update.
func (o Op) FailureMessage() string {
	switch o {
	case OpAdd:
		return "Failed to add todo. Please try again."
	case OpDelete:
		return "Failed to delete todo. Please try again."
	default:
		return "Failed to update todo. Please try again."
	}
}
