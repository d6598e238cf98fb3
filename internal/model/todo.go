package model

import "time"

// TodosTable is the name of the BaaS table that holds todo rows.
const TodosTable = "todos"

// Todo is a single to-do item owned by one user.
// ID, UserID and CreatedAt are assigned by the backend and never change.
type Todo struct {
	ID        string    `json:"id" db:"id"`
	Text      string    `json:"text" db:"text"`
	Completed bool      `json:"completed" db:"completed"`
	UserID    string    `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Equal reports whether two todos carry the same field values.
func (t Todo) Equal(o Todo) bool {
	return t.ID == o.ID &&
		t.Text == o.Text &&
		t.Completed == o.Completed &&
		t.UserID == o.UserID &&
		t.CreatedAt.Equal(o.CreatedAt)
}

// TodoPatch is a partial update. Nil fields are left untouched.
type TodoPatch struct {
	Text      *string `json:"text,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p TodoPatch) IsEmpty() bool {
	return p.Text == nil && p.Completed == nil
}

// Apply returns a copy of t with the patch fields applied.
func (p TodoPatch) Apply(t Todo) Todo {
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	return t
}

// SetText returns a patch that only changes the text.
func SetText(text string) TodoPatch {
	return TodoPatch{Text: &text}
}

// SetCompleted returns a patch that only changes the completion flag.
func SetCompleted(completed bool) TodoPatch {
	return TodoPatch{Completed: &completed}
}
