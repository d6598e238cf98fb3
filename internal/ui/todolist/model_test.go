package todolist

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/todo-sync/internal/keys"
	"github.com/nhle/todo-sync/internal/model"
	appsync "github.com/nhle/todo-sync/internal/sync"
)

var sample = []model.Todo{
	{ID: "1", Text: "write tests", UserID: "alice", CreatedAt: time.Now()},
	{ID: "2", Text: "ship it", Completed: true, UserID: "alice", CreatedAt: time.Now()},
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func typeText(m Model, s string) Model {
	for _, r := range s {
		m, _ = m.Update(runes(string(r)))
	}
	return m
}

func ready(t *testing.T) Model {
	t.Helper()
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetState(appsync.State{Phase: appsync.PhaseReady, Todos: sample})
	return m
}

func exec(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)
	return cmd()
}

func TestFilter(t *testing.T) {
	assert.Len(t, FilterAll.Apply(sample), 2)
	require.Len(t, FilterActive.Apply(sample), 1)
	assert.Equal(t, "1", FilterActive.Apply(sample)[0].ID)
	require.Len(t, FilterCompleted.Apply(sample), 1)
	assert.Equal(t, "2", FilterCompleted.Apply(sample)[0].ID)

	assert.Equal(t, FilterActive, FilterAll.Next())
	assert.Equal(t, FilterAll, FilterCompleted.Next())
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("active")
	require.NoError(t, err)
	assert.Equal(t, FilterActive, f)

	f, err = ParseFilter("Completed")
	require.NoError(t, err)
	assert.Equal(t, FilterCompleted, f)

	_, err = ParseFilter("done")
	assert.Error(t, err)
}

func TestFilter_EmptyMessage(t *testing.T) {
	assert.Equal(t, "No tasks yet. Add a task to get started!", FilterActive.EmptyMessage(0))
	assert.Equal(t, "No active tasks.", FilterActive.EmptyMessage(3))
	assert.Equal(t, "No completed tasks.", FilterCompleted.EmptyMessage(3))
	assert.Equal(t, "No tasks yet. Add a task to get started!", FilterAll.EmptyMessage(3))
}

func TestOp_FailureMessage(t *testing.T) {
	assert.Equal(t, "Failed to add todo. Please try again.", OpAdd.FailureMessage())
	assert.Equal(t, "Failed to update todo. Please try again.", OpEdit.FailureMessage())
	assert.Equal(t, "Failed to update todo. Please try again.", OpToggle.FailureMessage())
	assert.Equal(t, "Failed to delete todo. Please try again.", OpDelete.FailureMessage())
}

func TestModel_AddKeepsTextUntilSuccess(t *testing.T) {
	m := ready(t)

	m, _ = m.Update(runes("n"))
	require.True(t, m.Capturing())
	m = typeText(m, "milk")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, AddMsg{Text: "milk"}, exec(t, cmd))
	assert.False(t, m.Capturing())

	m, _ = m.Update(ResultMsg{Op: OpAdd, Err: errors.New("boom")})
	assert.Equal(t, "Failed to add todo. Please try again.", m.Banner())
	assert.Equal(t, "milk", m.input.Value())

	m, _ = m.Update(runes("n"))
	m, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, AddMsg{Text: "milk"}, exec(t, cmd))
	assert.Empty(t, m.Banner(), "a new operation clears the banner")

	m, _ = m.Update(ResultMsg{Op: OpAdd})
	assert.Empty(t, m.input.Value())
}

func TestModel_BlankInputIsIgnored(t *testing.T) {
	m := ready(t)
	m, _ = m.Update(runes("n"))

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
	assert.True(t, m.Capturing())

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.Capturing())
}

func TestModel_EditSelected(t *testing.T) {
	m := ready(t)

	m, _ = m.Update(runes("e"))
	require.True(t, m.Capturing())
	assert.Equal(t, "write tests", m.input.Value())

	m = typeText(m, "!")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, EditMsg{ID: "1", Text: "write tests!"}, exec(t, cmd))
	assert.False(t, m.Capturing())
}

func TestModel_EditEndsWhenItemDisappears(t *testing.T) {
	m := ready(t)
	m, _ = m.Update(runes("e"))
	require.True(t, m.Capturing())

	m.SetState(appsync.State{Phase: appsync.PhaseReady, Todos: sample[1:]})
	assert.False(t, m.Capturing())
}

func TestModel_ToggleAndDelete(t *testing.T) {
	m := ready(t)

	_, cmd := m.Update(runes("x"))
	assert.Equal(t, ToggleMsg{ID: "1", Completed: false}, exec(t, cmd))

	m, _ = m.Update(runes("j"))
	_, cmd = m.Update(runes("d"))
	assert.Equal(t, DeleteMsg{ID: "2"}, exec(t, cmd))
}

func TestModel_FilterKeys(t *testing.T) {
	m := ready(t)

	m, _ = m.Update(runes("3"))
	assert.Equal(t, FilterCompleted, m.Filter())
	require.Len(t, m.list.Items(), 1)

	_, cmd := m.Update(runes("x"))
	assert.Equal(t, ToggleMsg{ID: "2", Completed: true}, exec(t, cmd))

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, FilterAll, m.Filter())
	assert.Len(t, m.list.Items(), 2)
}

func TestModel_ErrorPhase(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetState(appsync.State{Phase: appsync.PhaseError, Error: "network down"})

	assert.Contains(t, m.View(), "Error loading todos: network down")

	_, cmd := m.Update(runes("n"))
	assert.Nil(t, cmd, "no editing while the list failed to load")

	_, cmd = m.Update(runes("r"))
	assert.Equal(t, RefreshMsg{}, exec(t, cmd))
}

func TestModel_Views(t *testing.T) {
	m := New(keys.DefaultKeyMap(), 80, 24)
	m.SetState(appsync.State{Phase: appsync.PhaseLoading, Loading: true})
	assert.Contains(t, m.View(), "Loading todos...")

	m.SetState(appsync.State{Phase: appsync.PhaseReady})
	assert.Contains(t, m.View(), "No tasks yet. Add a task to get started!")

	m.SetState(appsync.State{Phase: appsync.PhaseReady, Todos: sample})
	view := m.View()
	assert.Contains(t, view, "write tests")
	assert.Contains(t, view, "Completed")
	assert.Equal(t, "1 active / 2 total", m.Summary())
}
