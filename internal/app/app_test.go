package app

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/todo-sync/internal/backend/remote"
	"github.com/nhle/todo-sync/internal/credential"
	"github.com/nhle/todo-sync/internal/gateway"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/session"
	appsync "github.com/nhle/todo-sync/internal/sync"
	"github.com/nhle/todo-sync/internal/ui/todolist"
	"github.com/nhle/todo-sync/tests/testutil"
)

func newApp(t *testing.T, fake *testutil.FakeBackend) Model {
	t.Helper()
	ctx := context.Background()
	logger := testutil.Logger(t)

	updates := appsync.NewUpdates()
	todos := appsync.New(gateway.New(fake, gateway.WithLogger(logger)), appsync.Options{
		Logger:   logger,
		OnChange: updates.Push,
	})
	t.Cleanup(func() { _ = todos.Close() })
	p := session.New(fake.Auth(), logger)
	t.Cleanup(p.Close)
	t.Cleanup(Bind(ctx, p, todos))

	m := New(ctx, Deps{Session: p, Todos: todos, Updates: updates, Logger: logger})
	return step(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
}

func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

// run feeds msg to the model and returns the message its command
// produces.
func run(t *testing.T, m Model, msg tea.Msg) (Model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	out := next.(Model)
	require.NotNil(t, cmd)
	return out, cmd()
}

// deliver hands the latest synchronizer state to the model.
func deliver(t *testing.T, m Model) Model {
	t.Helper()
	return step(t, m, m.updates.Wait()())
}

func press(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestApp_SignedInFlow(t *testing.T) {
	alice := &model.Identity{ID: "alice", Email: "alice@example.com"}
	fake := testutil.NewFakeBackend(alice)
	fake.Seed(model.Todo{ID: "1", Text: "water plants", UserID: "alice", CreatedAt: time.Now()})
	m := newApp(t, fake)

	assert.Equal(t, "Loading...", m.View())
	m = step(t, m, m.startSession()())
	m = deliver(t, m)

	view := m.View()
	assert.Contains(t, view, "water plants")
	assert.Contains(t, view, "alice")
	assert.Contains(t, view, "1 active / 1 total")

	m = step(t, m, press("n"))
	for _, r := range "milk" {
		m = step(t, m, press(string(r)))
	}
	m, msg := run(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, todolist.AddMsg{Text: "milk"}, msg)
	m, msg = run(t, m, msg)
	assert.Equal(t, todolist.ResultMsg{Op: todolist.OpAdd}, msg)
	m = step(t, m, msg)
	m = deliver(t, m)
	assert.Contains(t, m.View(), "milk")
	assert.Contains(t, m.View(), "2 active / 2 total")

	m, msg = run(t, m, press("S"))
	assert.Equal(t, signedOutMsg{}, msg)
	m = step(t, m, msg)
	m = deliver(t, m)
	assert.False(t, m.signedIn())
	assert.Contains(t, m.View(), "Sign in to your todos")
	assert.Zero(t, fake.OpenSubscriptions())
}

func TestApp_OperationFailureShowsBanner(t *testing.T) {
	alice := &model.Identity{ID: "alice", Email: "alice@example.com"}
	fake := testutil.NewFakeBackend(alice)
	fake.Seed(model.Todo{ID: "1", Text: "water plants", UserID: "alice", CreatedAt: time.Now()})
	m := newApp(t, fake)
	m = step(t, m, m.startSession()())
	m = deliver(t, m)

	fake.SetError("delete", assert.AnError)
	m, msg := run(t, m, press("d"))
	require.Equal(t, todolist.DeleteMsg{ID: "1"}, msg)
	m, msg = run(t, m, msg)
	m = step(t, m, msg)

	view := m.View()
	assert.Contains(t, view, "Failed to delete todo. Please try again.")
	assert.Contains(t, view, "water plants")
}

func TestApp_SignedOutShowsAuthForm(t *testing.T) {
	m := newApp(t, testutil.NewFakeBackend(nil))
	m = step(t, m, m.startSession()())

	assert.False(t, m.signedIn())
	assert.Contains(t, m.View(), "Sign in to your todos")
	assert.Contains(t, m.View(), "signed out")

	// q belongs to the form while signed out.
	m = step(t, m, press("q"))
	assert.Contains(t, m.View(), "Sign in to your todos")
}

func TestBind_SessionRevokedBeforeFirstFetch(t *testing.T) {
	ctx := context.Background()
	logger := testutil.Logger(t)
	svc := testutil.NewService(t)
	_, base := testutil.StartServer(t, svc)
	_, err := svc.SignUp(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)

	client, err := remote.New(base, credential.NewMemoryStore(), remote.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	todos := appsync.New(gateway.New(client, gateway.WithLogger(logger)), appsync.Options{Logger: logger})
	t.Cleanup(func() { _ = todos.Close() })
	p := session.New(client.Auth(), logger)
	t.Cleanup(p.Close)
	require.NoError(t, p.Start(ctx))

	// Revoke the new session on the server before the list loads, so the
	// first data call comes back 401.
	var revoked bool
	p.OnIdentityChange(func(id *model.Identity) {
		if id == nil || revoked {
			return
		}
		revoked = true
		assert.NoError(t, svc.SignOut(ctx, p.Session().AccessToken))
	})
	t.Cleanup(Bind(ctx, p, todos))

	done := make(chan error, 1)
	go func() { done <- p.SignIn(ctx, "alice@example.com", "secret1") }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sign-in did not return")
	}

	assert.True(t, revoked)
	assert.Nil(t, p.User())
	st := todos.State()
	assert.Equal(t, appsync.PhaseIdle, st.Phase)
	assert.Nil(t, st.Identity)

	// The provider still follows later sign-ins.
	require.NoError(t, p.SignIn(ctx, "alice@example.com", "secret1"))
	require.NotNil(t, p.User())
	assert.Equal(t, "alice@example.com", p.User().Email)
	assert.Eventually(t, func() bool {
		return todos.State().Phase == appsync.PhaseReady
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDisplayUser(t *testing.T) {
	assert.Equal(t, "alice", displayUser("alice@example.com"))
	assert.Equal(t, "User", displayUser(""))
}
