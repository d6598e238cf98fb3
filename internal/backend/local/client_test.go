package local_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/todo-sync/internal/baas"
	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/backend/local"
	"github.com/nhle/todo-sync/internal/credential"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/tests/testutil"
)

func newService(t *testing.T) *baas.Service {
	t.Helper()
	return testutil.NewService(t)
}

func newClient(t *testing.T, svc *baas.Service, creds credential.Store) *local.Client {
	t.Helper()
	c := local.New(context.Background(), svc, creds, testutil.Logger(t))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_AuthLifecycle(t *testing.T) {
	ctx := context.Background()
	creds := credential.NewMemoryStore()
	c := newClient(t, newService(t), creds)

	var events []model.AuthEvent
	unsubscribe := c.Auth().OnAuthStateChange(func(e model.AuthEvent, _ *model.Session) {
		events = append(events, e)
	})
	defer unsubscribe()

	user, err := c.Auth().GetUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	session, err := c.Auth().SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	user, err = c.Auth().GetUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, session.User.ID, user.ID)

	token, err := creds.Get(credential.KeyAccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.AccessToken, token)

	require.NoError(t, c.Auth().SignOut(ctx))
	user, err = c.Auth().GetUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, user)

	_, err = creds.Get(credential.KeyAccessToken)
	assert.ErrorIs(t, err, credential.ErrNotFound)

	assert.Equal(t, []model.AuthEvent{model.AuthEventSignedIn, model.AuthEventSignedOut}, events)
}

func TestClient_RestoresSavedSession(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	creds := credential.NewMemoryStore()

	first := newClient(t, svc, creds)
	session, err := first.Auth().SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	second := newClient(t, svc, creds)
	got, err := second.Auth().GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session.User.ID, got.User.ID)

	// A stale token is discarded.
	require.NoError(t, creds.Set(credential.KeyAccessToken, "stale"))
	third := newClient(t, svc, creds)
	got, err = third.Auth().GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestClient_TodosRequireSession(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, newService(t), nil)

	_, err := c.Todos().Select(ctx, backend.Query{})
	assert.ErrorIs(t, err, backend.ErrSessionMissing)

	session, err := c.Auth().SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	todo, err := c.Todos().Insert(ctx, model.Todo{Text: "milk", UserID: session.User.ID})
	require.NoError(t, err)

	rows, err := c.Todos().Update(ctx,
		backend.Where{ID: todo.ID, UserID: session.User.ID}, model.SetCompleted(true))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Completed)

	require.NoError(t, c.Todos().Delete(ctx, backend.Where{ID: todo.ID, UserID: session.User.ID}))
	list, err := c.Todos().Select(ctx, backend.Query{UserID: session.User.ID})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestClient_RealtimeIsUnfilteredAndStopsOnClose(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	alice := newClient(t, svc, nil)
	bob := newClient(t, svc, nil)

	_, err := alice.Auth().SignUp(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	bobSession, err := bob.Auth().SignUp(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []model.ChangeEvent
	)
	sub, err := alice.Realtime().Subscribe(ctx, model.TodosTable, func(evt model.ChangeEvent) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	})
	require.NoError(t, err)

	_, err = bob.Todos().Insert(ctx, model.Todo{Text: "bob's", UserID: bobSession.User.ID})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, bobSession.User.ID, events[0].Owner(), "local realtime does not filter by owner")
	mu.Unlock()

	require.NoError(t, sub.Close())
	_, err = bob.Todos().Insert(ctx, model.Todo{Text: "later", UserID: bobSession.User.ID})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, events, 1, "no delivery after Close")

	_, err = alice.Realtime().Subscribe(ctx, "projects", func(model.ChangeEvent) {})
	assert.Error(t, err)
}
