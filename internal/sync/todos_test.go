package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/todo-sync/internal/gateway"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/tests/testutil"
)

var (
	alice = &model.Identity{ID: "alice", Email: "alice@example.com"}
	bob   = &model.Identity{ID: "bob", Email: "bob@example.com"}
)

// recorder collects OnChange notifications.
type recorder struct {
	mu     gosync.Mutex
	states []State
}

func (r *recorder) push(st State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, st)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

func seedTwo(fake *testutil.FakeBackend) {
	fake.Seed(
		model.Todo{ID: "1", Text: "Test Todo 1", Completed: false, UserID: "alice"},
		model.Todo{ID: "2", Text: "Test Todo 2", Completed: true, UserID: "alice"},
	)
}

func newSync(t *testing.T, fake *testutil.FakeBackend) (*TodoSync, *recorder) {
	t.Helper()
	rec := &recorder{}
	logger := testutil.Logger(t)
	s := New(gateway.New(fake, gateway.WithLogger(logger)), Options{
		Logger:   logger,
		OnChange: rec.push,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

// readySync returns a synchronizer signed in as alice with two todos.
func readySync(t *testing.T) (*TodoSync, *testutil.FakeBackend, *recorder) {
	t.Helper()
	fake := testutil.NewFakeBackend(alice)
	seedTwo(fake)
	s, rec := newSync(t, fake)
	require.NoError(t, s.SetIdentity(context.Background(), alice))
	return s, fake, rec
}

func ids(todos []model.Todo) []string {
	out := make([]string, len(todos))
	for i, t := range todos {
		out[i] = t.ID
	}
	return out
}

func TestTodoSync_StartsIdle(t *testing.T) {
	fake := testutil.NewFakeBackend(nil)
	s, _ := newSync(t, fake)

	st := s.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Empty(t, st.Todos)
	assert.False(t, st.Loading)
	assert.Nil(t, st.Identity)

	require.NoError(t, s.SetIdentity(context.Background(), nil))
	require.NoError(t, s.Refresh(context.Background()))
	assert.Empty(t, fake.Calls(), "no network activity without an identity")
}

func TestTodoSync_LoadsTodos(t *testing.T) {
	s, fake, _ := readySync(t)

	st := s.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
	require.Len(t, st.Todos, 2)
	assert.Equal(t, "Test Todo 1", st.Todos[0].Text)
	assert.False(t, st.Todos[0].Completed)
	assert.Equal(t, "Test Todo 2", st.Todos[1].Text)
	assert.True(t, st.Todos[1].Completed)
	require.NotNil(t, st.Identity)
	assert.Equal(t, "alice", st.Identity.ID)

	assert.Equal(t, 1, fake.OpenSubscriptions())
	assert.Less(t, indexOf(fake.Calls(), "subscribe"), indexOf(fake.Calls(), "select"),
		"subscription opens before the initial fetch")
}

func indexOf(calls []string, op string) int {
	for i, c := range calls {
		if c == op {
			return i
		}
	}
	return -1
}

func TestTodoSync_FetchFailure(t *testing.T) {
	fake := testutil.NewFakeBackend(alice)
	seedTwo(fake)
	fake.SetError("select", errors.New("Failed to fetch todos"))
	s, _ := newSync(t, fake)

	err := s.SetIdentity(context.Background(), alice)
	require.Error(t, err)

	st := s.State()
	assert.Equal(t, PhaseError, st.Phase)
	assert.Empty(t, st.Todos)
	assert.False(t, st.Loading)
	assert.Equal(t, "Failed to fetch todos", st.Error)

	// Refresh recovers once the backend does.
	fake.SetError("select", nil)
	require.NoError(t, s.Refresh(context.Background()))
	st = s.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Len(t, st.Todos, 2)
	assert.Empty(t, st.Error)
	assert.Equal(t, 1, fake.CountCalls("subscribe"), "refresh does not resubscribe")
}

func TestTodoSync_FetchFailureClearsExistingList(t *testing.T) {
	s, fake, _ := readySync(t)

	fake.SetError("select", errors.New("boom"))
	require.Error(t, s.Refresh(context.Background()))
	assert.Empty(t, s.State().Todos)
}

func TestTodoSync_AddPrepends(t *testing.T) {
	s, _, _ := readySync(t)

	todo, err := s.Add(context.Background(), "New Todo")
	require.NoError(t, err)
	assert.Equal(t, "New Todo", todo.Text)

	st := s.State()
	assert.Equal(t, []string{todo.ID, "1", "2"}, ids(st.Todos))
}

func TestTodoSync_AddWhitespaceIsRejectedLocally(t *testing.T) {
	s, fake, rec := readySync(t)
	before := s.State()
	notifications := rec.count()
	calls := len(fake.Calls())

	_, err := s.Add(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)

	assert.Equal(t, before, s.State())
	assert.Equal(t, notifications, rec.count())
	assert.Len(t, fake.Calls(), calls, "gateway not called")

	_, err = s.Update(context.Background(), "1", model.SetText("\t "))
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Len(t, fake.Calls(), calls)
}

func TestTodoSync_AddTrimsText(t *testing.T) {
	s, _, _ := readySync(t)

	todo, err := s.Add(context.Background(), "  milk  ")
	require.NoError(t, err)
	assert.Equal(t, "milk", todo.Text)
}

func TestTodoSync_UpdateReplacesInPlace(t *testing.T) {
	s, _, _ := readySync(t)

	todo, err := s.Update(context.Background(), "2", model.SetText("Renamed"))
	require.NoError(t, err)
	assert.Equal(t, "Renamed", todo.Text)

	st := s.State()
	assert.Equal(t, []string{"1", "2"}, ids(st.Todos))
	assert.Equal(t, "Renamed", st.Todos[1].Text)
	assert.True(t, st.Todos[1].Completed)
}

func TestTodoSync_UpdateNotFoundOrDenied(t *testing.T) {
	s, _, _ := readySync(t)
	before := s.State().Todos

	_, err := s.Update(context.Background(), "999", model.SetText("x"))
	require.ErrorIs(t, err, gateway.ErrNotFoundOrDenied)
	assert.Equal(t, "Todo not found or access denied", err.Error())

	st := s.State()
	assert.Equal(t, before, st.Todos)
	assert.Equal(t, "Todo not found or access denied", st.Error)
}

func TestTodoSync_ToggleRoundTrip(t *testing.T) {
	s, _, _ := readySync(t)
	ctx := context.Background()

	todo, err := s.ToggleCompletion(ctx, "1", false)
	require.NoError(t, err)
	assert.True(t, todo.Completed)
	assert.True(t, s.State().Todos[0].Completed)

	todo, err = s.ToggleCompletion(ctx, "1", true)
	require.NoError(t, err)
	assert.False(t, todo.Completed)
	assert.False(t, s.State().Todos[0].Completed)
}

func TestTodoSync_DeleteFailureKeepsItem(t *testing.T) {
	s, fake, _ := readySync(t)
	ctx := context.Background()

	fake.SetError("delete", errors.New("connection reset"))
	err := s.Delete(ctx, "1")
	require.Error(t, err)

	st := s.State()
	assert.Equal(t, []string{"1", "2"}, ids(st.Todos))
	assert.Equal(t, "failed to delete todo: connection reset", st.Error)

	// The next operation clears the error at its start.
	fake.SetError("delete", nil)
	require.NoError(t, s.Delete(ctx, "1"))
	st = s.State()
	assert.Equal(t, []string{"2"}, ids(st.Todos))
	assert.Empty(t, st.Error)
}

func TestTodoSync_ErrorStaysUntilNextOperation(t *testing.T) {
	s, fake, _ := readySync(t)
	ctx := context.Background()

	fake.SetError("insert", errors.New("insert failed"))
	_, err := s.Add(ctx, "x")
	require.Error(t, err)
	assert.Equal(t, "insert failed", s.State().Error)

	// A realtime event does not clear it.
	fake.Emit(model.ChangeEvent{
		Kind: model.ChangeInsert,
		New:  &model.Todo{ID: "9", Text: "remote", UserID: "alice"},
	})
	assert.Equal(t, "insert failed", s.State().Error)

	// A failing operation replaces it.
	fake.SetError("insert", nil)
	fake.SetError("update", errors.New("update failed"))
	_, err = s.Update(ctx, "1", model.SetCompleted(true))
	require.Error(t, err)
	assert.Equal(t, "update failed", s.State().Error)
}

func TestTodoSync_RealtimeDelete(t *testing.T) {
	s, fake, rec := readySync(t)

	notifications := rec.count()
	fake.Emit(model.ChangeEvent{
		Kind: model.ChangeDelete,
		Old:  &model.Todo{ID: "1", UserID: "bob"},
	})
	assert.Equal(t, []string{"1", "2"}, ids(s.State().Todos))
	assert.Equal(t, notifications, rec.count(), "foreign event causes no notification")

	fake.Emit(model.ChangeEvent{
		Kind: model.ChangeDelete,
		Old:  &model.Todo{ID: "1", UserID: "alice"},
	})
	assert.Equal(t, []string{"2"}, ids(s.State().Todos))
	assert.Equal(t, notifications+1, rec.count())
}

func TestTodoSync_RealtimeInsertAndUpdate(t *testing.T) {
	s, fake, _ := readySync(t)

	fake.Emit(model.ChangeEvent{
		Kind: model.ChangeInsert,
		New:  &model.Todo{ID: "3", Text: "from elsewhere", UserID: "alice"},
	})
	assert.Equal(t, []string{"3", "1", "2"}, ids(s.State().Todos))

	fake.Emit(model.ChangeEvent{
		Kind: model.ChangeUpdate,
		New:  &model.Todo{ID: "2", Text: "edited elsewhere", Completed: true, UserID: "alice"},
		Old:  &model.Todo{ID: "2", Text: "Test Todo 2", Completed: true, UserID: "alice"},
	})
	st := s.State()
	assert.Equal(t, []string{"3", "1", "2"}, ids(st.Todos))
	assert.Equal(t, "edited elsewhere", st.Todos[2].Text)

	// Malformed events are ignored.
	fake.Emit(model.ChangeEvent{Kind: model.ChangeInsert})
	fake.Emit(model.ChangeEvent{Kind: model.ChangeDelete})
	assert.Len(t, s.State().Todos, 3)
}

func TestTodoSync_EchoDoesNotDuplicate(t *testing.T) {
	s, fake, _ := readySync(t)
	ctx := context.Background()

	todo, err := s.Add(ctx, "echoed")
	require.NoError(t, err)
	fake.Emit(model.ChangeEvent{Kind: model.ChangeInsert, New: &todo})
	fake.Emit(model.ChangeEvent{Kind: model.ChangeInsert, New: &todo})

	st := s.State()
	assert.Equal(t, []string{todo.ID, "1", "2"}, ids(st.Todos))
}

func TestTodoSync_EchoBeforeDirectResult(t *testing.T) {
	s, fake, _ := readySync(t)

	// The fake assigns new-1 to the first insert; deliver its echo while
	// the insert call is still in flight.
	fake.InsertHook = func(context.Context) {
		fake.Emit(model.ChangeEvent{Kind: model.ChangeInsert, New: &model.Todo{
			ID:        "new-1",
			Text:      "racy",
			UserID:    "alice",
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		}})
	}

	todo, err := s.Add(context.Background(), "racy")
	require.NoError(t, err)
	assert.Equal(t, "new-1", todo.ID)
	assert.Equal(t, []string{"new-1", "1", "2"}, ids(s.State().Todos))
}

func TestTodoSync_LateUpdateEchoDoesNotResurrect(t *testing.T) {
	s, fake, _ := readySync(t)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "1"))
	fake.Emit(model.ChangeEvent{
		Kind: model.ChangeUpdate,
		New:  &model.Todo{ID: "1", Text: "Test Todo 1", Completed: true, UserID: "alice"},
	})
	assert.Equal(t, []string{"2"}, ids(s.State().Todos))
}

func TestTodoSync_SignOutClearsAndUnsubscribes(t *testing.T) {
	ctx := context.Background()

	t.Run("from ready", func(t *testing.T) {
		s, fake, _ := readySync(t)
		require.NoError(t, s.SetIdentity(ctx, nil))

		st := s.State()
		assert.Equal(t, PhaseIdle, st.Phase)
		assert.Empty(t, st.Todos)
		assert.Nil(t, st.Identity)
		assert.Zero(t, fake.OpenSubscriptions())

		fake.Emit(model.ChangeEvent{
			Kind: model.ChangeInsert,
			New:  &model.Todo{ID: "late", UserID: "alice"},
		})
		assert.Empty(t, s.State().Todos)
	})

	t.Run("from error", func(t *testing.T) {
		fake := testutil.NewFakeBackend(alice)
		fake.SetError("select", errors.New("down"))
		s, _ := newSync(t, fake)
		require.Error(t, s.SetIdentity(ctx, alice))

		require.NoError(t, s.SetIdentity(ctx, nil))
		st := s.State()
		assert.Equal(t, PhaseIdle, st.Phase)
		assert.Empty(t, st.Todos)
		assert.Empty(t, st.Error)
		assert.Zero(t, fake.OpenSubscriptions())
	})
}

func TestTodoSync_SignOutDuringLoadDiscardsFetch(t *testing.T) {
	fake := testutil.NewFakeBackend(alice)
	seedTwo(fake)
	release := make(chan struct{})
	entered := make(chan struct{})
	fake.SelectHook = func(context.Context) {
		close(entered)
		<-release
	}
	s, _ := newSync(t, fake)

	done := make(chan error, 1)
	go func() { done <- s.SetIdentity(context.Background(), alice) }()
	<-entered
	assert.True(t, s.State().Loading)

	require.NoError(t, s.SetIdentity(context.Background(), nil))
	close(release)
	require.NoError(t, <-done)

	st := s.State()
	assert.Equal(t, PhaseIdle, st.Phase)
	assert.Empty(t, st.Todos, "stale fetch result is discarded")
	assert.Zero(t, fake.OpenSubscriptions())
}

func TestTodoSync_SwitchingIdentity(t *testing.T) {
	s, fake, _ := readySync(t)
	fake.Seed(model.Todo{ID: "b1", Text: "bob's", UserID: "bob"})
	fake.SetUser(bob)

	require.NoError(t, s.SetIdentity(context.Background(), bob))
	assert.Equal(t, 1, fake.OpenSubscriptions(), "one subscription per identity")
	assert.Equal(t, 2, fake.CountCalls("subscribe"))

	st := s.State()
	assert.Equal(t, "bob", st.Identity.ID)
	assert.Equal(t, []string{"b1"}, ids(st.Todos))

	fake.Emit(model.ChangeEvent{
		Kind: model.ChangeInsert,
		New:  &model.Todo{ID: "a9", UserID: "alice"},
	})
	assert.Equal(t, []string{"b1"}, ids(s.State().Todos))
}

func TestTodoSync_SameIdentityIsNoOp(t *testing.T) {
	s, fake, _ := readySync(t)
	calls := len(fake.Calls())

	again := *alice
	require.NoError(t, s.SetIdentity(context.Background(), &again))
	assert.Len(t, fake.Calls(), calls)
}

func TestTodoSync_SubscribeFailureStillLoads(t *testing.T) {
	fake := testutil.NewFakeBackend(alice)
	seedTwo(fake)
	fake.SetError("subscribe", errors.New("realtime unavailable"))
	s, _ := newSync(t, fake)

	require.NoError(t, s.SetIdentity(context.Background(), alice))
	st := s.State()
	assert.Equal(t, PhaseReady, st.Phase)
	assert.Len(t, st.Todos, 2)
}

func TestTodoSync_MutatorsWithoutIdentity(t *testing.T) {
	fake := testutil.NewFakeBackend(nil)
	s, _ := newSync(t, fake)

	_, err := s.Add(context.Background(), "x")
	assert.ErrorIs(t, err, gateway.ErrNotAuthenticated)
	assert.ErrorIs(t, s.Delete(context.Background(), "1"), gateway.ErrNotAuthenticated)
	assert.Empty(t, fake.Calls())
}

func TestTodoSync_CloseStopsEverything(t *testing.T) {
	s, fake, rec := readySync(t)

	require.NoError(t, s.Close())
	assert.Zero(t, fake.OpenSubscriptions())

	notifications := rec.count()
	fake.Emit(model.ChangeEvent{
		Kind: model.ChangeDelete,
		Old:  &model.Todo{ID: "1", UserID: "alice"},
	})
	assert.Len(t, s.State().Todos, 2)
	assert.Equal(t, notifications, rec.count())

	require.NoError(t, s.Close())
}

func TestTodoSync_NotificationsTrackState(t *testing.T) {
	s, _, rec := readySync(t)

	last := rec.last()
	assert.Equal(t, PhaseReady, last.Phase)
	assert.Len(t, last.Todos, 2)

	_, err := s.Add(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, s.State(), rec.last())
}

func TestUpdates_KeepsLatestState(t *testing.T) {
	u := NewUpdates()
	u.Push(State{Phase: PhaseLoading})
	u.Push(State{Phase: PhaseReady})

	msg := u.Wait()()
	sm, ok := msg.(StateMsg)
	require.True(t, ok)
	assert.Equal(t, PhaseReady, sm.State.Phase)
}
