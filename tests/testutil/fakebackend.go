package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/model"
)

// FakeBackend is a scriptable in-memory backend.Client. Rows keep the
// order they were seeded in; inserts are prepended so that Select returns
// newest first. Errors set on the struct are returned by the matching
// operation until cleared. Hooks run at the start of an operation and
// may block to hold a call in flight.
type FakeBackend struct {
	mu sync.Mutex

	user *model.Identity
	rows []model.Todo
	seq  int

	UserErr      error
	SelectErr    error
	InsertErr    error
	UpdateErr    error
	DeleteErr    error
	SubscribeErr error

	SelectHook func(ctx context.Context)
	InsertHook func(ctx context.Context)
	UpdateHook func(ctx context.Context)

	calls     []string
	subs      map[int]*fakeSubscription
	nextSub   int
	listeners backend.AuthListeners
}

var _ backend.Client = (*FakeBackend)(nil)

// NewFakeBackend returns a fake signed in as user (nil for signed out).
func NewFakeBackend(user *model.Identity) *FakeBackend {
	return &FakeBackend{
		user: user,
		subs: make(map[int]*fakeSubscription),
	}
}

// SetUser changes the signed-in user and emits the matching auth event.
func (f *FakeBackend) SetUser(user *model.Identity) {
	f.mu.Lock()
	f.user = user
	f.mu.Unlock()

	if user == nil {
		f.listeners.Emit(model.AuthEventSignedOut, nil)
		return
	}
	f.listeners.Emit(model.AuthEventSignedIn, &model.Session{AccessToken: "token-" + user.ID, User: *user})
}

// Seed replaces the stored rows.
func (f *FakeBackend) Seed(rows ...model.Todo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append([]model.Todo(nil), rows...)
}

// Rows returns a copy of the stored rows.
func (f *FakeBackend) Rows() []model.Todo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Todo(nil), f.rows...)
}

// Calls returns the operations invoked so far, in order.
func (f *FakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CountCalls returns how often op was invoked.
func (f *FakeBackend) CountCalls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

// OpenSubscriptions returns the number of subscriptions not yet closed.
func (f *FakeBackend) OpenSubscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Emit delivers evt synchronously to every open subscription.
func (f *FakeBackend) Emit(evt model.ChangeEvent) {
	f.mu.Lock()
	subs := make([]*fakeSubscription, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.dispatcher.Dispatch(evt)
	}
}

// SetError sets the error returned by op ("select", "insert", "update",
// "delete", "subscribe" or "user").
func (f *FakeBackend) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch op {
	case "select":
		f.SelectErr = err
	case "insert":
		f.InsertErr = err
	case "update":
		f.UpdateErr = err
	case "delete":
		f.DeleteErr = err
	case "subscribe":
		f.SubscribeErr = err
	case "user":
		f.UserErr = err
	default:
		panic("unknown op " + op)
	}
}

func (f *FakeBackend) record(op string) {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
}

func (f *FakeBackend) Auth() backend.Auth         { return fakeAuth{f} }
func (f *FakeBackend) Todos() backend.Todos       { return fakeTodos{f} }
func (f *FakeBackend) Realtime() backend.Realtime { return fakeRealtime{f} }
func (f *FakeBackend) Close() error               { return nil }

type fakeAuth struct{ f *FakeBackend }

func (a fakeAuth) GetUser(context.Context) (*model.Identity, error) {
	a.f.record("user")
	a.f.mu.Lock()
	defer a.f.mu.Unlock()
	if a.f.UserErr != nil {
		return nil, a.f.UserErr
	}
	if a.f.user == nil {
		return nil, nil
	}
	u := *a.f.user
	return &u, nil
}

func (a fakeAuth) GetSession(ctx context.Context) (*model.Session, error) {
	u, err := a.GetUser(ctx)
	if err != nil || u == nil {
		return nil, err
	}
	return &model.Session{AccessToken: "token-" + u.ID, User: *u}, nil
}

func (a fakeAuth) SignUp(_ context.Context, email, _ string) (*model.Session, error) {
	a.f.record("signup")
	user := &model.Identity{ID: "user-" + email, Email: email}
	a.f.SetUser(user)
	return &model.Session{AccessToken: "token-" + user.ID, User: *user}, nil
}

func (a fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	a.f.record("signin")
	return a.SignUp(ctx, email, password)
}

func (a fakeAuth) SignInWithOAuth(_ context.Context, provider string) (string, error) {
	a.f.record("oauth")
	return "https://example.com/authorize?provider=" + provider, nil
}

func (a fakeAuth) SignOut(context.Context) error {
	a.f.record("signout")
	a.f.SetUser(nil)
	return nil
}

func (a fakeAuth) ResetPasswordForEmail(context.Context, string) error {
	a.f.record("reset")
	return nil
}

func (a fakeAuth) UpdatePassword(context.Context, string, string) error {
	a.f.record("update_password")
	return nil
}

func (a fakeAuth) OnAuthStateChange(handler backend.AuthStateHandler) func() {
	return a.f.listeners.Add(handler)
}

type fakeTodos struct{ f *FakeBackend }

func (t fakeTodos) Select(ctx context.Context, q backend.Query) ([]model.Todo, error) {
	t.f.record("select")
	if t.f.SelectHook != nil {
		t.f.SelectHook(ctx)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.f.SelectErr != nil {
		return nil, t.f.SelectErr
	}
	out := []model.Todo{}
	for _, row := range t.f.rows {
		if q.UserID == "" || row.UserID == q.UserID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (t fakeTodos) Insert(ctx context.Context, todo model.Todo) (model.Todo, error) {
	t.f.record("insert")
	if t.f.InsertHook != nil {
		t.f.InsertHook(ctx)
	}

	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.f.InsertErr != nil {
		return model.Todo{}, t.f.InsertErr
	}
	t.f.seq++
	todo.ID = fmt.Sprintf("new-%d", t.f.seq)
	todo.CreatedAt = time.Date(2026, 1, 1, 0, 0, t.f.seq, 0, time.UTC)
	t.f.rows = append([]model.Todo{todo}, t.f.rows...)
	return todo, nil
}

func (t fakeTodos) Update(ctx context.Context, where backend.Where, patch model.TodoPatch) ([]model.Todo, error) {
	t.f.record("update")
	if t.f.UpdateHook != nil {
		t.f.UpdateHook(ctx)
	}

	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.f.UpdateErr != nil {
		return nil, t.f.UpdateErr
	}
	out := []model.Todo{}
	for i, row := range t.f.rows {
		if row.UserID != where.UserID || (where.ID != "" && row.ID != where.ID) {
			continue
		}
		t.f.rows[i] = patch.Apply(row)
		out = append(out, t.f.rows[i])
	}
	return out, nil
}

func (t fakeTodos) Delete(_ context.Context, where backend.Where) error {
	t.f.record("delete")

	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.f.DeleteErr != nil {
		return t.f.DeleteErr
	}
	kept := t.f.rows[:0]
	for _, row := range t.f.rows {
		if row.UserID == where.UserID && (where.ID == "" || row.ID == where.ID) {
			continue
		}
		kept = append(kept, row)
	}
	t.f.rows = kept
	return nil
}

type fakeRealtime struct{ f *FakeBackend }

func (r fakeRealtime) Subscribe(_ context.Context, table string, handler backend.ChangeHandler) (backend.Subscription, error) {
	r.f.record("subscribe")

	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	if r.f.SubscribeErr != nil {
		return nil, r.f.SubscribeErr
	}
	if table != model.TodosTable {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	r.f.nextSub++
	s := &fakeSubscription{
		id:         r.f.nextSub,
		f:          r.f,
		dispatcher: backend.NewDispatcher(handler),
	}
	r.f.subs[s.id] = s
	return s, nil
}

type fakeSubscription struct {
	id         int
	f          *FakeBackend
	dispatcher *backend.Dispatcher
}

func (s *fakeSubscription) Close() error {
	s.dispatcher.Close()
	s.f.mu.Lock()
	delete(s.f.subs, s.id)
	s.f.mu.Unlock()
	return nil
}
