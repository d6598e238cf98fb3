// Package sync keeps a local todo list in step with the backend. It loads
// the signed-in user's todos, applies the result of every successful
// mutation right away and merges realtime change events into the same
// list, ignoring events for other users.
package sync

import (
	"context"
	"errors"
	"strings"
	gosync "sync"

	"github.com/charmbracelet/log"

	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/gateway"
	"github.com/nhle/todo-sync/internal/model"
)

// ErrEmptyText is returned for a todo text that is empty after trimming.
var ErrEmptyText = errors.New("todo text must not be empty")

// Phase is the load state of the list.
type Phase int

const (
	PhaseIdle    Phase = iota // no identity
	PhaseLoading              // fetch in flight
	PhaseReady
	PhaseError // last fetch failed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLoading:
		return "loading"
	case PhaseReady:
		return "ready"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State is a snapshot of the synchronizer.
type State struct {
	Phase    Phase
	Todos    []model.Todo
	Loading  bool
	Error    string
	Identity *model.Identity
}

// Gateway is the subset of the remote data gateway the synchronizer uses.
// *gateway.Gateway implements it.
type Gateway interface {
	FetchAll(ctx context.Context) ([]model.Todo, error)
	Add(ctx context.Context, text string) (model.Todo, error)
	Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error)
	Remove(ctx context.Context, id string) error
	ToggleCompletion(ctx context.Context, id string, currentCompleted bool) (model.Todo, error)
	SubscribeToChanges(ctx context.Context, onEvent backend.ChangeHandler) (backend.Subscription, error)
}

// Options configures a TodoSync.
type Options struct {
	Logger *log.Logger

	// OnChange is called after every effective state change, one call at
	// a time and in the order the changes happened. It must not call back
	// into the TodoSync synchronously.
	OnChange func(State)
}

// TodoSync owns the local todo list of one client.
type TodoSync struct {
	gw       Gateway
	logger   *log.Logger
	onChange func(State)

	mu       gosync.Mutex
	identity *model.Identity
	// gen changes with every identity change; work started under an older
	// generation is discarded when it completes.
	gen      uint64
	fetchSeq uint64
	phase    Phase
	list     todoList
	lastErr  string
	sub      backend.Subscription
	closed   bool

	notifyMu gosync.Mutex
}

// New creates a TodoSync in the idle phase.
func New(gw Gateway, opts Options) *TodoSync {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &TodoSync{
		gw:       gw,
		logger:   logger,
		onChange: opts.OnChange,
		list:     newTodoList(),
	}
}

// State returns a snapshot of the current state.
func (s *TodoSync) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *TodoSync) snapshotLocked() State {
	st := State{
		Phase:   s.phase,
		Todos:   s.list.snapshot(),
		Loading: s.phase == PhaseLoading,
		Error:   s.lastErr,
	}
	if s.identity != nil {
		id := *s.identity
		st.Identity = &id
	}
	return st
}

// unlockAndNotify releases s.mu and reports the state it left behind.
// Handing over to notifyMu before unlocking keeps notifications in change
// order.
func (s *TodoSync) unlockAndNotify() {
	if s.onChange == nil {
		s.mu.Unlock()
		return
	}
	st := s.snapshotLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	s.onChange(st)
}

// SetIdentity switches the list to identity. A nil identity clears the
// list and closes the subscription. A new identity opens a change
// subscription and then loads the todos. Setting the current user again
// does nothing.
func (s *TodoSync) SetIdentity(ctx context.Context, identity *model.Identity) error {
	s.mu.Lock()
	if s.closed || model.SameUser(s.identity, identity) {
		s.mu.Unlock()
		return nil
	}

	s.gen++
	gen := s.gen
	s.fetchSeq++
	seq := s.fetchSeq
	old := s.sub
	s.sub = nil
	s.list.reset()
	s.lastErr = ""
	if identity == nil {
		s.identity = nil
		s.phase = PhaseIdle
	} else {
		id := *identity
		s.identity = &id
		s.phase = PhaseLoading
	}
	s.unlockAndNotify()

	if old != nil {
		if err := old.Close(); err != nil {
			s.logger.Warn("closing change subscription", "err", err)
		}
	}
	if identity == nil {
		s.logger.Debug("identity cleared")
		return nil
	}

	s.logger.Debug("identity set", "user_id", identity.ID)
	s.subscribe(ctx, gen)
	return s.fetch(ctx, gen, seq)
}

// subscribe opens the change subscription for generation gen. A failure
// is logged and leaves the list without live updates.
func (s *TodoSync) subscribe(ctx context.Context, gen uint64) {
	sub, err := s.gw.SubscribeToChanges(ctx, func(evt model.ChangeEvent) {
		s.applyEvent(gen, evt)
	})
	if err != nil {
		s.logger.Warn("subscribing to todo changes", "err", err)
		return
	}

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		_ = sub.Close()
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

// Refresh reloads the list. Without an identity it does nothing.
func (s *TodoSync) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.identity == nil {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.fetchSeq++
	seq := s.fetchSeq
	s.phase = PhaseLoading
	s.lastErr = ""
	s.unlockAndNotify()

	return s.fetch(ctx, gen, seq)
}

// fetch loads the list. Only the most recent fetch of the current
// generation may apply its result.
func (s *TodoSync) fetch(ctx context.Context, gen, seq uint64) error {
	todos, err := s.gw.FetchAll(ctx)

	s.mu.Lock()
	if s.closed || s.gen != gen || s.fetchSeq != seq {
		s.mu.Unlock()
		return err
	}
	if err != nil {
		s.list.reset()
		s.phase = PhaseError
		s.lastErr = err.Error()
		s.logger.Error("fetching todos", "err", err)
	} else {
		s.list.replace(ownedBy(todos, s.identity.ID))
		s.phase = PhaseReady
	}
	s.unlockAndNotify()
	return err
}

// ownedBy drops rows not owned by userID.
func ownedBy(todos []model.Todo, userID string) []model.Todo {
	out := make([]model.Todo, 0, len(todos))
	for _, t := range todos {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// applyEvent merges a realtime change of generation gen. Events for other
// users, for an older identity or after Close are dropped without a
// change notification.
func (s *TodoSync) applyEvent(gen uint64, evt model.ChangeEvent) {
	s.mu.Lock()
	if s.closed || s.gen != gen || s.identity == nil {
		s.mu.Unlock()
		return
	}
	owner := evt.Owner()
	if owner == "" || owner != s.identity.ID {
		s.mu.Unlock()
		return
	}

	var changed bool
	switch evt.Kind {
	case model.ChangeInsert:
		changed = s.list.upsertFront(*evt.New)
	case model.ChangeUpdate:
		changed = s.list.update(*evt.New)
	case model.ChangeDelete:
		changed = s.list.remove(evt.Old.ID)
	}
	if !changed {
		s.mu.Unlock()
		return
	}
	s.unlockAndNotify()
}

// begin starts a mutation: it clears the last error and returns the
// current generation. Without an identity it fails without touching the
// network.
func (s *TodoSync) begin() (uint64, error) {
	s.mu.Lock()
	if s.closed || s.identity == nil {
		gen := s.gen
		s.mu.Unlock()
		return gen, gateway.ErrNotAuthenticated
	}
	gen := s.gen
	if s.lastErr == "" {
		s.mu.Unlock()
		return gen, nil
	}
	s.lastErr = ""
	s.unlockAndNotify()
	return gen, nil
}

// fail records err as the last error of generation gen and returns it.
func (s *TodoSync) fail(gen uint64, op string, err error) error {
	s.logger.Error("todo operation failed", "op", op, "err", err)

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return err
	}
	s.lastErr = err.Error()
	s.unlockAndNotify()
	return err
}

// commit applies a successful mutation of generation gen.
func (s *TodoSync) commit(gen uint64, apply func(l *todoList) bool) {
	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		return
	}
	if !apply(&s.list) {
		s.mu.Unlock()
		return
	}
	s.unlockAndNotify()
}

// owns reports whether t belongs to the current identity.
func (s *TodoSync) owns(t model.Todo) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity != nil && t.UserID == s.identity.ID
}

// Add creates a todo and puts it at the top of the list. Whitespace-only
// text is rejected with ErrEmptyText before anything else happens.
func (s *TodoSync) Add(ctx context.Context, text string) (model.Todo, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Todo{}, ErrEmptyText
	}

	gen, err := s.begin()
	if err != nil {
		return model.Todo{}, s.fail(gen, "add", err)
	}

	todo, err := s.gw.Add(ctx, text)
	if err != nil {
		return model.Todo{}, s.fail(gen, "add", err)
	}
	if s.owns(todo) {
		s.commit(gen, func(l *todoList) bool { return l.upsertFront(todo) })
	}
	return todo, nil
}

// Update applies patch to todo id and replaces it in place.
func (s *TodoSync) Update(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	if patch.Text != nil {
		text := strings.TrimSpace(*patch.Text)
		if text == "" {
			return model.Todo{}, ErrEmptyText
		}
		patch.Text = &text
	}

	gen, err := s.begin()
	if err != nil {
		return model.Todo{}, s.fail(gen, "update", err)
	}

	todo, err := s.gw.Update(ctx, id, patch)
	if err != nil {
		return model.Todo{}, s.fail(gen, "update", err)
	}
	s.commit(gen, func(l *todoList) bool { return l.update(todo) })
	return todo, nil
}

// Delete removes todo id. On failure the todo stays in the list.
func (s *TodoSync) Delete(ctx context.Context, id string) error {
	gen, err := s.begin()
	if err != nil {
		return s.fail(gen, "delete", err)
	}

	if err := s.gw.Remove(ctx, id); err != nil {
		return s.fail(gen, "delete", err)
	}
	s.commit(gen, func(l *todoList) bool { return l.remove(id) })
	return nil
}

// ToggleCompletion flips todo id from currentCompleted and replaces it in
// place with the row returned by the backend.
func (s *TodoSync) ToggleCompletion(ctx context.Context, id string, currentCompleted bool) (model.Todo, error) {
	gen, err := s.begin()
	if err != nil {
		return model.Todo{}, s.fail(gen, "toggle", err)
	}

	todo, err := s.gw.ToggleCompletion(ctx, id, currentCompleted)
	if err != nil {
		return model.Todo{}, s.fail(gen, "toggle", err)
	}
	s.commit(gen, func(l *todoList) bool { return l.update(todo) })
	return todo, nil
}

// Close closes the subscription. No event is applied and no operation
// changes the state afterwards.
func (s *TodoSync) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		return sub.Close()
	}
	return nil
}
