// Package local implements backend.Client in process on top of the
// embedded BaaS service. Realtime subscriptions receive every committed
// change unfiltered, like a raw table channel.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nhle/todo-sync/internal/baas"
	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/credential"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/store"
)

// Client is an in-process backend.Client.
type Client struct {
	svc    *baas.Service
	creds  credential.Store
	logger *log.Logger

	mu      sync.RWMutex
	session *model.Session

	listeners backend.AuthListeners

	subsMu sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ backend.Client = (*Client)(nil)

// New creates a client over svc. A session token previously saved in
// creds is restored when it is still valid. A nil creds keeps the
// session in memory only.
func New(ctx context.Context, svc *baas.Service, creds credential.Store, logger *log.Logger) *Client {
	if creds == nil {
		creds = credential.NewMemoryStore()
	}
	if logger == nil {
		logger = log.Default()
	}
	c := &Client{
		svc:    svc,
		creds:  creds,
		logger: logger,
		subs:   make(map[*subscription]struct{}),
	}
	c.restore(ctx)
	return c
}

func (c *Client) restore(ctx context.Context) {
	token, err := c.creds.Get(credential.KeyAccessToken)
	if err != nil {
		if !errors.Is(err, credential.ErrNotFound) {
			c.logger.Warn("reading saved session", "err", err)
		}
		return
	}
	session, err := c.svc.Session(ctx, token)
	if err != nil {
		c.logger.Debug("saved session no longer valid", "err", err)
		_ = c.creds.Delete(credential.KeyAccessToken)
		return
	}
	c.session = session
}

// Auth returns the auth module.
func (c *Client) Auth() backend.Auth { return (*auth)(c) }

// Todos returns the todos table.
func (c *Client) Todos() backend.Todos { return (*todos)(c) }

// Realtime returns the realtime module.
func (c *Client) Realtime() backend.Realtime { return (*realtime)(c) }

// Close ends every open subscription.
func (c *Client) Close() error {
	c.subsMu.Lock()
	c.closed = true
	subs := make([]*subscription, 0, len(c.subs))
	for s := range c.subs {
		subs = append(subs, s)
	}
	c.subsMu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	return nil
}

// currentSession returns the live session, dropping it once expired.
func (c *Client) currentSession(ctx context.Context) (*model.Session, error) {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == nil {
		return nil, nil
	}

	fresh, err := c.svc.Session(ctx, session.AccessToken)
	if errors.Is(err, backend.ErrSessionMissing) {
		c.expire(session)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// setSession swaps the session, persists its token and notifies auth
// listeners.
func (c *Client) setSession(session *model.Session, event model.AuthEvent) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	if session != nil {
		if err := c.creds.Set(credential.KeyAccessToken, session.AccessToken); err != nil {
			c.logger.Warn("saving session", "err", err)
		}
	} else if err := c.creds.Delete(credential.KeyAccessToken); err != nil {
		c.logger.Warn("removing saved session", "err", err)
	}

	c.listeners.Emit(event, session)
}

// expire drops session if it is still the current one.
func (c *Client) expire(session *model.Session) {
	c.mu.RLock()
	current := c.session
	c.mu.RUnlock()
	if current != session {
		return
	}
	c.logger.Info("session expired", "user_id", session.User.ID)
	c.setSession(nil, model.AuthEventSignedOut)
}

// actorID returns the signed-in user's ID for row-level security.
func (c *Client) actorID(ctx context.Context) (string, error) {
	session, err := c.currentSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", backend.ErrSessionMissing
	}
	return session.User.ID, nil
}

type auth Client

func (a *auth) client() *Client { return (*Client)(a) }

func (a *auth) GetUser(ctx context.Context) (*model.Identity, error) {
	session, err := a.client().currentSession(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	user := session.User
	return &user, nil
}

func (a *auth) GetSession(ctx context.Context) (*model.Session, error) {
	return a.client().currentSession(ctx)
}

func (a *auth) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := a.svc.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.client().setSession(session, model.AuthEventSignedIn)
	return session, nil
}

func (a *auth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := a.svc.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.client().setSession(session, model.AuthEventSignedIn)
	return session, nil
}

func (a *auth) SignInWithOAuth(_ context.Context, provider string) (string, error) {
	return a.svc.AuthorizeURL(provider, uuid.New().String())
}

func (a *auth) SignOut(ctx context.Context) error {
	a.mu.RLock()
	session := a.session
	a.mu.RUnlock()

	if session != nil {
		if err := a.svc.SignOut(ctx, session.AccessToken); err != nil {
			return fmt.Errorf("signing out: %w", err)
		}
	}
	a.client().setSession(nil, model.AuthEventSignedOut)
	return nil
}

func (a *auth) ResetPasswordForEmail(ctx context.Context, email string) error {
	return a.svc.ResetPasswordForEmail(ctx, email)
}

func (a *auth) UpdatePassword(ctx context.Context, resetToken, newPassword string) error {
	if err := a.svc.UpdatePassword(ctx, resetToken, newPassword); err != nil {
		return err
	}
	a.listeners.Emit(model.AuthEventPasswordRecovery, nil)
	return nil
}

func (a *auth) OnAuthStateChange(handler backend.AuthStateHandler) func() {
	return a.listeners.Add(handler)
}

type todos Client

func (t *todos) Select(ctx context.Context, q backend.Query) ([]model.Todo, error) {
	actor, err := (*Client)(t).actorID(ctx)
	if err != nil {
		return nil, err
	}
	return t.svc.Select(ctx, actor, q)
}

func (t *todos) Insert(ctx context.Context, todo model.Todo) (model.Todo, error) {
	actor, err := (*Client)(t).actorID(ctx)
	if err != nil {
		return model.Todo{}, err
	}
	return t.svc.Insert(ctx, actor, todo)
}

func (t *todos) Update(ctx context.Context, where backend.Where, patch model.TodoPatch) ([]model.Todo, error) {
	actor, err := (*Client)(t).actorID(ctx)
	if err != nil {
		return nil, err
	}
	return t.svc.Update(ctx, actor, where, patch)
}

func (t *todos) Delete(ctx context.Context, where backend.Where) error {
	actor, err := (*Client)(t).actorID(ctx)
	if err != nil {
		return err
	}
	_, err = t.svc.Delete(ctx, actor, where)
	return err
}

type realtime Client

func (r *realtime) Subscribe(_ context.Context, table string, handler backend.ChangeHandler) (backend.Subscription, error) {
	if table != model.TodosTable {
		return nil, fmt.Errorf("subscribing to %q: unknown table", table)
	}

	c := (*Client)(r)
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if c.closed {
		return nil, errors.New("client closed")
	}

	s := &subscription{
		client:     c,
		feed:       c.svc.Subscribe(0),
		dispatcher: backend.NewDispatcher(handler),
		done:       make(chan struct{}),
	}
	c.subs[s] = struct{}{}
	go s.run()
	return s, nil
}

// subscription pumps feed events into a dispatcher on its own goroutine.
type subscription struct {
	client     *Client
	feed       *store.Subscription
	dispatcher *backend.Dispatcher
	done       chan struct{}
	once       sync.Once
}

func (s *subscription) run() {
	defer close(s.done)
	for evt := range s.feed.Events() {
		s.dispatcher.Dispatch(evt)
	}
}

// Close stops delivery. It must not be called from the handler.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.dispatcher.Close()
		s.feed.Close()
		<-s.done

		s.client.subsMu.Lock()
		delete(s.client.subs, s)
		s.client.subsMu.Unlock()
	})
	return nil
}
