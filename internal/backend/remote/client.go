// Package remote implements backend.Client against a `todo serve`
// endpoint: REST calls for auth and the todos table, a websocket for
// realtime changes. The access token is kept in a credential store so a
// session survives restarts.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/credential"
	"github.com/nhle/todo-sync/internal/model"
)

// Client is an HTTP backend.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	creds      credential.Store
	logger     *log.Logger

	// reconnectDelay is the first wait before a dropped realtime
	// connection is dialed again.
	reconnectDelay time.Duration

	mu      sync.RWMutex
	session *model.Session

	listeners backend.AuthListeners

	subsMu sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

var _ backend.Client = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Its redirect policy is
// overridden.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			copied := *hc
			c.httpClient = &copied
		}
	}
}

// WithMaxRetries sets how often a rate-limited call is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithReconnectDelay sets the first wait before a dropped realtime
// connection is dialed again. Later attempts double it up to 30s.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the server at baseURL. A token saved in creds
// by an earlier session is reused; it is validated on the first GetUser.
// A nil creds keeps the token in memory only.
func New(baseURL string, creds credential.Store, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q", baseURL)
	}
	if creds == nil {
		creds = credential.NewMemoryStore()
	}

	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		maxRetries:     3,
		creds:          creds,
		logger:         log.Default(),
		reconnectDelay: time.Second,
		subs:           make(map[*subscription]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	token, err := creds.Get(credential.KeyAccessToken)
	switch {
	case err == nil:
		c.session = &model.Session{AccessToken: token}
	case !errors.Is(err, credential.ErrNotFound):
		c.logger.Warn("reading saved session", "err", err)
	}
	return c, nil
}

// Auth returns the auth module.
func (c *Client) Auth() backend.Auth { return (*auth)(c) }

// Todos returns the todos table.
func (c *Client) Todos() backend.Todos { return (*todos)(c) }

// Realtime returns the realtime module.
func (c *Client) Realtime() backend.Realtime { return (*realtime)(c) }

// Close ends every open subscription and drops idle connections.
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
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
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

// expire drops the session holding token if it is still current.
func (c *Client) expire(token string) {
	if token == "" || c.token() != token {
		return
	}
	c.logger.Info("session rejected by server")
	c.setSession(nil, model.AuthEventSignedOut)
}

type auth Client

func (a *auth) client() *Client { return (*Client)(a) }

func (a *auth) GetUser(ctx context.Context) (*model.Identity, error) {
	c := a.client()
	token := c.token()
	if token == "" {
		return nil, nil
	}

	var user model.Identity
	err := c.do(ctx, request{method: http.MethodGet, path: backend.PathUser, auth: true}, &user)
	if errors.Is(err, backend.ErrSessionMissing) {
		c.expire(token)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.session != nil && c.session.AccessToken == token {
		c.session.User = user
	}
	c.mu.Unlock()
	return &user, nil
}

func (a *auth) GetSession(ctx context.Context) (*model.Session, error) {
	user, err := a.GetUser(ctx)
	if err != nil || user == nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return nil, nil
	}
	session := *a.session
	return &session, nil
}

func (a *auth) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	var session model.Session
	err := a.client().do(ctx, request{
		method: http.MethodPost,
		path:   backend.PathSignUp,
		body:   backend.Credentials{Email: email, Password: password},
	}, &session)
	if err != nil {
		return nil, err
	}
	a.client().setSession(&session, model.AuthEventSignedIn)
	return &session, nil
}

func (a *auth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	var session model.Session
	err := a.client().do(ctx, request{
		method: http.MethodPost,
		path:   backend.PathToken,
		query:  url.Values{"grant_type": {"password"}},
		body:   backend.Credentials{Email: email, Password: password},
	}, &session)
	if err != nil {
		return nil, err
	}
	a.client().setSession(&session, model.AuthEventSignedIn)
	return &session, nil
}

func (a *auth) SignInWithOAuth(ctx context.Context, provider string) (string, error) {
	var location string
	err := a.client().do(ctx, request{
		method: http.MethodGet,
		path:   backend.PathAuthorize,
		query:  url.Values{"provider": {provider}, "state": {uuid.New().String()}},
	}, &location)
	if err != nil {
		return "", err
	}
	if location == "" {
		return "", fmt.Errorf("authorize %s: server returned no redirect", provider)
	}
	return location, nil
}

func (a *auth) SignOut(ctx context.Context) error {
	c := a.client()
	if c.token() != "" {
		err := c.do(ctx, request{method: http.MethodPost, path: backend.PathLogout, auth: true}, nil)
		if err != nil && !errors.Is(err, backend.ErrSessionMissing) {
			return fmt.Errorf("signing out: %w", err)
		}
	}
	c.setSession(nil, model.AuthEventSignedOut)
	return nil
}

func (a *auth) ResetPasswordForEmail(ctx context.Context, email string) error {
	return a.client().do(ctx, request{
		method: http.MethodPost,
		path:   backend.PathRecover,
		body:   backend.RecoverRequest{Email: email},
	}, nil)
}

func (a *auth) UpdatePassword(ctx context.Context, resetToken, newPassword string) error {
	err := a.client().do(ctx, request{
		method: http.MethodPost,
		path:   backend.PathVerify,
		body: backend.VerifyRequest{
			Type:     backend.VerifyTypeRecovery,
			Token:    resetToken,
			Password: newPassword,
		},
	}, nil)
	if err != nil {
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
	query := url.Values{}
	if q.UserID != "" {
		query.Set("user_id", backend.EqFilter(q.UserID))
	}
	if q.NewestFirst {
		query.Set("order", "created_at.desc")
	}

	rows := []model.Todo{}
	err := (*Client)(t).do(ctx, request{
		method: http.MethodGet,
		path:   backend.PathTodos,
		query:  query,
		auth:   true,
	}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *todos) Insert(ctx context.Context, todo model.Todo) (model.Todo, error) {
	var created model.Todo
	err := (*Client)(t).do(ctx, request{
		method: http.MethodPost,
		path:   backend.PathTodos,
		body:   todo,
		auth:   true,
	}, &created)
	if err != nil {
		return model.Todo{}, err
	}
	return created, nil
}

func whereQuery(w backend.Where) url.Values {
	query := url.Values{"user_id": {backend.EqFilter(w.UserID)}}
	if w.ID != "" {
		query.Set("id", backend.EqFilter(w.ID))
	}
	return query
}

func (t *todos) Update(ctx context.Context, where backend.Where, patch model.TodoPatch) ([]model.Todo, error) {
	rows := []model.Todo{}
	err := (*Client)(t).do(ctx, request{
		method: http.MethodPatch,
		path:   backend.PathTodos,
		query:  whereQuery(where),
		body:   patch,
		auth:   true,
	}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (t *todos) Delete(ctx context.Context, where backend.Where) error {
	return (*Client)(t).do(ctx, request{
		method: http.MethodDelete,
		path:   backend.PathTodos,
		query:  whereQuery(where),
		auth:   true,
	}, nil)
}
