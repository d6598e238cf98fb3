// Package session tracks who is signed in. It mirrors the backend's auth
// state and tells listeners when the signed-in user changes.
package session

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/gateway"
	"github.com/nhle/todo-sync/internal/model"
)

// IdentityListener is called with the new user, or nil after sign-out.
type IdentityListener func(identity *model.Identity)

// Provider owns the current user and session.
type Provider struct {
	auth   backend.Auth
	logger *log.Logger

	mu          sync.Mutex
	user        *model.Identity
	session     *model.Session
	loading     bool
	listeners   []listenerEntry
	nextID      int
	unsubscribe func()

	// notified is the user listeners last heard about. While notifying is
	// set one goroutine is running listeners and delivers every later
	// change itself.
	notified  *model.Identity
	notifying bool
}

type listenerEntry struct {
	id int
	fn IdentityListener
}

// New creates a provider over auth. It reports Loading until Start has
// read the initial session.
func New(auth backend.Auth, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.Default()
	}
	return &Provider{auth: auth, logger: logger, loading: true}
}

// Start registers for auth state changes and then reads the current
// session.
func (p *Provider) Start(ctx context.Context) error {
	if p.auth == nil {
		p.apply(nil)
		return gateway.ErrNoBackend
	}

	unsubscribe := p.auth.OnAuthStateChange(func(event model.AuthEvent, session *model.Session) {
		p.logger.Debug("auth state changed", "event", event)
		if event == model.AuthEventPasswordRecovery {
			return
		}
		p.apply(session)
	})
	p.mu.Lock()
	p.unsubscribe = unsubscribe
	p.mu.Unlock()

	session, err := p.auth.GetSession(ctx)
	if err != nil {
		p.logger.Error("reading session", "err", err)
		p.apply(nil)
		return err
	}
	p.apply(session)
	return nil
}

// apply stores session, ends loading and notifies listeners when the
// user ID changed. Listeners run without any lock held and may cause
// further auth events, such as a sign-out after the server rejects the
// token. Such events only update the state here; the goroutine already
// notifying delivers the latest user once the current round returns.
func (p *Provider) apply(session *model.Session) {
	p.mu.Lock()
	p.loading = false
	if session == nil {
		p.user = nil
		p.session = nil
	} else {
		s := *session
		u := s.User
		p.session = &s
		p.user = &u
	}
	if p.notifying {
		p.mu.Unlock()
		return
	}
	p.notifying = true

	for !model.SameUser(p.notified, p.user) {
		var user *model.Identity
		if p.user != nil {
			u, n := *p.user, *p.user
			user = &u
			p.notified = &n
		} else {
			p.notified = nil
		}
		listeners := make([]IdentityListener, len(p.listeners))
		for i, l := range p.listeners {
			listeners[i] = l.fn
		}
		p.mu.Unlock()

		for _, fn := range listeners {
			fn(user)
		}

		p.mu.Lock()
	}
	p.notifying = false
	p.mu.Unlock()
}

// OnIdentityChange registers fn and returns a function that removes it.
func (p *Provider) OnIdentityChange(fn IdentityListener) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, listenerEntry{id: id, fn: fn})
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

// User returns the signed-in user, or nil.
func (p *Provider) User() *model.Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.user == nil {
		return nil
	}
	u := *p.user
	return &u
}

// Session returns the current session, or nil.
func (p *Provider) Session() *model.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return nil
	}
	s := *p.session
	return &s
}

// Loading reports whether the initial session is still being read.
func (p *Provider) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// SignUp registers an account. The backend signs it in and the provider
// picks the new session up from the auth state change.
func (p *Provider) SignUp(ctx context.Context, email, password string) error {
	if p.auth == nil {
		return gateway.ErrNoBackend
	}
	_, err := p.auth.SignUp(ctx, email, password)
	return err
}

// SignIn signs in with email and password.
func (p *Provider) SignIn(ctx context.Context, email, password string) error {
	if p.auth == nil {
		return gateway.ErrNoBackend
	}
	_, err := p.auth.SignInWithPassword(ctx, email, password)
	return err
}

// SignInWithOAuth returns the provider's authorization URL for the user
// to open.
func (p *Provider) SignInWithOAuth(ctx context.Context, provider string) (string, error) {
	if p.auth == nil {
		return "", gateway.ErrNoBackend
	}
	return p.auth.SignInWithOAuth(ctx, provider)
}

// SignOut ends the session.
func (p *Provider) SignOut(ctx context.Context) error {
	if p.auth == nil {
		return gateway.ErrNoBackend
	}
	return p.auth.SignOut(ctx)
}

// ResetPassword asks the backend to mail a reset token.
func (p *Provider) ResetPassword(ctx context.Context, email string) error {
	if p.auth == nil {
		return gateway.ErrNoBackend
	}
	return p.auth.ResetPasswordForEmail(ctx, email)
}

// UpdatePassword redeems a mailed reset token.
func (p *Provider) UpdatePassword(ctx context.Context, resetToken, newPassword string) error {
	if p.auth == nil {
		return gateway.ErrNoBackend
	}
	return p.auth.UpdatePassword(ctx, resetToken, newPassword)
}

// Close stops following auth state changes.
func (p *Provider) Close() {
	p.mu.Lock()
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
