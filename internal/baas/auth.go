// Package baas is the embedded backend-as-a-service: password and OAuth
// authentication, session tokens, password resets and the owner-scoped
// todos table with its change feed. It is served in process by
// backend/local and over HTTP by internal/server.
package baas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/mailer"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/store"
)

// Sender delivers mails. *mailer.Mailer implements it.
type Sender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// Service implements the BaaS operations on top of a store.Store.
type Service struct {
	store  store.Store
	mail   Sender
	cfg    model.AuthConfig
	oauth  map[string]*oauth2.Config
	cost   int
	logger *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMailer sets the sender used for password reset mails.
func WithMailer(m Sender) Option {
	return func(s *Service) { s.mail = m }
}

// WithPasswordCost sets the bcrypt cost used for new password hashes.
func WithPasswordCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithLogger sets the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Service. OAuth providers are built from cfg.OAuth.
func New(st store.Store, cfg model.AuthConfig, opts ...Option) *Service {
	s := &Service{
		store:  st,
		cfg:    cfg,
		oauth:  make(map[string]*oauth2.Config, len(cfg.OAuth)),
		cost:   bcrypt.DefaultCost,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.MinPasswordLength < 1 {
		s.cfg.MinPasswordLength = 6
	}

	for name, p := range cfg.OAuth {
		s.oauth[strings.ToLower(name)] = &oauth2.Config{
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  p.AuthURL,
				TokenURL: p.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      p.Scopes,
		}
	}
	return s
}

// normalizeEmail trims and lower-cases an address for storage and lookup.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) validateCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return backend.Errorf(http.StatusBadRequest, backend.CodeValidation,
			"Unable to validate email address: invalid format")
	}
	return s.validatePassword(password)
}

func (s *Service) validatePassword(password string) error {
	if len(password) < s.cfg.MinPasswordLength {
		return backend.Errorf(http.StatusUnprocessableEntity, backend.CodeWeakPassword,
			fmt.Sprintf("Password should be at least %d characters.", s.cfg.MinPasswordLength))
	}
	return nil
}

// SignUp registers an account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	email = normalizeEmail(email)
	if err := s.validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	u, err := s.store.CreateUser(ctx, email, string(hash))
	if errors.Is(err, store.ErrEmailTaken) {
		return nil, backend.ErrUserExists
	}
	if err != nil {
		return nil, fmt.Errorf("signing up: %w", err)
	}

	s.logger.Info("user signed up", "user_id", u.ID)
	return s.store.CreateSession(ctx, u.ID, s.cfg.SessionTTL)
}

// SignInWithPassword verifies the credentials and issues a session.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	u, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, backend.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}

	if u.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, backend.ErrInvalidCredentials
	}

	s.logger.Debug("user signed in", "user_id", u.ID)
	return s.store.CreateSession(ctx, u.ID, s.cfg.SessionTTL)
}

// Session resolves an access token. Unknown and expired tokens yield
// backend.ErrSessionMissing.
func (s *Service) Session(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, backend.ErrSessionMissing
	}
	session, err := s.store.GetSession(ctx, token)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrSessionExpired) {
		return nil, backend.ErrSessionMissing
	}
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}
	return session, nil
}

// SignOut revokes an access token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// ResetPasswordForEmail mails a reset token to email. Unknown addresses
// succeed without sending anything so that accounts cannot be probed.
func (s *Service) ResetPasswordForEmail(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return backend.Errorf(http.StatusBadRequest, backend.CodeValidation,
			"Unable to validate email address: invalid format")
	}

	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Debug("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("looking up user for reset: %w", err)
	}

	token, err := s.store.CreatePasswordReset(ctx, u.ID, s.cfg.ResetTTL)
	if err != nil {
		return err
	}

	if s.mail == nil {
		s.logger.Warn("no mailer configured, password reset mail not sent", "user_id", u.ID)
		return nil
	}
	return s.mail.Send(ctx, mailer.Message{
		To:      u.Email,
		Subject: "Reset your password",
		Body:    s.resetBody(token),
	})
}

func (s *Service) resetBody(token string) string {
	var b strings.Builder
	b.WriteString("Someone asked to reset the password of your todo-sync account.\n\n")
	if s.cfg.RedirectURL != "" {
		link := s.cfg.RedirectURL + "?type=recovery&token=" + url.QueryEscape(token)
		fmt.Fprintf(&b, "Follow this link to choose a new password:\n%s\n\n", link)
	}
	fmt.Fprintf(&b, "Or run:\n  todo auth reset-password --token %s\n\n", token)
	b.WriteString("If you did not ask for this, you can ignore this mail.\n")
	return b.String()
}

// UpdatePassword consumes a reset token and sets a new password.
func (s *Service) UpdatePassword(ctx context.Context, resetToken, newPassword string) error {
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	userID, err := s.store.ConsumePasswordReset(ctx, resetToken)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrSessionExpired) {
		return backend.ErrResetInvalid
	}
	if err != nil {
		return fmt.Errorf("consuming reset token: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.store.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	s.logger.Info("password updated", "user_id", userID)
	return nil
}

// AuthorizeURL returns the consent page URL of an OAuth provider.
func (s *Service) AuthorizeURL(provider, state string) (string, error) {
	cfg, ok := s.oauth[strings.ToLower(provider)]
	if !ok {
		return "", backend.Errorf(http.StatusBadRequest, backend.CodeOAuthProvider,
			fmt.Sprintf("Unsupported provider: provider %s is not enabled", provider))
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}
