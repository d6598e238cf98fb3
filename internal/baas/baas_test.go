package baas_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nhle/todo-sync/internal/baas"
	"github.com/nhle/todo-sync/internal/backend"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/tests/testutil"
)

func newService(t *testing.T, opts ...baas.Option) *baas.Service {
	t.Helper()
	cfg := model.DefaultAppConfig().Auth
	cfg.OAuth = map[string]model.OAuthProviderConfig{
		"GitHub": {
			ClientID: "client-123",
			AuthURL:  "https://github.com/login/oauth/authorize",
			TokenURL: "https://github.com/login/oauth/access_token",
			Scopes:   []string{"user:email"},
		},
	}
	opts = append([]baas.Option{
		baas.WithPasswordCost(bcrypt.MinCost),
		baas.WithLogger(testutil.Logger(t)),
	}, opts...)
	return baas.New(testutil.NewTestStore(t), cfg, opts...)
}

func TestService_SignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	session, err := svc.SignUp(ctx, "  Alice@Example.com ", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", session.User.Email)
	assert.NotEmpty(t, session.AccessToken)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	_, err = svc.SignUp(ctx, "alice@example.com", "another1")
	assert.ErrorIs(t, err, backend.ErrUserExists)
	assert.Equal(t, "User already registered", err.Error())

	signedIn, err := svc.SignInWithPassword(ctx, "ALICE@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, signedIn.User.ID)
	assert.NotEqual(t, session.AccessToken, signedIn.AccessToken)

	_, err = svc.SignInWithPassword(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, backend.ErrInvalidCredentials)
	_, err = svc.SignInWithPassword(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, backend.ErrInvalidCredentials)
}

func TestService_SignUpValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.SignUp(ctx, "", "secret1")
	assert.Error(t, err)

	_, err = svc.SignUp(ctx, "not-an-email", "secret1")
	assert.Error(t, err)

	_, err = svc.SignUp(ctx, "a@example.com", "12345")
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, backend.CodeWeakPassword, be.Code)
	assert.Equal(t, "Password should be at least 6 characters.", be.Message)
}

func TestService_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	session, err := svc.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	got, err := svc.Session(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, session.User, got.User)

	require.NoError(t, svc.SignOut(ctx, session.AccessToken))
	_, err = svc.Session(ctx, session.AccessToken)
	assert.ErrorIs(t, err, backend.ErrSessionMissing)

	_, err = svc.Session(ctx, "")
	assert.ErrorIs(t, err, backend.ErrSessionMissing)
}

func TestService_PasswordReset(t *testing.T) {
	ctx := context.Background()
	mails := &testutil.Outbox{}
	svc := newService(t, baas.WithMailer(mails))

	_, err := svc.SignUp(ctx, "a@example.com", "secret1")
	require.NoError(t, err)

	// Unknown addresses succeed silently.
	require.NoError(t, svc.ResetPasswordForEmail(ctx, "nobody@example.com"))
	assert.Empty(t, mails.Messages())

	require.NoError(t, svc.ResetPasswordForEmail(ctx, "A@example.com"))
	require.Len(t, mails.Messages(), 1)
	assert.Equal(t, "a@example.com", mails.Messages()[0].To)

	token := mails.ResetToken(t)

	err = svc.UpdatePassword(ctx, token, "short")
	assert.Error(t, err)

	require.NoError(t, svc.UpdatePassword(ctx, token, "newsecret"))
	assert.ErrorIs(t, svc.UpdatePassword(ctx, token, "newsecret2"), backend.ErrResetInvalid)

	_, err = svc.SignInWithPassword(ctx, "a@example.com", "secret1")
	assert.ErrorIs(t, err, backend.ErrInvalidCredentials)
	_, err = svc.SignInWithPassword(ctx, "a@example.com", "newsecret")
	assert.NoError(t, err)
}

func TestService_AuthorizeURL(t *testing.T) {
	svc := newService(t)

	raw, err := svc.AuthorizeURL("github", "state-1")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "client-123", u.Query().Get("client_id"))
	assert.Equal(t, "state-1", u.Query().Get("state"))
	assert.Equal(t, "user:email", u.Query().Get("scope"))
	assert.NotEmpty(t, u.Query().Get("redirect_uri"))

	_, err = svc.AuthorizeURL("myspace", "state-1")
	var be *backend.Error
	require.ErrorAs(t, err, &be)
	assert.Equal(t, backend.CodeOAuthProvider, be.Code)
}

func TestService_RowLevelSecurity(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	alice, err := svc.SignUp(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	bob, err := svc.SignUp(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)
	aliceID, bobID := alice.User.ID, bob.User.ID

	todo, err := svc.Insert(ctx, aliceID, model.Todo{Text: "alice's", UserID: aliceID})
	require.NoError(t, err)

	// Inserting on behalf of someone else is rejected.
	_, err = svc.Insert(ctx, bobID, model.Todo{Text: "sneaky", UserID: aliceID})
	assert.ErrorIs(t, err, backend.ErrRowLevelSecurity)

	_, err = svc.Insert(ctx, aliceID, model.Todo{Text: "  ", UserID: aliceID})
	assert.Error(t, err)

	rows, err := svc.Select(ctx, bobID, backend.Query{})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = svc.Select(ctx, bobID, backend.Query{UserID: aliceID})
	require.NoError(t, err)
	assert.Empty(t, rows, "filtering by another owner matches nothing")

	updated, err := svc.Update(ctx, bobID,
		backend.Where{ID: todo.ID, UserID: aliceID}, model.SetCompleted(true))
	require.NoError(t, err)
	assert.Empty(t, updated)

	removed, err := svc.Delete(ctx, bobID, backend.Where{ID: todo.ID, UserID: bobID})
	require.NoError(t, err)
	assert.Empty(t, removed)

	rows, err = svc.Select(ctx, aliceID, backend.Query{UserID: aliceID, NewestFirst: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Completed)

	_, err = svc.Select(ctx, "", backend.Query{})
	assert.ErrorIs(t, err, backend.ErrSessionMissing)
}

func TestService_UpdateRejectsEmptyPatch(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	alice, err := svc.SignUp(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	aliceID := alice.User.ID
	todo, err := svc.Insert(ctx, aliceID, model.Todo{Text: "water plants", UserID: aliceID})
	require.NoError(t, err)

	sub := svc.Subscribe(4)
	defer sub.Close()

	_, err = svc.Update(ctx, aliceID, backend.Where{ID: todo.ID}, model.TodoPatch{})
	var apiErr *backend.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, backend.CodeValidation, apiErr.Code)

	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected change event %v", evt.Kind)
	case <-time.After(50 * time.Millisecond):
	}

	rows, err := svc.Select(ctx, aliceID, backend.Query{UserID: aliceID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, todo.Equal(rows[0]))
}
