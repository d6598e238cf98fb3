package authform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/todo-sync/internal/session"
)

func TestSubmission_Validates(t *testing.T) {
	tests := []struct {
		name string
		fb   formBindings
		want error
	}{
		{"sign in without email", formBindings{mode: ModeSignIn, password: "x"}, session.ErrEmailRequired},
		{"sign in without password", formBindings{mode: ModeSignIn, email: "a@example.com"}, session.ErrPasswordRequired},
		{"sign up mismatch", formBindings{mode: ModeSignUp, email: "a@example.com", password: "secret1", confirm: "secret2"}, session.ErrPasswordMismatch},
		{"sign up short", formBindings{mode: ModeSignUp, email: "a@example.com", password: "abc", confirm: "abc"}, session.ErrPasswordTooShort},
		{"reset without email", formBindings{mode: ModeReset}, session.ErrEmailRequired},
		{"oauth needs nothing", formBindings{mode: ModeOAuth, provider: "github"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fb.submission()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubmission_TrimsEmail(t *testing.T) {
	fb := formBindings{mode: ModeSignUp, email: " a@example.com ", password: "secret1", confirm: "secret1"}
	sub, err := fb.submission()
	require.NoError(t, err)
	assert.Equal(t, SubmitMsg{Mode: ModeSignUp, Email: "a@example.com", Password: "secret1"}, sub)
}

func TestFailureMessage(t *testing.T) {
	assert.Equal(t, "Invalid login credentials",
		failureMessage(ModeSignIn, "", errors.New("Invalid login credentials")))
	assert.Equal(t, "Failed to sign up", failureMessage(ModeSignUp, "", errors.New("")))
	assert.Equal(t, "Failed to sign in with github", failureMessage(ModeOAuth, "github", errors.New("")))
}

func TestModel_Done(t *testing.T) {
	m := New([]string{"github"}, 80, 24)
	m.Start()
	m.fb.email = "alice@example.com"
	m.fb.password = "secret1"
	m.busy = true

	m.Done(ModeSignUp, nil)
	assert.False(t, m.Busy())
	assert.Contains(t, m.View(), "Registration successful!")
	assert.Equal(t, "alice@example.com", m.fb.email, "email survives a rebuild")
	assert.Empty(t, m.fb.password, "passwords do not")

	m.Done(ModeSignIn, errors.New("Invalid login credentials"))
	assert.Contains(t, m.View(), "Invalid login credentials")

	m.fb.mode = ModeReset
	m.Done(ModeReset, nil)
	assert.Equal(t, ModeSignIn, m.fb.mode)

	m.Reset()
	view := m.View()
	assert.NotContains(t, view, "Invalid login credentials")
	assert.NotContains(t, view, "Registration successful!")
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Github", displayName("github"))
	assert.Equal(t, "", displayName(""))
}
