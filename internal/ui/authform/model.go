// Package authform is the sign-in screen. It collects credentials with a
// huh form, validates them and hands a SubmitMsg to the app, which calls
// the session provider and reports back through Done.
package authform

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/todo-sync/internal/session"
	"github.com/nhle/todo-sync/internal/theme"
)

// Mode is the action the form submits.
type Mode string

const (
	ModeSignIn Mode = "signin"
	ModeSignUp Mode = "signup"
	ModeReset  Mode = "reset"
	ModeOAuth  Mode = "oauth"
)

// SubmitMsg carries a validated form to the app.
type SubmitMsg struct {
	Mode     Mode
	Email    string
	Password string
	Provider string
}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	mode     Mode
	email    string
	password string
	confirm  string
	provider string
}

// Model is the Bubble Tea model for the auth screen.
type Model struct {
	form      *huh.Form
	fb        *formBindings
	providers []string
	err       string
	notice    string
	busy      bool
	width     int
	height    int
}

// New creates the auth screen. providers are the configured OAuth
// provider names; the OAuth option is hidden when there are none.
func New(providers []string, width, height int) Model {
	return Model{
		fb:        &formBindings{mode: ModeSignIn},
		providers: providers,
		width:     width,
		height:    height,
	}
}

// Start (re)builds the form. The email and mode survive; passwords are
// cleared.
func (m *Model) Start() tea.Cmd {
	m.fb.password = ""
	m.fb.confirm = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// Done reports the outcome of a submitted form.
func (m *Model) Done(mode Mode, err error) tea.Cmd {
	m.busy = false
	if err != nil {
		m.err = failureMessage(mode, m.fb.provider, err)
		return m.Start()
	}
	switch mode {
	case ModeSignUp:
		m.notice = "Registration successful!"
	case ModeReset:
		m.notice = "Check your email for a password reset token."
		m.fb.mode = ModeSignIn
	}
	return m.Start()
}

// SetNotice shows msg above the form.
func (m *Model) SetNotice(msg string) {
	m.notice = msg
}

// Reset clears messages, e.g. after a sign-out.
func (m *Model) Reset() tea.Cmd {
	m.err = ""
	m.notice = ""
	m.busy = false
	return m.Start()
}

// Busy reports whether a submitted form is waiting for Done.
func (m Model) Busy() bool {
	return m.busy
}

// Update handles messages for the auth screen.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil || m.busy {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m.handleSubmit()
	case huh.StateAborted:
		return m, m.Start()
	}
	return m, cmd
}

func (m Model) handleSubmit() (Model, tea.Cmd) {
	sub, err := m.fb.submission()
	if err != nil {
		m.err = err.Error()
		m.notice = ""
		return m, m.Start()
	}
	m.err = ""
	m.notice = ""
	m.busy = true
	return m, func() tea.Msg { return sub }
}

// submission validates the bound values for the chosen mode.
func (fb *formBindings) submission() (SubmitMsg, error) {
	sub := SubmitMsg{
		Mode:     fb.mode,
		Email:    strings.TrimSpace(fb.email),
		Password: fb.password,
		Provider: fb.provider,
	}

	var err error
	switch fb.mode {
	case ModeSignUp:
		err = session.ValidateSignUp(fb.email, fb.password, fb.confirm)
	case ModeSignIn:
		err = session.ValidateSignIn(fb.email, fb.password)
	case ModeReset:
		err = session.ValidateReset(fb.email)
	}
	return sub, err
}

// failureMessage is the backend's message, or a generic one when the
// backend gave none.
func failureMessage(mode Mode, provider string, err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	switch mode {
	case ModeSignUp:
		return "Failed to sign up"
	case ModeOAuth:
		return "Failed to sign in with " + provider
	case ModeReset:
		return "Failed to send reset email"
	default:
		return "Failed to sign in"
	}
}

// View renders the auth screen.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Sign in to your todos")

	parts := []string{title}
	if m.notice != "" {
		parts = append(parts, theme.NoticeStyle.Render(m.notice))
	}
	if m.err != "" {
		parts = append(parts, theme.ErrorTextStyle.Render(m.err))
	}
	switch {
	case m.busy:
		parts = append(parts, theme.HelpStyle.Render("Please wait..."))
	case m.form != nil:
		parts = append(parts, m.form.View())
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	if m.form != nil {
		m.form = m.form.WithWidth(m.formWidth())
	}
}

func (m *Model) buildForm() *huh.Form {
	fb := m.fb

	modes := []huh.Option[Mode]{
		huh.NewOption("Sign in", ModeSignIn),
		huh.NewOption("Create an account", ModeSignUp),
		huh.NewOption("Reset password", ModeReset),
	}
	if len(m.providers) > 0 {
		modes = append(modes, huh.NewOption("Continue with a provider", ModeOAuth))
		if fb.provider == "" {
			fb.provider = m.providers[0]
		}
	}

	hasProviders := len(m.providers) > 0
	providers := make([]huh.Option[string], len(m.providers))
	for i, p := range m.providers {
		providers[i] = huh.NewOption(displayName(p), p)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[Mode]().
				Title("What would you like to do?").
				Options(modes...).
				Value(&fb.mode),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("you@example.com").
				Value(&fb.email),
		).WithHideFunc(func() bool { return fb.mode == ModeOAuth }),
		huh.NewGroup(
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&fb.password),
		).WithHideFunc(func() bool { return fb.mode != ModeSignIn && fb.mode != ModeSignUp }),
		huh.NewGroup(
			huh.NewInput().
				Title("Confirm password").
				EchoMode(huh.EchoModePassword).
				Value(&fb.confirm),
		).WithHideFunc(func() bool { return fb.mode != ModeSignUp }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Provider").
				Options(providers...).
				Value(&fb.provider),
		).WithHideFunc(func() bool { return fb.mode != ModeOAuth || !hasProviders }),
	).WithWidth(m.formWidth()).WithShowHelp(true)
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}

func displayName(provider string) string {
	if provider == "" {
		return provider
	}
	return strings.ToUpper(provider[:1]) + provider[1:]
}
