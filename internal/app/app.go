// Package app is the root Bubble Tea model. It shows the auth screen while
// nobody is signed in and the todo list otherwise, and runs every backend
// call as a tea.Cmd.
package app

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/nhle/todo-sync/internal/keys"
	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/session"
	appsync "github.com/nhle/todo-sync/internal/sync"
	"github.com/nhle/todo-sync/internal/ui"
	"github.com/nhle/todo-sync/internal/ui/authform"
	helpview "github.com/nhle/todo-sync/internal/ui/help"
	"github.com/nhle/todo-sync/internal/ui/todolist"
)

// Deps are the collaborators of the root model.
type Deps struct {
	Session *session.Provider
	Todos   *appsync.TodoSync
	// Updates must be the OnChange target of Todos.
	Updates *appsync.Updates
	// Providers are the configured OAuth provider names.
	Providers []string
	Logger    *log.Logger
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx      context.Context
	session  *session.Provider
	todos    *appsync.TodoSync
	updates  *appsync.Updates
	logger   *log.Logger
	keys     *keys.KeyMap
	layout   ui.Layout
	list     todolist.Model
	auth     authform.Model
	help     helpview.Model
	identity *model.Identity
	starting bool
	showHelp bool
	status   string
	ready    bool
	authInit tea.Cmd
}

// New creates the root model. ctx bounds every backend call.
func New(ctx context.Context, deps Deps) Model {
	k := keys.DefaultKeyMap()
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	auth := authform.New(deps.Providers, 80, 22)
	authInit := auth.Start()

	return Model{
		ctx:      ctx,
		session:  deps.Session,
		todos:    deps.Todos,
		updates:  deps.Updates,
		logger:   logger,
		keys:     k,
		list:     todolist.New(k, 80, 22),
		auth:     auth,
		help:     helpview.New(k, 80, 22),
		starting: true,
		authInit: authInit,
	}
}

// Bind keeps todos in step with the signed-in user of p. It returns a
// function that undoes the binding.
func Bind(ctx context.Context, p *session.Provider, todos *appsync.TodoSync) func() {
	return p.OnIdentityChange(func(identity *model.Identity) {
		// A failed load is recorded in the synchronizer state.
		_ = todos.SetIdentity(ctx, identity)
	})
}

// Init restores the session and starts listening for list updates.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.list.Init(),
		m.authInit,
		m.startSession(),
		m.updates.Wait(),
	)
}

// Update handles messages and dispatches to the active screen.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		h := m.layout.ContentHeight()
		m.list.SetSize(msg.Width, h)
		m.auth.SetSize(msg.Width, h)
		m.help.SetSize(msg.Width, h)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd

	case sessionStartedMsg:
		m.starting = false
		if msg.err != nil {
			m.status = "Could not restore session: " + msg.err.Error()
		}
		return m, nil

	case appsync.StateMsg:
		wasSignedIn := m.identity != nil
		m.identity = msg.State.Identity
		cmds := []tea.Cmd{m.list.SetState(msg.State), m.updates.Wait()}
		if wasSignedIn && m.identity == nil {
			m.showHelp = false
			cmds = append(cmds, m.auth.Reset())
		}
		return m, tea.Batch(cmds...)

	case authform.SubmitMsg:
		m.status = ""
		return m, m.submitAuth(msg)

	case authResultMsg:
		cmd := m.auth.Done(msg.mode, msg.err)
		if msg.mode == authform.ModeOAuth && msg.err == nil {
			m.auth.SetNotice("Open this URL in your browser to continue:\n" + msg.url)
		}
		return m, cmd

	case signedOutMsg:
		if msg.err != nil {
			m.status = "Sign out failed: " + msg.err.Error()
		}
		return m, nil

	case todolist.AddMsg:
		return m, m.addTodo(msg.Text)

	case todolist.EditMsg:
		return m, m.editTodo(msg.ID, msg.Text)

	case todolist.ToggleMsg:
		return m, m.toggleTodo(msg.ID, msg.Completed)

	case todolist.DeleteMsg:
		return m, m.deleteTodo(msg.ID)

	case todolist.RefreshMsg:
		return m, m.refresh()

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.signedIn() && !m.list.Capturing() {
			switch {
			case m.showHelp && (key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Back)):
				m.showHelp = false
				return m, nil
			case key.Matches(msg, m.keys.Help):
				m.showHelp = true
				return m, nil
			case key.Matches(msg, m.keys.Quit):
				return m, tea.Quit
			case key.Matches(msg, m.keys.SignOut):
				return m, m.signOut()
			}
			if m.showHelp {
				return m, nil
			}
		}
	}

	return m.updateActiveView(msg)
}

// updateActiveView dispatches the message to the current screen.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.signedIn() {
		m.list, cmd = m.list.Update(msg)
	} else {
		m.auth, cmd = m.auth.Update(msg)
	}
	return m, cmd
}

func (m Model) signedIn() bool {
	return m.identity != nil
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready || m.starting {
		return "Loading..."
	}

	user := "signed out"
	if m.identity != nil {
		user = displayUser(m.identity.Email)
	}
	header := m.layout.RenderHeader("Todos", user)

	var content, hints, info string
	switch {
	case !m.signedIn():
		content = m.auth.View()
		hints = "enter next | shift+tab back | ctrl+c quit"
	case m.showHelp:
		content = m.help.View()
		hints = "? close help | esc back"
	default:
		content = m.list.View()
		hints = m.help.Short()
		info = m.list.Summary()
	}
	if m.status != "" {
		info = m.status
	}

	return m.layout.Compose(header, content, m.layout.RenderStatusBar(hints, info))
}

// displayUser shortens an email to its local part.
func displayUser(email string) string {
	if email == "" {
		return "User"
	}
	name, _, _ := strings.Cut(email, "@")
	return name
}
