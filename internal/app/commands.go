package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/todo-sync/internal/model"
	"github.com/nhle/todo-sync/internal/ui/authform"
	"github.com/nhle/todo-sync/internal/ui/todolist"
)

// sessionStartedMsg is sent once the saved session has been read.
type sessionStartedMsg struct{ err error }

// authResultMsg is sent after an auth form action.
type authResultMsg struct {
	mode authform.Mode
	url  string
	err  error
}

// signedOutMsg is sent after a sign-out attempt.
type signedOutMsg struct{ err error }

func (m *Model) startSession() tea.Cmd {
	ctx, p := m.ctx, m.session
	return func() tea.Msg {
		return sessionStartedMsg{err: p.Start(ctx)}
	}
}

// submitAuth runs the action chosen on the auth screen.
func (m *Model) submitAuth(sub authform.SubmitMsg) tea.Cmd {
	ctx, p, logger := m.ctx, m.session, m.logger
	return func() tea.Msg {
		res := authResultMsg{mode: sub.Mode}
		switch sub.Mode {
		case authform.ModeSignUp:
			res.err = p.SignUp(ctx, sub.Email, sub.Password)
		case authform.ModeSignIn:
			res.err = p.SignIn(ctx, sub.Email, sub.Password)
		case authform.ModeReset:
			res.err = p.ResetPassword(ctx, sub.Email)
		case authform.ModeOAuth:
			res.url, res.err = p.SignInWithOAuth(ctx, sub.Provider)
		}
		if res.err != nil {
			logger.Warn("auth action failed", "mode", sub.Mode, "err", res.err)
		}
		return res
	}
}

func (m *Model) signOut() tea.Cmd {
	ctx, p := m.ctx, m.session
	return func() tea.Msg {
		return signedOutMsg{err: p.SignOut(ctx)}
	}
}

func (m *Model) addTodo(text string) tea.Cmd {
	ctx, s := m.ctx, m.todos
	return func() tea.Msg {
		_, err := s.Add(ctx, text)
		return todolist.ResultMsg{Op: todolist.OpAdd, Err: err}
	}
}

func (m *Model) editTodo(id, text string) tea.Cmd {
	ctx, s := m.ctx, m.todos
	return func() tea.Msg {
		_, err := s.Update(ctx, id, model.SetText(text))
		return todolist.ResultMsg{Op: todolist.OpEdit, Err: err}
	}
}

func (m *Model) toggleTodo(id string, completed bool) tea.Cmd {
	ctx, s := m.ctx, m.todos
	return func() tea.Msg {
		_, err := s.ToggleCompletion(ctx, id, completed)
		return todolist.ResultMsg{Op: todolist.OpToggle, Err: err}
	}
}

func (m *Model) deleteTodo(id string) tea.Cmd {
	ctx, s := m.ctx, m.todos
	return func() tea.Msg {
		err := s.Delete(ctx, id)
		return todolist.ResultMsg{Op: todolist.OpDelete, Err: err}
	}
}

// refresh reloads the list. The outcome arrives as a state update.
func (m *Model) refresh() tea.Cmd {
	ctx, s, logger := m.ctx, m.todos, m.logger
	return func() tea.Msg {
		if err := s.Refresh(ctx); err != nil {
			logger.Debug("refresh failed", "err", err)
		}
		return nil
	}
}
