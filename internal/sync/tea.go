package sync

import tea "github.com/charmbracelet/bubbletea"

// StateMsg is a tea.Msg carrying a new synchronizer state.
type StateMsg struct {
	State State
}

// Updates hands state changes to a Bubble Tea program. Only the latest
// undelivered state is kept, so a slow program skips intermediate states
// instead of blocking the synchronizer.
type Updates struct {
	ch chan State
}

// NewUpdates creates an empty Updates.
func NewUpdates() *Updates {
	return &Updates{ch: make(chan State, 1)}
}

// Push records st, replacing any state not yet delivered. Use it as
// Options.OnChange.
func (u *Updates) Push(st State) {
	for {
		select {
		case u.ch <- st:
			return
		default:
		}
		// Drop the stale state and try again.
		select {
		case <-u.ch:
		default:
		}
	}
}

// Wait returns a tea.Cmd that waits for the next state. After handling a
// StateMsg, call Wait again to keep listening.
func (u *Updates) Wait() tea.Cmd {
	return func() tea.Msg {
		return StateMsg{State: <-u.ch}
	}
}
