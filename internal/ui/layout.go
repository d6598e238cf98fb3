package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/todo-sync/internal/theme"
)

// Layout splits the terminal into a header line, the content area and a
// status line.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout with the given terminal dimensions.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentHeight returns the height left for the content area.
func (l Layout) ContentHeight() int {
	return l.Height - 2
}

// bar renders left and right aligned text filling one line of style.
func (l Layout) bar(style lipgloss.Style, left, right string) string {
	leftRendered := style.Render(left)
	rightRendered := ""
	if right != "" {
		rightRendered = style.Render(right)
	}

	gap := l.Width - lipgloss.Width(leftRendered) - lipgloss.Width(rightRendered)
	if gap < 0 {
		gap = 0
	}
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, leftRendered, filler, rightRendered)
}

// RenderHeader renders the title bar. status is right aligned.
func (l Layout) RenderHeader(title, status string) string {
	return l.bar(theme.HeaderStyle, title, status)
}

// RenderStatusBar renders the bottom line with key hints on the left and
// info on the right.
func (l Layout) RenderStatusBar(hints, info string) string {
	return l.bar(theme.StatusBarStyle, hints, info)
}

// Compose stacks header, content and status bar.
func (l Layout) Compose(header, content, statusBar string) string {
	content = lipgloss.NewStyle().Height(l.ContentHeight()).Render(content)
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}
