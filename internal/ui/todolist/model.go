// Package todolist is the list screen: filter tabs, the todo list, an
// inline input for adding and editing, and the operation error banner.
package todolist

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/todo-sync/internal/keys"
	"github.com/nhle/todo-sync/internal/model"
	appsync "github.com/nhle/todo-sync/internal/sync"
	"github.com/nhle/todo-sync/internal/theme"
)

// AddMsg asks the app to add a todo.
type AddMsg struct {
	Text string
}

// EditMsg asks the app to change a todo's text.
type EditMsg struct {
	ID   string
	Text string
}

// ToggleMsg asks the app to flip a todo. Completed is the value before
// the toggle.
type ToggleMsg struct {
	ID        string
	Completed bool
}

// DeleteMsg asks the app to delete a todo.
type DeleteMsg struct {
	ID string
}

// RefreshMsg asks the app to reload the list.
type RefreshMsg struct{}

// ResultMsg reports the outcome of an operation back to the list.
type ResultMsg struct {
	Op  Op
	Err error
}

type mode int

const (
	modeBrowse mode = iota
	modeAdd
	modeEdit
)

// reserved is the number of lines above the list: banner, input and tabs.
const reserved = 6

// Model is the list screen.
type Model struct {
	keys    *keys.KeyMap
	list    list.Model
	input   textinput.Model
	spinner spinner.Model
	mode    mode
	editID  string
	filter  Filter
	state   appsync.State
	banner  string
	width   int
	height  int
}

// New creates a list screen.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, itemDelegate{}, width, height-reserved)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)

	in := textinput.New()
	in.Placeholder = "Add a new task..."
	in.Prompt = "+ "
	in.Width = width - 4

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorIndigo)

	return Model{
		keys:    k,
		list:    l,
		input:   in,
		spinner: sp,
		width:   width,
		height:  height,
	}
}

// Init starts the loading spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// SetState replaces the rendered synchronizer state.
func (m *Model) SetState(st appsync.State) tea.Cmd {
	m.state = st
	if m.mode == modeEdit {
		if _, ok := m.find(m.editID); !ok {
			m.stopInput()
		}
	}
	return m.refreshItems()
}

// SetFilter changes the active filter.
func (m *Model) SetFilter(f Filter) tea.Cmd {
	m.filter = f
	return m.refreshItems()
}

// Filter returns the active filter.
func (m Model) Filter() Filter {
	return m.filter
}

// Banner returns the operation error shown above the list, if any.
func (m Model) Banner() string {
	return m.banner
}

// Capturing reports whether the text input has focus, so global keys
// must not be intercepted.
func (m Model) Capturing() bool {
	return m.mode != modeBrowse
}

// Summary describes the list counts for the status bar.
func (m Model) Summary() string {
	active := FilterActive.Apply(m.state.Todos)
	return fmt.Sprintf("%d active / %d total", len(active), len(m.state.Todos))
}

func (m *Model) refreshItems() tea.Cmd {
	todos := m.filter.Apply(m.state.Todos)
	items := make([]list.Item, len(todos))
	for i, t := range todos {
		items[i] = todoItem{todo: t}
	}
	return m.list.SetItems(items)
}

func (m Model) find(id string) (model.Todo, bool) {
	for _, t := range m.state.Todos {
		if t.ID == id {
			return t, true
		}
	}
	return model.Todo{}, false
}

func (m Model) selected() (model.Todo, bool) {
	it, ok := m.list.SelectedItem().(todoItem)
	if !ok {
		return model.Todo{}, false
	}
	return it.todo, true
}

func (m *Model) stopInput() {
	m.mode = modeBrowse
	m.editID = ""
	m.input.Blur()
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}

// Update handles messages for the list screen.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ResultMsg:
		if msg.Err != nil {
			m.banner = msg.Op.FailureMessage()
		} else if msg.Op == OpAdd {
			m.input.Reset()
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode != modeBrowse {
			return m.handleInputKeys(msg)
		}
		return m.handleBrowseKeys(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// handleInputKeys processes keys while adding or editing.
func (m Model) handleInputKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.stopInput()
		m.input.Reset()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		if strings.TrimSpace(text) == "" {
			return m, nil
		}
		m.banner = ""
		if m.mode == modeAdd {
			// The text stays in the input until the add succeeds.
			m.stopInput()
			return m, emit(AddMsg{Text: text})
		}
		id := m.editID
		m.stopInput()
		m.input.Reset()
		return m, emit(EditMsg{ID: id, Text: text})
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleBrowseKeys processes keys while the list has focus.
func (m Model) handleBrowseKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Refresh) {
		return m, emit(RefreshMsg{})
	}
	if m.state.Phase != appsync.PhaseReady {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Add):
		m.mode = modeAdd
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Edit):
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.mode = modeEdit
		m.editID = t.ID
		m.input.SetValue(t.Text)
		m.input.CursorEnd()
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Toggle):
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.banner = ""
		return m, emit(ToggleMsg{ID: t.ID, Completed: t.Completed})

	case key.Matches(msg, m.keys.Delete):
		t, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.banner = ""
		return m, emit(DeleteMsg{ID: t.ID})

	case key.Matches(msg, m.keys.FilterAll):
		return m, m.SetFilter(FilterAll)

	case key.Matches(msg, m.keys.FilterActive):
		return m, m.SetFilter(FilterActive)

	case key.Matches(msg, m.keys.FilterCompleted):
		return m, m.SetFilter(FilterCompleted)

	case key.Matches(msg, m.keys.CycleFilter):
		return m, m.SetFilter(m.filter.Next())
	}

	// Navigation keys go to the list.
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list screen.
func (m Model) View() string {
	center := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center)

	switch m.state.Phase {
	case appsync.PhaseIdle:
		return ""
	case appsync.PhaseLoading:
		if len(m.state.Todos) == 0 {
			return center.Render(m.spinner.View() + " Loading todos...")
		}
	case appsync.PhaseError:
		return center.Render(
			theme.ErrorTextStyle.Render("Error loading todos: "+m.state.Error) +
				"\n\n" + theme.HelpStyle.Render("Press r to retry"),
		)
	}

	var sections []string
	if m.banner != "" {
		sections = append(sections, theme.ErrorBannerStyle.Render(m.banner))
	}
	if m.mode != modeBrowse {
		label := "New todo"
		if m.mode == modeEdit {
			label = "Edit todo"
		}
		sections = append(sections, theme.HelpStyle.Render(label), m.input.View())
	}
	sections = append(sections, m.renderTabs(), "")

	if len(m.list.Items()) == 0 {
		sections = append(sections,
			theme.HelpStyle.PaddingLeft(2).Render(m.filter.EmptyMessage(len(m.state.Todos))))
	} else {
		sections = append(sections, m.list.View())
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderTabs() string {
	tabs := make([]string, len(filters))
	for i, f := range filters {
		style := theme.TabStyle
		if f == m.filter {
			style = theme.ActiveTabStyle
		}
		tabs[i] = style.Render(f.String())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-reserved)
	m.input.Width = width - 4
}
