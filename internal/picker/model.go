// Package picker is a terminal host for a single-select control. Typing
// either filters a static selection list locally or drives the control's
// selection service; Enter publishes the highlighted option.
package picker

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/runger/singleselect/internal/control"
	"github.com/runger/singleselect/internal/item"
)

// pickerState represents the current state of the picker's state machine.
type pickerState int

const (
	stateLoading   pickerState = iota // Waiting for the first lookup
	stateLoaded                       // Options visible (len > 0)
	stateEmpty                        // No options match
	stateCancelled                    // User cancelled (Esc / Ctrl+C)
	stateDone                         // User picked an option
)

// changedMsg is sent when the control reports a state change.
type changedMsg struct{}

// initMsg is sent by Init() so the first refresh runs through Update.
type initMsg struct{}

// Changes turns control notifications into tea messages. Pass Notify to
// control.WithNotify. Bursts of notifications coalesce into one message.
type Changes struct {
	ch chan struct{}
}

// NewChanges creates a Changes.
func NewChanges() *Changes {
	return &Changes{ch: make(chan struct{}, 1)}
}

// Notify records a change. It never blocks.
func (c *Changes) Notify() {
	select {
	case c.ch <- struct{}{}:
	default:
	}
}

func (c *Changes) wait() tea.Cmd {
	return func() tea.Msg {
		<-c.ch
		return changedMsg{}
	}
}

// Model is the Bubble Tea model for the picker TUI.
type Model struct {
	state   pickerState
	ctrl    *control.Control
	opts    *control.OptionSet
	changes *Changes
	title   string
	input   textinput.Model

	items     []item.Item // Options after local filtering
	selection int         // Index into items; -1 when empty
	placed    bool        // Cursor has been moved to the initial selection

	width  int // Terminal width
	height int // Terminal height

	result item.Item
	chosen bool
}

// NewModel creates a picker for ctrl. opts must be the option set ctrl
// reads; changes must be wired to ctrl with control.WithNotify.
func NewModel(ctrl *control.Control, opts *control.OptionSet, changes *Changes, title string) Model {
	in := textinput.New()
	in.Prompt = "> "
	in.Placeholder = "type to search"
	if text, ok := opts.Get(control.OptServiceInputText, "").(string); ok {
		in.SetValue(text)
	}
	in.Focus()

	return Model{
		state:     stateLoading,
		ctrl:      ctrl,
		opts:      opts,
		changes:   changes,
		title:     title,
		input:     in,
		selection: -1,
	}
}

// Result returns the value published by the chosen option. ok is false
// when the user cancelled.
func (m Model) Result() (item.Item, bool) {
	return m.result, m.chosen
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, func() tea.Msg { return initMsg{} })
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case initMsg:
		m.refresh()
		return m, m.changes.wait()

	case changedMsg:
		m.refresh()
		return m, m.changes.wait()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.state = stateCancelled
		return m, tea.Quit

	case tea.KeyEnter:
		if m.selection < 0 || m.selection >= len(m.items) {
			return m, nil
		}
		m.ctrl.Selected(m.items[m.selection])
		m.result = m.ctrl.Output()
		m.chosen = true
		m.state = stateDone
		return m, tea.Quit

	case tea.KeyUp, tea.KeyCtrlP:
		if m.selection > 0 {
			m.selection--
		}
		return m, nil

	case tea.KeyDown, tea.KeyCtrlN:
		if m.selection < len(m.items)-1 {
			m.selection++
		}
		return m, nil
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if after := m.input.Value(); after != before {
		if m.ctrl.UseSelectionList() {
			m.refresh()
		} else {
			// The control debounces and calls the selection service.
			m.opts.Set(control.OptServiceInputText, after)
		}
	}
	return m, cmd
}

// refresh pulls the option list from the control and applies the local
// filter.
func (m *Model) refresh() {
	if !m.ctrl.Initialized() {
		m.state = stateLoading
		m.items = nil
		m.selection = -1
		return
	}

	options := m.ctrl.Options()
	if m.ctrl.UseSelectionList() {
		options = m.filter(options, m.input.Value())
	}
	m.items = options

	if !m.placed {
		if sel := m.ctrl.Selection(); !sel.IsNil() {
			for i, it := range m.items {
				if item.Equal(it, sel) {
					m.selection = i
					m.placed = true
					break
				}
			}
		}
	}

	if len(m.items) == 0 {
		m.state = stateEmpty
		m.selection = -1
		return
	}
	m.state = stateLoaded
	m.clampSelection()
}

// filter keeps options whose display name contains query, ignoring case.
func (m Model) filter(options []item.Item, query string) []item.Item {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return options
	}
	out := make([]item.Item, 0, len(options))
	for _, it := range options {
		if strings.Contains(strings.ToLower(m.ctrl.ItemName(it, false)), query) {
			out = append(out, it)
		}
	}
	return out
}

// clampSelection ensures the selection index is within bounds.
func (m *Model) clampSelection() {
	if len(m.items) == 0 {
		m.selection = -1
		return
	}
	if m.selection < 0 {
		m.selection = 0
	}
	if m.selection >= len(m.items) {
		m.selection = len(m.items) - 1
	}
}

// listHeight returns the number of visible list rows.
func (m Model) listHeight() int {
	// 1 row for the title, 1 row for the input line
	const chrome = 2
	h := m.height - chrome
	if h < 1 {
		h = 20 // Sensible default before first WindowSizeMsg
	}
	return h
}

// --- View rendering ---

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	normalStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	if m.title != "" {
		b.WriteString(titleStyle.Render(" " + m.title + " "))
		b.WriteRune('\n')
	}

	b.WriteString(m.viewContent())
	b.WriteRune('\n')

	b.WriteString(m.input.View())

	return b.String()
}

// viewContent renders the option list or a status message.
func (m Model) viewContent() string {
	switch m.state {
	case stateLoading:
		return dimStyle.Render("Loading...")
	case stateEmpty:
		return dimStyle.Render("No matches")
	case stateCancelled:
		return dimStyle.Render("Cancelled")
	case stateDone:
		return dimStyle.Render(fmt.Sprintf("Selected %s", m.label(m.items[m.selection])))
	case stateLoaded:
		return m.viewList()
	default:
		return ""
	}
}

// viewList renders the visible window of options around the cursor.
func (m Model) viewList() string {
	rows := m.listHeight()
	start := 0
	if m.selection >= rows {
		start = m.selection - rows + 1
	}
	end := start + rows
	if end > len(m.items) {
		end = len(m.items)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		display := m.label(m.items[i])
		if i == m.selection {
			b.WriteString(selectedStyle.Render("> " + display))
		} else {
			b.WriteString(normalStyle.Render("  " + display))
		}
		if i < end-1 {
			b.WriteRune('\n')
		}
	}
	return b.String()
}

func (m Model) label(it item.Item) string {
	width := 0
	if m.width > 4 {
		width = m.width - 4
	}
	return displayLabel(m.ctrl.ItemName(it, true), width)
}
