// ABOUTME: Bubble Tea model for the terminal chat: transcript viewport, composer and notice line
// ABOUTME: Re-renders from the session snapshot whenever the controller publishes a change

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389/oracle-chat/internal/conversation"
	"github.com/2389/oracle-chat/internal/transcript"
)

const (
	emptyState  = "Start a conversation to get help with procurement."
	placeholder = "Type your request here..."
	inputHeight = 3
)

// session is the part of the conversation controller the TUI drives.
type session interface {
	Submit(text string) (<-chan struct{}, bool)
	Snapshot() conversation.State
	DismissNotice()
}

// changeMsg reports that the session published a change.
type changeMsg struct {
	change conversation.Change
}

// sessionClosedMsg reports that the change stream ended.
type sessionClosedMsg struct{}

// waitForChange blocks on the next change. It is re-issued after every
// changeMsg so exactly one wait is pending at a time.
func waitForChange(changes <-chan conversation.Change) tea.Cmd {
	return func() tea.Msg {
		c, ok := <-changes
		if !ok {
			return sessionClosedMsg{}
		}
		return changeMsg{change: c}
	}
}

type uiTheme struct {
	header    lipgloss.Style
	title     lipgloss.Style
	subtitle  lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	clock     lipgloss.Style
	notice    lipgloss.Style
	input     lipgloss.Style
	help      lipgloss.Style
	muted     lipgloss.Style
}

func newTheme() uiTheme {
	blue := lipgloss.Color("#2563eb")
	mint := lipgloss.Color("#10b981")
	red := lipgloss.Color("#dc2626")
	muted := lipgloss.Color("#9ca3af")

	return uiTheme{
		header: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(muted).
			Padding(0, 1),
		title:     lipgloss.NewStyle().Bold(true),
		subtitle:  lipgloss.NewStyle().Foreground(mint),
		user:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		assistant: lipgloss.NewStyle().Foreground(mint).Bold(true),
		clock:     lipgloss.NewStyle().Foreground(muted),
		notice: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ffffff")).
			Background(red).
			Padding(0, 1),
		input: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue),
		help:  lipgloss.NewStyle().Foreground(muted).Padding(0, 1),
		muted: lipgloss.NewStyle().Foreground(muted).Italic(true),
	}
}

// newFormatter builds a markdown renderer for the given width.
type newFormatter func(width int) (*transcript.TerminalFormatter, error)

type model struct {
	session   session
	changes   <-chan conversation.Change
	title     string
	subtitle  string
	formatter *transcript.TerminalFormatter
	newFmt    newFormatter

	input    textarea.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    uiTheme

	state    conversation.State
	rendered map[string]string // turn id -> rendered body at the current width
	width    int
	height   int
}

func newModel(s session, changes <-chan conversation.Change, title, subtitle string, newFmt newFormatter) model {
	input := textarea.New()
	input.Placeholder = placeholder
	input.ShowLineNumbers = false
	input.Prompt = "┃ "
	input.CharLimit = 4000
	input.SetHeight(inputHeight)
	input.FocusedStyle.CursorLine = lipgloss.NewStyle()
	input.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#10b981"))

	m := model{
		session:  s,
		changes:  changes,
		title:    title,
		subtitle: subtitle,
		newFmt:   newFmt,
		input:    input,
		timeline: viewport.New(0, 0),
		spinner:  sp,
		theme:    newTheme(),
		state:    s.Snapshot(),
		rendered: map[string]string{},
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		waitForChange(m.changes),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()
		m.timeline.GotoBottom()

	case changeMsg:
		m.state = m.session.Snapshot()
		m.resize()
		m.renderTimeline()
		m.timeline.GotoBottom()
		cmds = append(cmds, waitForChange(m.changes))

	case sessionClosedMsg:
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.state.Busy {
			m.renderTimeline()
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.session.DismissNotice()
			return m, nil
		case "enter":
			// Ignored while a request is outstanding; the draft is kept.
			if _, ok := m.session.Submit(m.input.Value()); ok {
				m.input.Reset()
			}
			return m, nil
		case "pgup", "pgdown", "ctrl+u", "ctrl+d":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// resize lays out the panes and rebuilds the renderer when the width changes.
func (m *model) resize() {
	if m.width <= 0 || m.height <= 0 {
		return
	}

	m.input.SetWidth(maxInt(10, m.width-2))

	// header (2) + input box (inputHeight+2) + help (1) + notice (1 when shown)
	chrome := 2 + inputHeight + 2 + 1
	if m.state.Notice != "" {
		chrome++
	}
	m.timeline.Width = m.width
	m.timeline.Height = maxInt(1, m.height-chrome)

	wrap := maxInt(20, m.width-4)
	if m.formatter != nil && m.formatter.Width() == wrap {
		return
	}
	if m.newFmt == nil {
		return
	}
	f, err := m.newFmt(wrap)
	if err != nil {
		return
	}
	m.formatter = f
	m.rendered = map[string]string{}
}

func (m *model) body(e transcript.Entry) string {
	if out, ok := m.rendered[e.ID]; ok {
		return out
	}
	var out string
	if m.formatter != nil {
		out = m.formatter.Format(e)
	} else {
		out = transcript.StripControl(e.Content)
	}
	m.rendered[e.ID] = out
	return out
}

func (m *model) renderTimeline() {
	m.timeline.SetContent(m.timelineContent())
}

func (m *model) timelineContent() string {
	entries := transcript.Project(m.state.Turns, m.state.Busy)
	if len(entries) == 0 {
		return m.theme.muted.Render(emptyState)
	}

	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if e.Kind == transcript.KindTyping {
			b.WriteString(m.theme.assistant.Render("Oracle"))
			b.WriteString(" ")
			b.WriteString(m.spinner.View())
			continue
		}

		label := m.theme.assistant.Render("Oracle")
		if e.IsUser() {
			label = m.theme.user.Render("You")
		}
		b.WriteString(label)
		if clock := e.Clock(); clock != "" {
			b.WriteString(" ")
			b.WriteString(m.theme.clock.Render(clock))
		}
		b.WriteString("\n")
		b.WriteString(m.body(e))
	}
	return b.String()
}

func (m model) View() string {
	header := m.theme.header.Width(maxInt(0, m.width)).Render(
		m.theme.title.Render(m.title) + "  " + m.theme.subtitle.Render("Online • "+m.subtitle),
	)

	parts := []string{header, m.timeline.View()}
	if m.state.Notice != "" {
		parts = append(parts, m.theme.notice.Render(m.state.Notice+"  (esc to dismiss)"))
	}
	parts = append(parts, m.theme.input.Render(m.input.View()), m.footer())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m model) footer() string {
	status := "enter send"
	if m.state.Busy {
		status = "waiting for reply"
	}
	return m.theme.help.Render(fmt.Sprintf("%s • alt+enter newline • pgup/pgdown scroll • ctrl+c quit", status))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
