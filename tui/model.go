// Package tui renders the sentence tree and goal panel a running STM
// controller produces. It is purely a consumer of stm.Callbacks: goal
// rendering and decoration logic live here, never inside the STM core.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jad-hamza/vscoq/backend"
	"github.com/jad-hamza/vscoq/position"
)

var (
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("76"))
	stylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// sentenceRow is the TUI's idea of a sentence: just enough to render a
// line in the tree view, decoupled from sentence.Node so this package
// never needs to hold the controller's lock.
type sentenceRow struct {
	Range  position.Range
	Status int
	Text   string
	Err    string
}

// Model is the Bubble Tea model driving the sentence-tree/goal view.
// All mutation happens via tea.Msg values produced by Callbacks and
// delivered through the running tea.Program — Model itself is touched
// only from the Bubble Tea event loop.
type Model struct {
	rows     []sentenceRow
	goal     backend.Goals
	lastMsg  string
	lastErr  string
	quitting bool
	width    int

	// vp scrolls the sentence tree once it grows past the terminal
	// height — a proof script can accumulate thousands of sentences,
	// far more than fit on screen.
	vp    viewport.Model
	ready bool
}

// New creates an empty Model; rows populate as status/error messages
// arrive through the driving Callbacks.
func New() Model {
	return Model{}
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		footerHeight := lipgloss.Height(m.footer())
		if !m.ready {
			m.vp = viewport.New(msg.Width, msg.Height-footerHeight)
			m.ready = true
		} else {
			m.vp.Width = msg.Width
			m.vp.Height = msg.Height - footerHeight
		}

	case statusMsg:
		m.upsertRow(sentenceRow{Range: msg.Range, Status: msg.Status})

	case clearMsg:
		m.removeRow(msg.Range)

	case errorMsg:
		m.setRowError(msg.SentenceRange, msg.Message)
		m.lastErr = msg.Message

	case messageMsg:
		m.lastMsg = msg.Text

	case goalMsg:
		m.goal = msg.Goals

	case diedMsg:
		if msg.Err != nil {
			m.lastErr = fmt.Sprintf("backend died: %s", msg.Err)
		} else {
			m.lastErr = "backend closed"
		}
	}

	if m.ready {
		m.vp.SetContent(m.body())
		m.vp, cmd = m.vp.Update(msg)
	}
	return m, cmd
}

func (m *Model) upsertRow(row sentenceRow) {
	for i, r := range m.rows {
		if r.Range == row.Range {
			row.Text = r.Text
			m.rows[i] = row
			return
		}
	}
	m.rows = append(m.rows, row)
}

func (m *Model) removeRow(rng position.Range) {
	out := m.rows[:0]
	for _, r := range m.rows {
		if r.Range != rng {
			out = append(out, r)
		}
	}
	m.rows = out
}

func (m *Model) setRowError(rng position.Range, message string) {
	for i, r := range m.rows {
		if r.Range == rng {
			m.rows[i].Err = message
			return
		}
	}
}

func (m Model) View() string {
	if !m.ready {
		return m.body() + "\n" + m.footer()
	}
	return m.vp.View() + "\n" + m.footer()
}

// body renders the scrollable portion: sentence tree, goal summary, and
// last message/error.
func (m Model) body() string {
	var b strings.Builder
	b.WriteString(styleHeader.Render("STM — sentence tree"))
	b.WriteString("\n\n")

	if len(m.rows) == 0 {
		b.WriteString(styleDim.Render("(no sentences processed yet)"))
		b.WriteString("\n")
	}
	for _, r := range m.rows {
		b.WriteString(renderRow(r))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(styleHeader.Render("goal"))
	b.WriteString("\n")
	if len(m.goal.Foreground) == 0 {
		b.WriteString(styleDim.Render("(no open goals)"))
	} else {
		b.WriteString(fmt.Sprintf("%d goal(s) in focus", len(m.goal.Foreground)))
	}
	b.WriteString("\n")

	if m.lastMsg != "" {
		b.WriteString("\n" + styleDim.Render("message: "+m.lastMsg) + "\n")
	}
	if m.lastErr != "" {
		b.WriteString("\n" + styleError.Render("error: "+m.lastErr) + "\n")
	}
	return b.String()
}

// footer is the fixed status line below the scrollable viewport.
func (m Model) footer() string {
	return styleDim.Render("↑/↓: scroll · q: quit")
}

func renderRow(r sentenceRow) string {
	label := fmt.Sprintf("[%d:%d-%d:%d]", r.Range.Start.Line, r.Range.Start.Character, r.Range.End.Line, r.Range.End.Character)
	switch {
	case r.Err != "":
		return styleError.Render(label + " error: " + r.Err)
	case r.Status >= 2:
		return styleOK.Render(label + " complete")
	default:
		return stylePending.Render(label + " processing")
	}
}
