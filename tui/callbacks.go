package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jad-hamza/vscoq/backend"
	"github.com/jad-hamza/vscoq/position"
	"github.com/jad-hamza/vscoq/stm"
)

var _ stm.Callbacks = (*Callbacks)(nil)

type statusMsg struct {
	Range  position.Range
	Status int
}

type clearMsg struct {
	Range position.Range
}

type errorMsg struct {
	SentenceRange, ErrRange position.Range
	Message                 string
}

type messageMsg struct {
	Level int
	Text  string
}

type goalMsg struct {
	Goals backend.Goals
}

type diedMsg struct {
	Err error
}

// program is the subset of *tea.Program used to forward events; tests
// substitute a recording stub.
type program interface {
	Send(msg tea.Msg)
}

// Callbacks implements stm.Callbacks by forwarding every event as a
// tea.Msg onto a running Bubble Tea program, so the sentence-tree/goal
// Model only ever mutates on its own event loop goroutine.
type Callbacks struct {
	program program
}

// NewCallbacks wraps p, typically a *tea.Program returned by
// tea.NewProgram(tui.New()).
func NewCallbacks(p program) *Callbacks {
	if p == nil {
		panic("tui: program must not be nil")
	}
	return &Callbacks{program: p}
}

func (c *Callbacks) SentenceStatusUpdate(rng position.Range, status int) {
	c.program.Send(statusMsg{Range: rng, Status: status})
}

func (c *Callbacks) ClearSentence(rng position.Range) {
	c.program.Send(clearMsg{Range: rng})
}

func (c *Callbacks) Error(sentenceRange, errRange position.Range, message string, rich any) {
	c.program.Send(errorMsg{SentenceRange: sentenceRange, ErrRange: errRange, Message: message})
}

func (c *Callbacks) Message(level int, text string, rich any) {
	c.program.Send(messageMsg{Level: level, Text: text})
}

func (c *Callbacks) LtacProfResults(rng position.Range, results backend.ProfilingResults) {
	// The tree/goal view has no profiling panel; dropped per the
	// rendering non-goal.
}

func (c *Callbacks) CoqDied(err error) {
	c.program.Send(diedMsg{Err: err})
}

// GoalUpdate is not part of stm.Callbacks (get_goal is request/response,
// not pushed feedback); callers that poll GetGoal after a step can feed
// the result back in through this helper to keep the goal panel live.
func (c *Callbacks) GoalUpdate(goals backend.Goals) {
	c.program.Send(goalMsg{Goals: goals})
}
