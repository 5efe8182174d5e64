package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jad-hamza/vscoq/position"
)

func rng(sl, sc, el, ec int) position.Range {
	return position.Range{
		Start: position.Position{Line: sl, Character: sc},
		End:   position.Position{Line: el, Character: ec},
	}
}

func TestModelUpsertsRowOnStatusUpdate(t *testing.T) {
	m := New()
	updated, _ := m.Update(statusMsg{Range: rng(0, 0, 0, 10), Status: 1})
	model := updated.(Model)
	require.Len(t, model.rows, 1)
	assert.Equal(t, 1, model.rows[0].Status)

	updated, _ = model.Update(statusMsg{Range: rng(0, 0, 0, 10), Status: 2})
	model = updated.(Model)
	require.Len(t, model.rows, 1)
	assert.Equal(t, 2, model.rows[0].Status)
}

func TestModelRemovesRowOnClear(t *testing.T) {
	m := New()
	updated, _ := m.Update(statusMsg{Range: rng(0, 0, 0, 5), Status: 1})
	model := updated.(Model)
	require.Len(t, model.rows, 1)

	updated, _ = model.Update(clearMsg{Range: rng(0, 0, 0, 5)})
	model = updated.(Model)
	assert.Empty(t, model.rows)
}

func TestModelRecordsErrorOnRow(t *testing.T) {
	m := New()
	updated, _ := m.Update(statusMsg{Range: rng(0, 0, 0, 5), Status: 1})
	model := updated.(Model)

	updated, _ = model.Update(errorMsg{SentenceRange: rng(0, 0, 0, 5), Message: "syntax error"})
	model = updated.(Model)
	require.Len(t, model.rows, 1)
	assert.Equal(t, "syntax error", model.rows[0].Err)
	assert.Contains(t, model.View(), "syntax error")
}

func TestModelQuitsOnQ(t *testing.T) {
	m := New()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
}

type recordingProgram struct {
	sent []tea.Msg
}

func (p *recordingProgram) Send(msg tea.Msg) { p.sent = append(p.sent, msg) }

func TestCallbacksForwardEventsToProgram(t *testing.T) {
	prog := &recordingProgram{}
	cb := NewCallbacks(prog)

	cb.SentenceStatusUpdate(rng(0, 0, 0, 5), 2)
	cb.Error(rng(0, 0, 0, 5), rng(0, 1, 0, 2), "bad tactic", nil)
	cb.CoqDied(nil)

	require.Len(t, prog.sent, 3)
	assert.IsType(t, statusMsg{}, prog.sent[0])
	assert.IsType(t, errorMsg{}, prog.sent[1])
	assert.IsType(t, diedMsg{}, prog.sent[2])
}
