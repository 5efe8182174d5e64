package sentence

import (
	"testing"
	"time"

	"github.com/jad-hamza/vscoq/position"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusLifecycle(t *testing.T) {
	tr := NewTree()
	root := tr.NewRoot(1)
	a, err := tr.Add(root, "A.", 2, rng(0, 0, 0, 2), time.Now())
	require.NoError(t, err)

	assert.Equal(t, ProcessingInput, a.Status())

	a.UpdateStatus(Processed)
	assert.Equal(t, Processed, a.Status())

	a.SetError("syntax error", rng(0, 0, 0, 1))
	assert.Equal(t, Error, a.Status())
	require.NotNil(t, a.Error())
	assert.Equal(t, "syntax error", a.Error().Message)
}

func TestApplyTextChangesInvalidatesOnInteriorOverlap(t *testing.T) {
	tr := NewTree()
	root := tr.NewRoot(1)
	a, _ := tr.Add(root, "AA.", 2, rng(0, 0, 0, 3), time.Now())

	edits := []TextEdit{{Range: rng(0, 1, 0, 2), NewText: "Z"}}
	invalidated := a.ApplyTextChanges(edits)
	assert.True(t, invalidated)
}

func TestApplyTextChangesShiftsWhenEntirelyBefore(t *testing.T) {
	tr := NewTree()
	root := tr.NewRoot(1)
	a, _ := tr.Add(root, "A.", 2, rng(0, 2, 0, 4), time.Now())

	// Replace one char with two chars, entirely before a's range.
	edits := []TextEdit{{Range: rng(0, 0, 0, 1), NewText: "XY"}}
	invalidated := a.ApplyTextChanges(edits)

	assert.False(t, invalidated)
	assert.Equal(t, rng(0, 3, 0, 5), a.Range())
}

func TestApplyTextChangesBoundaryTouchDoesNotInvalidate(t *testing.T) {
	tr := NewTree()
	root := tr.NewRoot(1)
	a, _ := tr.Add(root, "A.", 2, rng(0, 2, 0, 4), time.Now())

	// Edit ends exactly at a's start: touches the boundary, attaches to
	// the successor (a itself here) by shifting, not invalidating.
	edits := []TextEdit{{Range: rng(0, 0, 0, 2), NewText: "XYZ"}}
	invalidated := a.ApplyTextChanges(edits)

	assert.False(t, invalidated)
	assert.Equal(t, rng(0, 3, 0, 5), a.Range())
}

func TestIsBeforeAndContains(t *testing.T) {
	tr := NewTree()
	root := tr.NewRoot(1)
	a, _ := tr.Add(root, "A.", 2, rng(0, 2, 0, 4), time.Now())

	assert.True(t, a.IsBefore(position.Position{Line: 0, Character: 4}))
	assert.False(t, a.IsBefore(position.Position{Line: 0, Character: 3}))
	assert.True(t, a.Contains(position.Position{Line: 0, Character: 2}))
	assert.False(t, a.Contains(position.Position{Line: 0, Character: 4}))
}
