package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrdering(t *testing.T) {
	a := Position{Line: 1, Character: 5}
	b := Position{Line: 1, Character: 10}
	c := Position{Line: 2, Character: 0}

	assert.True(t, IsBefore(a, b))
	assert.True(t, IsBefore(b, c))
	assert.True(t, IsAfter(b, a))
	assert.True(t, IsEqual(a, Position{Line: 1, Character: 5}))
	assert.True(t, IsBeforeOrEqual(a, a))
	assert.True(t, IsAfterOrEqual(c, c))
}

func TestRangeContains(t *testing.T) {
	r := Range{Start: Position{Line: 0, Character: 2}, End: Position{Line: 0, Character: 6}}

	assert.True(t, r.Contains(Position{Line: 0, Character: 2}))
	assert.False(t, r.Contains(Position{Line: 0, Character: 6}))
	assert.True(t, r.ContainsInclusive(Position{Line: 0, Character: 6}))
	assert.False(t, r.Contains(Position{Line: 0, Character: 7}))
}

func TestRangeOverlaps(t *testing.T) {
	r := Range{Start: Position{Line: 0, Character: 0}, End: Position{Line: 0, Character: 4}}

	// Touching at the boundary is not an overlap.
	touching := Range{Start: Position{Line: 0, Character: 4}, End: Position{Line: 0, Character: 8}}
	assert.False(t, r.Overlaps(touching))
	assert.False(t, touching.Overlaps(r))

	interior := Range{Start: Position{Line: 0, Character: 2}, End: Position{Line: 0, Character: 6}}
	assert.True(t, r.Overlaps(interior))
}

func TestToRangeDeltaSameLine(t *testing.T) {
	// Replace "XY" (2 chars) with "ABCDE" (5 chars) on one line.
	r := Range{Start: Position{Line: 3, Character: 2}, End: Position{Line: 3, Character: 4}}
	d := ToRangeDelta(r, "ABCDE")

	require.Equal(t, 0, d.LineDelta)
	require.Equal(t, 3, d.CharacterDelta) // +5 chars inserted, -2 removed
	require.Equal(t, 3, d.EditEndLine)

	shifted := d.Apply(Position{Line: 3, Character: 4})
	assert.Equal(t, Position{Line: 3, Character: 7}, shifted)

	// A position on a later line is untouched: LineDelta is 0 and
	// CharacterDelta applies only on EditEndLine.
	later := d.Apply(Position{Line: 5, Character: 1})
	assert.Equal(t, Position{Line: 5, Character: 1}, later)
}

func TestToRangeDeltaMultiLineInsertion(t *testing.T) {
	// Replace nothing (zero-width range) with two newlines worth of text.
	r := Range{Start: Position{Line: 1, Character: 0}, End: Position{Line: 1, Character: 0}}
	d := ToRangeDelta(r, "a\nb\nc")

	require.Equal(t, 2, d.LineDelta)
	require.Equal(t, 1, d.CharacterDelta) // new end character is 1 ("c"), old end character was 0

	shifted := d.Apply(Position{Line: 1, Character: 0})
	assert.Equal(t, Position{Line: 3, Character: 1}, shifted)

	laterLine := d.Apply(Position{Line: 2, Character: 9})
	assert.Equal(t, Position{Line: 4, Character: 9}, laterLine)
}

func TestToRangeDeltaDeletion(t *testing.T) {
	// Delete two full lines.
	r := Range{Start: Position{Line: 1, Character: 0}, End: Position{Line: 3, Character: 0}}
	d := ToRangeDelta(r, "")

	require.Equal(t, -2, d.LineDelta)
	require.Equal(t, 0, d.CharacterDelta)

	shifted := d.Apply(Position{Line: 3, Character: 5})
	assert.Equal(t, Position{Line: 1, Character: 5}, shifted)
}

func TestReverseOrderDeltasAreIndependent(t *testing.T) {
	// Two non-overlapping edits; applying the later one first then the
	// earlier one (each as an independent delta against the original
	// document) must match applying them in document order with
	// cumulative adjustment.
	original := []Position{
		{Line: 0, Character: 0},
		{Line: 2, Character: 3},
		{Line: 5, Character: 1},
	}

	editLate := Range{Start: Position{Line: 4, Character: 0}, End: Position{Line: 4, Character: 2}}
	editEarly := Range{Start: Position{Line: 1, Character: 0}, End: Position{Line: 1, Character: 1}}

	deltaLate := ToRangeDelta(editLate, "XXXX")
	deltaEarly := ToRangeDelta(editEarly, "Y")

	// Reverse-order (greatest start first): apply late delta, then early.
	var reverseOrder []Position
	for _, p := range original {
		if IsBeforeOrEqual(editLate.End, p) {
			p = deltaLate.Apply(p)
		}
		if IsBeforeOrEqual(editEarly.End, p) {
			p = deltaEarly.Apply(p)
		}
		reverseOrder = append(reverseOrder, p)
	}

	// Natural order with cumulative line adjustment: apply early delta
	// first (shifting the late edit's own range), then recompute the
	// late delta against the shifted document and apply it.
	shiftedEditLate := deltaEarly.ApplyToRange(editLate)
	deltaLateNatural := ToRangeDelta(shiftedEditLate, "XXXX")

	var naturalOrder []Position
	for _, p := range original {
		if IsBeforeOrEqual(editEarly.End, p) {
			p = deltaEarly.Apply(p)
		}
		if IsBeforeOrEqual(shiftedEditLate.End, p) {
			p = deltaLateNatural.Apply(p)
		}
		naturalOrder = append(naturalOrder, p)
	}

	assert.Equal(t, naturalOrder, reverseOrder)
}

func TestPositionAtRelative(t *testing.T) {
	anchor := Position{Line: 2, Character: 4}

	t.Run("same line", func(t *testing.T) {
		p := PositionAtRelative(anchor, "hello world", 5)
		assert.Equal(t, Position{Line: 2, Character: 9}, p)
	})

	t.Run("crosses newline", func(t *testing.T) {
		p := PositionAtRelative(anchor, "ab\ncd\nef", 4)
		assert.Equal(t, Position{Line: 3, Character: 1}, p)
	})

	t.Run("offset beyond text clamps", func(t *testing.T) {
		p := PositionAtRelative(anchor, "ab", 100)
		assert.Equal(t, Position{Line: 2, Character: 6}, p)
	})

	t.Run("zero offset returns anchor", func(t *testing.T) {
		p := PositionAtRelative(anchor, "anything", 0)
		assert.Equal(t, anchor, p)
	})
}
