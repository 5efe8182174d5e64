// Package reconcile implements the edit reconciliation algorithm:
// applying a batch of document edits to the sentence tree and
// determining which sentences survive, shift, or must be cancelled.
package reconcile

import (
	"sort"

	"github.com/jad-hamza/vscoq/position"
	"github.com/jad-hamza/vscoq/sentence"
)

// Edit is one document change in the batch handed to apply_changes.
type Edit struct {
	Range   position.Range
	NewText string
}

// Plan is the result of walking the tree against a batch of edits: the
// ordered set of sentences that must be cancelled (cancelling a
// sentence cancels its whole subtree).
type Plan struct {
	// Cancel lists every sentence the edits invalidated, in the order
	// reconciliation discovered them (closest to last_sentence first),
	// so an invalidated sentence comes before any invalidated ancestor
	// of it.
	Cancel []sentence.StateID
}

// Reconcile sorts edits by descending start position and walks the
// tree from t.LastSentence() through its ancestors, applying the
// surviving edit list to each sentence per §4.2's applyTextChanges
// policy and stopping once an edit list empties out.
//
// It mutates sentence ranges in place (via ApplyTextChanges) for
// surviving sentences and returns the set of sentences that must be
// cancelled. It does not itself remove anything from the tree — the
// caller (the STM controller) drives the actual edit-at/truncate
// calls, since those require backend round-trips.
func Reconcile(t *sentence.Tree, edits []Edit) (Plan, error) {
	if !t.HasRoot() || len(edits) == 0 {
		return Plan{}, nil
	}

	sorted := make([]Edit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		return position.IsAfter(sorted[i].Range.Start, sorted[j].Range.Start)
	})

	last := t.LastSentence(t.Root())

	var plan Plan

	remaining := sorted
	for n := last; !n.IsRoot(); n = n.Parent() {
		remaining = dropEditsStartingAtOrAfter(remaining, n.Range().End)
		if len(remaining) == 0 {
			break
		}

		sentenceEdits := toSentenceEdits(remaining)
		if n.ApplyTextChanges(sentenceEdits) {
			plan.Cancel = append(plan.Cancel, n.StateID())
		}
	}

	return plan, nil
}

// dropEditsStartingAtOrAfter removes edits whose start is at or after
// sentenceEnd — step 1 of §4.5: such edits affect only later
// sentences, already processed earlier in the (descending) walk.
func dropEditsStartingAtOrAfter(edits []Edit, sentenceEnd position.Position) []Edit {
	out := edits[:0:0]
	for _, e := range edits {
		if position.IsAfterOrEqual(e.Range.Start, sentenceEnd) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func toSentenceEdits(edits []Edit) []sentence.TextEdit {
	out := make([]sentence.TextEdit, len(edits))
	for i, e := range edits {
		out[i] = sentence.TextEdit{Range: e.Range, NewText: e.NewText}
	}
	return out
}
