// Package sentence implements the per-sentence state machine and the
// ordered tree of accepted/in-progress commands.
//
// # Description
//
// A Sentence represents one command submitted to (or in flight with)
// the backend. Sentences are stored in an arena owned by a Tree and
// addressed by an opaque nodeID distinct from the backend-assigned
// state_id, following the parent/first-child/next-sibling layout
// described for the controller's internal representation: this avoids
// cyclic owning references (a Node never holds a pointer to its
// parent or children directly) and makes removal a constant number of
// pointer rewrites rather than a subtree walk.
package sentence

import (
	"fmt"
	"time"

	"github.com/jad-hamza/vscoq/position"
)

// Status is the lifecycle state the backend reports for a sentence.
type Status int

const (
	// ProcessingInput is the status assigned at creation, before any
	// feedback has arrived.
	ProcessingInput Status = iota
	Processed
	Incomplete
	Complete
	InProgress
	// Error is terminal for the sentence but does not by itself remove
	// it from the tree.
	Error
)

// String renders the status for logging and diagnostics.
func (s Status) String() string {
	switch s {
	case ProcessingInput:
		return "ProcessingInput"
	case Processed:
		return "Processed"
	case Incomplete:
		return "Incomplete"
	case Complete:
		return "Complete"
	case InProgress:
		return "InProgress"
	case Error:
		return "Error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// SentenceError is the error recorded against a sentence, with a
// sub-range relative to the sentence's own text.
type SentenceError struct {
	Message  string
	SubRange position.Range
}

// StateID is the backend-assigned, unique, non-negative integer
// identifier for a sentence.
type StateID int

// NodeID is an opaque handle into a Tree's arena (the node's index in
// it). It is unrelated to the sentence's StateID, even where the two
// happen to be numerically equal, and must not be persisted outside
// the Tree that produced it.
type NodeID int

const noNode NodeID = -1

// Node is one sentence's state. Callers reach a Node only through a
// Tree (NewRoot, Add, or a traversal); there is no exported
// constructor, so parent/child links always stay consistent with the
// owning Tree.
type Node struct {
	tree *Tree

	id      NodeID
	stateID StateID

	text      string
	rng       position.Range
	status    Status
	err       *SentenceError
	startedAt time.Time

	parent      NodeID
	firstChild  NodeID
	lastChild   NodeID
	nextSibling NodeID
	prevSibling NodeID
}

// StateID returns the backend-assigned identifier for this sentence.
func (n *Node) StateID() StateID { return n.stateID }

// Text returns the exact command text submitted for this sentence.
func (n *Node) Text() string { return n.text }

// Range returns the document range this sentence occupied at submission
// time (or as last adjusted by applied edits).
func (n *Node) Range() position.Range { return n.rng }

// Status returns the sentence's current lifecycle status.
func (n *Node) Status() Status { return n.status }

// Error returns the recorded error, or nil if none.
func (n *Node) Error() *SentenceError { return n.err }

// StartedAt returns when this sentence was created.
func (n *Node) StartedAt() time.Time { return n.startedAt }

// IsRoot reports whether this is the tree's root sentence.
func (n *Node) IsRoot() bool { return n.parent == noNode }

// Parent returns this sentence's parent, or nil if it is the root.
func (n *Node) Parent() *Node {
	if n.parent == noNode {
		return nil
	}
	return n.tree.node(n.parent)
}

// Children returns this sentence's children in acceptance order.
func (n *Node) Children() []*Node {
	var out []*Node
	for c := n.firstChild; c != noNode; {
		child := n.tree.node(c)
		out = append(out, child)
		c = child.nextSibling
	}
	return out
}

// UpdateStatus sets the sentence's status. Any status is accepted from
// any prior status; the backend is the sole authority on transitions.
func (n *Node) UpdateStatus(s Status) {
	n.status = s
}

// SetError records an error against the sentence and transitions its
// status to Error. The sentence is not removed from the tree by this
// call alone.
func (n *Node) SetError(message string, subRange position.Range) {
	n.err = &SentenceError{Message: message, SubRange: subRange}
	n.status = Error
}

// IsBefore reports whether this sentence's range sorts entirely before p.
func (n *Node) IsBefore(p position.Position) bool {
	return position.IsBeforeOrEqual(n.rng.End, p)
}

// Contains reports whether p falls within this sentence's range.
func (n *Node) Contains(p position.Position) bool {
	return n.rng.Contains(p)
}

// TextEdit is a single replacement of [Range] with NewText, the unit
// apply_changes works over.
type TextEdit struct {
	Range   position.Range
	NewText string
}

// ApplyTextChanges applies edits to this sentence:
//
//   - edits must be supplied in greatest-start-first order, and must
//     already be filtered to those not entirely after this sentence;
//   - an edit whose range overlaps the interior of the sentence's text
//     invalidates it;
//   - edits entirely before the sentence shift its range by the
//     cumulative delta and do not invalidate it;
//   - an edit that merely touches the sentence's start boundary (its
//     end equals the sentence's start) counts as entirely before the
//     sentence: it shifts the sentence and does not invalidate it.
//
// Returns true if the sentence was invalidated.
func (n *Node) ApplyTextChanges(edits []TextEdit) bool {
	for _, e := range edits {
		if e.Range.Overlaps(n.rng) {
			return true
		}
		// e.Range.End <= n.rng.Start: entirely before this sentence
		// (including the touching-boundary case, which shifts this
		// sentence rather than invalidating it). Anything else has
		// already been filtered out by the caller.
		if position.IsBeforeOrEqual(e.Range.End, n.rng.Start) {
			d := position.ToRangeDelta(e.Range, e.NewText)
			n.rng = d.ApplyToRange(n.rng)
		}
	}
	return false
}
