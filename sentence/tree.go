package sentence

import (
	"time"

	"github.com/jad-hamza/vscoq/position"
)

// Tree is the ordered tree of sentences rooted at a distinguished root
// sentence created on backend initialization.
//
// # Thread Safety
//
// Tree is not safe for concurrent use; callers (the STM controller)
// are responsible for serializing access to it.
type Tree struct {
	arena []*Node
	byID  map[StateID]*Node
	root  NodeID
}

// NewTree creates an empty tree. Call NewRoot before any other
// operation; Root panics if called first.
func NewTree() *Tree {
	return &Tree{
		byID: make(map[StateID]*Node),
		root: noNode,
	}
}

// NewRoot creates the distinguished root sentence with no text and a
// zero range. Calling NewRoot twice on the same tree is a
// programmer error and panics.
func (t *Tree) NewRoot(stateID StateID) *Node {
	if t.root != noNode {
		panic("sentence: NewRoot called on a tree that already has a root")
	}

	n := &Node{
		tree:        t,
		id:          NodeID(len(t.arena)),
		stateID:     stateID,
		status:      ProcessingInput,
		startedAt:   time.Now(),
		parent:      noNode,
		firstChild:  noNode,
		lastChild:   noNode,
		nextSibling: noNode,
		prevSibling: noNode,
	}
	t.arena = append(t.arena, n)
	t.byID[stateID] = n
	t.root = n.id
	return n
}

// Root returns the tree's root sentence. Panics if NewRoot has not
// been called yet.
func (t *Tree) Root() *Node {
	if t.root == noNode {
		panic("sentence: tree has no root")
	}
	return t.node(t.root)
}

// HasRoot reports whether NewRoot has been called.
func (t *Tree) HasRoot() bool {
	return t.root != noNode
}

func (t *Tree) node(id NodeID) *Node {
	return t.arena[id]
}

// Get looks up a sentence by its backend state-id.
func (t *Tree) Get(stateID StateID) (*Node, bool) {
	n, ok := t.byID[stateID]
	return n, ok
}

// Add appends a new child sentence under parent. The
// new sentence's range must satisfy range.Start >= parent.Range().End;
// violating this is a programmer error caught by the STM controller
// before Add is called, and Add itself does not check it. Add returns
// ErrNoRoot for a nil parent and ErrDuplicateStateID for a state-id
// already in the tree.
func (t *Tree) Add(parent *Node, text string, stateID StateID, rng position.Range, startedAt time.Time) (*Node, error) {
	if parent == nil {
		return nil, ErrNoRoot
	}
	if _, exists := t.byID[stateID]; exists {
		return nil, ErrDuplicateStateID
	}

	n := &Node{
		tree:        t,
		id:          NodeID(len(t.arena)),
		stateID:     stateID,
		text:        text,
		rng:         rng,
		status:      ProcessingInput,
		startedAt:   startedAt,
		parent:      parent.id,
		firstChild:  noNode,
		lastChild:   noNode,
		nextSibling: noNode,
		prevSibling: noNode,
	}
	t.arena = append(t.arena, n)
	t.byID[stateID] = n

	if parent.lastChild == noNode {
		parent.firstChild = n.id
		parent.lastChild = n.id
	} else {
		last := t.node(parent.lastChild)
		last.nextSibling = n.id
		n.prevSibling = parent.lastChild
		parent.lastChild = n.id
	}

	return n, nil
}

// Descendants returns every descendant of n in pre-order (the
// document's acceptance order for the root).
func (t *Tree) Descendants(n *Node) []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(cur *Node) {
		for _, child := range cur.Children() {
			out = append(out, child)
			walk(child)
		}
	}
	walk(n)
	return out
}

// DescendantsUntil iterates the descendants of n in pre-order, stopping
// at but not including end. end must be a descendant of n, or the root
// itself is always reachable via its own subtree walk.
func (t *Tree) DescendantsUntil(n *Node, end *Node) []*Node {
	var out []*Node
	var walk func(*Node) bool
	walk = func(cur *Node) bool {
		for _, child := range cur.Children() {
			if child.id == end.id {
				return true
			}
			out = append(out, child)
			if walk(child) {
				return true
			}
		}
		return false
	}
	walk(n)
	return out
}

// Ancestors walks from start back to the root, inclusive of start,
// terminating at the root.
func (t *Tree) Ancestors(start *Node) []*Node {
	var out []*Node
	for cur := start; cur != nil; cur = cur.Parent() {
		out = append(out, cur)
	}
	return out
}

// RemoveDescendentsUntil removes every descendant of n strictly
// between n and end (exclusive on both sides), splicing end (and its
// own subtree) to become a direct child of n. Returns the removed
// nodes in pre-order. end must currently be a descendant of n.
func (t *Tree) RemoveDescendentsUntil(n *Node, end *Node) ([]*Node, error) {
	if !t.isDescendant(n, end) {
		return nil, ErrNotDescendant
	}

	removed := t.DescendantsUntil(n, end)

	// Detach end from its current parent's child list.
	endParent := end.Parent()
	t.detach(endParent, end)

	// Remove every node strictly between n and end from the index and
	// from their parents' child lists. Since `removed` is listed in
	// pre-order and every node in it is strictly between n and end,
	// detaching from whatever parent each currently has (which may
	// itself be in `removed`) is sufficient; we don't need to walk
	// twice because detach only touches sibling/parent pointers, not
	// the removed node's own children.
	for _, r := range removed {
		delete(t.byID, r.stateID)
	}
	for _, r := range removed {
		p := r.Parent()
		if p != nil && !containsNode(removed, p) {
			t.detach(p, r)
		}
	}

	// Re-parent end under n directly.
	end.parent = n.id
	end.prevSibling = noNode
	end.nextSibling = noNode
	if n.firstChild == noNode {
		n.firstChild = end.id
		n.lastChild = end.id
	} else {
		last := t.node(n.lastChild)
		last.nextSibling = end.id
		end.prevSibling = n.lastChild
		n.lastChild = end.id
	}

	return removed, nil
}

// Truncate removes all descendants of n, dropping them from the
// state-id index entirely.
func (t *Tree) Truncate(n *Node) []*Node {
	removed := t.Descendants(n)
	for _, r := range removed {
		delete(t.byID, r.stateID)
	}
	n.firstChild = noNode
	n.lastChild = noNode
	return removed
}

// detach removes child from parent's child list. It does not touch
// the state-id index.
func (t *Tree) detach(parent *Node, child *Node) {
	if parent == nil {
		return
	}
	if child.prevSibling != noNode {
		t.node(child.prevSibling).nextSibling = child.nextSibling
	} else {
		parent.firstChild = child.nextSibling
	}
	if child.nextSibling != noNode {
		t.node(child.nextSibling).prevSibling = child.prevSibling
	} else {
		parent.lastChild = child.prevSibling
	}
}

func (t *Tree) isDescendant(ancestor *Node, candidate *Node) bool {
	for cur := candidate; cur != nil; cur = cur.Parent() {
		if cur.id == ancestor.id {
			return true
		}
	}
	return false
}

func containsNode(nodes []*Node, target *Node) bool {
	for _, n := range nodes {
		if n.id == target.id {
			return true
		}
	}
	return false
}

// LastSentence returns the sentence with the greatest range end across
// the subtree rooted at n. If n has no
// descendants, n itself is returned.
func (t *Tree) LastSentence(n *Node) *Node {
	last := n
	for _, d := range t.Descendants(n) {
		if position.IsAfter(d.rng.End, last.rng.End) {
			last = d
		}
	}
	return last
}
