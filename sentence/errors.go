package sentence

import "errors"

// Sentinel errors for the sentence package.
var (
	// ErrNotFound is returned when a state-id has no corresponding sentence.
	ErrNotFound = errors.New("sentence: state-id not found")

	// ErrDuplicateStateID is returned when adding a sentence whose state-id
	// already exists in the tree.
	ErrDuplicateStateID = errors.New("sentence: duplicate state-id")

	// ErrNoRoot is returned by Add when it is given a nil parent, as
	// happens when no root sentence exists yet.
	ErrNoRoot = errors.New("sentence: tree has no root")

	// ErrNotDescendant is returned when RemoveDescendentsUntil is asked
	// to walk to a node that isn't a descendant of the starting node.
	ErrNotDescendant = errors.New("sentence: target is not a descendant")
)
