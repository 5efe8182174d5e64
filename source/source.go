// Package source defines the command-source interface the STM
// controller consumes to segment raw document text into candidate
// commands.
package source

import "github.com/jad-hamza/vscoq/position"

// Command is one candidate command the controller may submit: its
// text and the range it occupies in the document.
type Command struct {
	Text  string
	Range position.Range
}

// Iterator produces a lazy, restartable sequence of candidate commands
// starting from a fixed anchor. The controller may call Next one step
// ahead of actually consuming a command, to let parsing overlap with
// backend round-trips, and abandons an iterator outright (rather than
// resetting it) whenever the focus jumps non-contiguously — callers
// should treat a discarded Iterator as eligible for Close without a
// final Next.
type Iterator interface {
	// Next returns the next candidate command, or ok=false once the
	// bound (or the end of the document) is reached.
	Next() (cmd Command, ok bool, err error)

	// Close releases any resources the iterator holds (e.g., a parser
	// handle). Safe to call multiple times.
	Close() error
}

// Source is the consumed factory: given an anchor and an optional
// exclusive upper bound, it returns an Iterator over candidate
// commands starting at or after start.
type Source interface {
	CommandSource(start position.Position, end *position.Position) (Iterator, error)
}
