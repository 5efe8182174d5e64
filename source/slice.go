package source

import "github.com/jad-hamza/vscoq/position"

// SliceSource is a fixed, pre-split Source used in tests: it serves
// commands from an in-memory slice rather than parsing text, standing
// in for whatever a real grammar-aware source would produce.
type SliceSource struct {
	Commands []Command
}

// CommandSource implements Source.
func (s *SliceSource) CommandSource(start position.Position, end *position.Position) (Iterator, error) {
	var filtered []Command
	for _, c := range s.Commands {
		if position.IsBefore(c.Range.Start, start) {
			continue
		}
		if end != nil && !position.IsBefore(c.Range.Start, *end) {
			break
		}
		filtered = append(filtered, c)
	}
	return &sliceIterator{commands: filtered}, nil
}

type sliceIterator struct {
	commands []Command
	next     int
}

// Next implements Iterator.
func (it *sliceIterator) Next() (Command, bool, error) {
	if it.next >= len(it.commands) {
		return Command{}, false, nil
	}
	cmd := it.commands[it.next]
	it.next++
	return cmd, true, nil
}

// Close implements Iterator.
func (it *sliceIterator) Close() error { return nil }
