package source

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jad-hamza/vscoq/position"
)

// TreeSitterSource is a reference Source implementation used by
// tests: it parses the full document with a supplied tree-sitter
// grammar and treats each top-level named child of the root node as
// one candidate command. It is not a substitute for a real
// proof-script parser (rendering and grammar-specific sentence
// splitting are out of scope) — it exists so the controller has
// something concrete to drive end to end against a real grammar
// package rather than the CLI's naive period-splitter.
type TreeSitterSource struct {
	lang *sitter.Language
	text string
}

// NewTreeSitterSource builds a Source that parses text with lang.
// SetDocumentText replaces text for subsequent CommandSource calls,
// e.g. after the client's document changes.
func NewTreeSitterSource(lang *sitter.Language, text string) *TreeSitterSource {
	return &TreeSitterSource{lang: lang, text: text}
}

// SetDocumentText updates the text CommandSource parses from.
func (s *TreeSitterSource) SetDocumentText(text string) {
	s.text = text
}

// CommandSource implements Source, reparsing the source's current
// document text on every call — tree-sitter's incremental reparse
// API isn't exposed here, so each call pays a full parse.
func (s *TreeSitterSource) CommandSource(start position.Position, end *position.Position) (Iterator, error) {
	return NewTreeSitterIterator(context.Background(), s.lang, s.text, start, end)
}

// NewTreeSitterIterator parses text with lang and returns an Iterator
// over its top-level named children whose start position is at or
// after start (and, if end is non-nil, strictly before it).
func NewTreeSitterIterator(ctx context.Context, lang *sitter.Language, text string, start position.Position, end *position.Position) (Iterator, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, []byte(text))
	if err != nil {
		return nil, fmt.Errorf("source: parse: %w", err)
	}

	root := tree.RootNode()
	var commands []Command
	count := int(root.NamedChildCount())
	for i := 0; i < count; i++ {
		child := root.NamedChild(i)
		r := nodeRange(child)
		if position.IsBefore(r.Start, start) {
			continue
		}
		if end != nil && !position.IsBefore(r.Start, *end) {
			break
		}
		commands = append(commands, Command{
			Text:  child.Content([]byte(text)),
			Range: r,
		})
	}

	return &treeSitterIterator{tree: tree, commands: commands}, nil
}

func nodeRange(n *sitter.Node) position.Range {
	s, e := n.StartPoint(), n.EndPoint()
	return position.Range{
		Start: position.Position{Line: int(s.Row), Character: int(s.Column)},
		End:   position.Position{Line: int(e.Row), Character: int(e.Column)},
	}
}

type treeSitterIterator struct {
	tree     *sitter.Tree
	commands []Command
	next     int
	closed   bool
}

// Next implements Iterator.
func (it *treeSitterIterator) Next() (Command, bool, error) {
	if it.closed || it.next >= len(it.commands) {
		return Command{}, false, nil
	}
	cmd := it.commands[it.next]
	it.next++
	return cmd, true, nil
}

// Close implements Iterator.
func (it *treeSitterIterator) Close() error {
	if !it.closed {
		it.tree.Close()
		it.closed = true
	}
	return nil
}
