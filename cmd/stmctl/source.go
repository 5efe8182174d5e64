package main

import (
	"os"
	"strings"

	"github.com/jad-hamza/vscoq/position"
	"github.com/jad-hamza/vscoq/source"
)

// loadSliceSource does a naive period-terminated split of a proof
// script into commands. It exists so the CLI has something to drive
// the controller with out of the box: source.TreeSitterSource remains
// the reference implementation for callers that link in a real
// grammar, which this demo command does not carry.
func loadSliceSource(path string) (*source.SliceSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &source.SliceSource{Commands: splitCommands(string(data))}, nil
}

func splitCommands(text string) []source.Command {
	var cmds []source.Command
	line, char := 0, 0
	start := position.Position{Line: line, Character: char}
	var b strings.Builder

	advance := func(r rune) {
		if r == '\n' {
			line++
			char = 0
		} else {
			char++
		}
	}

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		b.WriteRune(r)
		advance(r)

		if r == '.' && (i+1 == len(runes) || isBoundary(runes[i+1])) {
			cmds = append(cmds, source.Command{
				Text:  b.String(),
				Range: position.Range{Start: start, End: position.Position{Line: line, Character: char}},
			})
			b.Reset()
			start = position.Position{Line: line, Character: char}
		}
	}
	return cmds
}

func isBoundary(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
