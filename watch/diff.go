// Package watch drives the STM from filesystem changes instead of an
// editor: it watches a single proof-script file and turns each write
// into an apply_changes call, standing in for the "editor adapter"
// collaborator the STM is otherwise meant to be embedded behind.
package watch

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/jad-hamza/vscoq/position"
	"github.com/jad-hamza/vscoq/reconcile"
)

// computeEdits diffs oldText against newText using the system diff
// utility and turns the resulting hunks into line-granular
// reconcile.Edit values. Diffing at line granularity (rather than
// tracking exact character offsets) matches what a real filesystem
// watcher can know about a write it didn't itself originate.
func computeEdits(oldText, newText string) ([]reconcile.Edit, error) {
	if oldText == newText {
		return nil, nil
	}

	unified, err := runDiff(oldText, newText)
	if err != nil {
		return nil, err
	}
	if len(unified) == 0 {
		return nil, nil
	}

	fileDiff, err := diff.ParseFileDiff(unified)
	if err != nil {
		return nil, fmt.Errorf("watch: parse diff: %w", err)
	}

	edits := make([]reconcile.Edit, 0, len(fileDiff.Hunks))
	for _, h := range fileDiff.Hunks {
		edits = append(edits, hunkToEdit(h))
	}
	return edits, nil
}

// runDiff shells out to `diff -u`, which exits 1 (not an error, here)
// whenever the inputs differ.
func runDiff(oldText, newText string) ([]byte, error) {
	oldFile, err := os.CreateTemp("", "stmctl-old-*")
	if err != nil {
		return nil, fmt.Errorf("watch: temp file: %w", err)
	}
	defer os.Remove(oldFile.Name())
	newFile, err := os.CreateTemp("", "stmctl-new-*")
	if err != nil {
		return nil, fmt.Errorf("watch: temp file: %w", err)
	}
	defer os.Remove(newFile.Name())

	if _, err := oldFile.WriteString(oldText); err != nil {
		return nil, err
	}
	if err := oldFile.Close(); err != nil {
		return nil, err
	}
	if _, err := newFile.WriteString(newText); err != nil {
		return nil, err
	}
	if err := newFile.Close(); err != nil {
		return nil, err
	}

	out, err := exec.Command("diff", "-u", oldFile.Name(), newFile.Name()).Output()
	if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("watch: run diff: %w", err)
	}
	return out, nil
}

// hunkToEdit replaces every original line the hunk touches with the
// hunk's added/context lines, which is exactly what a line-based
// unified diff hunk describes.
func hunkToEdit(h *diff.Hunk) reconcile.Edit {
	start := position.Position{Line: int(h.OrigStartLine) - 1, Character: 0}
	end := position.Position{Line: int(h.OrigStartLine) - 1 + int(h.OrigLines), Character: 0}

	var newText strings.Builder
	scanner := bufio.NewScanner(bytes.NewReader(h.Body))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		switch line[0] {
		case '-':
			continue
		case '+', ' ':
			newText.WriteString(line[1:])
			newText.WriteByte('\n')
		}
	}

	return reconcile.Edit{
		Range:   position.Range{Start: start, End: end},
		NewText: newText.String(),
	}
}
