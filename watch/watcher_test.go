package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jad-hamza/vscoq/reconcile"
)

type recordingApplier struct {
	mu    sync.Mutex
	calls [][]reconcile.Edit
}

func (a *recordingApplier) ApplyChanges(ctx context.Context, edits []reconcile.Edit, newVersion int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, edits)
	return nil
}

func (a *recordingApplier) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func TestWatcherAppliesEditsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proof.v")
	require.NoError(t, os.WriteFile(path, []byte("Lemma foo: True.\n"), 0o644))

	applier := &recordingApplier{}
	w, err := New(path, applier, nil)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("Lemma foo: True.\nauto.\n"), 0o644))

	require.Eventually(t, func() bool {
		return applier.callCount() >= 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestComputeEditsNoopWhenTextUnchanged(t *testing.T) {
	edits, err := computeEdits("same text\n", "same text\n")
	require.NoError(t, err)
	assert.Empty(t, edits)
}

func TestComputeEditsAppendedLine(t *testing.T) {
	edits, err := computeEdits("Lemma foo: True.\n", "Lemma foo: True.\nauto.\n")
	require.NoError(t, err)
	require.Len(t, edits, 1)

	// diff -u includes the unchanged line as context, so the hunk
	// spans the whole original (one-line) file and the replacement
	// text carries both the context and the newly added line.
	assert.Equal(t, "Lemma foo: True.\nauto.\n", edits[0].NewText)
	assert.Equal(t, 0, edits[0].Range.Start.Line)
	assert.Equal(t, 1, edits[0].Range.End.Line)
}
