package watch

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/jad-hamza/vscoq/reconcile"
	"github.com/jad-hamza/vscoq/stmlog"
)

// Applier is the subset of *stm.Controller the watcher drives. It is
// expressed as an interface so tests can substitute a recording stub
// without needing a running backend.
type Applier interface {
	ApplyChanges(ctx context.Context, edits []reconcile.Edit, newVersion int) error
}

// Watcher watches a single proof-script file and calls Applier's
// ApplyChanges with the edits implied by each write, incrementing the
// document version on every call: the document version is whatever
// monotonically increasing counter the editor adapter maintains, and
// here that's us.
type Watcher struct {
	path    string
	apply   Applier
	logger  *stmlog.Logger
	fsw     *fsnotify.Watcher
	content string
	version int
}

// New creates a Watcher over path, reading its current contents as the
// baseline against which future writes are diffed.
func New(path string, apply Applier, logger *stmlog.Logger) (*Watcher, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("watch: read %s: %w", path, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch: watch %s: %w", path, err)
	}
	if logger == nil {
		logger = stmlog.Default()
	}

	return &Watcher{
		path:    path,
		apply:   apply,
		logger:  logger.With("component", "watch"),
		fsw:     fsw,
		content: string(data),
	}, nil
}

// Run blocks, applying file changes until ctx is cancelled or the
// underlying watch fails irrecoverably.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.handleChange(ctx); err != nil {
				w.logger.Error("failed to apply file change", "error", err, "path", w.path)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)
		}
	}
}

func (w *Watcher) handleChange(ctx context.Context) error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("watch: read %s: %w", w.path, err)
	}
	newText := string(data)

	edits, err := computeEdits(w.content, newText)
	if err != nil {
		return err
	}
	if len(edits) == 0 {
		w.content = newText
		return nil
	}

	w.version++
	if err := w.apply.ApplyChanges(ctx, edits, w.version); err != nil {
		return fmt.Errorf("watch: apply changes: %w", err)
	}
	w.content = newText
	return nil
}

// Close stops watching without draining Run; callers that are not
// blocked in Run (e.g. tests) can use this to release the fsnotify
// handle directly.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
