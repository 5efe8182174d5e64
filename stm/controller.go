// Package stm implements the Sentence Transactional Machine
// controller: the orchestrator that mediates between an editor and a
// proof-assistant backend, owning the sentence tree, the feedback
// buffer, and the serialization discipline described by the rest of
// this repository's packages.
package stm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jad-hamza/vscoq/backend"
	"github.com/jad-hamza/vscoq/feedback"
	"github.com/jad-hamza/vscoq/position"
	"github.com/jad-hamza/vscoq/reconcile"
	"github.com/jad-hamza/vscoq/sentence"
	"github.com/jad-hamza/vscoq/source"
	"github.com/jad-hamza/vscoq/stmlog"
)

type lifecycle int

const (
	uninitialized lifecycle = iota
	running
	disposed
)

// TransportFactory lazily constructs the backend transport on first
// use: the root sentence is created on whichever operation needs the
// backend first.
type TransportFactory func(ctx context.Context) (backend.Transport, error)

// transportBox lets the controller publish its current transport
// through an atomic.Pointer, which (unlike atomic.Value) tolerates
// going back to a nil transport on teardown.
type transportBox struct {
	t backend.Transport
}

// Controller is the STM's public contract. All exported
// methods serialize against each other via an internal mutex: a new
// operation always observes the state left by the previous one, and
// backend feedback is applied under the same mutex so the sentence
// tree and index never need their own locking.
//
// # Thread Safety
//
// Safe for concurrent method calls; they simply queue on the internal
// mutex. Callers that want true single-writer semantics (recommended)
// should still avoid overlapping calls, since a queued second call
// observes whatever state the first left behind, not a snapshot from
// when it was issued.
type Controller struct {
	mu sync.Mutex

	newTransport TransportFactory
	transport    backend.Transport

	// transportRef and backendUp mirror transport/state for Interrupt,
	// which must be able to reach the backend while another operation
	// is holding mu across its own blocking round trip. Written only
	// while mu is held (in ensureRunning/teardown); read without it.
	transportRef atomic.Pointer[transportBox]
	backendUp    atomic.Bool

	tree         *sentence.Tree
	buffer       *feedback.Buffer
	focused      *sentence.Node
	lastSentence *sentence.Node
	version      int

	state lifecycle

	callbacks Callbacks
	cfg       Config
	metrics   *Metrics
	logger    *stmlog.Logger
	limits    limiters
	profCache *profCache
}

// New builds a Controller. newTransport is called at most once, the
// first time an operation needs the backend. callbacks and logger may
// not be nil; use NopCallbacks{} and stmlog.Default() for headless use.
func New(newTransport TransportFactory, callbacks Callbacks, cfg Config, metrics *Metrics, logger *stmlog.Logger) *Controller {
	if newTransport == nil {
		panic("stm: newTransport must not be nil")
	}
	if callbacks == nil {
		panic("stm: callbacks must not be nil")
	}
	if logger == nil {
		logger = stmlog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Controller{
		newTransport: newTransport,
		buffer:       feedback.NewBuffer(),
		callbacks:    callbacks,
		cfg:          cfg,
		metrics:      metrics,
		logger:       logger.With("component", "stm"),
		limits:       newLimiters(cfg),
	}
}

// ensureRunning performs lazy backend initialization.
// Caller must hold mu.
func (c *Controller) ensureRunning(ctx context.Context) error {
	switch c.state {
	case disposed:
		return ErrDisposed
	case running:
		return nil
	}

	transport, err := c.newTransport(ctx)
	if err != nil {
		return fmt.Errorf("stm: start backend: %w", err)
	}

	rootID, err := transport.Reset(ctx)
	if err != nil {
		_ = transport.Close()
		return fmt.Errorf("stm: reset backend: %w", err)
	}

	cache, err := newProfCache(c.cfg.ProfilingCacheSize)
	if err != nil {
		_ = transport.Close()
		return err
	}

	tree := sentence.NewTree()
	root := tree.NewRoot(sentence.StateID(rootID))

	c.transport = transport
	c.tree = tree
	c.focused = root
	c.lastSentence = root
	c.profCache = cache
	c.state = running
	c.transportRef.Store(&transportBox{t: transport})
	c.backendUp.Store(true)

	go c.feedbackLoop(transport)

	c.logger.Info("backend started", "root_state_id", rootID)
	return nil
}

// feedbackLoop drains the transport's feedback channel for the
// lifetime of the backend, applying each event under mu so feedback
// callbacks execute synchronously on the same logical task as
// whatever foreground operation is in progress.
func (c *Controller) feedbackLoop(transport backend.Transport) {
	for ev := range transport.Feedback() {
		c.mu.Lock()
		if c.transport == transport {
			c.handleFeedback(ev)
		}
		c.mu.Unlock()
	}
}

// handleFeedback demultiplexes a feedback event onto its sentence. Caller must hold mu.
func (c *Controller) handleFeedback(ev backend.Event) {
	switch ev.Kind {
	case backend.EventStatusUpdate:
		if node, ok := c.tree.Get(sentence.StateID(ev.StateID)); ok {
			node.UpdateStatus(sentence.Status(ev.Status))
			c.callbacks.SentenceStatusUpdate(node.Range(), ev.Status)
		} else {
			c.buffer.PushStatus(feedback.StatusUpdate{
				StateID: ev.StateID, Route: ev.Route, Status: ev.Status, Worker: ev.Worker,
			})
			c.metrics.FeedbackBuffered.Set(float64(c.buffer.Len()))
		}

	case backend.EventStateError:
		if node, ok := c.tree.Get(sentence.StateID(ev.StateID)); ok {
			var sub position.Range
			if ev.ErrLoc != nil {
				sub = *ev.ErrLoc
			}
			node.SetError(ev.ErrMessage, sub)
			c.callbacks.Error(node.Range(), translateSubRange(node, sub), ev.ErrMessage, nil)
		} else {
			c.logger.Warn("state-error for unknown state-id dropped", "state_id", ev.StateID, "message", ev.ErrMessage)
		}

	case backend.EventMessage:
		if ev.Message != nil {
			c.callbacks.Message(ev.Message.Level, ev.Message.Text, ev.Message.Rich)
		}

	case backend.EventProfiling:
		if ev.Profiling != nil {
			c.profCache.put(ev.Profiling.StateID, ev.Profiling.Results)
			if node, ok := c.tree.Get(sentence.StateID(ev.Profiling.StateID)); ok {
				c.callbacks.LtacProfResults(node.Range(), ev.Profiling.Results)
			}
		}

	case backend.EventClosed:
		if c.state != running {
			return
		}
		c.state = disposed
		var underlying error
		if ev.Closed != nil {
			underlying = ev.Closed.Err
		}
		if underlying != nil {
			c.logger.Error("backend closed unexpectedly", "error", underlying)
		}
		c.callbacks.CoqDied(&BackendClosedError{Err: underlying})

	case backend.EventWorkerStatus, backend.EventFileLoaded, backend.EventFileDependency:
		// No core behavior required beyond routing; the demo callbacks
		// surface don't expose these.
	}
}

// drainBufferFor re-dispatches any buffered feedback that was waiting
// on stateID, called immediately after a successful add.
// Caller must hold mu.
func (c *Controller) drainBufferFor(stateID sentence.StateID) {
	records := c.buffer.Drain()
	for _, r := range records {
		if sentence.StateID(r.StateID) != stateID {
			if r.Status != nil {
				c.buffer.PushStatus(*r.Status)
			}
			continue
		}
		if r.Status != nil {
			if node, ok := c.tree.Get(stateID); ok {
				node.UpdateStatus(sentence.Status(r.Status.Status))
				c.callbacks.SentenceStatusUpdate(node.Range(), r.Status.Status)
			}
		}
	}
	c.metrics.FeedbackBuffered.Set(float64(c.buffer.Len()))
}

// StepForward advances the focus by one sentence, submitting it to the backend.
func (c *Controller) StepForward(ctx context.Context, src source.Source, verbose bool) (node *sentence.Node, err error) {
	ctx, span := startSpan(ctx, "step_forward")
	defer func() { recordErr(span, err); span.End() }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err = c.ensureRunning(ctx); err != nil {
		return nil, err
	}

	it, err := src.CommandSource(c.focused.Range().End, nil)
	if err != nil {
		return nil, fmt.Errorf("stm: command source: %w", err)
	}
	defer it.Close()

	cmd, ok, err := it.Next()
	if err != nil {
		return nil, fmt.Errorf("stm: command source: %w", err)
	}
	if !ok {
		return nil, nil
	}

	return c.addCommand(ctx, cmd, verbose)
}

// StepBackward cancels the focused sentence by focusing its parent.
func (c *Controller) StepBackward(ctx context.Context) (err error) {
	ctx, span := startSpan(ctx, "step_backward")
	defer func() { recordErr(span, err); span.End() }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err = c.ensureRunning(ctx); err != nil {
		return err
	}
	if c.focused.IsRoot() {
		return nil
	}
	return c.focusSentence(ctx, c.focused.Parent())
}

// InterpretToPoint advances or rewinds the focus to the sentence containing a position.
func (c *Controller) InterpretToPoint(ctx context.Context, pos position.Position, src source.Source) (err error) {
	ctx, span := startSpan(ctx, "interpret_to_point")
	defer func() { recordErr(span, err); span.End() }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err = c.ensureRunning(ctx); err != nil {
		return err
	}

	it, err := src.CommandSource(c.focused.Range().End, nil)
	if err != nil {
		return fmt.Errorf("stm: command source: %w", err)
	}
	// Closes over it by reference: InterpretToPoint may reassign it to a
	// restarted iterator below (a non-contiguous focus jump), and this
	// must close whichever iterator is current when the function
	// returns, not the one that existed when the defer was registered.
	defer func() { it.Close() }()

	// The next command is optionally prefetched one step ahead while
	// the previous add is in flight, overlapping parsing with the
	// backend round trip. A single outstanding prefetch at a time; any
	// still-running one is drained before it is closed.
	var prefetched *prefetchSlot
	defer func() {
		if prefetched != nil {
			_, _, _ = prefetched.wait()
		}
	}()

	for {
		var cmd source.Command
		var ok bool
		if prefetched != nil {
			cmd, ok, err = prefetched.wait()
			prefetched = nil
		} else {
			cmd, ok, err = it.Next()
		}
		if err != nil {
			return fmt.Errorf("stm: command source: %w", err)
		}
		if !ok {
			break
		}
		if position.IsAfter(cmd.Range.End, pos) {
			break
		}

		if !position.IsEqual(cmd.Range.Start, c.focused.Range().End) {
			// Focus jumped non-contiguously (e.g. an unfocused_state_id
			// response); restart the iterator from the new anchor.
			_ = it.Close()
			it, err = src.CommandSource(c.focused.Range().End, nil)
			if err != nil {
				return fmt.Errorf("stm: command source: %w", err)
			}
			cmd, ok, err = it.Next()
			if err != nil {
				return fmt.Errorf("stm: command source: %w", err)
			}
			if !ok || position.IsAfter(cmd.Range.End, pos) {
				break
			}
		}

		if c.limits.allowPrefetch() {
			prefetched = c.prefetchNext(it)
		}

		if _, err := c.addCommand(ctx, cmd, c.cfg.Verbose); err != nil {
			return err
		}
	}

	if position.IsAfter(c.focused.Range().End, pos) {
		for _, a := range c.tree.Ancestors(c.focused) {
			if position.IsBeforeOrEqual(a.Range().End, pos) {
				return c.focusSentence(ctx, a)
			}
		}
	}
	return nil
}

// prefetchSlot is a single outstanding background call to an
// Iterator's Next, guarded by an errgroup.Group the same way
// StdioTransport supervises its read loop. Only ever one slot
// is in flight per iterator: the caller must wait on it before
// issuing another Next, prefetched or not.
type prefetchSlot struct {
	g   *errgroup.Group
	cmd source.Command
	ok  bool
}

// prefetchNext starts a best-effort fetch of the next command from it
// in the background, to overlap parsing with the add's backend round
// trip. Caller must hold mu; it is not released until the slot is
// waited on, so the background goroutine's only contention is with
// the iterator itself, never with the controller's state.
func (c *Controller) prefetchNext(it source.Iterator) *prefetchSlot {
	slot := &prefetchSlot{g: &errgroup.Group{}}
	slot.g.Go(func() error {
		cmd, ok, err := it.Next()
		slot.cmd, slot.ok = cmd, ok
		return err
	})
	return slot
}

func (s *prefetchSlot) wait() (source.Command, bool, error) {
	err := s.g.Wait()
	return s.cmd, s.ok, err
}

// addCommand implements the add-command protocol.
// Caller must hold mu.
func (c *Controller) addCommand(ctx context.Context, cmd source.Command, verbose bool) (*sentence.Node, error) {
	if !position.IsEqual(cmd.Range.Start, c.focused.Range().End) {
		return nil, c.fatal(ctx, "add attempted off-focus")
	}

	start := time.Now()
	result, err := c.transport.Add(ctx, cmd.Text, c.version, int(c.focused.StateID()), verbose)
	c.metrics.AddDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.AddFailedTotal.Inc()
		var failure *backend.CommandFailure
		if errors.As(err, &failure) {
			return nil, c.recoverFromFailure(ctx, cmd, failure)
		}
		return nil, fmt.Errorf("stm: add: %w", err)
	}

	c.metrics.AddTotal.Inc()

	node, err := c.tree.Add(c.focused, cmd.Text, sentence.StateID(result.NewStateID), cmd.Range, time.Now())
	if err != nil {
		return nil, c.fatal(ctx, fmt.Sprintf("add: %s", err))
	}

	c.drainBufferFor(node.StateID())

	if position.IsAfterOrEqual(node.Range().Start, c.lastSentence.Range().End) {
		c.lastSentence = node
	}

	if result.UnfocusedStateID != nil {
		if target, ok := c.tree.Get(sentence.StateID(*result.UnfocusedStateID)); ok {
			c.focused = target
		} else {
			c.focused = node
		}
	} else {
		c.focused = node
	}

	c.metrics.SentenceCount.Set(float64(len(c.tree.Descendants(c.tree.Root()))))
	return node, nil
}

// recoverFromFailure handles a rejected add. Caller must hold mu.
func (c *Controller) recoverFromFailure(ctx context.Context, cmd source.Command, failure *backend.CommandFailure) error {
	if failure.StateID != nil {
		if target, ok := c.tree.Get(sentence.StateID(*failure.StateID)); ok {
			if fErr := c.focusSentence(ctx, target); fErr != nil {
				c.logger.Warn("edit-at fallback after add failure also failed", "error", fErr)
			}
		}
	}

	docRange := position.Range{
		Start: position.PositionAtRelative(cmd.Range.Start, cmd.Text, failure.Range.Start.Character),
		End:   position.PositionAtRelative(cmd.Range.Start, cmd.Text, failure.Range.End.Character),
	}
	return &FailValue{Message: failure.Message, Range: docRange}
}

// translateSubRange converts a state-error's sub-range — reported by
// the backend as a byte offset relative to the sentence's own text,
// the same convention as CommandFailure.Range — into document
// coordinates anchored at node's own range, matching Callbacks.Error's
// contract.
func translateSubRange(node *sentence.Node, sub position.Range) position.Range {
	anchor := node.Range().Start
	text := node.Text()
	return position.Range{
		Start: position.PositionAtRelative(anchor, text, sub.Start.Character),
		End:   position.PositionAtRelative(anchor, text, sub.End.Character),
	}
}

// focusSentence moves the backend's focus to a sentence via edit-at. Caller must hold mu.
func (c *Controller) focusSentence(ctx context.Context, target *sentence.Node) (err error) {
	if target == c.focused {
		return nil
	}

	ctx, span := startSpan(ctx, "focus_sentence", attribute.Int("state_id", int(target.StateID())))
	defer func() { recordErr(span, err); span.End() }()

	result, err := c.transport.EditAt(ctx, int(target.StateID()))
	if err != nil {
		var failure *backend.CommandFailure
		if errors.As(err, &failure) && failure.StateID != nil {
			if fallback, ok := c.tree.Get(sentence.StateID(*failure.StateID)); ok {
				return c.focusSentence(ctx, fallback)
			}
		}
		return fmt.Errorf("stm: edit-at: %w", err)
	}

	c.metrics.CancelTotal.Inc()

	if result.NewFocus != nil {
		qed, ok := c.tree.Get(sentence.StateID(result.NewFocus.QedStateID))
		if !ok {
			return c.fatal(ctx, "edit-at new_focus names an unknown qed state-id")
		}
		removed, err := c.tree.RemoveDescendentsUntil(target, qed)
		if err != nil {
			return c.fatal(ctx, fmt.Sprintf("edit-at: %s", err))
		}
		for _, r := range removed {
			c.profCache.invalidate(int(r.StateID()))
			c.callbacks.ClearSentence(r.Range())
		}
		c.focused = target
	} else {
		removed := c.tree.Truncate(target)
		for _, r := range removed {
			c.profCache.invalidate(int(r.StateID()))
			c.callbacks.ClearSentence(r.Range())
		}
		c.focused = target
		c.lastSentence = target
	}

	return nil
}

// ApplyChanges reconciles a batch of document edits against the
// sentence tree, driven from the controller so cancellations can be
// turned into backend edit-at calls.
func (c *Controller) ApplyChanges(ctx context.Context, edits []reconcile.Edit, newVersion int) (err error) {
	ctx, span := startSpan(ctx, "apply_changes")
	defer func() { recordErr(span, err); span.End() }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == disposed {
		return ErrDisposed
	}
	c.version = newVersion

	if c.tree == nil || !c.tree.HasRoot() {
		return nil
	}

	plan, err := reconcile.Reconcile(c.tree, edits)
	if err != nil {
		return fmt.Errorf("stm: reconcile: %w", err)
	}

	for _, stateID := range plan.Cancel {
		node, ok := c.tree.Get(stateID)
		if !ok {
			continue
		}
		parent := node.Parent()
		if parent == nil {
			return c.fatal(ctx, "reconciliation tried to cancel the root sentence")
		}
		if err := c.focusSentence(ctx, parent); err != nil {
			return err
		}
	}

	if len(plan.Cancel) > 0 {
		c.lastSentence = c.tree.LastSentence(c.tree.Root())
	}
	return nil
}

// GetGoal returns the goal state at the current focus.
func (c *Controller) GetGoal(ctx context.Context) (_ backend.Goals, err error) {
	ctx, span := startSpan(ctx, "get_goal")
	defer func() { recordErr(span, err); span.End() }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != running {
		return backend.Goals{}, nil
	}

	goals, err := c.transport.Goal(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return backend.Goals{}, nil
		}
		return backend.Goals{}, fmt.Errorf("stm: goal: %w", err)
	}
	return goals, nil
}

// Query evaluates an ad-hoc query against the focused or given state.
func (c *Controller) Query(ctx context.Context, text string, pos *position.Position) (_ string, err error) {
	ctx, span := startSpan(ctx, "query")
	defer func() { recordErr(span, err); span.End() }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err = c.ensureRunning(ctx); err != nil {
		return "", err
	}

	target := c.focused
	if pos != nil {
		if found := c.sentenceContaining(*pos); found != nil {
			target = found
		}
	}

	id := int(target.StateID())
	result, err := c.transport.Query(ctx, text, &id)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil
		}
		return "", fmt.Errorf("stm: query: %w", err)
	}
	return result, nil
}

// Interrupt asks the backend to abandon its current computation. It
// never takes mu: whatever add, edit-at, goal, or query call is in
// flight holds mu for its entire round trip, so an Interrupt that
// waited on the same lock would only ever run after that call had
// already returned — too late to interrupt anything. Instead it reads
// the current transport through transportRef/backendUp, a pair of
// atomics published by ensureRunning/teardown alongside the
// mu-guarded state, so it can reach the backend while the other call
// is still awaited.
func (c *Controller) Interrupt(ctx context.Context) (err error) {
	ctx, span := startSpan(ctx, "interrupt")
	defer func() { recordErr(span, err); span.End() }()

	if !c.backendUp.Load() {
		return nil
	}
	if !c.limits.allowInterrupt() {
		return nil
	}
	box := c.transportRef.Load()
	if box == nil || box.t == nil {
		return nil
	}

	c.metrics.InterruptTotal.Inc()
	return box.t.Interrupt(ctx)
}

// RequestLtacProf fetches ltac profiling results for a state, caching them.
func (c *Controller) RequestLtacProf(ctx context.Context, pos *position.Position) (_ backend.ProfilingResults, err error) {
	ctx, span := startSpan(ctx, "request_ltac_prof")
	defer func() { recordErr(span, err); span.End() }()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err = c.ensureRunning(ctx); err != nil {
		return backend.ProfilingResults{}, err
	}

	var id *int
	if pos != nil {
		if found := c.sentenceContaining(*pos); found != nil {
			v := int(found.StateID())
			id = &v
			if cached, ok := c.profCache.get(v); ok {
				return cached, nil
			}
		}
	}

	results, err := c.transport.LtacProfilingResults(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return backend.ProfilingResults{}, nil
		}
		return backend.ProfilingResults{}, fmt.Errorf("stm: ltac_prof: %w", err)
	}
	if id != nil {
		c.profCache.put(*id, results)
	}
	return results, nil
}

// GetSentences returns every sentence currently in the tree.
func (c *Controller) GetSentences() []*sentence.Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tree == nil || !c.tree.HasRoot() {
		return nil
	}
	return c.tree.Descendants(c.tree.Root())
}

// GetSentenceErrors returns the error, if any, attached to each sentence.
func (c *Controller) GetSentenceErrors() []*sentence.SentenceError {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tree == nil || !c.tree.HasRoot() {
		return nil
	}
	var out []*sentence.SentenceError
	for _, n := range c.tree.Descendants(c.tree.Root()) {
		if e := n.Error(); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (c *Controller) sentenceContaining(pos position.Position) *sentence.Node {
	if c.tree == nil || !c.tree.HasRoot() {
		return nil
	}
	for _, n := range c.tree.Descendants(c.tree.Root()) {
		if n.Range().Contains(pos) {
			return n
		}
	}
	return nil
}

// Shutdown asks the backend to quit gracefully, then tears down. The
// backend's resulting closure is expected and is not reported via
// CoqDied.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == disposed {
		return nil
	}
	if c.state == running {
		_ = c.transport.Quit(ctx)
	}
	return c.teardown()
}

// Dispose tears down immediately, without requesting a graceful
// backend quit.
func (c *Controller) Dispose() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.teardown()
}

func (c *Controller) teardown() error {
	if c.state == disposed {
		return nil
	}
	c.backendUp.Store(false)
	c.transportRef.Store(nil)
	var err error
	if c.transport != nil {
		err = c.transport.Close()
	}
	if c.profCache != nil {
		_ = c.profCache.close()
	}
	c.state = disposed
	return err
}

// fatal reports an inconsistent-state fault, which always
// disposes the STM and notifies CoqDied. Caller must hold mu.
func (c *Controller) fatal(ctx context.Context, reason string) error {
	err := &InconsistentStateError{Reason: reason}
	c.logger.Error("inconsistent state, disposing", "reason", reason)
	_ = c.teardown()
	c.callbacks.CoqDied(err)
	return err
}

