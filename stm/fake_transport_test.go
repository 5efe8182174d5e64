package stm

import (
	"context"
	"sync"

	"github.com/jad-hamza/vscoq/backend"
	"github.com/jad-hamza/vscoq/position"
)

// fakeTransport is a minimal, deterministic backend.Transport used by
// the controller's tests. It assigns state-ids sequentially, supports
// scripted add failures by command text, and can be told to report a
// new_focus on the next EditAt call to exercise the open-proof jump
// path.
type fakeTransport struct {
	mu sync.Mutex

	nextStateID int
	failures    map[string]*backend.CommandFailure
	unfocused   map[string]int
	feedback    chan backend.Event
	closed      bool

	// nextEditAtFocus, if non-nil, is consumed by the next EditAt call
	// and reported as its NewFocus.
	nextEditAtFocus *backend.NewFocus
	editAtCalls     []int
	ltacProfCalls   int

	// addStarted and addGate, if set, make Add signal addStarted as
	// soon as it begins and then block until addGate is closed, so
	// tests can observe behavior while an add is still in flight.
	addStarted      chan struct{}
	addGate         chan struct{}
	interruptCalls  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		nextStateID: 1,
		failures:    make(map[string]*backend.CommandFailure),
		unfocused:   make(map[string]int),
		feedback:    make(chan backend.Event, 16),
	}
}

func (f *fakeTransport) Reset(ctx context.Context) (int, error) {
	return 0, nil
}

func (f *fakeTransport) Add(ctx context.Context, text string, version int, parentStateID int, verbose bool) (backend.AddResult, error) {
	f.mu.Lock()
	started, gate := f.addStarted, f.addGate
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if failure, ok := f.failures[text]; ok {
		return backend.AddResult{}, failure
	}

	id := f.nextStateID
	f.nextStateID++

	result := backend.AddResult{NewStateID: id}
	if target, ok := f.unfocused[text]; ok {
		delete(f.unfocused, text)
		result.UnfocusedStateID = &target
	}
	return result, nil
}

func (f *fakeTransport) EditAt(ctx context.Context, stateID int) (backend.EditAtResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.editAtCalls = append(f.editAtCalls, stateID)

	result := backend.EditAtResult{NewFocus: f.nextEditAtFocus}
	f.nextEditAtFocus = nil
	return result, nil
}

func (f *fakeTransport) Goal(ctx context.Context) (backend.Goals, error) {
	return backend.Goals{}, nil
}

func (f *fakeTransport) Query(ctx context.Context, text string, stateID *int) (string, error) {
	return "echo: " + text, nil
}

func (f *fakeTransport) Interrupt(ctx context.Context) error {
	f.mu.Lock()
	f.interruptCalls++
	f.mu.Unlock()
	return nil
}
func (f *fakeTransport) Quit(ctx context.Context) error                 { return nil }
func (f *fakeTransport) ResizeWindow(ctx context.Context, cols int) error { return nil }

func (f *fakeTransport) LtacProfilingResults(ctx context.Context, stateID *int) (backend.ProfilingResults, error) {
	f.mu.Lock()
	f.ltacProfCalls++
	f.mu.Unlock()
	return backend.ProfilingResults{StateID: stateID, Entries: []backend.ProfilingEntry{{Tactic: "auto", Total: 1.5, Calls: 1}}}, nil
}

func (f *fakeTransport) Feedback() <-chan backend.Event { return f.feedback }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.feedback)
	}
	return nil
}

func (f *fakeTransport) push(ev backend.Event) {
	f.feedback <- ev
}

func (f *fakeTransport) failNext(text, message string, atStateID *int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[text] = &backend.CommandFailure{
		StateID: atStateID,
		Message: message,
		Range:   position.Range{End: position.Position{Character: len(text)}},
	}
}

// scriptUnfocused makes the next Add for text report target as its
// UnfocusedStateID, as if the backend closed a bullet or subproof and
// moved focus somewhere other than the sentence just added. Consumed
// after one matching Add call.
func (f *fakeTransport) scriptUnfocused(text string, target int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unfocused[text] = target
}

var _ backend.Transport = (*fakeTransport)(nil)

// recordingCallbacks captures every callback invocation for assertions.
type recordingCallbacks struct {
	mu sync.Mutex

	statusUpdates []statusUpdateCall
	cleared       []position.Range
	errors        []errorCall
	messages      []messageCall
	profResults   []profResultCall
	diedWith      []error
	diedCalls     int
}

type statusUpdateCall struct {
	Range  position.Range
	Status int
}

type errorCall struct {
	SentenceRange, ErrRange position.Range
	Message                 string
}

type messageCall struct {
	Level int
	Text  string
}

type profResultCall struct {
	Range   position.Range
	Results backend.ProfilingResults
}

func newRecordingCallbacks() *recordingCallbacks {
	return &recordingCallbacks{}
}

func (c *recordingCallbacks) SentenceStatusUpdate(rng position.Range, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusUpdates = append(c.statusUpdates, statusUpdateCall{rng, status})
}

func (c *recordingCallbacks) ClearSentence(rng position.Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared = append(c.cleared, rng)
}

func (c *recordingCallbacks) Error(sentenceRange, errRange position.Range, message string, rich any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, errorCall{sentenceRange, errRange, message})
}

func (c *recordingCallbacks) Message(level int, text string, rich any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, messageCall{level, text})
}

func (c *recordingCallbacks) LtacProfResults(rng position.Range, results backend.ProfilingResults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profResults = append(c.profResults, profResultCall{rng, results})
}

func (c *recordingCallbacks) CoqDied(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diedCalls++
	c.diedWith = append(c.diedWith, err)
}

var _ Callbacks = (*recordingCallbacks)(nil)
