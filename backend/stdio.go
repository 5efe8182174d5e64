package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jad-hamza/vscoq/position"
)

// StdioConfig configures a StdioTransport.
//
// # Description
//
// Modeled on a language-server manager config: a command to spawn, a
// startup timeout, and a per-request timeout.
type StdioConfig struct {
	// Command is the backend executable.
	Command string
	// Args are passed to Command.
	Args []string

	// StartupTimeout bounds how long Reset waits for the process to
	// report ready. Zero disables the timeout.
	StartupTimeout time.Duration

	// RequestTimeout bounds each individual request. Zero disables it.
	RequestTimeout time.Duration
}

// DefaultStdioConfig returns sensible defaults.
func DefaultStdioConfig(command string, args ...string) StdioConfig {
	return StdioConfig{
		Command:        command,
		Args:           args,
		StartupTimeout: 30 * time.Second,
		RequestTimeout: 10 * time.Second,
	}
}

type wireRequest struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type wireError struct {
	StateID *int            `json:"state_id,omitempty"`
	Message string          `json:"message"`
	Range   json.RawMessage `json:"range,omitempty"`
}

type wireFrame struct {
	// ID is set on responses and echoes the request that produced them.
	ID string `json:"id,omitempty"`
	// Kind is "response" or "feedback".
	Kind     string          `json:"kind"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *wireError      `json:"error,omitempty"`
	Feedback *wireFeedback   `json:"feedback,omitempty"`
}

type wireFeedback struct {
	Type    string          `json:"type"`
	StateID int             `json:"state_id"`
	Route   int             `json:"route"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StdioTransport speaks newline-delimited JSON to a backend process
// over its stdin/stdout, following a lazy-spawn / graceful-shutdown
// language-server-manager shape generalized from "one server per
// language" to "one backend process per STM instance".
//
// # Thread Safety
//
// Safe for concurrent use: requests may be issued from any goroutine,
// though the controller never does so.
type StdioTransport struct {
	cfg StdioConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	writeMu sync.Mutex
	started atomic.Bool

	pendingMu sync.Mutex
	pending   map[string]chan wireFrame

	feedback chan Event

	closeOnce sync.Once
	closed    chan struct{}
	group     *errgroup.Group
}

// NewStdioTransport spawns the configured backend process and returns
// a transport bound to it. The process is not considered ready until
// Reset succeeds.
func NewStdioTransport(cfg StdioConfig) (*StdioTransport, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("backend: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("backend: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("backend: start %s: %w", cfg.Command, err)
	}

	t := &StdioTransport{
		cfg:      cfg,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		pending:  make(map[string]chan wireFrame),
		feedback: make(chan Event, 64),
		closed:   make(chan struct{}),
	}

	g, _ := errgroup.WithContext(context.Background())
	t.group = g
	g.Go(t.readLoop)

	return t, nil
}

func (t *StdioTransport) readLoop() error {
	defer close(t.feedback)

	err := t.readFrames()
	select {
	case t.feedback <- Event{Kind: EventClosed, Closed: &ClosedEvent{Err: err}}:
	default:
	}
	return err
}

func (t *StdioTransport) readFrames() error {
	scanner := bufio.NewScanner(t.stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var frame wireFrame
		if err := json.Unmarshal(line, &frame); err != nil {
			continue
		}

		switch frame.Kind {
		case "feedback":
			if frame.Feedback != nil {
				t.dispatchFeedback(*frame.Feedback)
			}
		case "response":
			t.pendingMu.Lock()
			ch, ok := t.pending[frame.ID]
			if ok {
				delete(t.pending, frame.ID)
			}
			t.pendingMu.Unlock()
			if !ok {
				return ErrUnexpectedResponse
			}
			ch <- frame
			close(ch)
		default:
			return ErrUnexpectedResponse
		}
	}
	return scanner.Err()
}

func (t *StdioTransport) dispatchFeedback(fb wireFeedback) {
	ev := Event{StateID: fb.StateID, Route: fb.Route}
	switch fb.Type {
	case "state_status_update":
		var payload struct {
			Status int    `json:"status"`
			Worker string `json:"worker"`
		}
		_ = json.Unmarshal(fb.Payload, &payload)
		ev.Kind = EventStatusUpdate
		ev.Status = payload.Status
		ev.Worker = payload.Worker
	case "state_error":
		var payload struct {
			Message  string          `json:"message"`
			Location json.RawMessage `json:"location,omitempty"`
		}
		_ = json.Unmarshal(fb.Payload, &payload)
		ev.Kind = EventStateError
		ev.ErrMessage = payload.Message
		if len(payload.Location) > 0 {
			var loc struct {
				Start int `json:"start"`
				Stop  int `json:"stop"`
			}
			if jerr := json.Unmarshal(payload.Location, &loc); jerr == nil {
				r := position.Range{}
				r.Start.Character = loc.Start
				r.End.Character = loc.Stop
				ev.ErrLoc = &r
			}
		}
	case "message":
		var payload MessageEvent
		_ = json.Unmarshal(fb.Payload, &payload)
		ev.Kind = EventMessage
		ev.Message = &payload
	case "ltac_prof":
		var payload ProfilingResults
		_ = json.Unmarshal(fb.Payload, &payload)
		ev.Kind = EventProfiling
		ev.Profiling = &ProfilingEvent{StateID: fb.StateID, Route: fb.Route, Results: payload}
	case "worker_status", "file_loaded", "file_dependencies":
		return
	default:
		return
	}

	select {
	case t.feedback <- ev:
	case <-t.closed:
	}
}

func (t *StdioTransport) call(ctx context.Context, method string, params any) (wireFrame, error) {
	select {
	case <-t.closed:
		return wireFrame{}, ErrClosed
	default:
	}
	if method != "reset" && !t.started.Load() {
		return wireFrame{}, ErrNotStarted
	}

	id := uuid.NewString()
	ch := make(chan wireFrame, 1)

	t.pendingMu.Lock()
	t.pending[id] = ch
	t.pendingMu.Unlock()

	raw, err := json.Marshal(params)
	if err != nil {
		return wireFrame{}, fmt.Errorf("backend: marshal params for %s: %w", method, err)
	}

	req := wireRequest{ID: id, Method: method, Params: raw}
	line, err := json.Marshal(req)
	if err != nil {
		return wireFrame{}, fmt.Errorf("backend: marshal request for %s: %w", method, err)
	}
	line = append(line, '\n')

	if t.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.RequestTimeout)
		defer cancel()
	}

	t.writeMu.Lock()
	_, writeErr := t.stdin.Write(line)
	t.writeMu.Unlock()
	if writeErr != nil {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return wireFrame{}, fmt.Errorf("backend: write %s: %w", method, writeErr)
	}

	select {
	case frame := <-ch:
		return frame, nil
	case <-ctx.Done():
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
		return wireFrame{}, ctx.Err()
	case <-t.closed:
		return wireFrame{}, ErrClosed
	}
}

// Reset implements Transport.
func (t *StdioTransport) Reset(ctx context.Context) (int, error) {
	if t.cfg.StartupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.StartupTimeout)
		defer cancel()
	}

	frame, err := t.call(ctx, "reset", nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, ErrStartTimeout
		}
		return 0, err
	}
	if frame.Error != nil {
		return 0, fmt.Errorf("backend: reset failed: %s", frame.Error.Message)
	}

	var result struct {
		StateID int `json:"state_id"`
	}
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		return 0, fmt.Errorf("backend: reset: bad result: %w", err)
	}
	t.started.Store(true)
	return result.StateID, nil
}

// Add implements Transport.
func (t *StdioTransport) Add(ctx context.Context, text string, version int, parentStateID int, verbose bool) (AddResult, error) {
	params := map[string]any{
		"text":            text,
		"version":         version,
		"parent_state_id": parentStateID,
		"verbose":         verbose,
	}
	frame, err := t.call(ctx, "add", params)
	if err != nil {
		return AddResult{}, err
	}

	if frame.Error != nil {
		f := &CommandFailure{StateID: frame.Error.StateID, Message: frame.Error.Message}
		if len(frame.Error.Range) > 0 {
			var r struct {
				Start int `json:"start"`
				Stop  int `json:"stop"`
			}
			if jerr := json.Unmarshal(frame.Error.Range, &r); jerr == nil {
				f.Range.Start.Character = r.Start
				f.Range.End.Character = r.Stop
			}
		}
		return AddResult{}, f
	}

	var result struct {
		StateID         int  `json:"state_id"`
		UnfocusedStateID *int `json:"unfocused_state_id,omitempty"`
	}
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		return AddResult{}, fmt.Errorf("backend: add: bad result: %w", err)
	}
	return AddResult{NewStateID: result.StateID, UnfocusedStateID: result.UnfocusedStateID}, nil
}

// EditAt implements Transport.
func (t *StdioTransport) EditAt(ctx context.Context, stateID int) (EditAtResult, error) {
	frame, err := t.call(ctx, "edit_at", map[string]any{"state_id": stateID})
	if err != nil {
		return EditAtResult{}, err
	}
	if frame.Error != nil {
		return EditAtResult{}, &CommandFailure{StateID: frame.Error.StateID, Message: frame.Error.Message}
	}

	var result struct {
		NewFocus *struct {
			QedStateID int `json:"qed_state_id"`
		} `json:"new_focus,omitempty"`
	}
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		return EditAtResult{}, fmt.Errorf("backend: edit_at: bad result: %w", err)
	}
	out := EditAtResult{}
	if result.NewFocus != nil {
		out.NewFocus = &NewFocus{QedStateID: result.NewFocus.QedStateID}
	}
	return out, nil
}

// Goal implements Transport.
func (t *StdioTransport) Goal(ctx context.Context) (Goals, error) {
	frame, err := t.call(ctx, "goal", nil)
	if err != nil {
		return Goals{}, err
	}
	if frame.Error != nil {
		return Goals{}, fmt.Errorf("backend: goal: %s", frame.Error.Message)
	}
	var g Goals
	if err := json.Unmarshal(frame.Result, &g); err != nil {
		return Goals{}, fmt.Errorf("backend: goal: bad result: %w", err)
	}
	return g, nil
}

// Query implements Transport.
func (t *StdioTransport) Query(ctx context.Context, text string, stateID *int) (string, error) {
	frame, err := t.call(ctx, "query", map[string]any{"text": text, "state_id": stateID})
	if err != nil {
		return "", err
	}
	if frame.Error != nil {
		return "", fmt.Errorf("backend: query: %s", frame.Error.Message)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		return "", fmt.Errorf("backend: query: bad result: %w", err)
	}
	return result.Text, nil
}

// Interrupt implements Transport.
func (t *StdioTransport) Interrupt(ctx context.Context) error {
	_, err := t.call(ctx, "interrupt", nil)
	return err
}

// Quit implements Transport.
func (t *StdioTransport) Quit(ctx context.Context) error {
	_, err := t.call(ctx, "quit", nil)
	return err
}

// ResizeWindow implements Transport.
func (t *StdioTransport) ResizeWindow(ctx context.Context, cols int) error {
	_, err := t.call(ctx, "resize_window", map[string]any{"cols": cols})
	return err
}

// LtacProfilingResults implements Transport.
func (t *StdioTransport) LtacProfilingResults(ctx context.Context, stateID *int) (ProfilingResults, error) {
	frame, err := t.call(ctx, "ltac_prof_results", map[string]any{"state_id": stateID})
	if err != nil {
		return ProfilingResults{}, err
	}
	if frame.Error != nil {
		return ProfilingResults{}, fmt.Errorf("backend: ltac_prof_results: %s", frame.Error.Message)
	}
	var result ProfilingResults
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		return ProfilingResults{}, fmt.Errorf("backend: ltac_prof_results: bad result: %w", err)
	}
	return result, nil
}

// Feedback implements Transport.
func (t *StdioTransport) Feedback() <-chan Event {
	return t.feedback
}

// Close implements Transport. It terminates the backend process and
// waits for the read loop to exit.
func (t *StdioTransport) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		close(t.closed)
		_ = t.stdin.Close()
		if t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
		closeErr = t.group.Wait()
		_ = t.cmd.Wait()
	})
	return closeErr
}
