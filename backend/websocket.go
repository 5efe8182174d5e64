package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jad-hamza/vscoq/position"
)

// WebSocketConfig configures a remote WebSocketTransport.
type WebSocketConfig struct {
	// URL is the backend's websocket endpoint, e.g. "wss://host/stm".
	URL string

	// BearerToken authenticates the connection. It is copied into a
	// memguard.Enclave immediately and the caller's copy should be
	// discarded; the plaintext is only ever reconstituted for the
	// single handshake header and wiped right after.
	BearerToken string

	HandshakeTimeout time.Duration
	RequestTimeout   time.Duration
}

// WebSocketTransport is a Transport backed by a persistent websocket
// connection to a remote backend process, for deployments where the
// proof assistant runs on a separate worker rather than as a local
// subprocess.
//
// The request/response and feedback framing is identical to
// StdioTransport's; only the carrier differs.
type WebSocketTransport struct {
	conn *websocket.Conn
	cfg  WebSocketConfig

	token *memguard.Enclave

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan wireFrame

	feedback chan Event

	closeOnce sync.Once
	closed    chan struct{}
	readDone  chan struct{}
}

// DialWebSocketTransport connects to a remote backend and performs the
// bearer-token handshake. The plaintext token is wiped from cfg as soon
// as it has been sealed into an enclave.
func DialWebSocketTransport(ctx context.Context, cfg WebSocketConfig) (*WebSocketTransport, error) {
	buf := memguard.NewBufferFromBytes([]byte(cfg.BearerToken))
	enclave := buf.Seal()
	cfg.BearerToken = ""

	header := http.Header{}
	plaintext, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("backend: seal token: %w", err)
	}
	header.Set("Authorization", "Bearer "+plaintext.String())
	plaintext.Destroy()

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 15 * time.Second
	}

	conn, _, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("backend: dial %s: %w", cfg.URL, err)
	}

	t := &WebSocketTransport{
		conn:     conn,
		cfg:      cfg,
		token:    enclave,
		pending:  make(map[string]chan wireFrame),
		feedback: make(chan Event, 64),
		closed:   make(chan struct{}),
		readDone: make(chan struct{}),
	}

	go t.readLoop()
	return t, nil
}

func (t *WebSocketTransport) readLoop() {
	defer close(t.readDone)
	defer close(t.feedback)

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case t.feedback <- Event{Kind: EventClosed, Closed: &ClosedEvent{Err: err}}:
			default:
			}
			return
		}

		var frame wireFrame
		if err := json.Unmarshal(data, &frame); err != nil {
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
			if ok {
				ch <- frame
				close(ch)
			}
		}
	}
}

func (t *WebSocketTransport) dispatchFeedback(fb wireFeedback) {
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
	default:
		return
	}

	select {
	case t.feedback <- ev:
	case <-t.closed:
	}
}

func (t *WebSocketTransport) call(ctx context.Context, method string, params any) (wireFrame, error) {
	select {
	case <-t.closed:
		return wireFrame{}, ErrClosed
	default:
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

	if t.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.RequestTimeout)
		defer cancel()
	}

	t.writeMu.Lock()
	writeErr := t.conn.WriteJSON(req)
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
func (t *WebSocketTransport) Reset(ctx context.Context) (int, error) {
	frame, err := t.call(ctx, "reset", nil)
	if err != nil {
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
	return result.StateID, nil
}

// Add implements Transport.
func (t *WebSocketTransport) Add(ctx context.Context, text string, version int, parentStateID int, verbose bool) (AddResult, error) {
	params := map[string]any{
		"text": text, "version": version, "parent_state_id": parentStateID, "verbose": verbose,
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
		StateID          int  `json:"state_id"`
		UnfocusedStateID *int `json:"unfocused_state_id,omitempty"`
	}
	if err := json.Unmarshal(frame.Result, &result); err != nil {
		return AddResult{}, fmt.Errorf("backend: add: bad result: %w", err)
	}
	return AddResult{NewStateID: result.StateID, UnfocusedStateID: result.UnfocusedStateID}, nil
}

// EditAt implements Transport.
func (t *WebSocketTransport) EditAt(ctx context.Context, stateID int) (EditAtResult, error) {
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
func (t *WebSocketTransport) Goal(ctx context.Context) (Goals, error) {
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
func (t *WebSocketTransport) Query(ctx context.Context, text string, stateID *int) (string, error) {
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
func (t *WebSocketTransport) Interrupt(ctx context.Context) error {
	_, err := t.call(ctx, "interrupt", nil)
	return err
}

// Quit implements Transport.
func (t *WebSocketTransport) Quit(ctx context.Context) error {
	_, err := t.call(ctx, "quit", nil)
	return err
}

// ResizeWindow implements Transport.
func (t *WebSocketTransport) ResizeWindow(ctx context.Context, cols int) error {
	_, err := t.call(ctx, "resize_window", map[string]any{"cols": cols})
	return err
}

// LtacProfilingResults implements Transport.
func (t *WebSocketTransport) LtacProfilingResults(ctx context.Context, stateID *int) (ProfilingResults, error) {
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
func (t *WebSocketTransport) Feedback() <-chan Event {
	return t.feedback
}

// Close implements Transport. It closes the connection only; the
// sealed bearer token enclave is left as it is.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)
		err = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = t.conn.Close()
		<-t.readDone
	})
	return err
}
