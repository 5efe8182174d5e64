// Package backend defines the transport consumed by the STM controller
// to talk to the proof-assistant backend process, and the feedback
// stream it pushes back.
//
// # Description
//
// This package treats the backend as an external collaborator: it
// defines the request/response and feedback shapes the controller
// depends on, and ships two concrete transports (a local subprocess
// speaking newline-delimited JSON over stdio, and a remote backend
// over a websocket) that satisfy them. Neither transport tries to be
// the real proof assistant wire protocol; they exist so the STM has
// something runnable to drive in tests and in the CLI demo.
package backend

import (
	"context"
	"fmt"

	"github.com/jad-hamza/vscoq/position"
)

// AddResult is returned by a successful Add.
type AddResult struct {
	// NewStateID is the state-id assigned to the newly added sentence.
	NewStateID int

	// UnfocusedStateID, if non-nil, names a pre-existing sentence the
	// backend wants focus to jump to instead of the new one (continuing
	// an already-open proof branch).
	UnfocusedStateID *int
}

// CommandFailure is the backend's rejection of a submitted command
// Range is relative to the
// text that was submitted, not to document coordinates; translating it
// is the controller's job (position.PositionAtRelative).
type CommandFailure struct {
	// StateID, if non-nil, names a sentence the controller should
	// edit-at and rewind to as part of recovery.
	StateID *int
	Message string
	Range   position.Range
}

func (f *CommandFailure) Error() string {
	return fmt.Sprintf("command rejected: %s", f.Message)
}

// NewFocus is present on an EditAt response when the target sentence
// sits inside an already-open proof.
type NewFocus struct {
	QedStateID int
}

// EditAtResult is returned by a successful EditAt.
type EditAtResult struct {
	NewFocus *NewFocus
}

// Goals is the backend's current goal structure, opaque to the STM
// beyond carrying a focus position. Rendering and
// pretty-printing are explicitly out of scope.
type Goals struct {
	Focus       position.Position `json:"focus"`
	Foreground  []Goal            `json:"foreground"`
	Background  []Goal            `json:"background"`
	ShelvedGoal []Goal            `json:"shelved"`
	GivenUp     []Goal            `json:"given_up"`
}

// Goal is a single proof obligation; its internal structure is treated
// opaquely (goal rendering is out of scope).
type Goal struct {
	ID       string `json:"id"`
	Hyps     []string
	Conclusion string
}

// ProfilingResults is the response to request_ltac_prof.
type ProfilingResults struct {
	StateID *int
	Entries []ProfilingEntry
}

// ProfilingEntry is a single tactic's profiling record.
type ProfilingEntry struct {
	Tactic string
	Total  float64
	Self   float64
	Calls  int
}

// EventKind discriminates the feedback union.
type EventKind int

const (
	EventStatusUpdate EventKind = iota
	EventStateError
	EventMessage
	EventProfiling
	EventWorkerStatus
	EventFileLoaded
	EventFileDependency
	EventClosed
)

// MessageEvent is a backend message forwarded unchanged.
type MessageEvent struct {
	Level int
	Text  string
	Rich  any
}

// ProfilingEvent is a pushed ltac_prof feedback event.
type ProfilingEvent struct {
	StateID int
	Route   int
	Results ProfilingResults
}

// ClosedEvent reports that the backend connection closed, with a
// possibly-nil Err.
type ClosedEvent struct {
	Err error
}

// Event is one item on the feedback stream. Exactly the field matching
// Kind is populated.
type Event struct {
	Kind       EventKind
	StateID    int
	Route      int
	Status     int
	Worker     string
	ErrMessage string
	ErrLoc     *position.Range
	Message    *MessageEvent
	Profiling  *ProfilingEvent
	Closed     *ClosedEvent
}

// Transport is the backend interface the controller consumes. All
// request methods are synchronous from the controller's point of
// view: it never has two in flight at once.
type Transport interface {
	// Reset (re)initializes the backend and returns the root state-id,
	// used by the controller's lazy-initialization gate.
	Reset(ctx context.Context) (rootStateID int, err error)

	// Add submits one command. On rejection it returns a *CommandFailure.
	Add(ctx context.Context, text string, version int, parentStateID int, verbose bool) (AddResult, error)

	EditAt(ctx context.Context, stateID int) (EditAtResult, error)
	Goal(ctx context.Context) (Goals, error)
	Query(ctx context.Context, text string, stateID *int) (string, error)
	Interrupt(ctx context.Context) error
	Quit(ctx context.Context) error
	ResizeWindow(ctx context.Context, cols int) error
	LtacProfilingResults(ctx context.Context, stateID *int) (ProfilingResults, error)

	// Feedback returns the channel the transport pushes asynchronous
	// events onto. The channel is closed when the transport is closed.
	Feedback() <-chan Event

	// Close tears down the transport. Calling Quit first requests a
	// graceful backend shutdown; Close always releases local resources.
	Close() error
}
