package stm

import (
	"github.com/jad-hamza/vscoq/backend"
	"github.com/jad-hamza/vscoq/position"
)

// Callbacks is the editor-facing notification surface. The controller invokes these
// synchronously from its single logical task; implementations must
// not block on anything that itself waits on the controller, or the
// STM deadlocks against itself.
type Callbacks interface {
	// SentenceStatusUpdate reports a status transition for the
	// sentence occupying range.
	SentenceStatusUpdate(rng position.Range, status int)

	// ClearSentence asks the editor to remove decorations for a
	// sentence that has been cancelled or invalidated.
	ClearSentence(rng position.Range)

	// Error reports a state-error, with errRange relative to the
	// whole document (already translated from the backend's
	// sentence-relative offset).
	Error(sentenceRange, errRange position.Range, message string, rich any)

	// Message forwards a backend message unchanged.
	Message(level int, text string, rich any)

	// LtacProfResults delivers profiling data scoped to rng.
	LtacProfResults(rng position.Range, results backend.ProfilingResults)

	// CoqDied reports that the backend died or the STM hit a fatal
	// inconsistent-state fault. err is never nil: a
	// *BackendClosedError or an *InconsistentStateError. An expected
	// closure during Shutdown or Dispose does not call CoqDied.
	CoqDied(err error)
}

// NopCallbacks implements Callbacks with no-ops, useful for tests and
// headless invocations (e.g. the CLI's batch mode) that don't need
// editor decoration.
type NopCallbacks struct{}

func (NopCallbacks) SentenceStatusUpdate(position.Range, int)                             {}
func (NopCallbacks) ClearSentence(position.Range)                                         {}
func (NopCallbacks) Error(position.Range, position.Range, string, any)                    {}
func (NopCallbacks) Message(int, string, any)                                             {}
func (NopCallbacks) LtacProfResults(position.Range, backend.ProfilingResults)             {}
func (NopCallbacks) CoqDied(error)                                                        {}

var _ Callbacks = NopCallbacks{}
