package backend

import "errors"

// Sentinel errors for the backend package.
var (
	// ErrNotStarted is returned when a request is made before Reset
	// has completed.
	ErrNotStarted = errors.New("backend: transport not started")

	// ErrClosed is returned when a request is made after Close.
	ErrClosed = errors.New("backend: transport closed")

	// ErrStartTimeout is returned when the backend process fails to
	// become ready within the configured startup timeout.
	ErrStartTimeout = errors.New("backend: startup timed out")

	// ErrUnexpectedResponse is returned when a response frame doesn't
	// match any pending request and isn't a feedback frame either.
	ErrUnexpectedResponse = errors.New("backend: unexpected response frame")
)
