// Package feedback implements the buffer that holds backend feedback
// events whose state-id is not yet known to the client.
//
// # Description
//
// The backend streams feedback asynchronously and may reference a
// state-id before the add-response that introduces it has been
// processed by the controller. Rather than speculate about what
// sentence such feedback belongs to, it is appended here and replayed
// once the state-id becomes known, immediately after every successful
// add.
package feedback

// StatusUpdate is a state-status feedback event.
type StatusUpdate struct {
	StateID int
	Route   int
	Status  int
	Worker  string
}

// Record is one buffered feedback entry. Status updates are the only
// event kind buffered for an unknown state-id; state-errors for an
// unknown id are logged and dropped by the controller instead, and
// messages, profiling, and worker events never need a known sentence
// to be routed or forwarded.
type Record struct {
	StateID int
	Status  *StatusUpdate
}

// Buffer is an append-only list of feedback records awaiting a
// state-id that has not yet been registered, drained atomically after
// each successful add.
//
// # Thread Safety
//
// Buffer is not safe for concurrent use; the controller serializes
// all access to it under its own mutex.
type Buffer struct {
	records []Record
}

// NewBuffer creates an empty feedback buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// PushStatus enqueues a status update for a not-yet-known state-id.
func (b *Buffer) PushStatus(u StatusUpdate) {
	b.records = append(b.records, Record{StateID: u.StateID, Status: &u})
}

// Len reports the number of buffered records, used by the controller's
// metrics to report feedback-buffer depth.
func (b *Buffer) Len() int {
	return len(b.records)
}

// Drain removes and returns every record currently buffered, in the
// order they were pushed. Call this once a new state-id is registered
// and re-dispatch any record whose StateID matches it; records for
// still-unknown ids should be pushed back with PushStatus by the
// caller (this keeps Buffer itself free of any notion of "known ids",
// which belongs to the controller's state-id index).
func (b *Buffer) Drain() []Record {
	out := b.records
	b.records = nil
	return out
}
