package backend

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoBackendScript is a minimal stand-in backend: it answers "reset"
// with state_id 0 and "add" with an incrementing state_id, and pushes
// one status_update feedback frame after every add. It exists purely
// to exercise StdioTransport's framing without depending on a real
// proof assistant being installed.
const echoBackendScript = `
n=0
while IFS= read -r line; do
  id=$(echo "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
  case "$line" in
    *'"method":"reset"'*)
      printf '{"id":"%s","kind":"response","result":{"state_id":0}}\n' "$id"
      ;;
    *'"method":"add"'*)
      n=$((n+1))
      printf '{"id":"%s","kind":"response","result":{"state_id":%d}}\n' "$id" "$n"
      printf '{"kind":"feedback","feedback":{"type":"state_status_update","state_id":%d,"route":0,"payload":{"status":1,"worker":"w"}}}\n' "$n"
      ;;
    *'"method":"quit"'*)
      printf '{"id":"%s","kind":"response","result":{}}\n' "$id"
      exit 0
      ;;
    *)
      printf '{"id":"%s","kind":"response","error":{"message":"unknown method"}}\n' "$id"
      ;;
  esac
done
`

func newEchoTransport(t *testing.T) *StdioTransport {
	t.Helper()
	cfg := DefaultStdioConfig("/bin/sh", "-c", echoBackendScript)
	tr, err := NewStdioTransport(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestStdioTransportResetAndAdd(t *testing.T) {
	tr := newEchoTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	root, err := tr.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, root)

	result, err := tr.Add(ctx, "Proof.", 1, root, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewStateID)
	assert.Nil(t, result.UnfocusedStateID)
}

func TestStdioTransportFeedbackDelivered(t *testing.T) {
	tr := newEchoTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := tr.Reset(ctx)
	require.NoError(t, err)
	_, err = tr.Add(ctx, "intros.", 1, 0, false)
	require.NoError(t, err)

	select {
	case ev := <-tr.Feedback():
		assert.Equal(t, EventStatusUpdate, ev.Kind)
		assert.Equal(t, 1, ev.StateID)
		assert.Equal(t, "w", ev.Worker)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for feedback")
	}
}

func TestStdioTransportUnknownMethodReturnsCommandFailure(t *testing.T) {
	tr := newEchoTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := tr.Reset(ctx)
	require.NoError(t, err)

	_, err = tr.EditAt(ctx, 1)
	require.Error(t, err)
	var failure *CommandFailure
	require.ErrorAs(t, err, &failure)
}

func TestStdioTransportRequestBeforeResetReturnsErrNotStarted(t *testing.T) {
	tr := newEchoTransport(t)
	_, err := tr.EditAt(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestStdioTransportResetTimesOutWithErrStartTimeout(t *testing.T) {
	cfg := DefaultStdioConfig("sleep", "5")
	cfg.StartupTimeout = 50 * time.Millisecond
	tr, err := NewStdioTransport(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	_, err = tr.Reset(context.Background())
	assert.ErrorIs(t, err, ErrStartTimeout)
}

func TestStdioTransportCloseIsIdempotent(t *testing.T) {
	tr := newEchoTransport(t)
	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())
}

func TestStdioTransportProcessExitEmitsEventClosed(t *testing.T) {
	// Answers "reset" once and then exits on its own, standing in for
	// a backend process that crashes mid-session rather than being
	// asked to quit.
	const dyingBackendScript = `
read -r line
id=$(echo "$line" | sed -n 's/.*"id":"\([^"]*\)".*/\1/p')
printf '{"id":"%s","kind":"response","result":{"state_id":0}}\n' "$id"
`
	cfg := DefaultStdioConfig("/bin/sh", "-c", dyingBackendScript)
	tr, err := NewStdioTransport(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = tr.Reset(ctx)
	require.NoError(t, err)

	select {
	case ev := <-tr.Feedback():
		require.Equal(t, EventClosed, ev.Kind)
		require.NotNil(t, ev.Closed)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for EventClosed after the backend process exited")
	}
}

func TestStdioTransportStateErrorFeedbackTranslatesLocation(t *testing.T) {
	tr := newEchoTransport(t)

	tr.dispatchFeedback(wireFeedback{
		Type:    "state_error",
		StateID: 3,
		Route:   0,
		Payload: json.RawMessage(`{"message":"syntax error","location":{"start":2,"stop":5}}`),
	})

	select {
	case ev := <-tr.Feedback():
		assert.Equal(t, EventStateError, ev.Kind)
		assert.Equal(t, "syntax error", ev.ErrMessage)
		require.NotNil(t, ev.ErrLoc)
		assert.Equal(t, 2, ev.ErrLoc.Start.Character)
		assert.Equal(t, 5, ev.ErrLoc.End.Character)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for feedback")
	}
}

func TestStdioTransportStateErrorFeedbackWithoutLocation(t *testing.T) {
	tr := newEchoTransport(t)

	tr.dispatchFeedback(wireFeedback{
		Type:    "state_error",
		StateID: 3,
		Payload: json.RawMessage(`{"message":"syntax error"}`),
	})

	select {
	case ev := <-tr.Feedback():
		assert.Equal(t, EventStateError, ev.Kind)
		assert.Nil(t, ev.ErrLoc)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for feedback")
	}
}

func TestCommandFailureError(t *testing.T) {
	f := &CommandFailure{Message: "syntax error"}
	assert.Contains(t, f.Error(), "syntax error")
}
