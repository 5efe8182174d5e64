package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPushAndDrain(t *testing.T) {
	b := NewBuffer()
	assert.Equal(t, 0, b.Len())

	b.PushStatus(StatusUpdate{StateID: 5, Status: 1, Worker: "w1"})
	assert.Equal(t, 1, b.Len())

	records := b.Drain()
	require.Len(t, records, 1)
	assert.Equal(t, 5, records[0].StateID)
	require.NotNil(t, records[0].Status)
	assert.Equal(t, "w1", records[0].Status.Worker)

	// Drain empties the buffer.
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Drain())
}

func TestBufferDrainOrderPreserved(t *testing.T) {
	b := NewBuffer()
	for i := 0; i < 5; i++ {
		b.PushStatus(StatusUpdate{StateID: i})
	}

	records := b.Drain()
	for i, r := range records {
		assert.Equal(t, i, r.StateID)
	}
}
