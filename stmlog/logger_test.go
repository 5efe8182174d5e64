package stmlog

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingExporter struct {
	mu      sync.Mutex
	entries []LogEntry
	closed  bool
}

func (e *recordingExporter) Export(entry LogEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
}

func (e *recordingExporter) Close() error {
	e.closed = true
	return nil
}

func TestLoggerForwardsToExporter(t *testing.T) {
	exp := &recordingExporter{}
	logger := New(Config{Level: LevelInfo, Quiet: true, Service: "stm", Exporter: exp})

	logger.Info("sentence added", "state_id", 3)

	require := assert.New(t)
	require.Len(exp.entries, 1)
	require.Equal("sentence added", exp.entries[0].Message)
	require.Equal(3, exp.entries[0].Attrs["state_id"])
	require.Equal("stm", exp.entries[0].Service)
}

func TestLoggerFiltersBelowLevel(t *testing.T) {
	exp := &recordingExporter{}
	logger := New(Config{Level: LevelWarn, Quiet: true, Exporter: exp})

	logger.Info("ignored")
	logger.Warn("kept")

	assert.Len(t, exp.entries, 1)
	assert.Equal(t, "kept", exp.entries[0].Message)
}

func TestLoggerCloseClosesExporter(t *testing.T) {
	exp := &recordingExporter{}
	logger := New(Config{Quiet: true, Exporter: exp})
	assert.NoError(t, logger.Close())
	assert.True(t, exp.closed)
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "INFO", LevelInfo.String())
}
