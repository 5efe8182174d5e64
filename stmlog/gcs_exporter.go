package stmlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/storage"
)

// GCSExporter batches LogEntry values and uploads them as newline-
// delimited JSON objects to a Google Cloud Storage bucket, for
// deployments that want centralized log retention without running a
// separate log aggregator.
//
// # Thread Safety
//
// Safe for concurrent use.
type GCSExporter struct {
	client *storage.Client
	bucket string
	prefix string

	mu        sync.Mutex
	buf       []LogEntry
	batchSize int
}

// NewGCSExporter wraps an already-authenticated storage client.
// Callers own the client's lifetime beyond Close, which only flushes
// this exporter's in-flight batch.
func NewGCSExporter(client *storage.Client, bucket, prefix string) *GCSExporter {
	return &GCSExporter{client: client, bucket: bucket, prefix: prefix, batchSize: 100}
}

// Export implements Exporter. Entries are buffered and flushed once
// batchSize is reached; failures are swallowed per the Exporter
// contract (logging must never be allowed to disrupt the STM).
func (e *GCSExporter) Export(entry LogEntry) {
	e.mu.Lock()
	e.buf = append(e.buf, entry)
	shouldFlush := len(e.buf) >= e.batchSize
	e.mu.Unlock()

	if shouldFlush {
		go e.flushBatch()
	}
}

func (e *GCSExporter) flushBatch() {
	e.mu.Lock()
	batch := e.buf
	e.buf = nil
	e.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	name := fmt.Sprintf("%s/%s.ndjson", e.prefix, time.Now().Format("20060102T150405.000000000"))
	w := e.client.Bucket(e.bucket).Object(name).NewWriter(ctx)

	for _, entry := range batch {
		line, err := json.Marshal(entry)
		if err != nil {
			continue
		}
		_, _ = w.Write(append(line, '\n'))
	}
	_ = w.Close()
}

// Close flushes any remaining buffered entries synchronously.
func (e *GCSExporter) Close() error {
	e.flushBatch()
	return nil
}
