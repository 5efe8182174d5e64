package stmlog

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxExporter writes log entries as points to InfluxDB, all in one
// stm_log measurement, with service and level as tags and the message
// and attributes as fields —
// useful when logs are correlated against the STM's other time-series
// metrics (feedback-buffer depth, add latency) in the same dashboard.
//
// # Thread Safety
//
// Safe for concurrent use; the underlying write API is itself
// non-blocking and batches internally.
type InfluxExporter struct {
	client  influxdb2.Client
	writeAPI api.WriteAPI
}

// NewInfluxExporter opens a non-blocking write API against bucket in
// org, using client's configured URL and token.
func NewInfluxExporter(client influxdb2.Client, org, bucket string) *InfluxExporter {
	return &InfluxExporter{client: client, writeAPI: client.WriteAPI(org, bucket)}
}

// Export implements Exporter.
func (e *InfluxExporter) Export(entry LogEntry) {
	fields := map[string]any{"message": entry.Message}
	for k, v := range entry.Attrs {
		fields[k] = v
	}
	point := influxdb2.NewPoint(
		"stm_log",
		map[string]string{"service": entry.Service, "level": entry.Level.String()},
		fields,
		entry.Timestamp,
	)
	e.writeAPI.WritePoint(point)
}

// Close flushes pending points and closes the underlying client.
func (e *InfluxExporter) Close() error {
	e.writeAPI.Flush()
	e.client.Close()
	return nil
}
