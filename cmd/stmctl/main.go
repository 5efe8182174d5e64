// Command stmctl is the STM's CLI entry point: it wires the controller,
// a backend transport, and either a TUI or a headless file watcher into
// a runnable tool.
package main

import (
	"context"
	"log"
)

func main() {
	ctx := context.Background()
	shutdownTelemetry, err := setupTelemetry(ctx, "stmctl")
	if err != nil {
		log.Fatalf("stmctl: %v", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("stmctl: %v", err)
	}
}
