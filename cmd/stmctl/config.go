package main

import (
	"context"

	"github.com/jad-hamza/vscoq/backend"
	"github.com/jad-hamza/vscoq/stm"
)

// loadConfig loads cfg from path if given, otherwise returns
// stm.DefaultConfig(). A missing --config flag is not an error: it
// just means "run with defaults", matching stmctl's single-binary,
// zero-setup demo use case.
func loadConfig(path string) (stm.Config, error) {
	if path == "" {
		return stm.DefaultConfig(), nil
	}
	return stm.LoadConfigOverlay(path, stm.DefaultConfig())
}

// newTransportFactory builds the stm.TransportFactory used by every
// subcommand: a subprocess backend spawned lazily on first use.
func newTransportFactory() stm.TransportFactory {
	return func(ctx context.Context) (backend.Transport, error) {
		stdioCfg := backend.DefaultStdioConfig(backendCmdFlag, backendArgsFlag...)
		if cfg.RequestTimeout > 0 {
			stdioCfg.RequestTimeout = cfg.RequestTimeout
		}
		return backend.NewStdioTransport(stdioCfg)
	}
}
