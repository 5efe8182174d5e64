package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jad-hamza/vscoq/stm"
	"github.com/jad-hamza/vscoq/stmlog"
)

func runRun(cmd *cobra.Command, args []string) error {
	logger := stmlog.Default()
	src, err := loadSliceSource(filePathFlag)
	if err != nil {
		return fmt.Errorf("stmctl run: %w", err)
	}

	ctrl := stm.New(newTransportFactory(), stm.NopCallbacks{}, cfg, nil, logger)
	ctx := context.Background()
	defer ctrl.Dispose()

	for {
		node, err := ctrl.StepForward(ctx, src, cfg.Verbose)
		if err != nil {
			return fmt.Errorf("stmctl run: step_forward: %w", err)
		}
		if node == nil {
			break
		}
		fmt.Printf("%s %q\n", node.Status(), node.Text())
	}

	return ctrl.Shutdown(ctx)
}
