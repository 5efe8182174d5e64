package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/jad-hamza/vscoq/stm"
	"github.com/jad-hamza/vscoq/stmlog"
	"github.com/jad-hamza/vscoq/tui"
)

func runTUI(cmd *cobra.Command, args []string) error {
	logger := stmlog.Default()
	src, err := loadSliceSource(filePathFlag)
	if err != nil {
		return fmt.Errorf("stmctl tui: %w", err)
	}

	if !wantsTUI() {
		logger.Warn("stdout is not a terminal, falling back to plain output")
		return runRun(cmd, args)
	}

	program := tea.NewProgram(tui.New())
	callbacks := tui.NewCallbacks(program)

	ctrl := stm.New(newTransportFactory(), callbacks, cfg, nil, logger)
	ctx := context.Background()
	defer ctrl.Dispose()

	go func() {
		for {
			node, err := ctrl.StepForward(ctx, src, cfg.Verbose)
			if err != nil || node == nil {
				return
			}
			if goals, gerr := ctrl.GetGoal(ctx); gerr == nil {
				callbacks.GoalUpdate(goals)
			}
		}
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("stmctl tui: %w", err)
	}
	return ctrl.Shutdown(ctx)
}
