package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jad-hamza/vscoq/stm"
)

// runInit walks a first-time user through the handful of tunables
// that matter (backend command, rate limits, verbose default) and
// writes a YAML config stmctl's other subcommands can load with
// --config. The config holds the rates and the verbose default; the
// backend command is not written anywhere and is passed with
// --backend-cmd.
func runInit(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	def := stm.DefaultConfig()

	var backendCmd = backendCmdFlag
	interruptRate := strconv.FormatFloat(def.InterruptRate, 'f', -1, 64)
	prefetchRate := strconv.FormatFloat(def.PrefetchRate, 'f', -1, 64)
	verbose := def.Verbose

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Backend command").
				Description("Executable stmctl spawns to talk to the proof assistant.").
				Value(&backendCmd),
			huh.NewInput().
				Title("Interrupt rate (per second)").
				Value(&interruptRate),
			huh.NewInput().
				Title("Prefetch rate (per second)").
				Value(&prefetchRate),
			huh.NewConfirm().
				Title("Run the backend in verbose mode by default?").
				Value(&verbose),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("stmctl init: %w", err)
	}

	cfg := def
	interrupt, err := strconv.ParseFloat(interruptRate, 64)
	if err != nil {
		return fmt.Errorf("stmctl init: invalid interrupt rate: %w", err)
	}
	prefetch, err := strconv.ParseFloat(prefetchRate, 64)
	if err != nil {
		return fmt.Errorf("stmctl init: invalid prefetch rate: %w", err)
	}
	cfg.InterruptRate = interrupt
	cfg.PrefetchRate = prefetch
	cfg.Verbose = verbose

	if err := stm.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("stmctl init: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("stmctl init: marshal config: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("stmctl init: write %s: %w", out, err)
	}

	fmt.Printf("wrote %s (backend command %q not saved; pass it with --backend-cmd)\n", out, backendCmd)
	return nil
}
