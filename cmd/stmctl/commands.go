package main

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jad-hamza/vscoq/stm"
)

var (
	backendCmdFlag  string
	backendArgsFlag []string
	configPathFlag  string
	filePathFlag    string
	verboseFlag     bool

	cfg stm.Config

	rootCmd = &cobra.Command{
		Use:   "stmctl",
		Short: "Drive a proof-assistant backend through the Sentence Transactional Machine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig(configPathFlag)
			if err != nil {
				return err
			}
			cfg = loaded
			cfg.Verbose = cfg.Verbose || verboseFlag
			return nil
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Step through a proof-script file headlessly, printing status transitions",
		RunE:  runRun,
	}

	tuiCmd = &cobra.Command{
		Use:   "tui",
		Short: "Open the sentence-tree/goal viewer against a proof-script file",
		RunE:  runTUI,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run a headless STM instance with a file watcher and an HTTP admin/metrics surface",
		RunE:  runServe,
	}

	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Interactively write a stmctl config file",
		RunE:  runInit,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&backendCmdFlag, "backend-cmd", "coqtop", "backend executable to spawn")
	rootCmd.PersistentFlags().StringSliceVar(&backendArgsFlag, "backend-arg", nil, "extra argument passed to the backend executable (repeatable)")
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "path to a stmctl config YAML file (defaults applied if unset)")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "request verbose backend processing by default")

	runCmd.Flags().StringVar(&filePathFlag, "file", "", "proof-script file to step through (required)")
	_ = runCmd.MarkFlagRequired("file")

	tuiCmd.Flags().StringVar(&filePathFlag, "file", "", "proof-script file to open (required)")
	_ = tuiCmd.MarkFlagRequired("file")

	serveCmd.Flags().StringVar(&filePathFlag, "file", "", "proof-script file to watch (required)")
	serveCmd.Flags().String("addr", ":8080", "HTTP listen address for /healthz and /metrics")
	_ = serveCmd.MarkFlagRequired("file")

	initCmd.Flags().String("out", "stmctl.yaml", "path to write the generated config file")

	rootCmd.AddCommand(runCmd, tuiCmd, serveCmd, initCmd)
}

// wantsTUI reports whether stdout is an interactive terminal, used by
// commands that fall back to plain output when piped.
func wantsTUI() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}
