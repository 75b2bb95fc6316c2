package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-reports/pkg/logging"
)

type ExitCode int

const (
	exitCodeSuccess ExitCode = 0
	exitCodeError   ExitCode = 1
	exitCodeWarning ExitCode = 2
)

// exitError carries a specific exit code out of a command.
type exitError struct {
	code ExitCode
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func Run() ExitCode {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "rdlgen",
		Short:         "Generate SSRS report definitions and smoke-check the report API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Help(); err != nil {
				return fmt.Errorf("failed to show help: %w", err)
			}
			return nil
		},
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "set debug logging level")

	rootCmd.AddCommand(
		NewParamsCmd().Command(),
		NewGenerateCmd().Command(),
		NewSmokeCmd().Command(),
	)

	return exitCodeFor(rootCmd.Execute())
}

func exitCodeFor(err error) ExitCode {
	if err == nil {
		return exitCodeSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(os.Stderr, ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	return exitCodeError
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logging.NewLogger(level, logging.EnvLocal)
}
