// Command closeflow ingests trial-balance extracts, validates them and assigns
// accounts to preparers and reviewers.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/closeflow/internal/config"
	"github.com/garyjia/closeflow/internal/container"
	"github.com/garyjia/closeflow/pkg/utils"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// exitError carries the process exit code for a command failure
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// errUnsuccessful marks a run that finished but did not succeed; the report was already printed
var errUnsuccessful = errors.New("run did not succeed")

func exitCodeOf(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errUnsuccessful) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	os.Exit(exitCodeOf(err))
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "closeflow",
		Short:         "Trial balance ingestion, validation and assignment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (YAML)")

	cmd.AddCommand(
		newIngestCmd(opts),
		newIngestBatchCmd(opts),
		newValidateCmd(opts),
		newAssignCmd(opts),
		newRosterCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

// withContainer loads configuration, starts the container for the duration of fn and closes it after
func withContainer(ctx context.Context, opts *rootOptions, fn func(ctx context.Context, c *container.Container) error) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return withCode(exitUsage, err)
	}

	logger, err := utils.NewLogger(cfg.LoggerOptions())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return withCode(exitUsage, err)
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container close failed", zap.Error(err))
		}
	}()

	return fn(ctx, c)
}
