// Package cmd provides the CLI commands for zotra.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"zotra/internal/logging"
	"zotra/pkg/version"
)

// Debug logging flag state.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the zotra CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zotra",
		Short: "Research assistant over your Zotero library",
		Long: `Zotra indexes the PDFs in your Zotero library into a local vector
index and answers research questions against it with cited sources.

Set ZOTERO_ID and ZOTERO_API_KEY, run 'zotra index', then
'zotra search' or 'zotra ask'. 'zotra serve' exposes the same
operations as MCP tools over stdio.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("zotra version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.zotra/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newCollectionsCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs debug file logging when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	cleanup, err := logging.SetupDefault(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.Info("debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
