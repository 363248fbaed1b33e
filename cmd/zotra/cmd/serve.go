package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"zotra/internal/logging"
	"zotra/internal/mcp"
	"zotra/internal/research"
	"zotra/internal/retrieve"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Expose the library as MCP tools (zotero_search, zotero_ask,
zotero_stats, zotero_index) over stdio for AI clients.

Stdout carries JSON-RPC exclusively; logs go to the log file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Stdout belongs to JSON-RPC; everything observable goes to the file.
	log, cleanup, err := logging.Setup(logging.ServeConfig(debugMode))
	if err != nil {
		return err
	}
	defer cleanup()
	slog.SetDefault(log)

	index, embedder, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer index.Close()
	defer embedder.Close()

	retriever := retrieve.New(index, log)

	// The ask and index tools degrade gracefully: without a chat model
	// or library credentials the remaining tools still serve.
	var researcher mcp.Researcher
	if model, err := newChatModel(ctx, cfg); err == nil {
		defer model.Close()
		researcher = research.New(retriever, model, cfg.Research, log)
	} else {
		log.Warn("chat model unavailable, zotero_ask disabled", slog.String("error", err.Error()))
	}

	var libIndexer mcp.LibraryIndexer
	if cfg.Library.UserID != "" && cfg.Library.APIKey != "" {
		ix, err := newLibraryIndexer(cfg, index, log)
		if err != nil {
			return err
		}
		libIndexer = ix
	} else {
		log.Warn("library credentials missing, zotero_index disabled")
	}

	server := mcp.NewServer(retriever, researcher, libIndexer, cfg.Research, log)
	return server.Serve(ctx)
}
