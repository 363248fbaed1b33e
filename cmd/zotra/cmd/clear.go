package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"zotra/internal/output"
)

func newClearCmd() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all chunks from the vector index",
		Long: `Delete every chunk in the configured collection. The markdown cache
and the Zotero library itself are untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return fmt.Errorf("refusing to clear the index without --confirm")
			}
			return runClear(cmd.Context(), cmd)
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "Actually clear the index")

	return cmd
}

func runClear(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	index, embedder, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer index.Close()
	defer embedder.Close()

	stats, err := index.Stats(ctx)
	if err != nil {
		return err
	}
	if err := index.Clear(ctx); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Successf("Cleared %d chunks from %s", stats.TotalChunks, cfg.FullCollectionName())
	return nil
}
