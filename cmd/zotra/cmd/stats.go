package cmd

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/spf13/cobra"

	"zotra/internal/output"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show what is in the vector index",
		Long:  `List the indexed items with their chunk counts.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
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

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	out := output.New(cmd.OutOrStdout())
	out.KV("Collection", cfg.FullCollectionName())
	out.KV("Backend", cfg.Vector.Backend)
	out.KV("Items", len(stats.Items))
	out.KV("Chunks", stats.TotalChunks)

	if len(stats.Items) == 0 {
		out.Newline()
		out.Warning("Index is empty. Run 'zotra index' first.")
		return nil
	}

	type row struct {
		itemID string
		title  string
		count  int
	}
	rows := make([]row, 0, len(stats.Items))
	for itemID, s := range stats.Items {
		rows = append(rows, row{itemID: itemID, title: s.Title, count: s.Count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].title != rows[j].title {
			return rows[i].title < rows[j].title
		}
		return rows[i].itemID < rows[j].itemID
	})

	out.Newline()
	for _, r := range rows {
		title := r.title
		if title == "" {
			title = r.itemID
		}
		out.Statusf("-", "%s (%s): %d chunks", title, r.itemID, r.count)
	}
	return nil
}
