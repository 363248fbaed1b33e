package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zotra/internal/output"
	"zotra/internal/retrieve"
	"zotra/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	queries []string
	item    string
	limit   int
	format  string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the indexed library",
		Long: `Run a semantic search over the indexed chunks.

Passing --query more than once searches all queries in parallel and
merges the results by distance. With --item the search is restricted
to a single library item.

Examples:
  zotra search "attention mechanisms"
  zotra search --query "attention" --query "transformers" -k 8
  zotra search "methods" --item ABCD1234
  zotra search "results" --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.queries = append(opts.queries, args[0])
			}
			return runSearch(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.queries, "query", "q", nil, "Search query (repeatable)")
	cmd.Flags().StringVar(&opts.item, "item", "", "Restrict the search to one item key")
	cmd.Flags().IntVarP(&opts.limit, "limit", "k", 0, "Maximum number of chunks (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, opts searchOptions) error {
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

	retriever := retrieve.New(index, logger())

	k := cfg.Research.KDocuments
	if opts.limit > 0 {
		k = opts.limit
	}

	var chunks []store.Chunk
	switch {
	case opts.item != "":
		chunks, err = retriever.ByItem(ctx, opts.item, strings.Join(opts.queries, " "), k)
	case len(opts.queries) > 1:
		chunks, err = retriever.MultiQuery(ctx, opts.queries, k)
	case len(opts.queries) == 1:
		chunks, err = retriever.Semantic(ctx, opts.queries[0], k)
	default:
		return fmt.Errorf("no query given. Pass a query argument or --query")
	}
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(chunks)
	}

	out := output.New(cmd.OutOrStdout())
	if len(chunks) == 0 {
		out.Warning("No results")
		return nil
	}
	out.Statusf("*", "%d chunks (relevance: %s)", len(chunks),
		retrieve.Relevance(chunks, cfg.Research.RelevanceThreshold))
	out.Newline()
	fmt.Fprintln(cmd.OutOrStdout(), retrieve.FormatChunks(chunks))
	return nil
}
