package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"zotra/internal/indexer"
	"zotra/internal/output"
	"zotra/internal/ui"
	"zotra/internal/zotero"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	collection    string
	collectionID  string
	item          string
	name          string
	force         bool
	localMarkdown bool
	noColor       bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Convert and index Zotero items into the vector index",
		Long: `Fetch items from the Zotero library, convert their PDF attachments
to markdown, chunk them, and add the chunks to the vector index.

Already-indexed items are skipped unless --force is given, in which
case their chunks are replaced.

Examples:
  zotra index
  zotra index --collection "Deep Learning"
  zotra index --item ABCD1234 --force
  zotra index --local-markdown`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.collection, "collection", "", "Index only items in the collection with this name")
	cmd.Flags().StringVar(&opts.collectionID, "collection-id", "", "Index only items in the collection with this key")
	cmd.Flags().StringVar(&opts.item, "item", "", "Index only the item with this key")
	cmd.Flags().StringVar(&opts.name, "name", "", "Index only items whose title or creator matches")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-index items that are already indexed")
	cmd.Flags().BoolVar(&opts.localMarkdown, "local-markdown", false, "Index already-converted markdown files without fetching PDFs")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

// selectorFromFlags maps the mutually exclusive selection flags onto an
// item selector.
func selectorFromFlags(opts indexOptions) (zotero.Selector, error) {
	var sel zotero.Selector
	set := 0
	if opts.collection != "" {
		sel = zotero.ByCollectionName(opts.collection)
		set++
	}
	if opts.collectionID != "" {
		sel = zotero.ByCollectionID(opts.collectionID)
		set++
	}
	if opts.item != "" {
		sel = zotero.ByID(opts.item)
		set++
	}
	if opts.name != "" {
		sel = zotero.ByName(opts.name)
		set++
	}
	switch set {
	case 0:
		return zotero.All(), nil
	case 1:
		return sel, nil
	default:
		return zotero.Selector{}, errTooManySelectors
	}
}

func runIndex(ctx context.Context, cmd *cobra.Command, opts indexOptions) error {
	sel, err := selectorFromFlags(opts)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireLibraryCredentials(); err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Statusf("*", "Indexing %s into collection %s", sel, cfg.FullCollectionName())

	index, embedder, err := openIndex(ctx, cfg)
	if err != nil {
		return err
	}
	defer index.Close()
	defer embedder.Close()

	ix, err := newLibraryIndexer(cfg, index, logger())
	if err != nil {
		return err
	}

	renderer := ui.NewRenderer(ui.Config{Output: cmd.OutOrStdout(), NoColor: opts.noColor})
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer renderer.Stop()

	progress := func(done, total int, item string) {
		renderer.UpdateProgress(ui.ProgressEvent{
			Stage:   ui.StageIndexing,
			Current: done,
			Total:   total,
			Item:    item,
		})
	}

	start := time.Now()
	var result *indexer.Result
	if opts.localMarkdown {
		result, err = ix.IndexLocalMarkdown(ctx, opts.force, progress)
	} else {
		result, err = ix.UpdateIndex(ctx, sel, opts.force, progress)
	}
	if err != nil {
		return err
	}

	for _, f := range result.FailedItems {
		renderer.AddError(ui.ErrorEvent{Item: f.Title, Err: failedItemError(f), IsWarn: true})
	}
	renderer.Complete(ui.CompletionStats{
		Items:    result.Successful,
		Chunks:   result.ChunksCreated,
		Skipped:  result.Skipped,
		Failed:   result.Failed,
		Duration: time.Since(start),
	})
	return nil
}
