package cmd

import (
	"context"
	"sort"

	"github.com/spf13/cobra"

	"zotra/internal/output"
	"zotra/internal/zotero"
)

func newCollectionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "List the collections in the Zotero library",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollections(cmd.Context(), cmd)
		},
	}
	return cmd
}

func runCollections(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireLibraryCredentials(); err != nil {
		return err
	}

	client, err := zotero.NewClient(cfg.Library, logger())
	if err != nil {
		return err
	}

	total, err := client.CountItems(ctx)
	if err != nil {
		return err
	}
	collections, err := client.ListCollections(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.KV("Library items", total)
	out.KV("Collections", len(collections))
	out.Newline()

	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out.Statusf("-", "%s (%s)", name, collections[name])
	}
	return nil
}
