// Package indexer orchestrates the ingest pipeline: resolve library
// items, convert PDFs to markdown, chunk, embed, and store.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"zotra/internal/chunk"
	"zotra/internal/store"
	"zotra/internal/zotero"
)

// Library is the subset of the Zotero client the indexer needs.
type Library interface {
	Items(ctx context.Context, sel zotero.Selector) ([]zotero.BibItem, error)
	GetItem(ctx context.Context, itemID string) (*zotero.BibItem, error)
	ItemIDForStorageKey(ctx context.Context, storageKey string) (string, error)
}

// Gateway converts a PDF and returns the markdown path.
type Gateway interface {
	Convert(ctx context.Context, pdfPath, storageKey string) (string, error)
}

// Chunker splits a markdown file into annotated chunks.
type Chunker interface {
	ChunkFile(ctx context.Context, path string, meta chunk.Meta) ([]store.Chunk, error)
}

// Progress reports per-item pipeline progress.
type Progress func(done, total int, item string)

// FailedItem records one item that could not be indexed.
type FailedItem struct {
	ItemID  string `json:"item_id"`
	Title   string `json:"title"`
	PDFPath string `json:"pdf_path,omitempty"`
	Reason  string `json:"reason"`
}

// Result aggregates one indexing run.
type Result struct {
	Total         int          `json:"total"`
	Successful    int          `json:"successful"`
	Failed        int          `json:"failed"`
	Skipped       int          `json:"skipped"`
	ChunksCreated int          `json:"chunks_created"`
	FailedItems   []FailedItem `json:"failed_items,omitempty"`
}

// Indexer runs the ingest pipeline against a vector index.
type Indexer struct {
	library      Library
	gateway      Gateway
	chunker      Chunker
	index        store.VectorIndex
	markdownRoot string
	logger       *slog.Logger
}

// New creates an indexer.
func New(library Library, gateway Gateway, chunker Chunker, index store.VectorIndex, markdownRoot string, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		library:      library,
		gateway:      gateway,
		chunker:      chunker,
		index:        index,
		markdownRoot: markdownRoot,
		logger:       logger.With(slog.String("component", "indexer")),
	}
}

// UpdateIndex indexes the items matched by the selector. Items already
// in the index are skipped unless force, in which case their chunks
// are deleted before the new generation is inserted. One item failing
// never aborts the batch.
func (ix *Indexer) UpdateIndex(ctx context.Context, sel zotero.Selector, force bool, progress Progress) (*Result, error) {
	items, err := ix.library.Items(ctx, sel)
	if err != nil {
		return nil, err
	}

	result := &Result{Total: len(items)}
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ix.indexItem(ctx, &item, force, result)
		if progress != nil {
			progress(i+1, len(items), item.Title)
		}
	}

	ix.logger.Info("indexing finished",
		slog.Int("total", result.Total),
		slog.Int("successful", result.Successful),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped),
		slog.Int("chunks", result.ChunksCreated))
	return result, nil
}

// indexItem runs the pipeline for a single item, updating result.
func (ix *Indexer) indexItem(ctx context.Context, item *zotero.BibItem, force bool, result *Result) {
	fail := func(reason string) {
		result.Failed++
		result.FailedItems = append(result.FailedItems, FailedItem{
			ItemID:  item.ItemID,
			Title:   item.Title,
			PDFPath: item.PDFPath,
			Reason:  reason,
		})
		ix.logger.Warn("item not indexed",
			slog.String("item_id", item.ItemID),
			slog.String("reason", reason))
	}

	existing, err := ix.index.UIDsForItem(ctx, item.ItemID)
	if err != nil {
		fail(fmt.Sprintf("index lookup failed: %v", err))
		return
	}
	if len(existing) > 0 {
		if !force {
			result.Skipped++
			ix.logger.Debug("already indexed", slog.String("item_id", item.ItemID))
			return
		}
		// Old generation goes away before any new chunk appears.
		if err := ix.index.DeleteByItem(ctx, item.ItemID); err != nil {
			fail(fmt.Sprintf("failed to delete existing chunks: %v", err))
			return
		}
	}

	if !item.HasPDF() {
		fail("no pdf attachment resolved")
		return
	}

	mdPath, err := ix.gateway.Convert(ctx, item.PDFPath, item.StorageKey)
	if err != nil {
		fail(fmt.Sprintf("conversion failed: %v", err))
		return
	}

	added, err := ix.chunkAndAdd(ctx, mdPath, item)
	if err != nil {
		fail(err.Error())
		return
	}
	result.Successful++
	result.ChunksCreated += added
}

// chunkAndAdd chunks a markdown file with the item's metadata and adds
// the chunks to the index.
func (ix *Indexer) chunkAndAdd(ctx context.Context, mdPath string, item *zotero.BibItem) (int, error) {
	chunks, err := ix.chunker.ChunkFile(ctx, mdPath, metaFor(item))
	if err != nil {
		return 0, fmt.Errorf("chunking failed: %w", err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no chunks produced from %s", mdPath)
	}
	if err := ix.index.Add(ctx, chunks); err != nil {
		return 0, fmt.Errorf("index add failed: %w", err)
	}
	return len(chunks), nil
}

// IndexLocalMarkdown walks the markdown root and indexes every .md
// file, resolving the item through its storage-key directory. Already
// indexed items are skipped unless force.
func (ix *Indexer) IndexLocalMarkdown(ctx context.Context, force bool, progress Progress) (*Result, error) {
	var paths []string
	err := filepath.WalkDir(ix.markdownRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk markdown root %s: %w", ix.markdownRoot, err)
	}

	result := &Result{Total: len(paths)}
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ix.indexMarkdownFile(ctx, path, force, result)
		if progress != nil {
			progress(i+1, len(paths), filepath.Base(path))
		}
	}
	return result, nil
}

func (ix *Indexer) indexMarkdownFile(ctx context.Context, path string, force bool, result *Result) {
	storageKey := filepath.Base(filepath.Dir(path))

	fail := func(itemID, title, reason string) {
		result.Failed++
		result.FailedItems = append(result.FailedItems, FailedItem{
			ItemID: itemID,
			Title:  title,
			Reason: reason,
		})
		ix.logger.Warn("markdown not indexed",
			slog.String("path", path),
			slog.String("reason", reason))
	}

	itemID, err := ix.library.ItemIDForStorageKey(ctx, storageKey)
	if err != nil {
		fail("", "", fmt.Sprintf("storage key %s did not resolve: %v", storageKey, err))
		return
	}

	item, err := ix.library.GetItem(ctx, itemID)
	if err != nil || item == nil {
		fail(itemID, "", fmt.Sprintf("item %s not found for storage key %s", itemID, storageKey))
		return
	}
	if item.StorageKey == "" {
		item.StorageKey = storageKey
	}

	existing, err := ix.index.UIDsForItem(ctx, item.ItemID)
	if err != nil {
		fail(item.ItemID, item.Title, fmt.Sprintf("index lookup failed: %v", err))
		return
	}
	if len(existing) > 0 {
		if !force {
			result.Skipped++
			return
		}
		if err := ix.index.DeleteByItem(ctx, item.ItemID); err != nil {
			fail(item.ItemID, item.Title, fmt.Sprintf("failed to delete existing chunks: %v", err))
			return
		}
	}

	added, err := ix.chunkAndAdd(ctx, path, item)
	if err != nil {
		fail(item.ItemID, item.Title, err.Error())
		return
	}
	result.Successful++
	result.ChunksCreated += added
}

// metaFor copies the bibliographic fields every chunk carries.
func metaFor(item *zotero.BibItem) chunk.Meta {
	extra := make(map[string]string)
	if item.DOI != "" {
		extra["doi"] = item.DOI
	}
	if item.URL != "" {
		extra["url"] = item.URL
	}
	if item.Publication != "" {
		extra["publication"] = item.Publication
	}
	if len(extra) == 0 {
		extra = nil
	}
	return chunk.Meta{
		ItemID:      item.ItemID,
		StorageKey:  item.StorageKey,
		CitationKey: item.CitationKey,
		Title:       item.Title,
		Authors:     item.Authors,
		Date:        item.Date,
		Extra:       extra,
	}
}
