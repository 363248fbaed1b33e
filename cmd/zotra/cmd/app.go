package cmd

import (
	"context"
	"errors"
	"log/slog"

	"zotra/internal/chat"
	"zotra/internal/chunk"
	"zotra/internal/config"
	"zotra/internal/convert"
	"zotra/internal/embed"
	zerrors "zotra/internal/errors"
	"zotra/internal/indexer"
	"zotra/internal/store"
	"zotra/internal/zotero"
)

// errTooManySelectors rejects combined selection flags.
var errTooManySelectors = zerrors.New(zerrors.ErrCodeInvalidSelector,
	"at most one of --collection, --collection-id, --item, or --name may be set", nil)

// logger returns the process logger, honoring --debug setup.
func logger() *slog.Logger {
	return slog.Default()
}

// failedItemError adapts a per-item failure record for display.
func failedItemError(f indexer.FailedItem) error {
	return errors.New(f.Reason)
}

// loadConfig loads the layered configuration from the working directory.
func loadConfig() (*config.Config, error) {
	return config.Load(".")
}

// openIndex builds the embedder and the configured vector index backend.
// The caller owns both and must close them.
func openIndex(ctx context.Context, cfg *config.Config) (store.VectorIndex, embed.Embedder, error) {
	embedder, err := embed.New(ctx, cfg.Embeddings)
	if err != nil {
		return nil, nil, err
	}

	collection := cfg.FullCollectionName()

	var index store.VectorIndex
	switch cfg.Vector.Backend {
	case "qdrant":
		index, err = store.NewQdrantIndex(ctx, cfg.Vector.QdrantAddr, collection, embedder)
	default:
		index, err = store.NewLocalIndex(ctx, cfg.Vector.StorageRoot, collection, embedder)
	}
	if err != nil {
		embedder.Close()
		return nil, nil, err
	}
	return index, embedder, nil
}

// newChatModel builds the chat backend for ask and serve.
func newChatModel(ctx context.Context, cfg *config.Config) (chat.Chat, error) {
	return chat.New(ctx, chat.Options{
		API:          cfg.Chat.API,
		Model:        cfg.Chat.Model,
		Temperature:  cfg.Chat.Temperature,
		OllamaHost:   cfg.Embeddings.OllamaHost,
		GeminiAPIKey: cfg.Embeddings.GeminiAPIKey,
	})
}

// newLibraryIndexer wires the Zotero client, converter gateway, and
// chunker into an indexer over the given vector index.
func newLibraryIndexer(cfg *config.Config, index store.VectorIndex, logger *slog.Logger) (*indexer.Indexer, error) {
	client, err := zotero.NewClient(cfg.Library, logger)
	if err != nil {
		return nil, err
	}

	converter := &convert.CommandConverter{
		Command: cfg.Markdown.ConverterCommand,
		Args:    cfg.Markdown.ConverterArgs,
	}
	gateway := convert.NewGateway(converter, cfg.Markdown.Root, cfg.Markdown.SkipExisting, logger)
	chunker := chunk.NewMarkdownChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)

	return indexer.New(client, gateway, chunker, index, cfg.Markdown.Root, logger), nil
}
