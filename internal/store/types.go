// Package store provides the persistent vector index over reference
// library chunks. Two backends implement the same interface: a local
// index (SQLite rows + in-memory HNSW graph) and a remote qdrant index.
package store

import (
	"context"
	"fmt"
)

// Chunk is the unit of indexed content: one split of a converted
// document, carrying its bibliographic metadata and heading context.
type Chunk struct {
	// UID is the unique chunk id, regenerated on every insert.
	UID string `json:"uid"`

	// ItemID is the Zotero item key this chunk belongs to.
	ItemID string `json:"item_id"`

	// StorageKey is the attachment storage key the PDF came from.
	StorageKey string `json:"storage_key"`

	// CitationKey is the BibTeX-style citation key of the item.
	CitationKey string `json:"citation_key"`

	// Title is the item title.
	Title string `json:"title"`

	// Authors is the formatted author list ("Last, First; ...").
	Authors string `json:"authors"`

	// Date is the publication date string.
	Date string `json:"date"`

	// SplitID is the dense per-document chunk ordinal (0..N-1).
	SplitID int `json:"split_id"`

	// Levels maps heading depth ("level1".."level7") to the most
	// recent heading text above this chunk.
	Levels map[string]string `json:"levels,omitempty"`

	// Table is the table run id (>0) when the chunk is a table row,
	// 0 otherwise. Consecutive table rows share a run id.
	Table int `json:"table"`

	// Length is len(Content) at annotation time.
	Length int `json:"length"`

	// AddedAt is the unix timestamp of insertion.
	AddedAt int64 `json:"added_at"`

	// Content is the chunk text.
	Content string `json:"content"`

	// Extra holds metadata keys outside the fixed schema.
	Extra map[string]string `json:"extra,omitempty"`

	// Embedding is the content vector. Populated on Add.
	Embedding []float32 `json:"-"`

	// Distance is the query distance, populated on search results.
	// Lower is closer.
	Distance float32 `json:"distance,omitempty"`
}

// DedupKey identifies a chunk by document position: re-indexing an item
// produces chunks with fresh UIDs but identical dedup keys.
func (c *Chunk) DedupKey() string {
	return fmt.Sprintf("%s:%d", c.ItemID, c.SplitID)
}

// Filter selects chunks by exact metadata match. Supported fields:
// item_id, storage_key, citation_key, title.
type Filter map[string]string

// ItemStats summarizes the indexed chunks of a single item.
type ItemStats struct {
	Count       int    `json:"count"`
	Title       string `json:"title"`
	StorageKey  string `json:"storage_key"`
	CitationKey string `json:"citation_key"`
}

// CollectionStats summarizes the state of a collection.
type CollectionStats struct {
	Collection  string               `json:"collection"`
	TotalChunks int                  `json:"total_chunks"`
	Items       map[string]ItemStats `json:"items"`
}

// Embedder produces vector embeddings for text. Satisfied by
// the embed package backends.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
}

// VectorIndex is the persistent chunk index.
//
// Add embeds and inserts chunks; an embedding failure aborts the call
// with no partial insert. Search methods return chunks ordered by
// ascending distance; searching an empty collection returns an empty
// slice and no error.
type VectorIndex interface {
	// Add embeds the chunks' content and inserts them.
	Add(ctx context.Context, chunks []Chunk) error

	// Search returns the k nearest chunks to the query text.
	Search(ctx context.Context, query string, k int) ([]Chunk, error)

	// SearchFiltered returns the k nearest chunks among those
	// matching the filter.
	SearchFiltered(ctx context.Context, query string, filter Filter, k int) ([]Chunk, error)

	// FilterOnly returns chunks matching the filter without ranking,
	// ordered by item then split id. limit <= 0 means no limit.
	FilterOnly(ctx context.Context, filter Filter, limit int) ([]Chunk, error)

	// UIDsForItem returns the chunk UIDs stored for an item.
	UIDsForItem(ctx context.Context, itemID string) ([]string, error)

	// DeleteByItem removes all chunks of an item atomically.
	DeleteByItem(ctx context.Context, itemID string) error

	// Stats returns collection statistics.
	Stats(ctx context.Context) (*CollectionStats, error)

	// Clear removes all chunks from the collection.
	Clear(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// ErrDimensionMismatch is returned when a vector's dimensionality does
// not match the collection's.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
