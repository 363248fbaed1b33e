package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"
	_ "modernc.org/sqlite"

	zerrors "zotra/internal/errors"
)

// LocalIndex is the default on-disk backend. Chunk rows and their
// embedding blobs live in SQLite; an in-memory HNSW graph built from
// those rows serves unfiltered nearest-neighbor search. Deletions are
// lazy in the graph (mappings dropped, node orphaned) and hard in
// SQLite; the graph is rebuilt clean on every open.
type LocalIndex struct {
	mu         sync.RWMutex
	db         *sql.DB
	graph      *hnsw.Graph[uint64]
	embedder   Embedder
	collection string

	idMap   map[string]uint64 // uid -> graph key
	keyMap  map[uint64]string // graph key -> uid
	nextKey uint64
	dims    int
	closed  bool
}

var _ VectorIndex = (*LocalIndex)(nil)

const localSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	uid          TEXT PRIMARY KEY,
	item_id      TEXT NOT NULL,
	storage_key  TEXT NOT NULL DEFAULT '',
	citation_key TEXT NOT NULL DEFAULT '',
	title        TEXT NOT NULL DEFAULT '',
	authors      TEXT NOT NULL DEFAULT '',
	date         TEXT NOT NULL DEFAULT '',
	split_id     INTEGER NOT NULL,
	levels       TEXT NOT NULL DEFAULT '{}',
	table_run    INTEGER NOT NULL DEFAULT 0,
	length       INTEGER NOT NULL DEFAULT 0,
	added_at     INTEGER NOT NULL DEFAULT 0,
	content      TEXT NOT NULL,
	extra        TEXT NOT NULL DEFAULT '{}',
	embedding    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_item ON chunks(item_id);
`

// NewLocalIndex opens (or creates) the local index for a collection.
// The collection name determines the database file, so a different
// embedding api or model addresses a different file.
func NewLocalIndex(ctx context.Context, storageRoot, collection string, embedder Embedder) (*LocalIndex, error) {
	if embedder == nil {
		return nil, zerrors.ConfigError("local index requires an embedder", nil)
	}
	if err := os.MkdirAll(storageRoot, 0o755); err != nil {
		return nil, zerrors.IOError(fmt.Sprintf("failed to create storage root %s", storageRoot), err)
	}

	dbPath := filepath.Join(storageRoot, collection+".db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, zerrors.IOError(fmt.Sprintf("failed to open index database %s", dbPath), err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, zerrors.IOError("failed to enable WAL mode", err)
	}
	if _, err := db.ExecContext(ctx, localSchema); err != nil {
		_ = db.Close()
		return nil, zerrors.New(zerrors.ErrCodeCorruptIndex, "failed to initialize index schema", err)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 100
	graph.Ml = 0.25

	idx := &LocalIndex{
		db:         db,
		graph:      graph,
		embedder:   embedder,
		collection: collection,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
		dims:       embedder.Dimensions(),
	}

	if err := idx.rebuildGraph(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return idx, nil
}

// rebuildGraph loads all stored embeddings into a fresh HNSW graph.
func (s *LocalIndex) rebuildGraph(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "SELECT uid, embedding FROM chunks")
	if err != nil {
		return zerrors.New(zerrors.ErrCodeCorruptIndex, "failed to load stored embeddings", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var uid string
		var blob []byte
		if err := rows.Scan(&uid, &blob); err != nil {
			return zerrors.New(zerrors.ErrCodeCorruptIndex, "failed to scan embedding row", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return zerrors.New(zerrors.ErrCodeCorruptIndex, fmt.Sprintf("chunk %s has a corrupt embedding", uid), err)
		}
		s.addToGraph(uid, vec)
	}
	return rows.Err()
}

// addToGraph inserts a normalized copy of vec under a fresh graph key.
// Caller holds the write lock (or is the only goroutine during open).
func (s *LocalIndex) addToGraph(uid string, vec []float32) {
	if old, exists := s.idMap[uid]; exists {
		// Lazy delete: orphan the old node rather than removing it.
		delete(s.keyMap, old)
		delete(s.idMap, uid)
	}

	key := s.nextKey
	s.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	s.graph.Add(hnsw.MakeNode(key, normalized))
	s.idMap[uid] = key
	s.keyMap[key] = uid
}

// Add embeds the chunks' content and inserts them in one transaction.
// Any embedding failure aborts before a single row is written.
func (s *LocalIndex) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Content
	}

	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return zerrors.New(zerrors.ErrCodeEmbeddingFailed, "failed to embed chunk batch", err)
	}
	if len(vectors) != len(chunks) {
		return zerrors.New(zerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)), nil)
	}
	for _, v := range vectors {
		if len(v) != s.dims {
			return ErrDimensionMismatch{Expected: s.dims, Got: len(v)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("index is closed")
	}

	now := time.Now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return zerrors.New(zerrors.ErrCodeIndexFailed, "failed to begin insert transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks
		(uid, item_id, storage_key, citation_key, title, authors, date,
		 split_id, levels, table_run, length, added_at, content, extra, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return zerrors.New(zerrors.ErrCodeIndexFailed, "failed to prepare insert", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range chunks {
		c := &chunks[i]
		if c.AddedAt == 0 {
			c.AddedAt = now
		}
		c.Embedding = vectors[i]

		levels, err := json.Marshal(orEmptyMap(c.Levels))
		if err != nil {
			return zerrors.InternalError("failed to marshal levels", err)
		}
		extra, err := json.Marshal(orEmptyMap(c.Extra))
		if err != nil {
			return zerrors.InternalError("failed to marshal extra metadata", err)
		}

		if _, err := stmt.ExecContext(ctx,
			c.UID, c.ItemID, c.StorageKey, c.CitationKey, c.Title, c.Authors, c.Date,
			c.SplitID, string(levels), c.Table, c.Length, c.AddedAt, c.Content, string(extra),
			encodeVector(vectors[i]),
		); err != nil {
			return zerrors.New(zerrors.ErrCodeIndexFailed, fmt.Sprintf("failed to insert chunk %s", c.UID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return zerrors.New(zerrors.ErrCodeIndexFailed, "failed to commit insert", err)
	}

	// Rows are durable; now mirror them into the graph.
	for i := range chunks {
		s.addToGraph(chunks[i].UID, vectors[i])
	}

	return nil
}

// Search returns the k nearest chunks to the query text.
func (s *LocalIndex) Search(ctx context.Context, query string, k int) ([]Chunk, error) {
	if k <= 0 {
		return []Chunk{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if s.graph.Len() == 0 {
		return []Chunk{}, nil
	}

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	// Over-fetch to cover lazily deleted nodes still in the graph.
	orphans := s.graph.Len() - len(s.keyMap)
	nodes := s.graph.Search(normalized, k+orphans)

	results := make([]Chunk, 0, k)
	for _, node := range nodes {
		uid, live := s.keyMap[node.Key]
		if !live {
			continue
		}
		chunk, err := s.loadChunk(ctx, uid)
		if err != nil {
			return nil, err
		}
		chunk.Distance = s.graph.Distance(normalized, node.Value)
		results = append(results, *chunk)
		if len(results) == k {
			break
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	return results, nil
}

// SearchFiltered ranks only chunks matching the filter. The candidate
// set is resolved in SQLite and scored exactly by cosine distance,
// which is precise for the per-item sets this serves.
func (s *LocalIndex) SearchFiltered(ctx context.Context, query string, filter Filter, k int) ([]Chunk, error) {
	if k <= 0 {
		return []Chunk{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	candidates, err := s.queryChunks(ctx, filter, 0, true)
	if err != nil {
		return nil, err
	}

	for i := range candidates {
		candidates[i].Distance = cosineDistance(vec, candidates[i].Embedding)
		candidates[i].Embedding = nil
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// FilterOnly returns chunks matching the filter, ordered by item then
// split id.
func (s *LocalIndex) FilterOnly(ctx context.Context, filter Filter, limit int) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	return s.queryChunks(ctx, filter, limit, false)
}

// UIDsForItem returns the chunk UIDs stored for an item.
func (s *LocalIndex) UIDsForItem(ctx context.Context, itemID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT uid FROM chunks WHERE item_id = ? ORDER BY split_id", itemID)
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeSearchFailed, "failed to query item uids", err)
	}
	defer func() { _ = rows.Close() }()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, zerrors.New(zerrors.ErrCodeSearchFailed, "failed to scan uid", err)
		}
		uids = append(uids, uid)
	}
	return uids, rows.Err()
}

// DeleteByItem removes all chunks of an item. The SQLite delete is a
// single transaction; graph nodes are orphaned lazily.
func (s *LocalIndex) DeleteByItem(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("index is closed")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT uid FROM chunks WHERE item_id = ?", itemID)
	if err != nil {
		return zerrors.New(zerrors.ErrCodeIndexFailed, "failed to list item chunks", err)
	}
	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			_ = rows.Close()
			return zerrors.New(zerrors.ErrCodeIndexFailed, "failed to scan uid", err)
		}
		uids = append(uids, uid)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE item_id = ?", itemID); err != nil {
		return zerrors.New(zerrors.ErrCodeIndexFailed, fmt.Sprintf("failed to delete chunks for item %s", itemID), err)
	}

	for _, uid := range uids {
		if key, exists := s.idMap[uid]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, uid)
		}
	}

	return nil
}

// Stats returns collection statistics grouped by item.
func (s *LocalIndex) Stats(ctx context.Context) (*CollectionStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	stats := &CollectionStats{
		Collection: s.collection,
		Items:      make(map[string]ItemStats),
	}

	rows, err := s.db.QueryContext(ctx, `SELECT item_id, COUNT(*), MAX(title), MAX(storage_key), MAX(citation_key)
		FROM chunks GROUP BY item_id`)
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeSearchFailed, "failed to query stats", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var itemID string
		var is ItemStats
		if err := rows.Scan(&itemID, &is.Count, &is.Title, &is.StorageKey, &is.CitationKey); err != nil {
			return nil, zerrors.New(zerrors.ErrCodeSearchFailed, "failed to scan stats row", err)
		}
		stats.Items[itemID] = is
		stats.TotalChunks += is.Count
	}
	return stats, rows.Err()
}

// Clear removes all chunks and resets the graph.
func (s *LocalIndex) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("index is closed")
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return zerrors.New(zerrors.ErrCodeIndexFailed, "failed to clear index", err)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 100
	graph.Ml = 0.25
	s.graph = graph
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.nextKey = 0

	return nil
}

// Close closes the database.
func (s *LocalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// queryChunks selects chunk rows matching the filter. Caller holds at
// least the read lock.
func (s *LocalIndex) queryChunks(ctx context.Context, filter Filter, limit int, withEmbedding bool) ([]Chunk, error) {
	cols := "uid, item_id, storage_key, citation_key, title, authors, date, split_id, levels, table_run, length, added_at, content, extra"
	if withEmbedding {
		cols += ", embedding"
	}

	query := "SELECT " + cols + " FROM chunks"
	var args []any
	var where []string
	for field, value := range filter {
		col, ok := filterColumns[field]
		if !ok {
			return nil, zerrors.ValidationError(fmt.Sprintf("unsupported filter field %q", field), nil)
		}
		where = append(where, col+" = ?")
		args = append(args, value)
	}
	sort.Strings(where) // deterministic statement text
	for i, w := range where {
		if i == 0 {
			query += " WHERE " + w
		} else {
			query += " AND " + w
		}
	}
	query += " ORDER BY item_id, split_id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeSearchFailed, "failed to query chunks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var levels, extra string
		var blob []byte

		dest := []any{&c.UID, &c.ItemID, &c.StorageKey, &c.CitationKey, &c.Title, &c.Authors, &c.Date,
			&c.SplitID, &levels, &c.Table, &c.Length, &c.AddedAt, &c.Content, &extra}
		if withEmbedding {
			dest = append(dest, &blob)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, zerrors.New(zerrors.ErrCodeSearchFailed, "failed to scan chunk row", err)
		}

		if err := json.Unmarshal([]byte(levels), &c.Levels); err != nil {
			return nil, zerrors.New(zerrors.ErrCodeCorruptIndex, fmt.Sprintf("chunk %s has corrupt levels", c.UID), err)
		}
		if err := json.Unmarshal([]byte(extra), &c.Extra); err != nil {
			return nil, zerrors.New(zerrors.ErrCodeCorruptIndex, fmt.Sprintf("chunk %s has corrupt extra metadata", c.UID), err)
		}
		if len(c.Levels) == 0 {
			c.Levels = nil
		}
		if len(c.Extra) == 0 {
			c.Extra = nil
		}

		if withEmbedding {
			vec, err := decodeVector(blob)
			if err != nil {
				return nil, zerrors.New(zerrors.ErrCodeCorruptIndex, fmt.Sprintf("chunk %s has a corrupt embedding", c.UID), err)
			}
			c.Embedding = vec
		}

		out = append(out, c)
	}
	if out == nil {
		out = []Chunk{}
	}
	return out, rows.Err()
}

// loadChunk loads a single chunk row without its embedding.
func (s *LocalIndex) loadChunk(ctx context.Context, uid string) (*Chunk, error) {
	chunks, err := s.queryChunksByUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, zerrors.New(zerrors.ErrCodeCorruptIndex, fmt.Sprintf("graph references missing chunk %s", uid), nil)
	}
	return &chunks[0], nil
}

func (s *LocalIndex) queryChunksByUID(ctx context.Context, uid string) ([]Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT uid, item_id, storage_key, citation_key, title, authors, date,
		split_id, levels, table_run, length, added_at, content, extra FROM chunks WHERE uid = ?`, uid)

	var c Chunk
	var levels, extra string
	err := row.Scan(&c.UID, &c.ItemID, &c.StorageKey, &c.CitationKey, &c.Title, &c.Authors, &c.Date,
		&c.SplitID, &levels, &c.Table, &c.Length, &c.AddedAt, &c.Content, &extra)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeSearchFailed, "failed to load chunk", err)
	}

	if err := json.Unmarshal([]byte(levels), &c.Levels); err != nil {
		return nil, zerrors.New(zerrors.ErrCodeCorruptIndex, fmt.Sprintf("chunk %s has corrupt levels", c.UID), err)
	}
	if err := json.Unmarshal([]byte(extra), &c.Extra); err != nil {
		return nil, zerrors.New(zerrors.ErrCodeCorruptIndex, fmt.Sprintf("chunk %s has corrupt extra metadata", c.UID), err)
	}
	if len(c.Levels) == 0 {
		c.Levels = nil
	}
	if len(c.Extra) == 0 {
		c.Extra = nil
	}

	return []Chunk{c}, nil
}

// filterColumns maps filter fields to their SQLite columns.
var filterColumns = map[string]string{
	"item_id":      "item_id",
	"storage_key":  "storage_key",
	"citation_key": "citation_key",
	"title":        "title",
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
