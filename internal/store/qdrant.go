package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"

	zerrors "zotra/internal/errors"
)

// scrollPageSize bounds unranked reads. A personal reference library
// stays well under this.
const scrollPageSize = 10000

// QdrantIndex is the remote backend, one qdrant collection per
// collection identity. Chunk metadata travels as point payload.
type QdrantIndex struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string
}

var _ VectorIndex = (*QdrantIndex)(nil)

// NewQdrantIndex connects to qdrant at addr (host:port, gRPC) and
// ensures the collection exists with the embedder's dimensionality.
func NewQdrantIndex(ctx context.Context, addr, collection string, embedder Embedder) (*QdrantIndex, error) {
	if embedder == nil {
		return nil, zerrors.ConfigError("qdrant index requires an embedder", nil)
	}

	host, port, err := splitQdrantAddr(addr)
	if err != nil {
		return nil, zerrors.ConfigError(fmt.Sprintf("invalid qdrant address %q", addr), err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeNetworkUnavailable, "failed to connect to qdrant", err)
	}

	idx := &QdrantIndex{client: client, embedder: embedder, collection: collection}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return zerrors.New(zerrors.ErrCodeNetworkUnavailable, "failed to check qdrant collection", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.embedder.Dimensions()),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return zerrors.New(zerrors.ErrCodeIndexFailed, fmt.Sprintf("failed to create qdrant collection %s", s.collection), err)
	}
	return nil
}

// Add embeds the chunks and upserts them as points.
func (s *QdrantIndex) Add(ctx context.Context, chunks []Chunk) error {
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

	now := time.Now().Unix()
	points := make([]*qdrant.PointStruct, len(chunks))
	for i := range chunks {
		c := &chunks[i]
		if c.AddedAt == 0 {
			c.AddedAt = now
		}
		payload, err := chunkPayload(c)
		if err != nil {
			return err
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(c.UID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return zerrors.New(zerrors.ErrCodeIndexFailed, "failed to upsert chunks", err)
	}
	return nil
}

// Search returns the k nearest chunks to the query text.
func (s *QdrantIndex) Search(ctx context.Context, query string, k int) ([]Chunk, error) {
	return s.search(ctx, query, nil, k)
}

// SearchFiltered ranks only chunks matching the filter.
func (s *QdrantIndex) SearchFiltered(ctx context.Context, query string, filter Filter, k int) ([]Chunk, error) {
	return s.search(ctx, query, filter, k)
}

func (s *QdrantIndex) search(ctx context.Context, query string, filter Filter, k int) ([]Chunk, error) {
	if k <= 0 {
		return []Chunk{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeEmbeddingFailed, "failed to embed query", err)
	}

	req := &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(vec...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qf := qdrantFilter(filter); qf != nil {
		req.Filter = qf
	}

	scored, err := s.client.Query(ctx, req)
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeSearchFailed, "qdrant query failed", err)
	}

	results := make([]Chunk, 0, len(scored))
	for _, point := range scored {
		chunk, err := chunkFromPayload(point.GetId().GetUuid(), point.GetPayload())
		if err != nil {
			return nil, err
		}
		// Cosine similarity score -> cosine distance.
		chunk.Distance = 1 - point.GetScore()
		results = append(results, *chunk)
	}
	return results, nil
}

// FilterOnly returns chunks matching the filter without ranking.
func (s *QdrantIndex) FilterOnly(ctx context.Context, filter Filter, limit int) ([]Chunk, error) {
	points, err := s.scroll(ctx, filter)
	if err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0, len(points))
	for _, point := range points {
		chunk, err := chunkFromPayload(point.GetId().GetUuid(), point.GetPayload())
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *chunk)
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		if chunks[i].ItemID != chunks[j].ItemID {
			return chunks[i].ItemID < chunks[j].ItemID
		}
		return chunks[i].SplitID < chunks[j].SplitID
	})

	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	return chunks, nil
}

// UIDsForItem returns the chunk UIDs stored for an item.
func (s *QdrantIndex) UIDsForItem(ctx context.Context, itemID string) ([]string, error) {
	points, err := s.scroll(ctx, Filter{"item_id": itemID})
	if err != nil {
		return nil, err
	}

	uids := make([]string, 0, len(points))
	for _, point := range points {
		uids = append(uids, point.GetId().GetUuid())
	}
	return uids, nil
}

// DeleteByItem removes all points of an item in a single call.
func (s *QdrantIndex) DeleteByItem(ctx context.Context, itemID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(qdrantFilter(Filter{"item_id": itemID})),
	})
	if err != nil {
		return zerrors.New(zerrors.ErrCodeIndexFailed, fmt.Sprintf("failed to delete chunks for item %s", itemID), err)
	}
	return nil
}

// Stats aggregates payload metadata over the whole collection.
func (s *QdrantIndex) Stats(ctx context.Context) (*CollectionStats, error) {
	points, err := s.scroll(ctx, nil)
	if err != nil {
		return nil, err
	}

	stats := &CollectionStats{
		Collection: s.collection,
		Items:      make(map[string]ItemStats),
	}
	for _, point := range points {
		payload := point.GetPayload()
		itemID := payload["item_id"].GetStringValue()
		is := stats.Items[itemID]
		is.Count++
		is.Title = payload["title"].GetStringValue()
		is.StorageKey = payload["storage_key"].GetStringValue()
		is.CitationKey = payload["citation_key"].GetStringValue()
		stats.Items[itemID] = is
		stats.TotalChunks++
	}
	return stats, nil
}

// Clear drops and recreates the collection.
func (s *QdrantIndex) Clear(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
		return zerrors.New(zerrors.ErrCodeIndexFailed, fmt.Sprintf("failed to drop collection %s", s.collection), err)
	}
	return s.ensureCollection(ctx)
}

// Close closes the gRPC connection.
func (s *QdrantIndex) Close() error {
	return s.client.Close()
}

func (s *QdrantIndex) scroll(ctx context.Context, filter Filter) ([]*qdrant.RetrievedPoint, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if qf := qdrantFilter(filter); qf != nil {
		req.Filter = qf
	}

	points, err := s.client.Scroll(ctx, req)
	if err != nil {
		return nil, zerrors.New(zerrors.ErrCodeSearchFailed, "qdrant scroll failed", err)
	}
	return points, nil
}

// qdrantFilter converts a metadata filter into qdrant match conditions.
func qdrantFilter(filter Filter) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}
	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	conditions := make([]*qdrant.Condition, 0, len(fields))
	for _, field := range fields {
		conditions = append(conditions, qdrant.NewMatch(field, filter[field]))
	}
	return &qdrant.Filter{Must: conditions}
}

// chunkPayload flattens a chunk into point payload. Levels and extra
// ride as JSON strings to keep the payload schema flat.
func chunkPayload(c *Chunk) (map[string]*qdrant.Value, error) {
	levels, err := json.Marshal(orEmptyMap(c.Levels))
	if err != nil {
		return nil, zerrors.InternalError("failed to marshal levels", err)
	}
	extra, err := json.Marshal(orEmptyMap(c.Extra))
	if err != nil {
		return nil, zerrors.InternalError("failed to marshal extra metadata", err)
	}

	return qdrant.NewValueMap(map[string]any{
		"item_id":      c.ItemID,
		"storage_key":  c.StorageKey,
		"citation_key": c.CitationKey,
		"title":        c.Title,
		"authors":      c.Authors,
		"date":         c.Date,
		"split_id":     int64(c.SplitID),
		"levels":       string(levels),
		"table_run":    int64(c.Table),
		"length":       int64(c.Length),
		"added_at":     c.AddedAt,
		"content":      c.Content,
		"extra":        string(extra),
	}), nil
}

// chunkFromPayload rebuilds a chunk from point payload.
func chunkFromPayload(uid string, payload map[string]*qdrant.Value) (*Chunk, error) {
	c := &Chunk{
		UID:         uid,
		ItemID:      payload["item_id"].GetStringValue(),
		StorageKey:  payload["storage_key"].GetStringValue(),
		CitationKey: payload["citation_key"].GetStringValue(),
		Title:       payload["title"].GetStringValue(),
		Authors:     payload["authors"].GetStringValue(),
		Date:        payload["date"].GetStringValue(),
		SplitID:     int(payload["split_id"].GetIntegerValue()),
		Table:       int(payload["table_run"].GetIntegerValue()),
		Length:      int(payload["length"].GetIntegerValue()),
		AddedAt:     payload["added_at"].GetIntegerValue(),
		Content:     payload["content"].GetStringValue(),
	}

	if raw := payload["levels"].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Levels); err != nil {
			return nil, zerrors.New(zerrors.ErrCodeCorruptIndex, fmt.Sprintf("chunk %s has corrupt levels payload", uid), err)
		}
	}
	if raw := payload["extra"].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Extra); err != nil {
			return nil, zerrors.New(zerrors.ErrCodeCorruptIndex, fmt.Sprintf("chunk %s has corrupt extra payload", uid), err)
		}
	}
	if len(c.Levels) == 0 {
		c.Levels = nil
	}
	if len(c.Extra) == 0 {
		c.Extra = nil
	}

	return c, nil
}

// splitQdrantAddr parses host:port, defaulting the port to 6334.
func splitQdrantAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// Bare host without port.
		return addr, 6334, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	return host, port, nil
}
