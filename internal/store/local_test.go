package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hashEmbedder is a deterministic embedder for tests: a letter
// histogram, so identical text embeds identically and related text
// lands nearby.
type hashEmbedder struct {
	dims    int
	failAll bool
}

func (f *hashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.failAll {
		return nil, errors.New("embedder down")
	}
	vec := make([]float32, f.dims)
	for _, r := range text {
		vec[int(r)%f.dims]++
	}
	vec[0] += 1 // never a zero vector
	return vec, nil
}

func (f *hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *hashEmbedder) Dimensions() int   { return f.dims }
func (f *hashEmbedder) ModelName() string { return "hash-test" }

func newTestIndex(t *testing.T) *LocalIndex {
	t.Helper()
	idx, err := NewLocalIndex(context.Background(), t.TempDir(), "papers_local_hash-test", &hashEmbedder{dims: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func testChunk(itemID string, splitID int, content string) Chunk {
	return Chunk{
		UID:         uuid.NewString(),
		ItemID:      itemID,
		StorageKey:  "STOR" + itemID,
		CitationKey: "key_" + itemID,
		Title:       "Title " + itemID,
		Authors:     "Doe, Jane",
		Date:        "2024",
		SplitID:     splitID,
		Levels:      map[string]string{"level1": "Introduction"},
		Length:      len(content),
		Content:     content,
	}
}

func TestLocalIndex_AddAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Chunk{
		testChunk("AAAA", 0, "transformer attention mechanisms"),
		testChunk("AAAA", 1, "convolutional networks for images"),
		testChunk("BBBB", 0, "reinforcement learning agents"),
	}))

	results, err := idx.Search(ctx, "transformer attention mechanisms", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "AAAA", results[0].ItemID)
	assert.Equal(t, 0, results[0].SplitID)
	assert.InDelta(t, 0, results[0].Distance, 0.001, "exact content should have near-zero distance")
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
	assert.Equal(t, map[string]string{"level1": "Introduction"}, results[0].Levels)
	assert.NotZero(t, results[0].AddedAt)
}

func TestLocalIndex_SearchEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)

	results, err := idx.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestLocalIndex_EmbeddingFailureAbortsAdd(t *testing.T) {
	embedder := &hashEmbedder{dims: 16}
	idx, err := NewLocalIndex(context.Background(), t.TempDir(), "c", embedder)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	embedder.failAll = true
	err = idx.Add(ctx, []Chunk{testChunk("AAAA", 0, "text")})
	require.Error(t, err)

	embedder.failAll = false
	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChunks, "failed add must not leave partial rows")
}

func TestLocalIndex_DeleteByItem(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Chunk{
		testChunk("AAAA", 0, "first chunk"),
		testChunk("AAAA", 1, "second chunk"),
		testChunk("BBBB", 0, "other item"),
	}))

	require.NoError(t, idx.DeleteByItem(ctx, "AAAA"))

	uids, err := idx.UIDsForItem(ctx, "AAAA")
	require.NoError(t, err)
	assert.Empty(t, uids)

	// Deleted chunks never surface in search, even though graph nodes
	// are only lazily removed.
	results, err := idx.Search(ctx, "first chunk", 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "AAAA", r.ItemID)
	}

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalChunks)
}

func TestLocalIndex_ReindexProducesFreshUIDs(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	first := []Chunk{testChunk("AAAA", 0, "content v1"), testChunk("AAAA", 1, "more v1")}
	require.NoError(t, idx.Add(ctx, first))
	before, err := idx.UIDsForItem(ctx, "AAAA")
	require.NoError(t, err)

	require.NoError(t, idx.DeleteByItem(ctx, "AAAA"))
	second := []Chunk{testChunk("AAAA", 0, "content v1"), testChunk("AAAA", 1, "more v1")}
	require.NoError(t, idx.Add(ctx, second))
	after, err := idx.UIDsForItem(ctx, "AAAA")
	require.NoError(t, err)

	require.Len(t, after, 2)
	for _, uid := range after {
		assert.NotContains(t, before, uid)
	}
}

func TestLocalIndex_SearchFiltered(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Chunk{
		testChunk("AAAA", 0, "neural network pruning"),
		testChunk("BBBB", 0, "neural network pruning"),
		testChunk("BBBB", 1, "dataset curation"),
	}))

	results, err := idx.SearchFiltered(ctx, "neural network pruning", Filter{"item_id": "BBBB"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "BBBB", r.ItemID)
	}
	assert.InDelta(t, 0, results[0].Distance, 0.001)
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
}

func TestLocalIndex_SearchFiltered_UnsupportedField(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.SearchFiltered(context.Background(), "q", Filter{"bogus": "x"}, 5)
	assert.Error(t, err)
}

func TestLocalIndex_FilterOnlyOrdering(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Chunk{
		testChunk("BBBB", 1, "b1"),
		testChunk("AAAA", 0, "a0"),
		testChunk("BBBB", 0, "b0"),
	}))

	chunks, err := idx.FilterOnly(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "AAAA", chunks[0].ItemID)
	assert.Equal(t, 0, chunks[1].SplitID)
	assert.Equal(t, "BBBB", chunks[1].ItemID)
	assert.Equal(t, 1, chunks[2].SplitID)
}

func TestLocalIndex_Stats(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Chunk{
		testChunk("AAAA", 0, "one"),
		testChunk("AAAA", 1, "two"),
		testChunk("BBBB", 0, "three"),
	}))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalChunks)
	require.Contains(t, stats.Items, "AAAA")
	assert.Equal(t, 2, stats.Items["AAAA"].Count)
	assert.Equal(t, "Title AAAA", stats.Items["AAAA"].Title)
	assert.Equal(t, "STORAAAA", stats.Items["AAAA"].StorageKey)
	assert.Equal(t, "key_AAAA", stats.Items["AAAA"].CitationKey)
}

func TestLocalIndex_Clear(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Add(ctx, []Chunk{testChunk("AAAA", 0, "content")}))
	require.NoError(t, idx.Clear(ctx))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChunks)

	results, err := idx.Search(ctx, "content", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestLocalIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	embedder := &hashEmbedder{dims: 16}
	ctx := context.Background()

	idx, err := NewLocalIndex(ctx, dir, "c", embedder)
	require.NoError(t, err)
	require.NoError(t, idx.Add(ctx, []Chunk{testChunk("AAAA", 0, "persistent content")}))
	require.NoError(t, idx.Close())

	reopened, err := NewLocalIndex(ctx, dir, "c", embedder)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	results, err := reopened.Search(ctx, "persistent content", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "AAAA", results[0].ItemID)
}

func TestLocalIndex_LargeBatchSearchStaysConsistent(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	var chunks []Chunk
	for i := 0; i < 50; i++ {
		chunks = append(chunks, testChunk("ITEM", i, fmt.Sprintf("chunk number %d of a long document", i)))
	}
	require.NoError(t, idx.Add(ctx, chunks))

	results, err := idx.Search(ctx, "chunk number 7 of a long document", 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance)
	}
}

func TestChunkDedupKey(t *testing.T) {
	c := testChunk("AAAA", 3, "x")
	assert.Equal(t, "AAAA:3", c.DedupKey())
}
