package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zotra/internal/config"
	zerrors "zotra/internal/errors"
	"zotra/internal/indexer"
	"zotra/internal/research"
	"zotra/internal/store"
	"zotra/internal/zotero"
)

// stubRetriever records calls and returns canned chunks.
type stubRetriever struct {
	chunks []store.Chunk
	stats  *store.CollectionStats
	err    error

	lastQuery   string
	lastQueries []string
	lastItemID  string
	lastK       int
}

func (s *stubRetriever) Semantic(_ context.Context, query string, k int) ([]store.Chunk, error) {
	s.lastQuery, s.lastK = query, k
	return s.chunks, s.err
}

func (s *stubRetriever) MultiQuery(_ context.Context, queries []string, k int) ([]store.Chunk, error) {
	s.lastQueries, s.lastK = queries, k
	return s.chunks, s.err
}

func (s *stubRetriever) ByItem(_ context.Context, itemID, query string, k int) ([]store.Chunk, error) {
	s.lastItemID, s.lastQuery, s.lastK = itemID, query, k
	return s.chunks, s.err
}

func (s *stubRetriever) ListIndexed(_ context.Context) (*store.CollectionStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.stats, nil
}

type stubResearcher struct {
	result *research.Result
	err    error
	query  string
}

func (s *stubResearcher) Run(_ context.Context, query string) (*research.Result, error) {
	s.query = query
	return s.result, s.err
}

type stubIndexer struct {
	result *indexer.Result
	err    error
	sel    zotero.Selector
	force  bool
}

func (s *stubIndexer) UpdateIndex(_ context.Context, sel zotero.Selector, force bool, _ indexer.Progress) (*indexer.Result, error) {
	s.sel, s.force = sel, force
	return s.result, s.err
}

func testResearchConfig() config.ResearchConfig {
	return config.ResearchConfig{
		KDocuments:         4,
		RelevanceThreshold: 1.0,
	}
}

func searchChunk(itemID string, splitID int, distance float32) store.Chunk {
	return store.Chunk{
		ItemID:      itemID,
		SplitID:     splitID,
		Title:       "Attention Is All You Need",
		CitationKey: "vaswani_attention_2017",
		Content:     "scaled dot-product attention",
		Levels:      map[string]string{"level1": "Model Architecture"},
		Distance:    distance,
	}
}

func TestSearchHandler_Semantic(t *testing.T) {
	retriever := &stubRetriever{chunks: []store.Chunk{
		searchChunk("ITEM1", 0, 0.3),
		searchChunk("ITEM1", 1, 0.5),
	}}
	s := NewServer(retriever, nil, nil, testResearchConfig(), nil)

	_, out, err := s.searchHandler(context.Background(), nil, SearchInput{Query: "attention"})
	require.NoError(t, err)

	assert.Equal(t, "attention", retriever.lastQuery)
	assert.Equal(t, 4, retriever.lastK, "default k comes from config")
	require.Len(t, out.Chunks, 2)
	assert.Equal(t, "Model Architecture", out.Chunks[0].Section)
	assert.Equal(t, "high", out.Relevance)
	assert.Contains(t, out.Context, "vaswani_attention_2017")
}

func TestSearchHandler_LimitOverridesDefault(t *testing.T) {
	retriever := &stubRetriever{}
	s := NewServer(retriever, nil, nil, testResearchConfig(), nil)

	_, _, err := s.searchHandler(context.Background(), nil, SearchInput{Query: "q", Limit: 9})
	require.NoError(t, err)
	assert.Equal(t, 9, retriever.lastK)
}

func TestSearchHandler_MultiQuery(t *testing.T) {
	retriever := &stubRetriever{}
	s := NewServer(retriever, nil, nil, testResearchConfig(), nil)

	_, _, err := s.searchHandler(context.Background(), nil, SearchInput{Queries: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, retriever.lastQueries)
}

func TestSearchHandler_ByItem(t *testing.T) {
	retriever := &stubRetriever{}
	s := NewServer(retriever, nil, nil, testResearchConfig(), nil)

	_, _, err := s.searchHandler(context.Background(), nil, SearchInput{Query: "q", ItemID: "ITEM1"})
	require.NoError(t, err)
	assert.Equal(t, "ITEM1", retriever.lastItemID)
}

func TestSearchHandler_RequiresQuery(t *testing.T) {
	s := NewServer(&stubRetriever{}, nil, nil, testResearchConfig(), nil)

	_, _, err := s.searchHandler(context.Background(), nil, SearchInput{Query: "  "})
	require.Error(t, err)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearchHandler_MapsRetrieverError(t *testing.T) {
	retriever := &stubRetriever{err: zerrors.New(zerrors.ErrCodeQueryEmpty, "query must not be empty", nil)}
	s := NewServer(retriever, nil, nil, testResearchConfig(), nil)

	_, _, err := s.searchHandler(context.Background(), nil, SearchInput{Query: "q"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestAskHandler(t *testing.T) {
	researcher := &stubResearcher{result: &research.Result{Response: "# Report", Rounds: 3}}
	s := NewServer(&stubRetriever{}, researcher, nil, testResearchConfig(), nil)

	_, out, err := s.askHandler(context.Background(), nil, AskInput{Question: "what is attention"})
	require.NoError(t, err)

	assert.Equal(t, "what is attention", researcher.query)
	assert.Equal(t, "# Report", out.Report)
	assert.Equal(t, 3, out.Rounds)
}

func TestAskHandler_RequiresQuestion(t *testing.T) {
	s := NewServer(&stubRetriever{}, &stubResearcher{}, nil, testResearchConfig(), nil)

	_, _, err := s.askHandler(context.Background(), nil, AskInput{})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestStatsHandler_SortsByTitle(t *testing.T) {
	retriever := &stubRetriever{stats: &store.CollectionStats{
		Collection:  "zotero_chunks_nomic-embed-text",
		TotalChunks: 5,
		Items: map[string]store.ItemStats{
			"B": {Count: 3, Title: "Zebra Stripes"},
			"A": {Count: 2, Title: "Attention"},
		},
	}}
	s := NewServer(retriever, nil, nil, testResearchConfig(), nil)

	_, out, err := s.statsHandler(context.Background(), nil, StatsInput{})
	require.NoError(t, err)

	assert.Equal(t, 5, out.TotalChunks)
	require.Len(t, out.Items, 2)
	assert.Equal(t, "Attention", out.Items[0].Title)
	assert.Equal(t, "Zebra Stripes", out.Items[1].Title)
}

func TestIndexHandler(t *testing.T) {
	idx := &stubIndexer{result: &indexer.Result{
		Total:         2,
		Successful:    1,
		Failed:        1,
		ChunksCreated: 12,
		FailedItems:   []indexer.FailedItem{{ItemID: "B", Reason: "no pdf attachment resolved"}},
	}}
	s := NewServer(&stubRetriever{}, nil, idx, testResearchConfig(), nil)

	_, out, err := s.indexHandler(context.Background(), nil, IndexInput{Collection: "Deep Learning", Force: true})
	require.NoError(t, err)

	assert.Equal(t, zotero.ByCollectionName("Deep Learning"), idx.sel)
	assert.True(t, idx.force)
	assert.Equal(t, 12, out.ChunksCreated)
	require.Len(t, out.FailedItems, 1)
	assert.Equal(t, "B", out.FailedItems[0].ItemID)
}

func TestSelectorFromInput(t *testing.T) {
	tests := []struct {
		name    string
		input   IndexInput
		want    zotero.Selector
		wantErr bool
	}{
		{name: "empty selects all", input: IndexInput{}, want: zotero.All()},
		{name: "item id", input: IndexInput{ItemID: "KEY1"}, want: zotero.ByID("KEY1")},
		{name: "collection id", input: IndexInput{CollectionID: "COLL"}, want: zotero.ByCollectionID("COLL")},
		{name: "name", input: IndexInput{Name: "smith"}, want: zotero.ByName("smith")},
		{name: "two selectors rejected", input: IndexInput{ItemID: "K", Name: "smith"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := selectorFromInput(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel)
		})
	}
}

func TestTools_ReflectWiring(t *testing.T) {
	full := NewServer(&stubRetriever{}, &stubResearcher{}, &stubIndexer{}, testResearchConfig(), nil)
	assert.Len(t, full.Tools(), 4)

	searchOnly := NewServer(&stubRetriever{}, nil, nil, testResearchConfig(), nil)
	assert.Len(t, searchOnly.Tools(), 2)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"context canceled", context.Canceled, ErrCodeTimeout},
		{"deadline exceeded", context.DeadlineExceeded, ErrCodeTimeout},
		{"empty query", zerrors.New(zerrors.ErrCodeQueryEmpty, "empty", nil), ErrCodeInvalidParams},
		{"model failure", zerrors.New(zerrors.ErrCodeModelAPI, "down", nil), ErrCodeModelFailed},
		{"library failure", zerrors.New(zerrors.ErrCodeLibraryAPI, "503", nil), ErrCodeLibraryFailed},
		{"corrupt index", zerrors.New(zerrors.ErrCodeCorruptIndex, "bad", nil), ErrCodeIndexEmpty},
		{"plain error", errors.New("boom"), ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapError(tt.err)
			require.NotNil(t, mapped)
			assert.Equal(t, tt.code, mapped.Code)
		})
	}
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := zerrors.New(zerrors.ErrCodeModelAPI, "ollama unreachable", nil).
		WithSuggestion("Start Ollama with 'ollama serve'.")

	mapped := MapError(err)
	assert.Contains(t, mapped.Message, "ollama unreachable")
	assert.Contains(t, mapped.Message, "ollama serve")
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}
