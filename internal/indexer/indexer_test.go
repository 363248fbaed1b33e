package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zotra/internal/chunk"
	"zotra/internal/store"
	"zotra/internal/zotero"
)

// stubLibrary serves a fixed item list.
type stubLibrary struct {
	items    []zotero.BibItem
	byKey    map[string]string // storage key -> item id
	itemsErr error
}

func (l *stubLibrary) Items(_ context.Context, _ zotero.Selector) ([]zotero.BibItem, error) {
	return l.items, l.itemsErr
}

func (l *stubLibrary) GetItem(_ context.Context, itemID string) (*zotero.BibItem, error) {
	for _, item := range l.items {
		if item.ItemID == itemID {
			return &item, nil
		}
	}
	return nil, nil
}

func (l *stubLibrary) ItemIDForStorageKey(_ context.Context, storageKey string) (string, error) {
	id, ok := l.byKey[storageKey]
	if !ok {
		return "", errors.New("unknown storage key")
	}
	return id, nil
}

// stubGateway pretends every PDF converts to a fixed markdown file.
type stubGateway struct {
	path  string
	err   error
	calls int
}

func (g *stubGateway) Convert(_ context.Context, _, _ string) (string, error) {
	g.calls++
	return g.path, g.err
}

// stubChunker emits n chunks per file.
type stubChunker struct {
	n   int
	err error
}

func (c *stubChunker) ChunkFile(_ context.Context, _ string, meta chunk.Meta) ([]store.Chunk, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]store.Chunk, c.n)
	for i := range out {
		out[i] = store.Chunk{
			UID:     uuid.NewString(),
			ItemID:  meta.ItemID,
			SplitID: i,
			Content: fmt.Sprintf("chunk %d", i),
			Length:  7,
		}
	}
	return out, nil
}

// memIndex is an in-memory VectorIndex good enough for pipeline tests.
type memIndex struct {
	store.VectorIndex

	chunks  map[string][]store.Chunk // item id -> chunks
	addErr  error
	deletes []string
}

func newMemIndex() *memIndex {
	return &memIndex{chunks: make(map[string][]store.Chunk)}
}

func (m *memIndex) Add(_ context.Context, chunks []store.Chunk) error {
	if m.addErr != nil {
		return m.addErr
	}
	for _, c := range chunks {
		m.chunks[c.ItemID] = append(m.chunks[c.ItemID], c)
	}
	return nil
}

func (m *memIndex) UIDsForItem(_ context.Context, itemID string) ([]string, error) {
	var uids []string
	for _, c := range m.chunks[itemID] {
		uids = append(uids, c.UID)
	}
	return uids, nil
}

func (m *memIndex) DeleteByItem(_ context.Context, itemID string) error {
	m.deletes = append(m.deletes, itemID)
	delete(m.chunks, itemID)
	return nil
}

func bibItem(id string) zotero.BibItem {
	return zotero.BibItem{
		ItemID:      id,
		StorageKey:  "STOR" + id,
		CitationKey: "key_" + id,
		Title:       "Title " + id,
		PDFPath:     "/library/storage/STOR" + id + "/paper.pdf",
	}
}

func newTestIndexer(lib *stubLibrary, gw *stubGateway, ch *stubChunker, idx *memIndex, mdRoot string) *Indexer {
	return New(lib, gw, ch, idx, mdRoot, nil)
}

func TestUpdateIndex_HappyPath(t *testing.T) {
	lib := &stubLibrary{items: []zotero.BibItem{bibItem("A"), bibItem("B")}}
	idx := newMemIndex()
	ix := newTestIndexer(lib, &stubGateway{path: "x.md"}, &stubChunker{n: 3}, idx, "")

	var progress []string
	result, err := ix.UpdateIndex(context.Background(), zotero.All(), false, func(done, total int, item string) {
		progress = append(progress, fmt.Sprintf("%d/%d %s", done, total, item))
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Successful)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 6, result.ChunksCreated)
	assert.Equal(t, []string{"1/2 Title A", "2/2 Title B"}, progress)
	assert.Len(t, idx.chunks["A"], 3)
}

func TestUpdateIndex_SkipsIndexedWithoutForce(t *testing.T) {
	lib := &stubLibrary{items: []zotero.BibItem{bibItem("A")}}
	gw := &stubGateway{path: "x.md"}
	idx := newMemIndex()
	idx.chunks["A"] = []store.Chunk{{UID: "old", ItemID: "A"}}
	ix := newTestIndexer(lib, gw, &stubChunker{n: 2}, idx, "")

	result, err := ix.UpdateIndex(context.Background(), zotero.All(), false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Successful)
	assert.Zero(t, gw.calls, "skipped item must not convert")
	assert.Empty(t, idx.deletes)
}

func TestUpdateIndex_ForceDeletesBeforeInsert(t *testing.T) {
	lib := &stubLibrary{items: []zotero.BibItem{bibItem("A")}}
	idx := newMemIndex()
	idx.chunks["A"] = []store.Chunk{{UID: "old", ItemID: "A"}}
	ix := newTestIndexer(lib, &stubGateway{path: "x.md"}, &stubChunker{n: 2}, idx, "")

	result, err := ix.UpdateIndex(context.Background(), zotero.All(), true, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, []string{"A"}, idx.deletes)
	require.Len(t, idx.chunks["A"], 2)
	for _, c := range idx.chunks["A"] {
		assert.NotEqual(t, "old", c.UID, "new generation must carry fresh uids")
	}
}

func TestUpdateIndex_ItemWithoutPDFFails(t *testing.T) {
	item := bibItem("A")
	item.PDFPath = ""
	lib := &stubLibrary{items: []zotero.BibItem{item, bibItem("B")}}
	idx := newMemIndex()
	ix := newTestIndexer(lib, &stubGateway{path: "x.md"}, &stubChunker{n: 1}, idx, "")

	result, err := ix.UpdateIndex(context.Background(), zotero.All(), false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Successful, "one failure must not abort the batch")
	require.Len(t, result.FailedItems, 1)
	assert.Equal(t, "A", result.FailedItems[0].ItemID)
	assert.Contains(t, result.FailedItems[0].Reason, "no pdf")
}

func TestUpdateIndex_ConversionFailureRecorded(t *testing.T) {
	lib := &stubLibrary{items: []zotero.BibItem{bibItem("A")}}
	idx := newMemIndex()
	ix := newTestIndexer(lib, &stubGateway{err: errors.New("converter crashed")}, &stubChunker{n: 1}, idx, "")

	result, err := ix.UpdateIndex(context.Background(), zotero.All(), false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.FailedItems, 1)
	assert.Contains(t, result.FailedItems[0].Reason, "conversion failed")
	assert.Empty(t, idx.chunks["A"])
}

func TestUpdateIndex_ZeroChunksIsFailure(t *testing.T) {
	lib := &stubLibrary{items: []zotero.BibItem{bibItem("A")}}
	ix := newTestIndexer(lib, &stubGateway{path: "x.md"}, &stubChunker{n: 0}, newMemIndex(), "")

	result, err := ix.UpdateIndex(context.Background(), zotero.All(), false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.FailedItems[0].Reason, "no chunks")
}

func TestUpdateIndex_AddFailureRecorded(t *testing.T) {
	lib := &stubLibrary{items: []zotero.BibItem{bibItem("A")}}
	idx := newMemIndex()
	idx.addErr = errors.New("embedder down")
	ix := newTestIndexer(lib, &stubGateway{path: "x.md"}, &stubChunker{n: 2}, idx, "")

	result, err := ix.UpdateIndex(context.Background(), zotero.All(), false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, result.ChunksCreated)
}

func TestUpdateIndex_CancellationStopsBetweenItems(t *testing.T) {
	lib := &stubLibrary{items: []zotero.BibItem{bibItem("A"), bibItem("B"), bibItem("C")}}
	idx := newMemIndex()
	ix := newTestIndexer(lib, &stubGateway{path: "x.md"}, &stubChunker{n: 1}, idx, "")

	ctx, cancel := context.WithCancel(context.Background())
	result, err := ix.UpdateIndex(ctx, zotero.All(), false, func(done, total int, _ string) {
		if done == 1 {
			cancel()
		}
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, result.Successful)
}

func TestIndexLocalMarkdown(t *testing.T) {
	root := t.TempDir()
	for _, key := range []string{"STORA", "STORB"} {
		dir := filepath.Join(root, key)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "paper.md"), []byte("# T\nbody\n"), 0o644))
	}

	lib := &stubLibrary{
		items: []zotero.BibItem{bibItem("A"), bibItem("B")},
		byKey: map[string]string{"STORA": "A", "STORB": "B"},
	}
	idx := newMemIndex()
	ix := newTestIndexer(lib, &stubGateway{}, &stubChunker{n: 2}, idx, root)

	result, err := ix.IndexLocalMarkdown(context.Background(), false, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Successful)
	assert.Equal(t, 4, result.ChunksCreated)
}

func TestIndexLocalMarkdown_UnknownStorageKey(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "MYSTERY")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orphan.md"), []byte("x"), 0o644))

	lib := &stubLibrary{byKey: map[string]string{}}
	ix := newTestIndexer(lib, &stubGateway{}, &stubChunker{n: 1}, newMemIndex(), root)

	result, err := ix.IndexLocalMarkdown(context.Background(), false, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
}

func TestIndexLocalMarkdown_SkipsIndexed(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "STORA")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "paper.md"), []byte("x"), 0o644))

	lib := &stubLibrary{
		items: []zotero.BibItem{bibItem("A")},
		byKey: map[string]string{"STORA": "A"},
	}
	idx := newMemIndex()
	idx.chunks["A"] = []store.Chunk{{UID: "old", ItemID: "A"}}
	ix := newTestIndexer(lib, &stubGateway{}, &stubChunker{n: 1}, idx, root)

	result, err := ix.IndexLocalMarkdown(context.Background(), false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)

	// force reindexes.
	result, err = ix.IndexLocalMarkdown(context.Background(), true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, []string{"A"}, idx.deletes)
}
