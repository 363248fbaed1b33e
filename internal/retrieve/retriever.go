// Package retrieve answers similarity queries over the vector index:
// single-shot, item-scoped, and deduplicated multi-query retrieval.
package retrieve

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	zerrors "zotra/internal/errors"
	"zotra/internal/store"
)

// Retriever runs searches against a vector index.
type Retriever struct {
	index  store.VectorIndex
	logger *slog.Logger
}

// New creates a retriever over the given index.
func New(index store.VectorIndex, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		index:  index,
		logger: logger.With(slog.String("component", "retrieve")),
	}
}

// Semantic performs a single similarity search.
func (r *Retriever) Semantic(ctx context.Context, query string, k int) ([]store.Chunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, zerrors.New(zerrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	return r.index.Search(ctx, query, k)
}

// ByItem performs a similarity search restricted to a single item.
func (r *Retriever) ByItem(ctx context.Context, itemID, query string, k int) ([]store.Chunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, zerrors.New(zerrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}
	return r.index.SearchFiltered(ctx, query, store.Filter{"item_id": itemID}, k)
}

// MultiQuery runs every query concurrently, unions the results
// deduplicated on (item_id, split_id), and returns the k nearest.
// For duplicates the lowest distance wins, ties broken by the earliest
// query in the input list.
func (r *Retriever) MultiQuery(ctx context.Context, queries []string, k int) ([]store.Chunk, error) {
	queries = nonEmptyQueries(queries)
	if len(queries) == 0 {
		return []store.Chunk{}, nil
	}

	perQuery := make([][]store.Chunk, len(queries))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			results, err := r.index.Search(gctx, q, k)
			if err != nil {
				return err
			}
			mu.Lock()
			perQuery[i] = results
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := dedupe(perQuery)
	if len(merged) > k {
		merged = merged[:k]
	}

	r.logger.Debug("multi-query retrieval",
		slog.Int("queries", len(queries)),
		slog.Int("results", len(merged)))
	return merged, nil
}

// ListIndexed returns the index statistics.
func (r *Retriever) ListIndexed(ctx context.Context) (*store.CollectionStats, error) {
	return r.index.Stats(ctx)
}

// dedupe merges per-query result lists on (item_id, split_id). Lists
// must be ordered by input query position so that ties resolve to the
// earliest query.
func dedupe(perQuery [][]store.Chunk) []store.Chunk {
	type entry struct {
		chunk store.Chunk
		order int
	}
	best := make(map[string]entry)
	order := 0

	for _, results := range perQuery {
		for _, c := range results {
			key := c.DedupKey()
			if prev, ok := best[key]; ok && prev.chunk.Distance <= c.Distance {
				continue
			}
			best[key] = entry{chunk: c, order: order}
			order++
		}
	}

	merged := make([]store.Chunk, 0, len(best))
	orders := make(map[string]int, len(best))
	for key, e := range best {
		merged = append(merged, e.chunk)
		orders[key] = e.order
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Distance != merged[j].Distance {
			return merged[i].Distance < merged[j].Distance
		}
		return orders[merged[i].DedupKey()] < orders[merged[j].DedupKey()]
	})
	return merged
}

// Relevance grades a result set against a distance threshold.
func Relevance(chunks []store.Chunk, threshold float64) string {
	if len(chunks) == 0 {
		return "low"
	}
	var sum float64
	for _, c := range chunks {
		sum += float64(c.Distance)
	}
	avg := sum / float64(len(chunks))
	switch {
	case avg < threshold*0.5:
		return "high"
	case avg < threshold:
		return "medium"
	default:
		return "low"
	}
}

func nonEmptyQueries(queries []string) []string {
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if strings.TrimSpace(q) != "" {
			out = append(out, q)
		}
	}
	return out
}
