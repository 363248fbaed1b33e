package mcp

import (
	"sort"

	"zotra/internal/chunk"
	"zotra/internal/indexer"
	"zotra/internal/store"
)

// SearchInput defines the input schema for the zotero_search tool.
type SearchInput struct {
	Query   string   `json:"query,omitempty" jsonschema:"the semantic search query to execute"`
	Queries []string `json:"queries,omitempty" jsonschema:"multiple queries searched in parallel and merged by distance"`
	ItemID  string   `json:"item_id,omitempty" jsonschema:"restrict the search to one library item"`
	Limit   int      `json:"limit,omitempty" jsonschema:"maximum number of chunks to return"`
}

// SearchOutput defines the output schema for the zotero_search tool.
type SearchOutput struct {
	Chunks    []ChunkOutput `json:"chunks" jsonschema:"matched chunks ordered by distance"`
	Context   string        `json:"context" jsonschema:"the chunks formatted as a citation-ready context block"`
	Relevance string        `json:"relevance" jsonschema:"overall relevance grade: high, medium, or low"`
}

// ChunkOutput is one retrieved chunk with its citation metadata.
type ChunkOutput struct {
	ItemID      string  `json:"item_id"`
	SplitID     int     `json:"split_id"`
	Title       string  `json:"title"`
	CitationKey string  `json:"citation_key,omitempty"`
	Authors     string  `json:"authors,omitempty"`
	Date        string  `json:"date,omitempty"`
	Section     string  `json:"section,omitempty" jsonschema:"deepest markdown heading above the chunk"`
	Content     string  `json:"content"`
	Distance    float64 `json:"distance"`
}

// AskInput defines the input schema for the zotero_ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the research question to answer from the library"`
}

// AskOutput defines the output schema for the zotero_ask tool.
type AskOutput struct {
	Report string `json:"report" jsonschema:"the markdown research report with the final answer"`
	Rounds int    `json:"rounds" jsonschema:"number of completed search rounds"`
}

// StatsInput defines the input schema for the zotero_stats tool (no parameters).
type StatsInput struct{}

// StatsOutput defines the output schema for the zotero_stats tool.
type StatsOutput struct {
	Collection  string           `json:"collection"`
	TotalChunks int              `json:"total_chunks"`
	Items       []ItemStatOutput `json:"items" jsonschema:"indexed items sorted by title"`
}

// ItemStatOutput summarizes one indexed item.
type ItemStatOutput struct {
	ItemID      string `json:"item_id"`
	Title       string `json:"title"`
	CitationKey string `json:"citation_key,omitempty"`
	Chunks      int    `json:"chunks"`
}

// IndexInput defines the input schema for the zotero_index tool.
type IndexInput struct {
	Collection   string `json:"collection,omitempty" jsonschema:"index only items in the collection with this name"`
	CollectionID string `json:"collection_id,omitempty" jsonschema:"index only items in the collection with this key"`
	ItemID       string `json:"item_id,omitempty" jsonschema:"index only the item with this key"`
	Name         string `json:"name,omitempty" jsonschema:"index only items whose title or creator matches this query"`
	Force        bool   `json:"force,omitempty" jsonschema:"re-index items that are already in the index"`
}

// IndexOutput defines the output schema for the zotero_index tool.
type IndexOutput struct {
	Total         int                `json:"total"`
	Successful    int                `json:"successful"`
	Failed        int                `json:"failed"`
	Skipped       int                `json:"skipped"`
	ChunksCreated int                `json:"chunks_created"`
	FailedItems   []FailedItemOutput `json:"failed_items,omitempty"`
}

// FailedItemOutput records one item that could not be indexed.
type FailedItemOutput struct {
	ItemID string `json:"item_id"`
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
}

func toChunkOutput(c store.Chunk) ChunkOutput {
	return ChunkOutput{
		ItemID:      c.ItemID,
		SplitID:     c.SplitID,
		Title:       c.Title,
		CitationKey: c.CitationKey,
		Authors:     c.Authors,
		Date:        c.Date,
		Section:     chunk.DeepestLevel(c.Levels),
		Content:     c.Content,
		Distance:    float64(c.Distance),
	}
}

func toStatsOutput(stats *store.CollectionStats) StatsOutput {
	out := StatsOutput{
		Collection:  stats.Collection,
		TotalChunks: stats.TotalChunks,
		Items:       make([]ItemStatOutput, 0, len(stats.Items)),
	}
	for itemID, s := range stats.Items {
		out.Items = append(out.Items, ItemStatOutput{
			ItemID:      itemID,
			Title:       s.Title,
			CitationKey: s.CitationKey,
			Chunks:      s.Count,
		})
	}
	sort.Slice(out.Items, func(i, j int) bool {
		if out.Items[i].Title != out.Items[j].Title {
			return out.Items[i].Title < out.Items[j].Title
		}
		return out.Items[i].ItemID < out.Items[j].ItemID
	})
	return out
}

func toIndexOutput(result *indexer.Result) IndexOutput {
	out := IndexOutput{
		Total:         result.Total,
		Successful:    result.Successful,
		Failed:        result.Failed,
		Skipped:       result.Skipped,
		ChunksCreated: result.ChunksCreated,
	}
	for _, f := range result.FailedItems {
		out.FailedItems = append(out.FailedItems, FailedItemOutput{
			ItemID: f.ItemID,
			Title:  f.Title,
			Reason: f.Reason,
		})
	}
	return out
}
