// Package chunk splits converted markdown documents into annotated,
// heading-aware chunks ready for indexing.
package chunk

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"zotra/internal/store"
)

// headerPattern matches ATX headings up to depth 7.
var headerPattern = regexp.MustCompile(`^(#{1,7})\s+(.*?)\s*$`)

// Meta is the bibliographic metadata stamped onto every chunk of a
// document.
type Meta struct {
	ItemID      string
	StorageKey  string
	CitationKey string
	Title       string
	Authors     string
	Date        string
	Extra       map[string]string
}

// MarkdownChunker converts markdown into chunks: one chunk per content
// line (oversize lines split recursively), each carrying the heading
// stack above it, a table run id, a dense split ordinal, and its
// length. Heading lines become metadata, not content.
type MarkdownChunker struct {
	splitter *RecursiveSplitter
}

// NewMarkdownChunker creates a chunker with the given splitter limits.
func NewMarkdownChunker(chunkSize, chunkOverlap int) *MarkdownChunker {
	return &MarkdownChunker{
		splitter: NewRecursiveSplitter(chunkSize, chunkOverlap),
	}
}

// ChunkFile reads a markdown file and chunks its content.
// An empty file yields zero chunks and no error.
func (c *MarkdownChunker) ChunkFile(ctx context.Context, path string, meta Meta) ([]store.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown file %s: %w", path, err)
	}
	return c.Chunk(ctx, string(data), meta)
}

// Chunk splits markdown content into annotated chunks. The output is
// deterministic apart from the freshly generated UIDs.
func (c *MarkdownChunker) Chunk(ctx context.Context, content string, meta Meta) ([]store.Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}

	var chunks []store.Chunk
	levels := make(map[string]string)

	for _, line := range strings.Split(content, "\n") {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if m := headerPattern.FindStringSubmatch(line); m != nil {
			depth := len(m[1])
			levels[levelKey(depth)] = m[2]
			// A new heading closes everything nested beneath it.
			for d := depth + 1; d <= 7; d++ {
				delete(levels, levelKey(d))
			}
			continue
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		for _, piece := range c.splitter.Split(line) {
			chunks = append(chunks, store.Chunk{
				Content: piece,
				Levels:  snapshotLevels(levels),
			})
		}
	}

	annotateTables(chunks)

	for i := range chunks {
		chunks[i].UID = uuid.NewString()
		chunks[i].SplitID = i
		chunks[i].Length = len(chunks[i].Content)
		chunks[i].ItemID = meta.ItemID
		chunks[i].StorageKey = meta.StorageKey
		chunks[i].CitationKey = meta.CitationKey
		chunks[i].Title = meta.Title
		chunks[i].Authors = meta.Authors
		chunks[i].Date = meta.Date
		if len(meta.Extra) > 0 {
			chunks[i].Extra = snapshotLevels(meta.Extra)
		}
	}

	return chunks, nil
}

// annotateTables assigns table run ids: consecutive chunks whose
// content starts with '|' share a run, and each new run gets the next
// id. Non-table chunks keep 0.
func annotateTables(chunks []store.Chunk) {
	run := 0
	inRun := false
	for i := range chunks {
		if strings.HasPrefix(chunks[i].Content, "|") {
			if !inRun {
				run++
				inRun = true
			}
			chunks[i].Table = run
		} else {
			inRun = false
		}
	}
}

func levelKey(depth int) string {
	return fmt.Sprintf("level%d", depth)
}

func snapshotLevels(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// DeepestLevel returns the text of the deepest heading recorded on a
// chunk, or "" when the chunk is above all headings.
func DeepestLevel(levels map[string]string) string {
	for d := 7; d >= 1; d-- {
		if v, ok := levels[levelKey(d)]; ok {
			return v
		}
	}
	return ""
}
