package retrieve

import (
	"fmt"
	"sort"
	"strings"

	"zotra/internal/store"
)

// FormatChunks renders retrieved chunks as the context block fed to
// the research loop and printed by direct searches: one section per
// title, content in split order, followed by the document metadata.
func FormatChunks(chunks []store.Chunk) string {
	var sb strings.Builder
	sb.WriteString("<context from scientific literature>\n")

	for _, group := range groupByTitle(chunks) {
		sb.WriteString("<title>\n")
		sb.WriteString(group[0].Title)
		sb.WriteString("\n</title>\n")

		sb.WriteString("<content>\n")
		for _, c := range group {
			sb.WriteString(c.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("</content>\n")

		sb.WriteString("<metadata>\n")
		fmt.Fprintf(&sb, "authors: %s\n", group[0].Authors)
		fmt.Fprintf(&sb, "citation_key: %s\n", group[0].CitationKey)
		fmt.Fprintf(&sb, "item_id: %s\n", group[0].ItemID)
		fmt.Fprintf(&sb, "date_of_publication: %s\n", group[0].Date)
		sb.WriteString("</metadata>\n\n")
	}

	sb.WriteString("</context from scientific literature>")
	return sb.String()
}

// groupByTitle buckets chunks per title, titles alphabetical, chunks
// within a group in split order.
func groupByTitle(chunks []store.Chunk) [][]store.Chunk {
	byTitle := make(map[string][]store.Chunk)
	for _, c := range chunks {
		byTitle[c.Title] = append(byTitle[c.Title], c)
	}

	titles := make([]string, 0, len(byTitle))
	for t := range byTitle {
		titles = append(titles, t)
	}
	sort.Strings(titles)

	out := make([][]store.Chunk, 0, len(titles))
	for _, t := range titles {
		group := byTitle[t]
		sort.Slice(group, func(i, j int) bool { return group[i].SplitID < group[j].SplitID })
		out = append(out, group)
	}
	return out
}
