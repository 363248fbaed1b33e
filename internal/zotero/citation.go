package zotero

import (
	"fmt"
	"regexp"
	"strings"
)

// extraCitationPattern matches Better BibTeX citation keys stored in
// the free-text extra field.
var extraCitationPattern = regexp.MustCompile(`(?m)^(?:Citation Key|Citekey):\s*(.+)$`)

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)

// citationKey resolves the citation key for an item: the dedicated
// field first, then the extra field, then a synthesized
// author_titleword_year key.
func citationKey(item *apiItem) string {
	if key := strings.TrimSpace(item.Data.CitationKey); key != "" {
		return key
	}
	if m := extraCitationPattern.FindStringSubmatch(item.Data.Extra); m != nil {
		if key := strings.TrimSpace(m[1]); key != "" {
			return key
		}
	}
	return synthesizeCitationKey(item)
}

// synthesizeCitationKey builds <author>_<titleword>_<year> from item
// metadata, falling back to "unknown" / "untitled" / "nodate" parts.
func synthesizeCitationKey(item *apiItem) string {
	author := "unknown"
	for _, c := range item.Data.Creators {
		last := c.LastName
		if last == "" {
			last = c.Name
		}
		if last != "" {
			author = sanitizeKeyPart(last)
			break
		}
	}

	titleWord := "untitled"
	for _, w := range strings.Fields(item.Data.Title) {
		if part := sanitizeKeyPart(w); part != "" {
			titleWord = part
			break
		}
	}

	year := "nodate"
	date := item.Data.Date
	if date == "" {
		date = item.Meta.ParsedDate
	}
	if m := yearPattern.FindStringSubmatch(date); m != nil {
		year = m[1]
	}

	return fmt.Sprintf("%s_%s_%s", author, titleWord, year)
}

// sanitizeKeyPart lowercases and strips everything but letters and
// digits.
func sanitizeKeyPart(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
