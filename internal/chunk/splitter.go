package chunk

import "strings"

// defaultSeparators is the split order for prose: newline first, then
// sentence punctuation, then clause punctuation.
var defaultSeparators = []string{"\n", ".", "!", "?", ",", ";"}

// RecursiveSplitter splits text into pieces of at most chunkSize
// characters, preferring natural boundaries. Adjacent output chunks
// share up to chunkOverlap characters of context.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewRecursiveSplitter creates a splitter with the given limits.
func NewRecursiveSplitter(chunkSize, chunkOverlap int) *RecursiveSplitter {
	return &RecursiveSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split splits text into chunks of at most chunkSize characters.
// Whitespace-only output is dropped.
func (s *RecursiveSplitter) Split(text string) []string {
	pieces := s.split(text, s.separators)

	out := make([]string, 0, len(pieces))
	for _, p := range pieces {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// split breaks text on the first applicable separator and merges the
// fragments back into chunks within the size limit. Fragments still
// too large descend to the next separator; past the last separator the
// text is hard-cut.
func (s *RecursiveSplitter) split(text string, separators []string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return s.hardCut(text)
	}

	sep := separators[0]
	rest := separators[1:]
	if !strings.Contains(text, sep) {
		return s.split(text, rest)
	}

	// Keep the separator attached to the preceding fragment so no
	// characters are lost.
	parts := strings.SplitAfter(text, sep)

	var fragments []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if len(part) > s.chunkSize {
			fragments = append(fragments, s.split(part, rest)...)
		} else {
			fragments = append(fragments, part)
		}
	}

	return s.merge(fragments)
}

// merge packs fragments into chunks up to chunkSize, carrying up to
// chunkOverlap trailing characters into the next chunk.
func (s *RecursiveSplitter) merge(fragments []string) []string {
	var chunks []string
	var current []string
	currentLen := 0

	flush := func() {
		if currentLen == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, ""))

		// Retain trailing fragments as overlap for the next chunk.
		var kept []string
		keptLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			if keptLen+len(current[i]) > s.chunkOverlap {
				break
			}
			keptLen += len(current[i])
			kept = append([]string{current[i]}, kept...)
		}
		current = kept
		currentLen = keptLen
	}

	for _, frag := range fragments {
		if currentLen+len(frag) > s.chunkSize && currentLen > 0 {
			flush()
		}
		current = append(current, frag)
		currentLen += len(frag)
	}
	if currentLen > 0 {
		chunks = append(chunks, strings.Join(current, ""))
	}

	// The overlap tail alone can duplicate the final chunk.
	if len(chunks) >= 2 && strings.HasSuffix(chunks[len(chunks)-2], chunks[len(chunks)-1]) {
		chunks = chunks[:len(chunks)-1]
	}

	return chunks
}

// hardCut slices text at chunkSize boundaries with overlap.
func (s *RecursiveSplitter) hardCut(text string) []string {
	var chunks []string
	step := s.chunkSize - s.chunkOverlap
	if step <= 0 {
		step = s.chunkSize
	}
	for start := 0; start < len(text); start += step {
		end := start + s.chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}
