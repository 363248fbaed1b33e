// Package research runs the iterative research loop: generate a
// search query, retrieve, synthesize, judge, and either loop or
// finalize into a research report.
package research

import (
	"zotra/internal/store"
)

// Seed entries occupy position 0 of every parallel sequence so each
// completed round grows all four sequences by exactly one.
const (
	seedQuery      = "No prior queries were generated. Use the users input to find general information on the topic and refine it from there"
	seedKnowledge  = "This is the first synthesis of the initial information."
	seedAssessment = "This is the first search. This will supply your initial knowledge."
)

// State is the shared state of the research graph.
type State struct {
	UserQuery    string
	IndexedItems map[string]store.ItemStats

	// Parallel sequences, aligned modulo their seed entries: after a
	// completed round each has grown by one.
	SearchQueries      []string
	RetrievedDocuments [][]store.Chunk
	KnowledgeStrings   []string
	AssessmentStrings  []string

	SearchLoopCount   int
	MaxSearchDepth    int
	MaxDocsPerSearch  int
	ExcludeReferences bool

	FinalResponse string
}

// newState seeds the parallel sequences and applies defaults. A zero
// depth is honored: the judge then finalizes after the first round.
func newState(userQuery string, maxDepth, maxDocs int, excludeReferences bool) *State {
	if maxDepth < 0 {
		maxDepth = 5
	}
	if maxDocs <= 0 {
		maxDocs = 10
	}
	return &State{
		UserQuery:          userQuery,
		SearchQueries:      []string{seedQuery},
		RetrievedDocuments: [][]store.Chunk{{}},
		KnowledgeStrings:   []string{seedKnowledge},
		AssessmentStrings:  []string{seedAssessment},
		MaxSearchDepth:     maxDepth,
		MaxDocsPerSearch:   maxDocs,
		ExcludeReferences:  excludeReferences,
	}
}

// Rounds returns the number of completed search rounds.
func (s *State) Rounds() int {
	return len(s.SearchQueries) - 1
}

// seenKeys collects the (item_id, split_id) keys of every chunk
// retrieved in prior rounds.
func (s *State) seenKeys() map[string]bool {
	seen := make(map[string]bool)
	for _, round := range s.RetrievedDocuments {
		for _, c := range round {
			seen[c.DedupKey()] = true
		}
	}
	return seen
}
