package research

// Structured outputs requested from the chat model.

// SearchQuery is the query-generation response.
type SearchQuery struct {
	// SemanticString is the string used for similarity retrieval.
	SemanticString string `json:"semantic_string"`
}

// Source is one reference inside a knowledge synthesis.
type Source struct {
	// Key is the citation key, or the title when no key exists.
	Key  string `json:"key"`
	Info string `json:"info"`
}

// KnowledgeSynthesis is the synthesis-step response.
type KnowledgeSynthesis struct {
	RelevantSources []Source `json:"relevant_sources"`
	SynthesisText   string   `json:"synthesis_text"`
}

// Assessment is the judging-step response.
type Assessment struct {
	// Stop is true when the context suffices or no progress is made.
	Stop      bool   `json:"stop"`
	Reasoning string `json:"reasoning"`
}

// FinalAnswer is the finalize-step response.
type FinalAnswer struct {
	FinalAnswer      string `json:"final_answer"`
	AnswerEvaluation string `json:"answer_evaluation"`
	Suggestions      string `json:"suggestions"`
	Title            string `json:"title"`
}
