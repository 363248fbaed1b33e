package research

import (
	"fmt"
	"strings"
)

// formatSynthesis renders a structured synthesis back into the
// markdown knowledge string carried through the loop.
func formatSynthesis(s *KnowledgeSynthesis) string {
	var sb strings.Builder
	sb.WriteString("# Knowledge Synthesis\n")
	sb.WriteString("## Summary\n")
	sb.WriteString(s.SynthesisText)
	sb.WriteString("\n\n## Relevant Information by Source\n")
	for _, src := range s.RelevantSources {
		fmt.Fprintf(&sb, "### Source: %s\n%s\n\n", src.Key, src.Info)
	}
	return sb.String()
}

// researchReport concatenates the completed rounds, skipping the seed
// entries. Sequences that diverged because a round aborted are zipped
// to the shortest length.
func researchReport(state *State) string {
	queries := state.SearchQueries[1:]
	knowledge := state.KnowledgeStrings[1:]
	assessments := state.AssessmentStrings[1:]

	n := len(queries)
	if len(knowledge) < n {
		n = len(knowledge)
	}
	if len(assessments) < n {
		n = len(assessments)
	}

	var sb strings.Builder
	sb.WriteString("# Research Report")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "\n\n## Query:\n%s", queries[i])
		fmt.Fprintf(&sb, "\n\n### Summarized information:\n%s", knowledge[i])
		fmt.Fprintf(&sb, "\n\n### Reflection:\n%s", assessments[i])
	}
	return sb.String()
}

// formatFinalResponse assembles the user-facing report.
func formatFinalResponse(userQuery string, answer *FinalAnswer, report string) string {
	return fmt.Sprintf(
		"# %s\n"+
			"## Query:\n%s\n\n"+
			"## Answer:\n%s\n\n"+
			"## Assessment of information:\n%s\n\n"+
			"## Further Suggestions:\n%s"+
			"\n\n---\n\n%s",
		answer.Title, userQuery, answer.FinalAnswer, answer.AnswerEvaluation, answer.Suggestions, report,
	)
}

// degradedResponse is used when the final model call fails: the raw
// report still reaches the user.
func degradedResponse(state *State, report string, err error) string {
	return fmt.Sprintf(
		"# Research Report (no final answer)\n"+
			"## Query:\n%s\n\n"+
			"The final answer could not be generated: %v\n\n"+
			"---\n\n%s",
		state.UserQuery, err, report,
	)
}
