package research

import (
	"fmt"
	"strings"
)

// genQueryPrompt asks for one new retrieval query complementary to the
// past ones.
func genQueryPrompt(userQuery string, searchQueries []string, lastAssessment string) string {
	return fmt.Sprintf(
		"Your goal is to create an optimized search query for semantic vector retrieval from a database.\n"+
			"It has to answer this question:\n\t'%s'.\n"+
			"Here are your previous searches:\n\t- %s\n"+
			"And comments what is still missing:\n\t%s\n"+
			"Make sure to optimize the query to retrieve different sources than the ones before to find diverse information to fill the current knowledge gaps.\n"+
			"Respond as JSON: {\"semantic_string\": \"<the query>\"}",
		userQuery,
		strings.Join(searchQueries, "\n\t- "),
		lastAssessment,
	)
}

// synthesizePrompt merges a round's new chunks with the previous
// knowledge string.
func synthesizePrompt(userQuery, docsString, lastSynthesis string) string {
	return fmt.Sprintf(
		"Analyze the following document snippets to answer a question from the user.\n"+
			"The question you are trying to answer is: '%s'.\n\n"+
			"The last search has given you this new information:\n%s\n\n"+
			"In previous searches we have found the following information already:\n"+
			"---\n%s\n---\n\n"+
			"Provide a structured output containing:\n"+
			"1. Updated information per source. Always reference a source by citation key or, only if not present, title.\n"+
			"2. A synthesis of the new knowledge with the old across the references with citations using the citation key from the metadata.\n"+
			"Respond as JSON: {\"relevant_sources\": [{\"key\": \"<citation key>\", \"info\": \"<summarized information>\"}], \"synthesis_text\": \"<synthesis with citations>\"}",
		userQuery, docsString, lastSynthesis,
	)
}

// judgePrompt decides whether to keep searching.
func judgePrompt(userQuery string, searchQueries []string, currentKnowledge, lastAssessment string) string {
	return fmt.Sprintf(
		"Your goal is to judge if enough information was retrieved to answer the users question.\n"+
			"User Query: %s\n\n"+
			"To answer the question we have retrieved information from a vector database using the following similarity queries:\n- %s\n"+
			"From which we derived this current state of knowledge based on our sources:\n%s\n\n"+
			"Your last judgement on the available information was the following:\n%s\n\n"+
			"Analyze if the available information is sufficient now to provide a comprehensive answer to the users question.\n"+
			"Additionally judge if any good progress was made or if we should stop the search and ask the user to provide further information.\n"+
			"Respond as JSON: {\"stop\": <true if the context is enough or no progress is made>, \"reasoning\": \"<reasoning; if information is missing describe exactly what is missing and what to iterate on next>\"}",
		userQuery,
		strings.Join(searchQueries, "\n- "),
		currentKnowledge, lastAssessment,
	)
}

// finalizePrompt turns the research report into a final answer.
func finalizePrompt(userQuery, report string) string {
	return fmt.Sprintf(
		"You are an advanced researcher. Currently you are exploring:\n%s\n\n"+
			"You have requested a research report about the question based on a similarity search across your collected documents.\n"+
			"In the following you will receive a research report from your assistant who retrieved relevant sources towards the matter from the library's pool of knowledge.\n\n"+
			"%s\n\n"+
			"Based on all you learned give a critical evaluation towards the topic: a final answer with citations to their origins, "+
			"an evaluation of the final state of exploration towards the topic including its limitations, suggestions what the user might further explore, "+
			"and a short, clear title summarizing this chapter of research.\n"+
			"Respond as JSON: {\"final_answer\": \"...\", \"answer_evaluation\": \"...\", \"suggestions\": \"...\", \"title\": \"...\"}",
		userQuery, report,
	)
}
