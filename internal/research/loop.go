package research

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"zotra/internal/chat"
	"zotra/internal/config"
	zerrors "zotra/internal/errors"
	"zotra/internal/retrieve"
	"zotra/internal/store"
)

// Searcher is the retrieval surface the loop needs.
type Searcher interface {
	Semantic(ctx context.Context, query string, k int) ([]store.Chunk, error)
	ListIndexed(ctx context.Context) (*store.CollectionStats, error)
}

// InputFunc supplies a missing user query when the loop suspends
// waiting for one.
type InputFunc func(ctx context.Context, prompt string) (string, error)

// TraceFunc observes node transitions, for progress display.
type TraceFunc func(node string, state *State)

// node names the graph nodes.
type node string

const (
	nodeInit       node = "init"
	nodeCheckQuery node = "check_query"
	nodeGenQuery   node = "gen_query"
	nodeSearch     node = "search"
	nodeSynthesize node = "synthesize"
	nodeJudge      node = "judge"
	nodeFinalize   node = "finalize"
	nodeEnd        node = "end"
)

// Result is the outcome of a research run.
type Result struct {
	// Response is the formatted research report with the final answer.
	Response string
	// Rounds is the number of completed search rounds.
	Rounds int
	// State is the full final state, for inspection.
	State *State
}

// Loop drives the research graph over a retriever and a chat model.
type Loop struct {
	searcher Searcher
	model    chat.Chat
	cfg      config.ResearchConfig
	logger   *slog.Logger

	input InputFunc
	trace TraceFunc
}

// New creates a research loop.
func New(searcher Searcher, model chat.Chat, cfg config.ResearchConfig, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		searcher: searcher,
		model:    model,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "research")),
	}
}

// SetInput installs the host callback for a missing user query.
func (l *Loop) SetInput(fn InputFunc) { l.input = fn }

// SetTrace installs a node-transition observer.
func (l *Loop) SetTrace(fn TraceFunc) { l.trace = fn }

// Run executes the graph until the final report is built. A chat
// failure mid-loop short-circuits to finalize; cancellation degrades
// to a report from the accumulated state; the loop never deadlocks
// and always yields a response.
func (l *Loop) Run(ctx context.Context, userQuery string) (*Result, error) {
	state := newState(strings.TrimSpace(userQuery), l.cfg.MaxSearchDepth, l.cfg.MaxDocsPerSearch, l.cfg.ExcludeReferences)

	current := nodeInit
	for current != nodeEnd {
		if err := ctx.Err(); err != nil {
			// No further model or index calls: whatever knowledge
			// was accumulated still reaches the user.
			l.logger.Warn("research run canceled", slog.Int("rounds", state.Rounds()))
			state.FinalResponse = degradedResponse(state, researchReport(state), err)
			break
		}
		if l.trace != nil {
			l.trace(string(current), state)
		}

		var err error
		switch current {
		case nodeInit:
			current, err = l.init(ctx, state)
		case nodeCheckQuery:
			current, err = l.checkQuery(ctx, state)
		case nodeGenQuery:
			current = l.genQuery(ctx, state)
		case nodeSearch:
			current = l.search(ctx, state)
		case nodeSynthesize:
			current = l.synthesize(ctx, state)
		case nodeJudge:
			current = l.judge(ctx, state)
		case nodeFinalize:
			current = l.finalize(ctx, state)
		default:
			err = fmt.Errorf("unknown research node %q", current)
		}
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		Response: state.FinalResponse,
		Rounds:   state.Rounds(),
		State:    state,
	}, nil
}

// init loads the index snapshot.
func (l *Loop) init(ctx context.Context, state *State) (node, error) {
	stats, err := l.searcher.ListIndexed(ctx)
	if err != nil {
		return nodeEnd, zerrors.New(zerrors.ErrCodeSearchFailed, "failed to read index stats", err)
	}
	state.IndexedItems = stats.Items
	return nodeCheckQuery, nil
}

// checkQuery suspends for a user query when none was provided.
func (l *Loop) checkQuery(ctx context.Context, state *State) (node, error) {
	if state.UserQuery != "" {
		return nodeGenQuery, nil
	}
	if l.input == nil {
		return nodeEnd, zerrors.New(zerrors.ErrCodeQueryEmpty, "research query is empty", nil)
	}
	reply, err := l.input(ctx, "Please provide a research query to search your Zotero library.")
	if err != nil {
		return nodeEnd, err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nodeEnd, zerrors.New(zerrors.ErrCodeQueryEmpty, "research query is empty", nil)
	}
	state.UserQuery = reply
	return nodeGenQuery, nil
}

// genQuery asks the model for one new retrieval query.
func (l *Loop) genQuery(ctx context.Context, state *State) node {
	prompt := genQueryPrompt(state.UserQuery, state.SearchQueries, last(state.AssessmentStrings))

	var query SearchQuery
	if err := l.model.CompleteJSON(ctx, prompt, &query); err != nil {
		return l.abort(state, "query generation failed: "+err.Error())
	}
	if strings.TrimSpace(query.SemanticString) == "" {
		return l.abort(state, "query generation returned an empty query")
	}

	state.SearchQueries = append(state.SearchQueries, query.SemanticString)
	l.logger.Debug("generated search query",
		slog.Int("round", state.Rounds()),
		slog.String("query", query.SemanticString))
	return nodeSearch
}

// search retrieves the round's chunks: over-fetch, drop references,
// drop chunks seen in prior rounds, truncate. An index failure yields
// an empty round so the sequences stay aligned.
func (l *Loop) search(ctx context.Context, state *State) node {
	query := last(state.SearchQueries)

	chunks, err := l.searcher.Semantic(ctx, query, 2*state.MaxDocsPerSearch)
	if err != nil {
		l.logger.Warn("search round failed", slog.String("error", err.Error()))
		chunks = nil
	}

	if state.ExcludeReferences {
		chunks = removeReferences(chunks)
	}

	seen := state.seenKeys()
	fresh := make([]store.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !seen[c.DedupKey()] {
			fresh = append(fresh, c)
			seen[c.DedupKey()] = true
		}
	}
	if len(fresh) > state.MaxDocsPerSearch {
		fresh = fresh[:state.MaxDocsPerSearch]
	}

	state.RetrievedDocuments = append(state.RetrievedDocuments, fresh)
	l.logger.Debug("search round",
		slog.Int("round", state.Rounds()),
		slog.Int("new_chunks", len(fresh)))
	return nodeSynthesize
}

// synthesize merges the round's chunks into the knowledge history.
func (l *Loop) synthesize(ctx context.Context, state *State) node {
	newDocs := last(state.RetrievedDocuments)
	prompt := synthesizePrompt(state.UserQuery, retrieve.FormatChunks(newDocs), last(state.KnowledgeStrings))

	var synthesis KnowledgeSynthesis
	if err := l.model.CompleteJSON(ctx, prompt, &synthesis); err != nil {
		return l.abort(state, "knowledge synthesis failed: "+err.Error())
	}

	state.KnowledgeStrings = append(state.KnowledgeStrings, formatSynthesis(&synthesis))
	return nodeJudge
}

// judge decides whether to loop or finalize.
func (l *Loop) judge(ctx context.Context, state *State) node {
	prompt := judgePrompt(state.UserQuery, state.SearchQueries, last(state.KnowledgeStrings), last(state.AssessmentStrings))

	var assessment Assessment
	if err := l.model.CompleteJSON(ctx, prompt, &assessment); err != nil {
		return l.abort(state, "assessment failed: "+err.Error())
	}

	state.AssessmentStrings = append(state.AssessmentStrings, assessment.Reasoning)
	state.SearchLoopCount++

	if assessment.Stop || state.SearchLoopCount >= state.MaxSearchDepth {
		l.logger.Info("research loop stopping",
			slog.Int("rounds", state.SearchLoopCount),
			slog.Bool("model_stop", assessment.Stop))
		return nodeFinalize
	}
	return nodeGenQuery
}

// finalize builds the research report and asks the model for the
// final answer. A model failure degrades to the bare report rather
// than losing the collected knowledge.
func (l *Loop) finalize(ctx context.Context, state *State) node {
	report := researchReport(state)

	var answer FinalAnswer
	if err := l.model.CompleteJSON(ctx, finalizePrompt(state.UserQuery, report), &answer); err != nil {
		l.logger.Warn("final answer generation failed", slog.String("error", err.Error()))
		state.FinalResponse = degradedResponse(state, report, err)
		return nodeEnd
	}

	state.FinalResponse = formatFinalResponse(state.UserQuery, &answer, report)
	return nodeEnd
}

// abort records a failure reason and short-circuits to finalize,
// keeping the assessment sequence aligned for the report.
func (l *Loop) abort(state *State, reason string) node {
	l.logger.Warn("research round aborted", slog.String("reason", reason))
	state.AssessmentStrings = append(state.AssessmentStrings, reason)
	return nodeFinalize
}

// removeReferences drops chunks sitting under a references heading.
func removeReferences(chunks []store.Chunk) []store.Chunk {
	out := make([]store.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.Contains(strings.ToLower(deepestLevel(c.Levels)), "reference") {
			continue
		}
		out = append(out, c)
	}
	return out
}

func deepestLevel(levels map[string]string) string {
	for d := 7; d >= 1; d-- {
		if v, ok := levels[fmt.Sprintf("level%d", d)]; ok {
			return v
		}
	}
	return ""
}

func last[T any](s []T) T {
	return s[len(s)-1]
}
