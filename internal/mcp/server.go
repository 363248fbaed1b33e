package mcp

import (
	"context"
	"log/slog"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"zotra/internal/config"
	"zotra/internal/indexer"
	"zotra/internal/research"
	"zotra/internal/retrieve"
	"zotra/internal/store"
	"zotra/internal/zotero"
	"zotra/pkg/version"
)

// Retriever is the search surface the server exposes.
type Retriever interface {
	Semantic(ctx context.Context, query string, k int) ([]store.Chunk, error)
	MultiQuery(ctx context.Context, queries []string, k int) ([]store.Chunk, error)
	ByItem(ctx context.Context, itemID, query string, k int) ([]store.Chunk, error)
	ListIndexed(ctx context.Context) (*store.CollectionStats, error)
}

// Researcher runs the iterative research loop.
type Researcher interface {
	Run(ctx context.Context, query string) (*research.Result, error)
}

// LibraryIndexer updates the vector index from the Zotero library.
type LibraryIndexer interface {
	UpdateIndex(ctx context.Context, sel zotero.Selector, force bool, progress indexer.Progress) (*indexer.Result, error)
}

// Server is the MCP server for zotra. It bridges AI clients with the
// indexed Zotero library over stdio.
type Server struct {
	mcp        *mcp.Server
	retriever  Retriever
	researcher Researcher
	indexer    LibraryIndexer
	cfg        config.ResearchConfig
	logger     *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server. The researcher and indexer may
// be nil; their tools are then not registered.
func NewServer(retriever Retriever, researcher Researcher, libIndexer LibraryIndexer, cfg config.ResearchConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		retriever:  retriever,
		researcher: researcher,
		indexer:    libIndexer,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "mcp")),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "zotra",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s
}

// registerTools registers the typed tool handlers with the SDK.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "zotero_search",
		Description: "Semantic search over the indexed Zotero library. " +
			"Returns matching chunks with citation metadata and a formatted context block.",
	}, s.searchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "zotero_stats",
		Description: "List the items in the vector index with their chunk counts.",
	}, s.statsHandler)

	if s.researcher != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name: "zotero_ask",
			Description: "Answer a research question with an iterative search over the " +
				"Zotero library. Returns a markdown research report with citations.",
		}, s.askHandler)
	}

	if s.indexer != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name: "zotero_index",
			Description: "Convert and index Zotero items into the vector index. " +
				"Accepts at most one of collection, collection_id, item_id, or name.",
		}, s.indexHandler)
	}
}

// Tools returns the registered tools, for the serve command banner.
func (s *Server) Tools() []ToolInfo {
	tools := []ToolInfo{
		{Name: "zotero_search", Description: "Semantic search over the indexed library"},
		{Name: "zotero_stats", Description: "List indexed items"},
	}
	if s.researcher != nil {
		tools = append(tools, ToolInfo{Name: "zotero_ask", Description: "Iterative research over the library"})
	}
	if s.indexer != nil {
		tools = append(tools, ToolInfo{Name: "zotero_index", Description: "Index Zotero items"})
	}
	return tools
}

// searchHandler is the MCP SDK handler for the zotero_search tool.
func (s *Server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	query := strings.TrimSpace(input.Query)
	if query == "" && len(input.Queries) == 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("query or queries parameter is required")
	}

	k := s.cfg.KDocuments
	if input.Limit > 0 {
		k = input.Limit
	}

	var (
		chunks []store.Chunk
		err    error
	)
	switch {
	case input.ItemID != "":
		if query == "" {
			return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required with item_id")
		}
		chunks, err = s.retriever.ByItem(ctx, input.ItemID, query, k)
	case len(input.Queries) > 0:
		chunks, err = s.retriever.MultiQuery(ctx, input.Queries, k)
	default:
		chunks, err = s.retriever.Semantic(ctx, query, k)
	}
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	output := SearchOutput{
		Chunks:    make([]ChunkOutput, 0, len(chunks)),
		Context:   retrieve.FormatChunks(chunks),
		Relevance: retrieve.Relevance(chunks, s.cfg.RelevanceThreshold),
	}
	for _, c := range chunks {
		output.Chunks = append(output.Chunks, toChunkOutput(c))
	}

	s.logger.Debug("search tool completed",
		slog.Int("chunks", len(output.Chunks)),
		slog.String("relevance", output.Relevance))
	return nil, output, nil
}

// askHandler is the MCP SDK handler for the zotero_ask tool.
func (s *Server) askHandler(ctx context.Context, _ *mcp.CallToolRequest, input AskInput) (
	*mcp.CallToolResult,
	AskOutput,
	error,
) {
	question := strings.TrimSpace(input.Question)
	if question == "" {
		return nil, AskOutput{}, NewInvalidParamsError("question parameter is required")
	}

	result, err := s.researcher.Run(ctx, question)
	if err != nil {
		return nil, AskOutput{}, MapError(err)
	}

	return nil, AskOutput{Report: result.Response, Rounds: result.Rounds}, nil
}

// statsHandler is the MCP SDK handler for the zotero_stats tool.
func (s *Server) statsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult,
	StatsOutput,
	error,
) {
	stats, err := s.retriever.ListIndexed(ctx)
	if err != nil {
		return nil, StatsOutput{}, MapError(err)
	}
	return nil, toStatsOutput(stats), nil
}

// indexHandler is the MCP SDK handler for the zotero_index tool.
func (s *Server) indexHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexInput) (
	*mcp.CallToolResult,
	IndexOutput,
	error,
) {
	sel, err := selectorFromInput(input)
	if err != nil {
		return nil, IndexOutput{}, err
	}

	result, err := s.indexer.UpdateIndex(ctx, sel, input.Force, nil)
	if err != nil {
		return nil, IndexOutput{}, MapError(err)
	}

	s.logger.Info("index tool completed",
		slog.Int("total", result.Total),
		slog.Int("successful", result.Successful),
		slog.Int("failed", result.Failed),
		slog.Int("skipped", result.Skipped))
	return nil, toIndexOutput(result), nil
}

// selectorFromInput maps the tool input onto an item selector.
// Exactly zero or one selection field may be set.
func selectorFromInput(input IndexInput) (zotero.Selector, error) {
	var sel zotero.Selector
	set := 0
	if input.Collection != "" {
		sel = zotero.ByCollectionName(input.Collection)
		set++
	}
	if input.CollectionID != "" {
		sel = zotero.ByCollectionID(input.CollectionID)
		set++
	}
	if input.ItemID != "" {
		sel = zotero.ByID(input.ItemID)
		set++
	}
	if input.Name != "" {
		sel = zotero.ByName(input.Name)
		set++
	}
	switch set {
	case 0:
		return zotero.All(), nil
	case 1:
		return sel, nil
	default:
		return zotero.Selector{}, NewInvalidParamsError(
			"at most one of collection, collection_id, item_id, or name may be set")
	}
}

// Serve runs the server over stdio until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting MCP server", slog.String("transport", "stdio"))

	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped gracefully")
	return nil
}
