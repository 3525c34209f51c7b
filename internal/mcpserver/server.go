// Package mcpserver exposes a knowledge base's query pipeline and agent
// actions as Model Context Protocol tools, so an AI coding assistant can
// call into ragit the same way it would call any other MCP-backed tool
// against this knowledge base's query/search/agent surface.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ragit-kb/ragit/internal/agent"
	"github.com/ragit-kb/ragit/internal/index"
	"github.com/ragit-kb/ragit/internal/query"
	"github.com/ragit-kb/ragit/internal/session"
	"github.com/ragit-kb/ragit/internal/store"
	"github.com/ragit-kb/ragit/pkg/version"
)

// Server bridges one knowledge base's query engine and agent with an MCP
// client over stdio.
type Server struct {
	mcp    *mcp.Server
	blobs  *store.BlobStore
	engine *query.Engine
	agent  *agent.Agent // nil if no LLM client is configured; agent tools then report unavailable
	logger *slog.Logger
}

// NewServer builds a Server rooted at blobs, answering queries through
// engine and, when agt is non-nil, exposing the tool-use agent as well.
func NewServer(blobs *store.BlobStore, engine *query.Engine, agt *agent.Agent) (*Server, error) {
	if blobs == nil {
		return nil, errors.New("mcpserver: blob store is required")
	}
	if engine == nil {
		return nil, errors.New("mcpserver: query engine is required")
	}

	s := &Server{
		blobs:  blobs,
		engine: engine,
		agent:  agt,
		logger: slog.Default(),
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "ragit",
		Version: version.Version,
	}, nil)

	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server, for transports that need it
// directly.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// SetLogger replaces the server's logger, e.g. with one writing to a
// rotating debug log file instead of the process default.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// Serve runs the server over stdio until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting ragit MCP server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("MCP server stopped")
	return nil
}

// QueryInput is the input schema for the query tool.
type QueryInput struct {
	Query string `json:"query" jsonschema:"the natural-language question to ask this knowledge base"`
}

// QueryOutput is the output schema for the query tool.
type QueryOutput struct {
	Answer         string   `json:"answer" jsonschema:"the generated answer"`
	RephrasedQuery string   `json:"rephrased_query,omitempty" jsonschema:"the query after multi-turn rephrasing"`
	ChunkUids      []string `json:"chunk_uids,omitempty" jsonschema:"uids of the chunks used to answer"`
}

// AgentQueryInput is the input schema for the agent_query tool.
type AgentQueryInput struct {
	Query string `json:"query" jsonschema:"the question to investigate using the tool-use agent"`
}

// AgentQueryOutput is the output schema for the agent_query tool.
type AgentQueryOutput struct {
	Answer               string   `json:"answer" jsonschema:"the agent's final answer"`
	HasEnoughInformation bool     `json:"has_enough_information" jsonschema:"whether the agent reached its answer before the iteration cap"`
	ActionsTaken         []string `json:"actions_taken,omitempty" jsonschema:"a trace of the actions the agent took, one line per action"`
}

// KbStatusInput is the input schema for the kb_status tool (no parameters).
type KbStatusInput struct{}

// KbStatusOutput is the output schema for the kb_status tool.
type KbStatusOutput struct {
	ChunkCount  int    `json:"chunk_count"`
	FileCount   int    `json:"file_count"`
	IIStatus    string `json:"ii_status"`
	HasSummary  bool   `json:"has_summary"`
	RagitRoot   string `json:"ragit_root"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "query",
		Description: "Ask this knowledge base a question. Runs the full retrieval pipeline (rephrase, keyword extraction, TF-IDF ranking, rerank, answer) and returns a grounded answer.",
	}, s.handleQuery)
	s.logger.Debug("registered tool", slog.String("name", "query"))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "kb_status",
		Description: "Check whether this knowledge base is built and ready, and how many files and chunks it holds.",
	}, s.handleKbStatus)
	s.logger.Debug("registered tool", slog.String("name", "kb_status"))

	if s.agent != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "agent_query",
			Description: "Investigate a question using the tool-use agent: it reads files, lists directories, and searches the knowledge base across bounded iterations before answering. Slower than query but better for questions a single retrieval pass can't answer.",
		}, s.handleAgentQuery)
		s.logger.Debug("registered tool", slog.String("name", "agent_query"))
	}
}

func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	if input.Query == "" {
		return nil, QueryOutput{}, newInvalidParamsError("query parameter is required")
	}

	answer, err := s.engine.Query(ctx, input.Query, []session.QueryTurn{})
	if err != nil {
		return nil, QueryOutput{}, mapError(err)
	}

	return nil, QueryOutput{
		Answer:         answer.Text,
		RephrasedQuery: answer.RephrasedQuery,
		ChunkUids:      answer.ChunkUIDs,
	}, nil
}

func (s *Server) handleAgentQuery(ctx context.Context, _ *mcp.CallToolRequest, input AgentQueryInput) (*mcp.CallToolResult, AgentQueryOutput, error) {
	if input.Query == "" {
		return nil, AgentQueryOutput{}, newInvalidParamsError("query parameter is required")
	}
	if s.agent == nil {
		return nil, AgentQueryOutput{}, newUnavailableError("agent_query: no LLM client configured for this server")
	}

	result, err := s.agent.Run(ctx, input.Query)
	if err != nil {
		return nil, AgentQueryOutput{}, mapError(err)
	}

	traces := make([]string, 0, len(result.ActionTraces))
	for _, t := range result.ActionTraces {
		traces = append(traces, fmt.Sprintf("#%d(%s) -> %s", t.ActionIndex, t.Argument, t.Result))
	}

	return nil, AgentQueryOutput{
		Answer:               result.Answer,
		HasEnoughInformation: result.HasEnoughInformation,
		ActionsTaken:         traces,
	}, nil
}

func (s *Server) handleKbStatus(ctx context.Context, _ *mcp.CallToolRequest, _ KbStatusInput) (*mcp.CallToolResult, KbStatusOutput, error) {
	meta, err := index.Load(s.blobs.DataDir())
	if err != nil {
		return nil, KbStatusOutput{}, mapError(err)
	}

	return nil, KbStatusOutput{
		ChunkCount: meta.ChunkCount,
		FileCount:  len(meta.ProcessedFiles),
		IIStatus:   string(meta.IIStatus.Kind),
		HasSummary: meta.Summary != nil,
		RagitRoot:  s.blobs.DataDir(),
	}, nil
}
