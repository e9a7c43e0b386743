package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/parley-chat/parley/internal/index"
	"github.com/parley-chat/parley/internal/search"
	"github.com/parley-chat/parley/internal/store"
	"github.com/parley-chat/parley/internal/telemetry"
	"github.com/parley-chat/parley/pkg/version"
)

// serverName is reported to MCP clients during initialization.
const serverName = "Parley"

// Messages posts and reads messages. Implemented by *index.Coordinator.
type Messages interface {
	Ingest(ctx context.Context, senderName, body string) (*store.Message, error)
	List(ctx context.Context) ([]*store.Message, error)
	Get(ctx context.Context, id int64) (*store.Message, error)
}

// Searcher answers free-text queries. Implemented by *search.QueryService.
type Searcher interface {
	Search(ctx context.Context, query string) ([]*search.SearchResult, error)
}

// StatusReporter reports store and index health. Implemented by *index.Reporter.
type StatusReporter interface {
	Report(ctx context.Context) (*index.StatusReport, error)
}

// Server is the MCP server for Parley.
// It exposes posting, listing and searching messages to AI clients.
type Server struct {
	mcp      *mcp.Server
	messages Messages
	searcher Searcher
	status   StatusReporter
	logger   *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// ResourceContent contains the content of a resource.
type ResourceContent struct {
	URI      string
	Content  string
	MIMEType string
}

// NewServer creates a new MCP server. status may be nil, in which case
// index_status reports an internal error.
func NewServer(messages Messages, searcher Searcher, status StatusReporter) (*Server, error) {
	if messages == nil {
		return nil, errors.New("message service is required")
	}
	if searcher == nil {
		return nil, errors.New("search service is required")
	}

	s := &Server{
		messages: messages,
		searcher: searcher,
		status:   status,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// SetMetrics sets the query metrics collector. When set, a query_metrics
// resource is registered.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return toolInfos
}

var toolInfos = []ToolInfo{
	{
		Name:        "post_message",
		Description: "Post a message. Requires a non-blank sender_name and body. Returns the stored message with its id and created_at.",
	},
	{
		Name:        "list_messages",
		Description: "List every posted message, newest first.",
	},
	{
		Name:        "search_messages",
		Description: "Search messages by substring, phrase prefix or sender name. Returns at most 10 matches with <mark>-highlighted fragments.",
	},
	{
		Name:        "index_status",
		Description: "Report message and index counts, retry queue depth and reconciliation progress.",
	},
}

// CallTool invokes a tool by name with the given arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "post_message":
		sender, _ := args["sender_name"].(string)
		body, _ := args["body"].(string)
		return s.handlePostMessage(ctx, PostMessageInput{SenderName: sender, Body: body})
	case "list_messages":
		msgs, err := s.handleListMessages(ctx)
		if err != nil {
			return nil, err
		}
		return FormatMessages(msgs), nil
	case "search_messages":
		query, ok := args["query"].(string)
		if !ok {
			return nil, NewInvalidParamsError("query parameter is required and must be a string")
		}
		results, err := s.handleSearchMessages(ctx, query)
		if err != nil {
			return nil, err
		}
		return FormatSearchResults(query, results), nil
	case "index_status":
		return s.handleIndexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

// handlePostMessage ingests one message.
func (s *Server) handlePostMessage(ctx context.Context, input PostMessageInput) (*MessageOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	msg, err := s.messages.Ingest(ctx, input.SenderName, input.Body)
	if err != nil {
		s.logger.Warn("post_message failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("post_message completed",
		slog.String("request_id", requestID),
		slog.Int64("message_id", msg.ID),
		slog.Duration("duration", time.Since(start)))

	out := ToMessageOutput(msg)
	return &out, nil
}

// handleListMessages returns every message, newest first.
func (s *Server) handleListMessages(ctx context.Context) ([]*store.Message, error) {
	start := time.Now()
	requestID := generateRequestID()

	msgs, err := s.messages.List(ctx)
	if err != nil {
		s.logger.Warn("list_messages failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Debug("list_messages completed",
		slog.String("request_id", requestID),
		slog.Int("count", len(msgs)),
		slog.Duration("duration", time.Since(start)))
	return msgs, nil
}

// handleSearchMessages runs a query. Validation of the query text is left
// to the search service so every entry point rejects the same inputs.
func (s *Server) handleSearchMessages(ctx context.Context, query string) ([]*search.SearchResult, error) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info("search started",
		slog.String("request_id", requestID),
		slog.String("query", query))

	results, err := s.searcher.Search(ctx, query)
	duration := time.Since(start)
	if err != nil {
		s.logger.Warn("search failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("search completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))
	return results, nil
}

// handleIndexStatus builds the index_status output.
func (s *Server) handleIndexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	if s.status == nil {
		return nil, &MCPError{Code: ErrCodeInternalError, Message: "Status reporting not available."}
	}

	requestID := generateRequestID()
	report, err := s.status.Report(ctx)
	if err != nil {
		s.logger.Warn("index_status failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	out := &IndexStatusOutput{
		Messages:      report.Messages,
		Indexed:       report.Indexed,
		Consistent:    report.Consistent,
		RetryQueue:    report.QueueDepth,
		States:        report.States,
		SearchBreaker: report.Breaker,
	}
	if r := report.Reconcile; r != nil {
		out.Reconcile = &ReconcileOutput{
			Status:         r.Status,
			Stage:          r.Stage,
			Total:          r.Total,
			Done:           r.Done,
			ProgressPct:    r.ProgressPct,
			ElapsedSeconds: r.ElapsedSeconds,
			ErrorMessage:   r.ErrorMessage,
		}
	}

	s.logger.Debug("index_status completed",
		slog.String("request_id", requestID),
		slog.Int("messages", out.Messages),
		slog.Int("indexed", out.Indexed))
	return out, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolInfos[0].Name,
		Description: toolInfos[0].Description,
	}, s.mcpPostMessageHandler)
	s.logger.Debug("Registered tool", slog.String("name", toolInfos[0].Name))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolInfos[1].Name,
		Description: toolInfos[1].Description,
	}, s.mcpListMessagesHandler)
	s.logger.Debug("Registered tool", slog.String("name", toolInfos[1].Name))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolInfos[2].Name,
		Description: toolInfos[2].Description,
	}, s.mcpSearchMessagesHandler)
	s.logger.Debug("Registered tool", slog.String("name", toolInfos[2].Name))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolInfos[3].Name,
		Description: toolInfos[3].Description,
	}, s.mcpIndexStatusHandler)
	s.logger.Debug("Registered tool", slog.String("name", toolInfos[3].Name))

	s.logger.Info("MCP tools registered", slog.Int("count", len(toolInfos)))
}

// mcpPostMessageHandler is the MCP SDK handler for the post_message tool.
func (s *Server) mcpPostMessageHandler(ctx context.Context, _ *mcp.CallToolRequest, input PostMessageInput) (
	*mcp.CallToolResult,
	*MessageOutput,
	error,
) {
	out, err := s.handlePostMessage(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// mcpListMessagesHandler is the MCP SDK handler for the list_messages tool.
func (s *Server) mcpListMessagesHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListMessagesInput) (
	*mcp.CallToolResult,
	ListMessagesOutput,
	error,
) {
	msgs, err := s.handleListMessages(ctx)
	if err != nil {
		return nil, ListMessagesOutput{}, err
	}

	output := ListMessagesOutput{
		Messages: make([]MessageOutput, 0, len(msgs)),
		Count:    len(msgs),
	}
	for _, m := range msgs {
		output.Messages = append(output.Messages, ToMessageOutput(m))
	}
	return nil, output, nil
}

// mcpSearchMessagesHandler is the MCP SDK handler for the search_messages tool.
func (s *Server) mcpSearchMessagesHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchMessagesInput) (
	*mcp.CallToolResult,
	SearchMessagesOutput,
	error,
) {
	results, err := s.handleSearchMessages(ctx, input.Query)
	if err != nil {
		return nil, SearchMessagesOutput{}, err
	}

	output := SearchMessagesOutput{
		Results: make([]SearchResultOutput, 0, len(results)),
	}
	for _, r := range results {
		if r != nil {
			output.Results = append(output.Results, ToSearchResultOutput(r))
		}
	}
	return nil, output, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.handleIndexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, output, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a unique request ID for log correlation.
func generateRequestID() string {
	return uuid.NewString()
}
