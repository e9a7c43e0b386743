package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs served by Parley.
const (
	MessageURIPrefix   = "parley://messages/"
	MessageURITemplate = MessageURIPrefix + "{id}"
	QueryMetricsURI    = "parley://query_metrics"
	jsonMIMEType       = "application/json"
)

// registerResources registers the per-message resource template.
func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(
		&mcp.ResourceTemplate{
			Name:        "message",
			URITemplate: MessageURITemplate,
			Description: "A single posted message by id",
			MIMEType:    jsonMIMEType,
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			content, err := s.ReadResource(ctx, req.Params.URI)
			if err != nil {
				return nil, MapError(err)
			}
			return toReadResult(content), nil
		},
	)
}

// ReadResource reads a resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (*ResourceContent, error) {
	if uri == QueryMetricsURI {
		return s.readQueryMetrics()
	}
	if !strings.HasPrefix(uri, MessageURIPrefix) {
		return nil, NewResourceNotFoundError(uri)
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(uri, MessageURIPrefix), 10, 64)
	if err != nil || id <= 0 {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid message id in %s", uri))
	}

	msg, err := s.messages.Get(ctx, id)
	if err != nil {
		return nil, MapError(err)
	}
	if msg == nil {
		return nil, NewResourceNotFoundError(uri)
	}

	data, err := json.MarshalIndent(ToMessageOutput(msg), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &ResourceContent{URI: uri, Content: string(data), MIMEType: jsonMIMEType}, nil
}

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary `json:"summary"`
	OutcomeCounts       map[string]int64    `json:"outcome_counts"`
	TopTerms            []QueryTermCount    `json:"top_terms"`
	ZeroResultQueries   []string            `json:"zero_result_queries"`
	LatencyDistribution map[string]int64    `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries     int64   `json:"total_queries"`
	TimePeriod       string  `json:"time_period"`
	ZeroResultPct    float64 `json:"zero_result_pct"`
	ExactRepeatCount int64   `json:"exact_repeat_count"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Search telemetry for this session",
			MIMEType:    jsonMIMEType,
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			content, err := s.readQueryMetrics()
			if err != nil {
				return nil, err
			}
			return toReadResult(content), nil
		},
	)
}

func (s *Server) readQueryMetrics() (*ResourceContent, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	snapshot := metrics.Snapshot()
	output := QueryMetricsOutput{
		Summary: QueryMetricsSummary{
			TotalQueries:     snapshot.TotalQueries,
			TimePeriod:       "session",
			ZeroResultPct:    snapshot.ZeroResultPercentage(),
			ExactRepeatCount: snapshot.ExactRepeatCount,
		},
		OutcomeCounts:       make(map[string]int64, len(snapshot.OutcomeCounts)),
		TopTerms:            make([]QueryTermCount, 0, len(snapshot.TopTerms)),
		ZeroResultQueries:   snapshot.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snapshot.LatencyDistribution)),
	}
	for outcome, count := range snapshot.OutcomeCounts {
		output.OutcomeCounts[string(outcome)] = count
	}
	for _, tc := range snapshot.TopTerms {
		output.TopTerms = append(output.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for bucket, count := range snapshot.LatencyDistribution {
		output.LatencyDistribution[string(bucket)] = count
	}
	if output.ZeroResultQueries == nil {
		output.ZeroResultQueries = []string{}
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal query metrics: %w", err)
	}
	return &ResourceContent{URI: QueryMetricsURI, Content: string(data), MIMEType: jsonMIMEType}, nil
}

func toReadResult(c *ResourceContent) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      c.URI,
				MIMEType: c.MIMEType,
				Text:     c.Content,
			},
		},
	}
}
