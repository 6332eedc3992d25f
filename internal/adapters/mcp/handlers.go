package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opencouncil/meeting-search/internal/core/domain"
	"github.com/opencouncil/meeting-search/internal/core/usecase"
)

// Handlers adapts the in-process tool registry to MCP tool calls. Every
// handler returns the same JSON payload the answer loop sees, so MCP
// clients and the HTTP question path observe identical tool semantics.
type Handlers struct {
	tools *usecase.ToolRegistry
}

func NewHandlers(tools *usecase.ToolRegistry) *Handlers {
	return &Handlers{tools: tools}
}

// SearchRequest carries the arguments shared by the four retrieval tools.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// AttributionRequest carries the arguments for attribution_by_person.
type AttributionRequest struct {
	Name string `json:"name"`
}

// VotingRequest carries the arguments for voting_record.
type VotingRequest struct {
	Subject string `json:"subject"`
}

func (h *Handlers) searchHandler(tool string) func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := decode[SearchRequest](req)
		if err != nil {
			return errorResult(domain.WrapError(domain.ErrInvalidInput, "decode search arguments", err)), nil
		}
		if strings.TrimSpace(input.Query) == "" {
			return errorResult(fmt.Errorf("query is required: %w", domain.ErrInvalidInput)), nil
		}
		outcome, err := h.tools.Execute(ctx, tool, map[string]any{
			"query": input.Query,
			"limit": input.Limit,
		}, "")
		if err != nil {
			return errorResult(err), nil
		}
		return rawJSONResult(outcome.Output), nil
	}
}

func (h *Handlers) HandleAttribution(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AttributionRequest](req)
	if err != nil {
		return errorResult(domain.WrapError(domain.ErrInvalidInput, "decode attribution arguments", err)), nil
	}
	outcome, err := h.tools.Execute(ctx, usecase.ToolAttributionByPerson, map[string]any{"name": input.Name}, "")
	if err != nil {
		return errorResult(err), nil
	}
	return rawJSONResult(outcome.Output), nil
}

func (h *Handlers) HandleVotingRecord(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[VotingRequest](req)
	if err != nil {
		return errorResult(domain.WrapError(domain.ErrInvalidInput, "decode voting arguments", err)), nil
	}
	outcome, err := h.tools.Execute(ctx, usecase.ToolVotingRecord, map[string]any{"subject": input.Subject}, "")
	if err != nil {
		return errorResult(err), nil
	}
	return rawJSONResult(outcome.Output), nil
}

func (h *Handlers) HandleCurrentDate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	outcome, err := h.tools.Execute(ctx, usecase.ToolCurrentDate, nil, "")
	if err != nil {
		return errorResult(err), nil
	}
	return rawJSONResult(outcome.Output), nil
}

// rawJSONResult passes an already-serialized tool payload through as text
// content without a second encode round.
func rawJSONResult(payload string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: payload}},
	}
}

// errorResult produces an IsError result with the domain error mapped to
// the same status taxonomy the HTTP surface uses. Internal detail stays
// out of the message.
func errorResult(err error) *mcp.CallToolResult {
	status := http.StatusInternalServerError
	message := "an internal error occurred"

	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		message = err.Error()
	case domain.IsKind(err, domain.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case domain.IsKind(err, domain.ErrTemporary):
		status = http.StatusServiceUnavailable
		message = "a backing service is temporarily unavailable"
	}

	content, _ := json.Marshal(map[string]any{
		"error": map[string]any{
			"message": message,
			"status":  status,
		},
	})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}
