package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/opencouncil/meeting-search/internal/core/domain"
	"github.com/opencouncil/meeting-search/internal/core/usecase"
)

type fakeLexical struct {
	results []domain.SearchResult
	err     error
}

func (f *fakeLexical) SearchLexical(_ context.Context, _ domain.ContentType, _ string, _ int) ([]domain.SearchResult, error) {
	return f.results, f.err
}

type fakeGraph struct {
	statements []domain.AttributionRecord
	votes      []domain.VoteRecord
	err        error
}

func (f *fakeGraph) AttributionByPerson(_ context.Context, _ string, _ int) ([]domain.AttributionRecord, error) {
	return f.statements, f.err
}

func (f *fakeGraph) VotingRecord(_ context.Context, _ string, _ int) ([]domain.VoteRecord, error) {
	return f.votes, f.err
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func newTestHandlers(lexical *fakeLexical, graph *fakeGraph) *Handlers {
	if lexical == nil {
		lexical = &fakeLexical{}
	}
	if graph == nil {
		graph = &fakeGraph{}
	}
	adapters := make([]*usecase.RetrievalAdapter, 0, len(domain.AllContentTypes()))
	for _, contentType := range domain.AllContentTypes() {
		adapters = append(adapters, usecase.NewRetrievalAdapter(contentType, lexical, nil, nil, 60))
	}
	return NewHandlers(usecase.NewToolRegistry(adapters, graph, 10))
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestSearchToolReturnsRefs(t *testing.T) {
	lexical := &fakeLexical{results: []domain.SearchResult{
		{ContentType: domain.ContentTypeMotion, SourceID: "m-1", Snippet: "Motion to amend the tree bylaw", RankScore: 1},
	}}
	h := newTestHandlers(lexical, nil)

	result, err := h.searchHandler(usecase.ToolSearchMotions)(context.Background(), makeRequest(map[string]any{
		"query": "tree bylaw",
	}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var payload struct {
		Query   string           `json:"query"`
		Results []map[string]any `json:"results"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Query != "tree bylaw" {
		t.Fatalf("expected echoed query, got %q", payload.Query)
	}
	if len(payload.Results) != 1 || payload.Results[0]["ref"] != "motion:m-1" {
		t.Fatalf("unexpected results: %+v", payload.Results)
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	h := newTestHandlers(nil, nil)

	result, err := h.searchHandler(usecase.ToolSearchMotions)(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result for missing query")
	}

	var payload struct {
		Error struct {
			Status int `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Error.Status != 400 {
		t.Fatalf("expected status 400, got %d", payload.Error.Status)
	}
}

func TestAttributionTool(t *testing.T) {
	date := time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC)
	graph := &fakeGraph{statements: []domain.AttributionRecord{
		{Person: "Councillor Reyes", ContentType: domain.ContentTypeKeyStatement, SourceID: "k-7", Text: "We should protect mature trees.", MeetingDate: &date},
	}}
	h := newTestHandlers(nil, graph)

	result, err := h.HandleAttribution(context.Background(), makeRequest(map[string]any{"name": "Councillor Reyes"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", resultText(t, result))
	}

	var payload struct {
		Person     string                     `json:"person"`
		Statements []domain.AttributionRecord `json:"statements"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Person != "Councillor Reyes" || len(payload.Statements) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestVotingToolTemporaryFailure(t *testing.T) {
	graph := &fakeGraph{err: domain.WrapError(domain.ErrTemporary, "graph query", errors.New("connection refused"))}
	h := newTestHandlers(nil, graph)

	result, err := h.HandleVotingRecord(context.Background(), makeRequest(map[string]any{"subject": "tree bylaw"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected error result")
	}

	var payload struct {
		Error struct {
			Status  int    `json:"status"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Error.Status != 503 {
		t.Fatalf("expected status 503, got %d", payload.Error.Status)
	}
	if payload.Error.Message == "" {
		t.Fatalf("expected an error message")
	}
}

func TestCurrentDateTool(t *testing.T) {
	h := newTestHandlers(nil, nil)

	result, err := h.HandleCurrentDate(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(resultText(t, result)), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if _, err := time.Parse("2006-01-02", payload["date"]); err != nil {
		t.Fatalf("expected ISO date, got %q", payload["date"])
	}
}

func TestRegistryCoversEveryTool(t *testing.T) {
	want := []string{
		usecase.ToolSearchMotions,
		usecase.ToolSearchKeyStatements,
		usecase.ToolSearchDocumentSections,
		usecase.ToolSearchTranscripts,
		usecase.ToolAttributionByPerson,
		usecase.ToolVotingRecord,
		usecase.ToolCurrentDate,
	}

	names := make(map[string]bool)
	for _, name := range AllToolNames() {
		names[name] = true
	}
	for _, name := range want {
		if !names[name] {
			t.Fatalf("tool %q missing from registry", name)
		}
	}
	if len(names) != len(want) {
		t.Fatalf("registry has %d tools, want %d", len(names), len(want))
	}
}
