package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opencouncil/meeting-search/internal/core/domain"
	"github.com/opencouncil/meeting-search/internal/core/ports"
)

const (
	ToolSearchMotions          = "search_motions"
	ToolSearchKeyStatements    = "search_key_statements"
	ToolSearchDocumentSections = "search_document_sections"
	ToolSearchTranscripts      = "search_transcripts"
	ToolAttributionByPerson    = "attribution_by_person"
	ToolVotingRecord           = "voting_record"
	ToolCurrentDate            = "current_date"
)

// ToolOutcome is the result of one tool execution: the payload handed back
// to the generation model plus every source the call touched.
type ToolOutcome struct {
	Tool    string
	Output  string
	Sources []domain.SearchResult
}

// ToolRegistry exposes the retrieval adapters and the auxiliary civic
// lookups as a fixed set of callable tools. The set is closed: dispatch is
// a switch over known names, not reflection.
type ToolRegistry struct {
	searchTools map[string]*RetrievalAdapter
	graph       ports.CivicGraph
	lookupLimit int
	now         func() time.Time
}

func NewToolRegistry(adapters []*RetrievalAdapter, graph ports.CivicGraph, lookupLimit int) *ToolRegistry {
	if lookupLimit <= 0 {
		lookupLimit = 10
	}

	searchTools := make(map[string]*RetrievalAdapter, len(adapters))
	for _, adapter := range adapters {
		searchTools[searchToolName(adapter.ContentType())] = adapter
	}

	return &ToolRegistry{
		searchTools: searchTools,
		graph:       graph,
		lookupLimit: lookupLimit,
		now:         time.Now,
	}
}

func searchToolName(contentType domain.ContentType) string {
	switch contentType {
	case domain.ContentTypeMotion:
		return ToolSearchMotions
	case domain.ContentTypeKeyStatement:
		return ToolSearchKeyStatements
	case domain.ContentTypeDocumentSection:
		return ToolSearchDocumentSections
	case domain.ContentTypeTranscriptSegment:
		return ToolSearchTranscripts
	default:
		return "search_" + string(contentType)
	}
}

// Catalog describes every registered tool for the planner prompt.
func (r *ToolRegistry) Catalog() []string {
	catalog := []string{
		ToolSearchMotions + `: {"query":"...","limit":5} - formal council motions`,
		ToolSearchKeyStatements + `: {"query":"...","limit":5} - extracted key statements`,
		ToolSearchDocumentSections + `: {"query":"...","limit":5} - agenda/report document sections`,
		ToolSearchTranscripts + `: {"query":"...","limit":5} - speech transcript segments`,
		ToolAttributionByPerson + `: {"name":"..."} - statements attributed to a named person`,
		ToolVotingRecord + `: {"subject":"..."} - recorded votes on motions matching a subject`,
		ToolCurrentDate + `: {} - today's date`,
	}
	return catalog
}

// Execute runs one tool call synchronously.
func (r *ToolRegistry) Execute(ctx context.Context, tool string, input map[string]any, fallbackQuery string) (ToolOutcome, error) {
	tool = strings.ToLower(strings.TrimSpace(tool))

	if adapter, ok := r.searchTools[tool]; ok {
		query := stringInput(input, "query", fallbackQuery)
		limit := intInput(input, "limit", 5)
		results, err := adapter.Search(ctx, query, limit)
		if err != nil {
			return ToolOutcome{}, fmt.Errorf("%s: %w", tool, err)
		}
		payload, _ := json.Marshal(map[string]any{
			"query":   query,
			"results": toolSourceRefs(results),
		})
		return ToolOutcome{Tool: tool, Output: string(payload), Sources: results}, nil
	}

	switch tool {
	case ToolAttributionByPerson:
		name := strings.TrimSpace(stringInput(input, "name", ""))
		if name == "" {
			return ToolOutcome{}, fmt.Errorf("%s requires name", tool)
		}
		records, err := r.graph.AttributionByPerson(ctx, name, r.lookupLimit)
		if err != nil {
			return ToolOutcome{}, fmt.Errorf("%s: %w", tool, err)
		}
		payload, _ := json.Marshal(map[string]any{"person": name, "statements": records})
		return ToolOutcome{Tool: tool, Output: string(payload), Sources: attributionSources(records)}, nil
	case ToolVotingRecord:
		subject := strings.TrimSpace(stringInput(input, "subject", fallbackQuery))
		if subject == "" {
			return ToolOutcome{}, fmt.Errorf("%s requires subject", tool)
		}
		votes, err := r.graph.VotingRecord(ctx, subject, r.lookupLimit)
		if err != nil {
			return ToolOutcome{}, fmt.Errorf("%s: %w", tool, err)
		}
		payload, _ := json.Marshal(map[string]any{"subject": subject, "votes": votes})
		return ToolOutcome{Tool: tool, Output: string(payload), Sources: voteSources(votes)}, nil
	case ToolCurrentDate:
		payload, _ := json.Marshal(map[string]string{"date": r.now().UTC().Format("2006-01-02")})
		return ToolOutcome{Tool: tool, Output: string(payload)}, nil
	default:
		return ToolOutcome{}, fmt.Errorf("unsupported tool: %s", tool)
	}
}

// toolSourceRefs keeps the model-facing payload small: reference plus
// snippet, with the citation key the model must echo when quoting.
func toolSourceRefs(results []domain.SearchResult) []map[string]any {
	out := make([]map[string]any, 0, len(results))
	for _, result := range results {
		ref := map[string]any{
			"ref":     result.Key(),
			"snippet": result.Snippet,
		}
		if result.OccurredAt != nil {
			ref["occurred_at"] = result.OccurredAt.Format("2006-01-02")
		}
		for k, v := range result.Metadata {
			ref[k] = v
		}
		out = append(out, ref)
	}
	return out
}

func attributionSources(records []domain.AttributionRecord) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(records))
	for _, record := range records {
		out = append(out, domain.SearchResult{
			ContentType: record.ContentType,
			SourceID:    record.SourceID,
			Snippet:     domain.TruncateSnippet(record.Text),
			OccurredAt:  record.MeetingDate,
			Metadata:    map[string]string{"speaker": record.Person},
		})
	}
	return out
}

func voteSources(votes []domain.VoteRecord) []domain.SearchResult {
	seen := make(map[string]struct{}, len(votes))
	out := make([]domain.SearchResult, 0, len(votes))
	for _, vote := range votes {
		if _, ok := seen[vote.MotionID]; ok {
			continue
		}
		seen[vote.MotionID] = struct{}{}
		out = append(out, domain.SearchResult{
			ContentType: domain.ContentTypeMotion,
			SourceID:    vote.MotionID,
			Snippet:     domain.TruncateSnippet(vote.Motion),
			OccurredAt:  vote.MeetingDate,
			Metadata:    map[string]string{},
		})
	}
	return out
}

func stringInput(input map[string]any, key, fallback string) string {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func intInput(input map[string]any, key string, fallback int) int {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	case int64:
		return int(typed)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return n
	default:
		return fallback
	}
}
