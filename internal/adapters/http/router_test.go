package httpadapter

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

type fakeSearchService struct {
	mu      sync.Mutex
	queries []string
	filters []domain.SearchFilter
	results []domain.SearchResult
	err     error
}

func (f *fakeSearchService) SearchAll(_ context.Context, query string, filter domain.SearchFilter, _ int) ([]domain.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeAnswerService struct {
	mu        sync.Mutex
	questions []string
	histories [][]domain.ConversationTurn
	events    []domain.StreamEvent
}

func (f *fakeAnswerService) Stream(_ context.Context, question string, history []domain.ConversationTurn, events chan<- domain.StreamEvent) {
	f.mu.Lock()
	f.questions = append(f.questions, question)
	f.histories = append(f.histories, history)
	scripted := f.events
	f.mu.Unlock()

	defer close(events)
	for _, event := range scripted {
		events <- event
	}
}

func (f *fakeAnswerService) lastHistory(t *testing.T) []domain.ConversationTurn {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.histories) == 0 {
		t.Fatalf("answer service was never called")
	}
	return f.histories[len(f.histories)-1]
}

type fakeAnswerCache struct {
	mu     sync.Mutex
	stored map[string]domain.CachedAnswer
	getErr error
}

func (f *fakeAnswerCache) Put(_ context.Context, answer domain.CachedAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stored == nil {
		f.stored = make(map[string]domain.CachedAnswer)
	}
	f.stored[answer.CacheID] = answer
	return nil
}

func (f *fakeAnswerCache) Get(_ context.Context, cacheID string) (*domain.CachedAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	answer, ok := f.stored[cacheID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "fake cache get", domain.ErrNotFound)
	}
	return &answer, nil
}

func newTestRouter(search *fakeSearchService, answers *fakeAnswerService, cache *fakeAnswerCache) http.Handler {
	if search == nil {
		search = &fakeSearchService{}
	}
	if answers == nil {
		answers = &fakeAnswerService{}
	}
	if cache == nil {
		cache = &fakeAnswerCache{}
	}
	return NewRouter(search, answers, cache, nil, Options{
		DefaultIntent:  domain.IntentQuestion,
		ResultLimit:    30,
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		MaxConcurrent:  16,
	}).Handler()
}

func decodeSSE(t *testing.T, body string) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event domain.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("decode SSE frame %q: %v", line, err)
		}
		events = append(events, event)
	}
	return events
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected X-Request-Id header on response")
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/search", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing q, got %d", res.Code)
	}
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/search?q=tree+bylaw&mode=telepathy", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mode, got %d", res.Code)
	}
}

func TestSearchKeywordReturnsRankedJSON(t *testing.T) {
	search := &fakeSearchService{results: []domain.SearchResult{
		{ContentType: domain.ContentTypeMotion, SourceID: "m-1", Snippet: "Motion to amend the tree bylaw", RankScore: 0.9},
		{ContentType: domain.ContentTypeDocumentSection, SourceID: "d-4", Snippet: "Tree bylaw staff report", RankScore: 0.5},
	}}
	handler := newTestRouter(search, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/search?q=tree+bylaw&mode=keyword", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if ct := res.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}

	var resp keywordResponse
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Intent != domain.IntentKeyword {
		t.Fatalf("expected keyword intent, got %q", resp.Intent)
	}
	if resp.Query != "tree bylaw" {
		t.Fatalf("expected echoed query, got %q", resp.Query)
	}
	if len(resp.Results) != 2 || resp.Results[0].SourceID != "m-1" {
		t.Fatalf("unexpected results: %+v", resp.Results)
	}
}

func TestSearchKeywordTypeFilter(t *testing.T) {
	search := &fakeSearchService{}
	handler := newTestRouter(search, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/search?q=budget&mode=keyword&types=motion,key_statement", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if len(search.filters) != 1 {
		t.Fatalf("expected one search call, got %d", len(search.filters))
	}
	got := search.filters[0].ContentTypes
	if len(got) != 2 || got[0] != domain.ContentTypeMotion || got[1] != domain.ContentTypeKeyStatement {
		t.Fatalf("unexpected filter: %v", got)
	}
}

func TestSearchKeywordUnknownTypeRejected(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/search?q=budget&mode=keyword&types=minutes", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", res.Code)
	}
}

func TestSearchKeywordFailureMapsTemporary(t *testing.T) {
	search := &fakeSearchService{err: domain.WrapError(domain.ErrTemporary, "lexical index down", domain.ErrTemporary)}
	handler := newTestRouter(search, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/search?q=budget&mode=keyword", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestSearchQuestionStreamsEvents(t *testing.T) {
	answers := &fakeAnswerService{events: []domain.StreamEvent{
		{Type: domain.StreamEventResearchStep, Tool: "search_motions", InputSummary: "query=tree bylaw"},
		{Type: domain.StreamEventAnswerChunk, Text: "Council adopted the tree bylaw [1]."},
		{Type: domain.StreamEventCacheID, CacheID: "abc123def456"},
		{Type: domain.StreamEventDone, Citations: []domain.Citation{{Index: 1, ContentType: domain.ContentTypeMotion, SourceID: "m-1"}}},
	}}
	handler := newTestRouter(nil, answers, nil)

	req := httptest.NewRequest(http.MethodGet, "/search?q=What+did+council+decide+about+the+tree+bylaw%3F&mode=ai", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	events := decodeSSE(t, res.Body.String())
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != domain.StreamEventResearchStep || events[0].Tool != "search_motions" {
		t.Fatalf("expected research_step first, got %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Type != domain.StreamEventDone || len(last.Citations) != 1 {
		t.Fatalf("expected terminal done with citation, got %+v", last)
	}
}

func TestSearchAutoModeClassifies(t *testing.T) {
	search := &fakeSearchService{}
	answers := &fakeAnswerService{events: []domain.StreamEvent{{Type: domain.StreamEventAnswerChunk, Text: "hi"}, {Type: domain.StreamEventDone}}}
	handler := newTestRouter(search, answers, nil)

	// Bare noun phrase classifies as keyword.
	req := httptest.NewRequest(http.MethodGet, "/search?q=tree+bylaw", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if ct := res.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected keyword JSON for noun phrase, got %q", ct)
	}

	// Interrogative goes down the question path.
	req = httptest.NewRequest(http.MethodGet, "/search?q=who+voted+against+the+budget%3F", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if ct := res.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected event stream for question, got %q", ct)
	}
}

func TestSearchQuestionPassesRetainedHistory(t *testing.T) {
	answers := &fakeAnswerService{events: []domain.StreamEvent{{Type: domain.StreamEventDone}}}
	handler := newTestRouter(nil, answers, nil)

	history := []domain.ConversationTurn{
		{Question: "what is in the parking bylaw amendment?", Answer: "The parking bylaw amendment adds permit zones downtown."},
	}
	encoded, err := EncodeConversationContext(history)
	if err != nil {
		t.Fatalf("encode context: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/search?mode=ai&q=when+does+the+parking+bylaw+amendment+take+effect%3F&context="+encoded, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	got := answers.lastHistory(t)
	if len(got) != 1 || got[0].Question != history[0].Question {
		t.Fatalf("expected prior turn retained, got %+v", got)
	}
}

func TestSearchQuestionHonorsTurnCapOption(t *testing.T) {
	answers := &fakeAnswerService{events: []domain.StreamEvent{{Type: domain.StreamEventDone}}}
	handler := NewRouter(&fakeSearchService{}, answers, &fakeAnswerCache{}, nil, Options{
		DefaultIntent:        domain.IntentQuestion,
		RateLimitRPS:         1000,
		RateLimitBurst:       1000,
		MaxConcurrent:        16,
		ConversationMaxTurns: 2,
	}).Handler()

	history := []domain.ConversationTurn{
		{Question: "what is in the parking bylaw amendment?", Answer: "The parking bylaw amendment adds permit zones downtown."},
		{Question: "which wards does the parking bylaw amendment cover?", Answer: "The parking bylaw amendment covers wards 3 and 5."},
		{Question: "who moved the parking bylaw amendment?", Answer: "Councillor Reyes moved the parking bylaw amendment."},
		{Question: "did the parking bylaw amendment pass first reading?", Answer: "The parking bylaw amendment passed first reading unanimously."},
	}
	encoded, err := EncodeConversationContext(history)
	if err != nil {
		t.Fatalf("encode context: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/search?mode=ai&q=when+does+the+parking+bylaw+amendment+take+effect%3F&context="+encoded, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	got := answers.lastHistory(t)
	if len(got) != 2 {
		t.Fatalf("expected the last 2 turns retained, got %d: %+v", len(got), got)
	}
	if got[0].Question != history[2].Question || got[1].Question != history[3].Question {
		t.Fatalf("expected oldest turns evicted, got %+v", got)
	}
}

func TestSearchQuestionTopicChangeClearsHistory(t *testing.T) {
	answers := &fakeAnswerService{events: []domain.StreamEvent{{Type: domain.StreamEventDone}}}
	handler := newTestRouter(nil, answers, nil)

	history := []domain.ConversationTurn{
		{Question: "what is in the parking bylaw amendment?", Answer: "The parking bylaw amendment adds permit zones downtown."},
	}
	encoded, err := EncodeConversationContext(history)
	if err != nil {
		t.Fatalf("encode context: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/search?mode=ai&q=how+much+was+spent+on+mayoral+travel%3F&context="+encoded, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := answers.lastHistory(t); len(got) != 0 {
		t.Fatalf("expected history cleared on topic change, got %+v", got)
	}
}

func TestSearchExplicitResetClearsHistory(t *testing.T) {
	answers := &fakeAnswerService{events: []domain.StreamEvent{{Type: domain.StreamEventDone}}}
	handler := newTestRouter(nil, answers, nil)

	encoded, err := EncodeConversationContext([]domain.ConversationTurn{
		{Question: "what is in the parking bylaw amendment?", Answer: "It adds permit zones downtown."},
	})
	if err != nil {
		t.Fatalf("encode context: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/search?mode=ai&q=what+else+is+in+the+parking+bylaw+amendment%3F&reset=true&context="+encoded, nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := answers.lastHistory(t); len(got) != 0 {
		t.Fatalf("expected reset to clear history, got %+v", got)
	}
}

func TestSearchMalformedContextRejected(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/search?mode=ai&q=anything%3F&context=%25%25not-base64", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed context, got %d", res.Code)
	}
}

func TestSearchCachedReplay(t *testing.T) {
	created := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	cache := &fakeAnswerCache{stored: map[string]domain.CachedAnswer{
		"abc123def456": {
			CacheID: "abc123def456",
			Query:   "What did council decide about the tree bylaw?",
			Answer:  "Council adopted the tree bylaw [1].",
			Citations: []domain.Citation{
				{Index: 1, ContentType: domain.ContentTypeMotion, SourceID: "m-1", Snippet: "Motion carried"},
			},
			CreatedAt: created,
			ExpiresAt: created.AddDate(0, 0, 30),
		},
	}}
	search := &fakeSearchService{}
	answers := &fakeAnswerService{}
	handler := newTestRouter(search, answers, cache)

	req := httptest.NewRequest(http.MethodGet, "/search?cache_id=abc123def456", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var replay domain.CachedAnswer
	if err := json.Unmarshal(res.Body.Bytes(), &replay); err != nil {
		t.Fatalf("decode cached answer: %v", err)
	}
	if replay.Answer != "Council adopted the tree bylaw [1]." || len(replay.Citations) != 1 {
		t.Fatalf("unexpected replay payload: %+v", replay)
	}
	if len(search.queries) != 0 {
		t.Fatalf("cached replay must not run retrieval")
	}
	answers.mu.Lock()
	streamed := len(answers.questions)
	answers.mu.Unlock()
	if streamed != 0 {
		t.Fatalf("cached replay must not regenerate")
	}
}

func TestSearchCacheMissReturns404(t *testing.T) {
	handler := newTestRouter(nil, nil, &fakeAnswerCache{})

	req := httptest.NewRequest(http.MethodGet, "/search?cache_id=missing000000", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown cache_id, got %d", res.Code)
	}
}

func TestSearchMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/search", strings.NewReader("{}"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}
