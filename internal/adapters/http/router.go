package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opencouncil/meeting-search/internal/core/domain"
	"github.com/opencouncil/meeting-search/internal/core/ports"
	"github.com/opencouncil/meeting-search/internal/core/usecase"
	"github.com/opencouncil/meeting-search/internal/observability/metrics"
)

const serviceName = "api"

// Options carries the request-handling knobs the router needs beyond its
// collaborators.
type Options struct {
	DefaultIntent         domain.Intent
	ResultLimit           int
	RateLimitRPS          float64
	RateLimitBurst        int
	MaxConcurrent         int
	ConversationMaxTurns  int
	TopicOverlapThreshold float64
}

type Router struct {
	search  ports.SearchService
	answers ports.AnswerService
	cache   ports.AnswerCache
	metrics *metrics.HTTPServerMetrics
	opts    Options
}

func NewRouter(
	search ports.SearchService,
	answers ports.AnswerService,
	cache ports.AnswerCache,
	serverMetrics *metrics.HTTPServerMetrics,
	opts Options,
) *Router {
	if opts.DefaultIntent != domain.IntentKeyword {
		opts.DefaultIntent = domain.IntentQuestion
	}
	if opts.ResultLimit <= 0 {
		opts.ResultLimit = 30
	}
	return &Router{
		search:  search,
		answers: answers,
		cache:   cache,
		metrics: serverMetrics,
		opts:    opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/search", rt.handleSearch)
	mux.HandleFunc("/search/export", rt.handleExport)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, 50*time.Millisecond)
	limiters := newClientLimiters(rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	handler = rateLimitMiddleware(handler, limiters, rt.recordRateLimited)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) recordRateLimited(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRateLimited(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSearch is the single entry point for both result modes. A request
// with cache_id replays a stored answer and never touches retrieval or
// generation; otherwise the resolved intent picks the keyword JSON path or
// the question event stream.
func (rt *Router) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := r.URL.Query()

	if cacheID := strings.TrimSpace(query.Get("cache_id")); cacheID != "" {
		rt.serveCached(w, r, cacheID)
		return
	}

	q := strings.TrimSpace(query.Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'q' is required"})
		return
	}

	intent, err := resolveIntent(query.Get("mode"), q, rt.opts.DefaultIntent)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearchRequest(serviceName, string(intent))
	}

	contextParam := query.Get("context")
	// An explicit new search discards prior turns regardless of topic.
	if query.Get("reset") == "true" {
		contextParam = ""
	}

	switch intent {
	case domain.IntentKeyword:
		rt.serveKeyword(w, r, q, query.Get("types"))
	default:
		rt.serveQuestion(w, r, q, contextParam)
	}
}

// resolveIntent applies the mode override, falling back to classification.
// The wire values are keyword|ai|auto; the default covers auto on queries
// the classifier finds ambiguous.
func resolveIntent(mode, q string, ambiguousDefault domain.Intent) (domain.Intent, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
		return usecase.ClassifyIntent(q, ambiguousDefault), nil
	case "keyword":
		return domain.IntentKeyword, nil
	case "ai":
		return domain.IntentQuestion, nil
	default:
		return "", fmt.Errorf("unknown search mode %q: %w", mode, domain.ErrInvalidInput)
	}
}

func (rt *Router) serveCached(w http.ResponseWriter, r *http.Request, cacheID string) {
	cached, err := rt.cache.Get(r.Context(), cacheID)
	if err != nil {
		if rt.metrics != nil && domain.IsKind(err, domain.ErrNotFound) {
			rt.metrics.RecordCacheLookup(serviceName, false)
		}
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": "cached answer not found"})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordCacheLookup(serviceName, true)
	}
	writeJSON(w, http.StatusOK, cached)
}

func (rt *Router) serveKeyword(w http.ResponseWriter, r *http.Request, q, typesParam string) {
	filter, err := parseTypeFilter(typesParam)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	start := time.Now()
	results, err := rt.search.SearchAll(r.Context(), q, filter, rt.opts.ResultLimit)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": "search failed"})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearchObservation(serviceName, len(results), time.Since(start))
	}

	writeJSON(w, http.StatusOK, keywordResponse{
		Query:   q,
		Intent:  domain.IntentKeyword,
		Results: results,
	})
}

type keywordResponse struct {
	Query   string                `json:"query"`
	Intent  domain.Intent         `json:"intent"`
	Results []domain.SearchResult `json:"results"`
}

func (rt *Router) serveQuestion(w http.ResponseWriter, r *http.Request, q, contextParam string) {
	history, err := decodeConversationContext(contextParam)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}

	state := usecase.NewConversationStateWithLimits(history, rt.opts.ConversationMaxTurns, rt.opts.TopicOverlapThreshold)
	state.ResetIfNewTopic(q)

	events := make(chan domain.StreamEvent, 8)
	go rt.answers.Stream(r.Context(), q, state.Turns(), events)

	terminal := streamEvents(w, events, rt.observeStreamEvent)
	if rt.metrics != nil {
		status := "aborted"
		if terminal != nil {
			status = string(terminal.Type)
		}
		rt.metrics.RecordAnswerRun(serviceName, status)
	}
}

func (rt *Router) observeStreamEvent(event domain.StreamEvent) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordStreamEvent(serviceName, string(event.Type))
	switch {
	case event.Type == domain.StreamEventResearchStep && event.Tool != "":
		rt.metrics.RecordToolCall(serviceName, event.Tool)
	case event.Type == domain.StreamEventCacheID:
		rt.metrics.RecordCacheStore(serviceName)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// parseTypeFilter turns the comma-separated types parameter into a filter.
// Unknown names are an input error, not a silent empty result set.
func parseTypeFilter(raw string) (domain.SearchFilter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.SearchFilter{}, nil
	}

	var filter domain.SearchFilter
	for _, part := range strings.Split(raw, ",") {
		contentType, ok := domain.ParseContentType(part)
		if !ok {
			return domain.SearchFilter{}, fmt.Errorf("unknown content type %q: %w", strings.TrimSpace(part), domain.ErrInvalidInput)
		}
		filter.ContentTypes = append(filter.ContentTypes, contentType)
	}
	return filter, nil
}
