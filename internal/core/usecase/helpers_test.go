package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

func mkResult(ct domain.ContentType, id, snippet string) domain.SearchResult {
	return domain.SearchResult{ContentType: ct, SourceID: id, Snippet: snippet}
}

func datePtr(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &t
}

type fakeLexical struct {
	results []domain.SearchResult
	err     error
	calls   int
}

func (f *fakeLexical) SearchLexical(_ context.Context, _ domain.ContentType, _ string, _ int) ([]domain.SearchResult, error) {
	f.calls++
	return f.results, f.err
}

type fakeVector struct {
	results []domain.SearchResult
	err     error
	calls   int
}

func (f *fakeVector) SearchVector(_ context.Context, _ domain.ContentType, _ []float32, _ int) ([]domain.SearchResult, error) {
	f.calls++
	return f.results, f.err
}

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

// fakeGenerator replays scripted JSON responses in order. Text generations
// use a fixed reply.
type fakeGenerator struct {
	mu        sync.Mutex
	jsonQueue []string
	jsonErrs  []error
	textReply string
	textErr   error
	prompts   []string
}

func (f *fakeGenerator) GenerateFromPrompt(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.textReply, f.textErr
}

func (f *fakeGenerator) GenerateJSONFromPrompt(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.jsonQueue) == 0 {
		if len(f.jsonErrs) > 0 {
			err := f.jsonErrs[0]
			f.jsonErrs = f.jsonErrs[1:]
			return "", err
		}
		return `{"type":"final","answer":"done"}`, nil
	}
	next := f.jsonQueue[0]
	f.jsonQueue = f.jsonQueue[1:]
	var err error
	if len(f.jsonErrs) > 0 {
		err = f.jsonErrs[0]
		f.jsonErrs = f.jsonErrs[1:]
	}
	return next, err
}

type fakeGraph struct {
	attributions []domain.AttributionRecord
	votes        []domain.VoteRecord
	err          error
}

func (f *fakeGraph) AttributionByPerson(_ context.Context, _ string, _ int) ([]domain.AttributionRecord, error) {
	return f.attributions, f.err
}

func (f *fakeGraph) VotingRecord(_ context.Context, _ string, _ int) ([]domain.VoteRecord, error) {
	return f.votes, f.err
}

type fakeCache struct {
	mu     sync.Mutex
	stored []domain.CachedAnswer
	putErr error
}

func (f *fakeCache) Put(_ context.Context, answer domain.CachedAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.stored = append(f.stored, answer)
	return nil
}

func (f *fakeCache) Get(_ context.Context, cacheID string) (*domain.CachedAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.stored {
		if f.stored[i].CacheID == cacheID {
			return &f.stored[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

type fakePublisher struct {
	mu       sync.Mutex
	cacheIDs []string
	err      error
}

func (f *fakePublisher) PublishAnswerCached(_ context.Context, cacheID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.cacheIDs = append(f.cacheIDs, cacheID)
	return nil
}

type fakeMeetings struct {
	refs map[string]domain.MeetingRef
	err  error
}

func (f *fakeMeetings) MeetingMetadata(_ context.Context, _ domain.ContentType, _ []string) (map[string]domain.MeetingRef, error) {
	return f.refs, f.err
}

func collectEvents(events <-chan domain.StreamEvent) []domain.StreamEvent {
	out := make([]domain.StreamEvent, 0, 8)
	for event := range events {
		out = append(out, event)
	}
	return out
}
