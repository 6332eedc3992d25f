package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opencouncil/meeting-search/internal/core/domain"
	"github.com/opencouncil/meeting-search/internal/core/ports"
)

// HybridSearchUseCase orchestrates the keyword path: concurrent per-type
// retrieval, cross-type rank fusion, and metadata enrichment.
type HybridSearchUseCase struct {
	adapters       []*RetrievalAdapter
	embedder       ports.Embedder
	meetings       ports.MeetingStore
	rrfK           int
	resultLimit    int
	adapterTimeout time.Duration

	onAdapterFailure func(domain.ContentType)
}

func NewHybridSearchUseCase(
	adapters []*RetrievalAdapter,
	embedder ports.Embedder,
	meetings ports.MeetingStore,
	rrfK int,
	resultLimit int,
	adapterTimeout time.Duration,
) *HybridSearchUseCase {
	if rrfK <= 0 {
		rrfK = 60
	}
	if resultLimit <= 0 {
		resultLimit = 30
	}
	if adapterTimeout <= 0 {
		adapterTimeout = 5 * time.Second
	}
	return &HybridSearchUseCase{
		adapters:       adapters,
		embedder:       embedder,
		meetings:       meetings,
		rrfK:           rrfK,
		resultLimit:    resultLimit,
		adapterTimeout: adapterTimeout,
	}
}

// SetAdapterFailureHook registers an observer for per-adapter retrieval
// failures. Failures still degrade to zero results either way.
func (uc *HybridSearchUseCase) SetAdapterFailureHook(hook func(domain.ContentType)) {
	uc.onAdapterFailure = hook
}

// SearchAll fans out to every adapter the filter allows and fuses the
// per-type rankings into one globally ordered list. A failed or slow
// adapter contributes zero results; embedding failure degrades every
// adapter to lexical-only for this request.
func (uc *HybridSearchUseCase) SearchAll(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 || limit > uc.resultLimit {
		limit = uc.resultLimit
	}

	var queryVector []float32
	if uc.embedder != nil {
		vector, err := uc.embedder.EmbedQuery(ctx, query)
		if err != nil {
			slog.Warn("query_embedding_unavailable", "error", err)
		} else {
			queryVector = vector
		}
	}

	selected := make([]*RetrievalAdapter, 0, len(uc.adapters))
	for _, adapter := range uc.adapters {
		if filter.Allows(adapter.ContentType()) {
			selected = append(selected, adapter)
		}
	}

	perType := make([][]domain.SearchResult, len(selected))
	var wg sync.WaitGroup
	for i, adapter := range selected {
		wg.Add(1)
		go func(i int, adapter *RetrievalAdapter) {
			defer wg.Done()
			adapterCtx, cancel := context.WithTimeout(ctx, uc.adapterTimeout)
			defer cancel()

			results, err := adapter.SearchWithVector(adapterCtx, query, queryVector, limit)
			if err != nil {
				slog.Warn("retrieval_adapter_failed",
					"content_type", string(adapter.ContentType()),
					"error", err,
				)
				if uc.onAdapterFailure != nil {
					uc.onAdapterFailure(adapter.ContentType())
				}
				return
			}
			perType[i] = results
		}(i, adapter)
	}
	wg.Wait()

	fused := trimResults(fuseRankedRRF(perType, uc.rrfK), limit)
	uc.enrich(ctx, fused)
	return fused, nil
}

// enrich fills parent-meeting display fields. Best effort: enrichment
// failures leave results as retrieved.
func (uc *HybridSearchUseCase) enrich(ctx context.Context, results []domain.SearchResult) {
	if uc.meetings == nil || len(results) == 0 {
		return
	}

	idsByType := make(map[domain.ContentType][]string)
	for _, result := range results {
		idsByType[result.ContentType] = append(idsByType[result.ContentType], result.SourceID)
	}

	refs := make(map[domain.ContentType]map[string]domain.MeetingRef, len(idsByType))
	for contentType, ids := range idsByType {
		meta, err := uc.meetings.MeetingMetadata(ctx, contentType, ids)
		if err != nil {
			slog.Warn("meeting_enrichment_failed", "content_type", string(contentType), "error", err)
			continue
		}
		refs[contentType] = meta
	}

	for i := range results {
		ref, ok := refs[results[i].ContentType][results[i].SourceID]
		if !ok {
			continue
		}
		if results[i].Metadata == nil {
			results[i].Metadata = make(map[string]string, 2)
		}
		if ref.Title != "" {
			results[i].Metadata["meeting_title"] = ref.Title
		}
		if results[i].OccurredAt == nil && ref.Date != nil {
			results[i].OccurredAt = ref.Date
		}
	}
}
