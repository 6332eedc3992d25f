package usecase

import (
	"context"
	"fmt"

	"github.com/opencouncil/meeting-search/internal/core/domain"
	"github.com/opencouncil/meeting-search/internal/core/ports"
)

// RetrievalAdapter answers queries for one content type by fusing a lexical
// and a vector ranking of the same corpus. A missing or failed query vector
// degrades the call to lexical-only rather than failing it.
type RetrievalAdapter struct {
	contentType domain.ContentType
	lexical     ports.LexicalIndex
	vector      ports.VectorIndex
	embedder    ports.Embedder
	rrfK        int
}

func NewRetrievalAdapter(
	contentType domain.ContentType,
	lexical ports.LexicalIndex,
	vector ports.VectorIndex,
	embedder ports.Embedder,
	rrfK int,
) *RetrievalAdapter {
	if rrfK <= 0 {
		rrfK = 60
	}
	return &RetrievalAdapter{
		contentType: contentType,
		lexical:     lexical,
		vector:      vector,
		embedder:    embedder,
		rrfK:        rrfK,
	}
}

func (a *RetrievalAdapter) ContentType() domain.ContentType {
	return a.contentType
}

// Search embeds the query itself and delegates to SearchWithVector. Used by
// the tool registry, where each call stands alone.
func (a *RetrievalAdapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	var queryVector []float32
	if a.embedder != nil {
		vector, err := a.embedder.EmbedQuery(ctx, query)
		if err == nil {
			queryVector = vector
		}
	}
	return a.SearchWithVector(ctx, query, queryVector, limit)
}

// SearchWithVector runs both retrievals with a caller-supplied query vector
// so the hybrid search service can embed once for every adapter. A nil
// vector means lexical-only.
func (a *RetrievalAdapter) SearchWithVector(ctx context.Context, query string, queryVector []float32, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	lexicalResults, err := a.lexical.SearchLexical(ctx, a.contentType, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search %s: %w", a.contentType, err)
	}

	if len(queryVector) == 0 || a.vector == nil {
		return trimResults(withSnippets(lexicalResults), limit), nil
	}

	vectorResults, err := a.vector.SearchVector(ctx, a.contentType, queryVector, limit)
	if err != nil {
		// Vector side is best effort; the lexical ranking still stands.
		return trimResults(withSnippets(lexicalResults), limit), nil
	}

	fused := fuseRankedRRF([][]domain.SearchResult{lexicalResults, vectorResults}, a.rrfK)
	return trimResults(withSnippets(fused), limit), nil
}

func withSnippets(results []domain.SearchResult) []domain.SearchResult {
	for i := range results {
		results[i].Snippet = domain.TruncateSnippet(results[i].Snippet)
	}
	return results
}
