package ports

import (
	"context"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

// LexicalIndex runs full-text ranked retrieval for one content type.
// Results come back in rank order (best first).
type LexicalIndex interface {
	SearchLexical(ctx context.Context, contentType domain.ContentType, query string, limit int) ([]domain.SearchResult, error)
}

// VectorIndex runs similarity retrieval over precomputed embeddings for one
// content type. Results come back in rank order (best first).
type VectorIndex interface {
	SearchVector(ctx context.Context, contentType domain.ContentType, queryVector []float32, limit int) ([]domain.SearchResult, error)
}

// Embedder builds a query vector. May fail or be rate limited; callers
// degrade to lexical-only retrieval.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator is the opaque generation model behind the answer loop.
type Generator interface {
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
	GenerateJSONFromPrompt(ctx context.Context, prompt string) (string, error)
}

// MeetingStore supplies parent-record display fields for enrichment.
type MeetingStore interface {
	MeetingMetadata(ctx context.Context, contentType domain.ContentType, sourceIDs []string) (map[string]domain.MeetingRef, error)
}

// CivicGraph answers the auxiliary person/vote lookups behind the tool
// registry.
type CivicGraph interface {
	AttributionByPerson(ctx context.Context, name string, limit int) ([]domain.AttributionRecord, error)
	VotingRecord(ctx context.Context, subject string, limit int) ([]domain.VoteRecord, error)
}

// AnswerCache persists completed answers under opaque identifiers.
// Put must be an atomic insert-if-absent on the cache id; Get returns
// domain.ErrNotFound for missing or expired entries.
type AnswerCache interface {
	Put(ctx context.Context, answer domain.CachedAnswer) error
	Get(ctx context.Context, cacheID string) (*domain.CachedAnswer, error)
}

// EventPublisher notifies downstream consumers that an answer was cached.
type EventPublisher interface {
	PublishAnswerCached(ctx context.Context, cacheID, query string) error
}
