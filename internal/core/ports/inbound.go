package ports

import (
	"context"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

// SearchService is the inbound contract for the keyword path.
type SearchService interface {
	SearchAll(ctx context.Context, query string, filter domain.SearchFilter, limit int) ([]domain.SearchResult, error)
}

// AnswerService is the inbound contract for the question path. Events are
// sent on the channel in the order defined by domain.StreamEvent and the
// channel is closed after the terminal event.
type AnswerService interface {
	Stream(ctx context.Context, question string, history []domain.ConversationTurn, events chan<- domain.StreamEvent)
}
