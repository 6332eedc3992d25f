package usecase

import (
	"strings"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

const longQueryWordThreshold = 6

var questionStarters = map[string]struct{}{
	"who": {}, "what": {}, "when": {}, "where": {}, "why": {}, "how": {},
	"did": {}, "does": {}, "do": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"can": {}, "could": {}, "will": {}, "would": {}, "should": {}, "has": {},
	"have": {}, "which": {}, "tell": {}, "explain": {}, "summarize": {},
}

// ClassifyIntent labels a raw query as keyword or question. It is pure and
// deterministic; ambiguous inputs resolve to the configured default.
func ClassifyIntent(query string, ambiguousDefault domain.Intent) domain.Intent {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.IntentKeyword
	}
	if strings.Contains(query, "?") {
		return domain.IntentQuestion
	}

	words := strings.Fields(strings.ToLower(query))
	if _, ok := questionStarters[strings.Trim(words[0], ".,!:;\"'")]; ok {
		return domain.IntentQuestion
	}
	if len(words) > longQueryWordThreshold {
		return domain.IntentQuestion
	}
	if len(words) <= 3 {
		return domain.IntentKeyword
	}
	if ambiguousDefault == domain.IntentKeyword {
		return domain.IntentKeyword
	}
	return domain.IntentQuestion
}
