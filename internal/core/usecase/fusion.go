package usecase

import (
	"sort"
	"time"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

type fusedCandidate struct {
	result domain.SearchResult
	score  float64
}

// fuseRankedRRF combines ranked lists over the same universe of items with
// Reciprocal Rank Fusion: each item scores the sum of 1/(k+rank) across
// every list it appears in. Pure over its inputs; callers own dedup keys
// via SearchResult.Key.
func fuseRankedRRF(lists [][]domain.SearchResult, rrfK int) []domain.SearchResult {
	if rrfK <= 0 {
		rrfK = 60
	}

	total := 0
	for _, list := range lists {
		total += len(list)
	}

	acc := make(map[string]fusedCandidate, total)
	for _, list := range lists {
		for rank, result := range list {
			key := result.Key()
			candidate := acc[key]
			candidate.result = preferRicherResult(candidate.result, result)
			candidate.score += 1.0 / float64(rrfK+rank+1)
			acc[key] = candidate
		}
	}

	out := make([]domain.SearchResult, 0, len(acc))
	for _, c := range acc {
		result := c.result
		result.RankScore = c.score
		out = append(out, result)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RankScore != out[j].RankScore {
			return out[i].RankScore > out[j].RankScore
		}
		if !equalOccurredAt(out[i].OccurredAt, out[j].OccurredAt) {
			return laterOccurredAt(out[i].OccurredAt, out[j].OccurredAt)
		}
		if out[i].ContentType != out[j].ContentType {
			return out[i].ContentType < out[j].ContentType
		}
		return out[i].SourceID < out[j].SourceID
	})

	return out
}

func trimResults(results []domain.SearchResult, limit int) []domain.SearchResult {
	if limit <= 0 || len(results) <= limit {
		return results
	}
	return results[:limit]
}

func preferRicherResult(current, candidate domain.SearchResult) domain.SearchResult {
	if current.ContentType == "" && current.SourceID == "" {
		return candidate
	}
	if current.Snippet == "" && candidate.Snippet != "" {
		current.Snippet = candidate.Snippet
	}
	if current.OccurredAt == nil && candidate.OccurredAt != nil {
		current.OccurredAt = candidate.OccurredAt
	}
	if len(current.Metadata) == 0 && len(candidate.Metadata) > 0 {
		current.Metadata = candidate.Metadata
	}
	return current
}

func equalOccurredAt(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// laterOccurredAt orders known dates before unknown, most recent first.
func laterOccurredAt(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
