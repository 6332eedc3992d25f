package usecase

import (
	"strings"
	"unicode"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

const (
	defaultMaxConversationTurns  = 5
	defaultTopicOverlapThreshold = 0.12
)

// ConversationState carries the recent question/answer turns that ground a
// follow-up question. It is rebuilt per request from the client-supplied
// context payload; nothing is kept server side.
type ConversationState struct {
	turns            []domain.ConversationTurn
	maxTurns         int
	overlapThreshold float64
}

func NewConversationState(turns []domain.ConversationTurn) *ConversationState {
	return NewConversationStateWithLimits(turns, defaultMaxConversationTurns, defaultTopicOverlapThreshold)
}

// NewConversationStateWithLimits overrides the retained-turn cap and the
// topic-overlap threshold. Out-of-range values fall back to the defaults.
func NewConversationStateWithLimits(turns []domain.ConversationTurn, maxTurns int, overlapThreshold float64) *ConversationState {
	if maxTurns <= 0 {
		maxTurns = defaultMaxConversationTurns
	}
	if overlapThreshold <= 0 || overlapThreshold >= 1 {
		overlapThreshold = defaultTopicOverlapThreshold
	}
	state := &ConversationState{maxTurns: maxTurns, overlapThreshold: overlapThreshold}
	for _, turn := range turns {
		state.Append(turn)
	}
	return state
}

func (s *ConversationState) Turns() []domain.ConversationTurn {
	out := make([]domain.ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *ConversationState) Len() int { return len(s.turns) }

// Append keeps at most the last maxTurns turns, evicting the oldest first.
func (s *ConversationState) Append(turn domain.ConversationTurn) {
	if strings.TrimSpace(turn.Question) == "" && strings.TrimSpace(turn.Answer) == "" {
		return
	}
	if s.maxTurns <= 0 {
		s.maxTurns = defaultMaxConversationTurns
	}
	s.turns = append(s.turns, turn)
	if len(s.turns) > s.maxTurns {
		s.turns = s.turns[len(s.turns)-s.maxTurns:]
	}
}

func (s *ConversationState) Reset() {
	s.turns = nil
}

// ShouldReset reports whether the question starts a new topic relative to
// the most recent turn, measured by token overlap against that turn's
// question and answer text. An empty history never resets.
func (s *ConversationState) ShouldReset(question string) bool {
	if len(s.turns) == 0 {
		return false
	}

	questionTokens := toTokenSet(question)
	if len(questionTokens) == 0 {
		return false
	}

	last := s.turns[len(s.turns)-1]
	previousTokens := toTokenSet(last.Question + " " + last.Answer)
	if len(previousTokens) == 0 {
		return false
	}

	threshold := s.overlapThreshold
	if threshold <= 0 {
		threshold = defaultTopicOverlapThreshold
	}
	return tokenOverlap(questionTokens, previousTokens) < threshold
}

// ResetIfNewTopic applies the topic-change heuristic and clears the state
// when the question departs from it. Returns whether a reset happened.
func (s *ConversationState) ResetIfNewTopic(question string) bool {
	if !s.ShouldReset(question) {
		return false
	}
	s.Reset()
	return true
}

func toTokenSet(text string) map[string]struct{} {
	tokens := splitAlphaNumLower(text)
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if len(token) < 3 {
			continue
		}
		set[token] = struct{}{}
	}
	return set
}

// tokenOverlap is the Jaccard-style ratio of shared tokens to the smaller
// set, so a short follow-up against a long answer is not penalized.
func tokenOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for token := range small {
		if _, ok := large[token]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func splitAlphaNumLower(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
