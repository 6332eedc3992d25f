package domain

import "time"

type Intent string

const (
	IntentKeyword  Intent = "keyword"
	IntentQuestion Intent = "question"
)

// Citation is a normalized reference attached to a generated answer.
// Index is the 1-based position of the marker as it appears inline in the
// answer text; citations are numbered in first-use order.
type Citation struct {
	Index       int               `json:"index"`
	ContentType ContentType       `json:"content_type"`
	SourceID    string            `json:"source_id"`
	Snippet     string            `json:"snippet"`
	Metadata    map[string]string `json:"metadata"`
}

type ConversationTurn struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations,omitempty"`
}

// CachedAnswer is a completed AI answer persisted for link sharing.
// Immutable once written; expired entries behave as not-found.
type CachedAnswer struct {
	CacheID   string     `json:"cache_id"`
	Query     string     `json:"query"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

func (a CachedAnswer) Expired(now time.Time) bool {
	return !a.ExpiresAt.After(now)
}

type StreamEventType string

const (
	StreamEventResearchStep StreamEventType = "research_step"
	StreamEventAnswerChunk  StreamEventType = "answer_chunk"
	StreamEventFollowups    StreamEventType = "suggested_followups"
	StreamEventCacheID      StreamEventType = "cache_id"
	StreamEventDone         StreamEventType = "done"
	StreamEventError        StreamEventType = "error"
)

// StreamEvent is one frame of the question-path response. Emission order is
// a hard guarantee: research_step (0..N), answer_chunk (1..N),
// suggested_followups (0..1), cache_id (0..1), then exactly one terminal
// done or error.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	Tool         string     `json:"tool,omitempty"`
	InputSummary string     `json:"input_summary,omitempty"`
	Text         string     `json:"text,omitempty"`
	Followups    []string   `json:"followups,omitempty"`
	CacheID      string     `json:"cache_id,omitempty"`
	Citations    []Citation `json:"citations,omitempty"`
	Error        string     `json:"error,omitempty"`
}

func (e StreamEvent) Terminal() bool {
	return e.Type == StreamEventDone || e.Type == StreamEventError
}

// AttributionRecord is one statement attributed to a named person.
type AttributionRecord struct {
	Person      string      `json:"person"`
	ContentType ContentType `json:"content_type"`
	SourceID    string      `json:"source_id"`
	Text        string      `json:"text"`
	MeetingDate *time.Time  `json:"meeting_date,omitempty"`
}

// VoteRecord is one recorded vote on a motion matching a subject.
type VoteRecord struct {
	MotionID    string     `json:"motion_id"`
	Motion      string     `json:"motion"`
	Person      string     `json:"person"`
	Vote        string     `json:"vote"`
	MeetingDate *time.Time `json:"meeting_date,omitempty"`
}
