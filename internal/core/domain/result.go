package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type ContentType string

const (
	ContentTypeMotion            ContentType = "motion"
	ContentTypeKeyStatement      ContentType = "key_statement"
	ContentTypeDocumentSection   ContentType = "document_section"
	ContentTypeTranscriptSegment ContentType = "transcript_segment"
)

// AllContentTypes lists every searchable content type in a fixed order.
func AllContentTypes() []ContentType {
	return []ContentType{
		ContentTypeMotion,
		ContentTypeKeyStatement,
		ContentTypeDocumentSection,
		ContentTypeTranscriptSegment,
	}
}

func ParseContentType(raw string) (ContentType, bool) {
	switch ContentType(strings.ToLower(strings.TrimSpace(raw))) {
	case ContentTypeMotion:
		return ContentTypeMotion, true
	case ContentTypeKeyStatement:
		return ContentTypeKeyStatement, true
	case ContentTypeDocumentSection:
		return ContentTypeDocumentSection, true
	case ContentTypeTranscriptSegment:
		return ContentTypeTranscriptSegment, true
	default:
		return "", false
	}
}

// SearchResult is one retrieved item, normalized across content types.
// (ContentType, SourceID) is unique within a response and RankScore is
// non-increasing in response order.
type SearchResult struct {
	ContentType ContentType       `json:"content_type"`
	SourceID    string            `json:"source_id"`
	Snippet     string            `json:"snippet"`
	RankScore   float64           `json:"rank_score"`
	OccurredAt  *time.Time        `json:"occurred_at"`
	Metadata    map[string]string `json:"metadata"`
}

// Key identifies the result across fused lists.
func (r SearchResult) Key() string {
	return string(r.ContentType) + ":" + r.SourceID
}

type SearchFilter struct {
	ContentTypes []ContentType
}

func (f SearchFilter) Allows(ct ContentType) bool {
	if len(f.ContentTypes) == 0 {
		return true
	}
	for _, allowed := range f.ContentTypes {
		if allowed == ct {
			return true
		}
	}
	return false
}

const snippetMaxChars = 200

// TruncateSnippet bounds text to snippetMaxChars runes on a word boundary.
func TruncateSnippet(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= snippetMaxChars {
		return text
	}

	runes := []rune(text)
	cut := snippetMaxChars
	for i := cut; i > 0; i-- {
		if runes[i-1] == ' ' {
			cut = i - 1
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut])) + "…"
}
