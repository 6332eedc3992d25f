package domain

import "time"

// MeetingRef carries the parent-meeting display fields used to enrich raw
// retrieval rows.
type MeetingRef struct {
	MeetingID string     `json:"meeting_id"`
	Title     string     `json:"title"`
	Date      *time.Time `json:"date,omitempty"`
}
