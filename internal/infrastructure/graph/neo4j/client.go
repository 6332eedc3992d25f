package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

// Client serves the civic-graph lookups behind the attribution and voting
// tools. The graph is maintained by the ingestion pipeline; this client
// only reads.
type Client struct {
	driver neo4j.DriverWithContext
}

func New(uri, user, password string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Client{driver: driver}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

const attributionQuery = `
MATCH (p:Person)-[:STATED]->(s:Statement)
WHERE toLower(p.name) CONTAINS toLower($name)
RETURN p.name AS person, s.content_type AS content_type, s.source_id AS source_id,
	s.text AS text, s.meeting_date AS meeting_date
ORDER BY s.meeting_date DESC
LIMIT $limit
`

// AttributionByPerson implements ports.CivicGraph.
func (c *Client) AttributionByPerson(ctx context.Context, name string, limit int) ([]domain.AttributionRecord, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, attributionQuery, map[string]any{
		"name":  name,
		"limit": limit,
	})
	if err != nil {
		return nil, fmt.Errorf("attribution query: %w", err)
	}

	out := make([]domain.AttributionRecord, 0, limit)
	for result.Next(ctx) {
		record := result.Record()
		contentType, ok := domain.ParseContentType(stringValue(record, "content_type"))
		if !ok {
			continue
		}
		out = append(out, domain.AttributionRecord{
			Person:      stringValue(record, "person"),
			ContentType: contentType,
			SourceID:    stringValue(record, "source_id"),
			Text:        stringValue(record, "text"),
			MeetingDate: dateValue(record, "meeting_date"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate attribution records: %w", err)
	}
	return out, nil
}

const votingQuery = `
MATCH (p:Person)-[v:VOTED]->(m:Motion)
WHERE toLower(m.text) CONTAINS toLower($subject)
RETURN m.id AS motion_id, m.text AS motion, p.name AS person,
	v.vote AS vote, m.meeting_date AS meeting_date
ORDER BY m.meeting_date DESC, p.name
LIMIT $limit
`

// VotingRecord implements ports.CivicGraph.
func (c *Client) VotingRecord(ctx context.Context, subject string, limit int) ([]domain.VoteRecord, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, votingQuery, map[string]any{
		"subject": subject,
		"limit":   limit,
	})
	if err != nil {
		return nil, fmt.Errorf("voting query: %w", err)
	}

	out := make([]domain.VoteRecord, 0, limit)
	for result.Next(ctx) {
		record := result.Record()
		out = append(out, domain.VoteRecord{
			MotionID:    stringValue(record, "motion_id"),
			Motion:      stringValue(record, "motion"),
			Person:      stringValue(record, "person"),
			Vote:        stringValue(record, "vote"),
			MeetingDate: dateValue(record, "meeting_date"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("iterate vote records: %w", err)
	}
	return out, nil
}

func stringValue(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	s, ok := value.(string)
	if !ok {
		return fmt.Sprintf("%v", value)
	}
	return s
}

// dateValue handles both native neo4j dates and ISO strings, which is how
// the ingestion pipeline has historically written them.
func dateValue(record *neo4j.Record, key string) *time.Time {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return nil
	}
	switch typed := value.(type) {
	case neo4j.Date:
		t := typed.Time()
		return &t
	case time.Time:
		return &typed
	case string:
		if parsed, err := time.Parse("2006-01-02", typed); err == nil {
			return &parsed
		}
	}
	return nil
}
