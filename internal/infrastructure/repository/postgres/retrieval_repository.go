package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/opencouncil/meeting-search/internal/core/domain"
)

// RetrievalRepository serves full-text retrieval over the per-type content
// tables and parent-meeting metadata lookups. Corpus population is owned by
// the ingestion pipeline; this repository only reads.
type RetrievalRepository struct {
	db *sql.DB
}

func NewRetrievalRepository(db *sql.DB) *RetrievalRepository {
	return &RetrievalRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RetrievalRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/sweeper startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS meetings (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	meeting_date DATE
);

CREATE TABLE IF NOT EXISTS motions (
	id TEXT PRIMARY KEY,
	meeting_id TEXT REFERENCES meetings(id),
	text TEXT NOT NULL,
	mover TEXT,
	outcome TEXT,
	occurred_at TIMESTAMPTZ,
	search_vector TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', text)) STORED
);

CREATE TABLE IF NOT EXISTS key_statements (
	id TEXT PRIMARY KEY,
	meeting_id TEXT REFERENCES meetings(id),
	text TEXT NOT NULL,
	speaker TEXT,
	occurred_at TIMESTAMPTZ,
	search_vector TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', text)) STORED
);

CREATE TABLE IF NOT EXISTS document_sections (
	id TEXT PRIMARY KEY,
	meeting_id TEXT REFERENCES meetings(id),
	document_title TEXT,
	section_heading TEXT,
	text TEXT NOT NULL,
	search_vector TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', text)) STORED
);

CREATE TABLE IF NOT EXISTS transcript_segments (
	id TEXT PRIMARY KEY,
	meeting_id TEXT REFERENCES meetings(id),
	speaker TEXT,
	text TEXT NOT NULL,
	occurred_at TIMESTAMPTZ,
	search_vector TSVECTOR GENERATED ALWAYS AS (to_tsvector('english', text)) STORED
);

CREATE INDEX IF NOT EXISTS idx_motions_search ON motions USING GIN(search_vector);
CREATE INDEX IF NOT EXISTS idx_key_statements_search ON key_statements USING GIN(search_vector);
CREATE INDEX IF NOT EXISTS idx_document_sections_search ON document_sections USING GIN(search_vector);
CREATE INDEX IF NOT EXISTS idx_transcript_segments_search ON transcript_segments USING GIN(search_vector);

CREATE TABLE IF NOT EXISTS answer_cache (
	cache_id TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	answer TEXT NOT NULL,
	citations JSONB NOT NULL DEFAULT '[]'::jsonb,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_answer_cache_expires_at ON answer_cache(expires_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

type lexicalSpec struct {
	query string
	scan  func(rows *sql.Rows) (domain.SearchResult, error)
}

var lexicalSpecs = map[domain.ContentType]lexicalSpec{
	domain.ContentTypeMotion: {
		query: `
SELECT m.id, m.text, m.mover, m.outcome, m.occurred_at,
	ts_rank(m.search_vector, q) AS rank
FROM motions m, websearch_to_tsquery('english', $1) q
WHERE m.search_vector @@ q
ORDER BY rank DESC, m.occurred_at DESC NULLS LAST, m.id
LIMIT $2
`,
		scan: func(rows *sql.Rows) (domain.SearchResult, error) {
			var out domain.SearchResult
			var mover, outcome sql.NullString
			var occurredAt sql.NullTime
			if err := rows.Scan(&out.SourceID, &out.Snippet, &mover, &outcome, &occurredAt, &out.RankScore); err != nil {
				return out, err
			}
			out.ContentType = domain.ContentTypeMotion
			out.OccurredAt = nullableTime(occurredAt)
			out.Metadata = nonEmptyMetadata(map[string]string{
				"mover":   mover.String,
				"outcome": outcome.String,
			})
			return out, nil
		},
	},
	domain.ContentTypeKeyStatement: {
		query: `
SELECT k.id, k.text, k.speaker, k.occurred_at,
	ts_rank(k.search_vector, q) AS rank
FROM key_statements k, websearch_to_tsquery('english', $1) q
WHERE k.search_vector @@ q
ORDER BY rank DESC, k.occurred_at DESC NULLS LAST, k.id
LIMIT $2
`,
		scan: func(rows *sql.Rows) (domain.SearchResult, error) {
			var out domain.SearchResult
			var speaker sql.NullString
			var occurredAt sql.NullTime
			if err := rows.Scan(&out.SourceID, &out.Snippet, &speaker, &occurredAt, &out.RankScore); err != nil {
				return out, err
			}
			out.ContentType = domain.ContentTypeKeyStatement
			out.OccurredAt = nullableTime(occurredAt)
			out.Metadata = nonEmptyMetadata(map[string]string{
				"speaker": speaker.String,
			})
			return out, nil
		},
	},
	domain.ContentTypeDocumentSection: {
		query: `
SELECT d.id, d.text, d.document_title, d.section_heading,
	ts_rank(d.search_vector, q) AS rank
FROM document_sections d, websearch_to_tsquery('english', $1) q
WHERE d.search_vector @@ q
ORDER BY rank DESC, d.id
LIMIT $2
`,
		scan: func(rows *sql.Rows) (domain.SearchResult, error) {
			var out domain.SearchResult
			var title, heading sql.NullString
			if err := rows.Scan(&out.SourceID, &out.Snippet, &title, &heading, &out.RankScore); err != nil {
				return out, err
			}
			out.ContentType = domain.ContentTypeDocumentSection
			out.Metadata = nonEmptyMetadata(map[string]string{
				"document_title":  title.String,
				"section_heading": heading.String,
			})
			return out, nil
		},
	},
	domain.ContentTypeTranscriptSegment: {
		query: `
SELECT t.id, t.text, t.speaker, t.occurred_at,
	ts_rank(t.search_vector, q) AS rank
FROM transcript_segments t, websearch_to_tsquery('english', $1) q
WHERE t.search_vector @@ q
ORDER BY rank DESC, t.occurred_at DESC NULLS LAST, t.id
LIMIT $2
`,
		scan: func(rows *sql.Rows) (domain.SearchResult, error) {
			var out domain.SearchResult
			var speaker sql.NullString
			var occurredAt sql.NullTime
			if err := rows.Scan(&out.SourceID, &out.Snippet, &speaker, &occurredAt, &out.RankScore); err != nil {
				return out, err
			}
			out.ContentType = domain.ContentTypeTranscriptSegment
			out.OccurredAt = nullableTime(occurredAt)
			out.Metadata = nonEmptyMetadata(map[string]string{
				"speaker": speaker.String,
			})
			return out, nil
		},
	},
}

// SearchLexical implements ports.LexicalIndex with ts_rank ordering over
// the content table for the requested type.
func (r *RetrievalRepository) SearchLexical(
	ctx context.Context,
	contentType domain.ContentType,
	query string,
	limit int,
) ([]domain.SearchResult, error) {
	spec, ok := lexicalSpecs[contentType]
	if !ok {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	rows, err := r.db.QueryContext(ctx, spec.query, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical query %s: %w", contentType, err)
	}
	defer rows.Close()

	out := make([]domain.SearchResult, 0, limit)
	for rows.Next() {
		result, err := spec.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s row: %w", contentType, err)
		}
		out = append(out, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", contentType, err)
	}
	return out, nil
}

var contentTables = map[domain.ContentType]string{
	domain.ContentTypeMotion:            "motions",
	domain.ContentTypeKeyStatement:      "key_statements",
	domain.ContentTypeDocumentSection:   "document_sections",
	domain.ContentTypeTranscriptSegment: "transcript_segments",
}

// MeetingMetadata implements ports.MeetingStore: parent meeting display
// fields keyed by source id.
func (r *RetrievalRepository) MeetingMetadata(
	ctx context.Context,
	contentType domain.ContentType,
	sourceIDs []string,
) (map[string]domain.MeetingRef, error) {
	if len(sourceIDs) == 0 {
		return map[string]domain.MeetingRef{}, nil
	}
	table, ok := contentTables[contentType]
	if !ok {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	query := fmt.Sprintf(`
SELECT c.id, mt.id, mt.title, mt.meeting_date
FROM %s c
JOIN meetings mt ON mt.id = c.meeting_id
WHERE c.id = ANY($1)
`, table)

	rows, err := r.db.QueryContext(ctx, query, sourceIDs)
	if err != nil {
		return nil, fmt.Errorf("meeting metadata query %s: %w", contentType, err)
	}
	defer rows.Close()

	out := make(map[string]domain.MeetingRef, len(sourceIDs))
	for rows.Next() {
		var sourceID string
		var ref domain.MeetingRef
		var date sql.NullTime
		if err := rows.Scan(&sourceID, &ref.MeetingID, &ref.Title, &date); err != nil {
			return nil, fmt.Errorf("scan meeting metadata: %w", err)
		}
		ref.Date = nullableTime(date)
		out[sourceID] = ref
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meeting metadata: %w", err)
	}
	return out, nil
}

func nullableTime(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

func nonEmptyMetadata(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		if value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
