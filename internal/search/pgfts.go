package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db           *sql.DB
	automatedTag string
}

// NewPgFTS creates a PostgreSQL FTS searcher. automatedTag identifies the
// authors whose soft-deleted replies must stay hidden.
func NewPgFTS(db *sql.DB, automatedTag string) *PgFTS {
	return &PgFTS{db: db, automatedTag: automatedTag}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// visibleComment mirrors the listing rule: roots and direct replies only,
// without soft-deleted automated replies.
const visibleComment = `(c.parent_id IS NULL OR (
		parent.parent_id IS NULL
		AND NOT (m.deletion_reason IS NOT NULL AND LOWER(TRIM(c.author)) = LOWER(TRIM(%s)))
	))`

// Search executes a UNION ALL query across highlights and comments using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	fileFilter := ""
	if q.FileID > 0 {
		fileFilter = fmt.Sprintf(" AND h.file_id = $%d", argN)
		args = append(args, q.FileID)
		argN++
	}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultHighlight {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'highlight'::text AS type, h.id, h.id AS highlight_id, h.file_id, f.document_id,
				ts_headline('simple', h.memo || ' ' || h.text, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(h.search_vector, %s) AS rank
			FROM highlights h
			JOIN document_files f ON f.id = h.file_id
			WHERE h.search_vector @@ %s%s`, tsQuery, tsQuery, tsQuery, fileFilter))
	}

	if q.FilterType == "" || q.FilterType == ResultComment {
		tagArg := fmt.Sprintf("$%d", argN)
		args = append(args, p.automatedTag)
		argN++
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'comment'::text AS type, c.id, c.highlight_id, h.file_id, f.document_id,
				ts_headline('simple', c.text, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				ts_rank(c.search_vector, %s) AS rank
			FROM comments c
			JOIN highlights h ON h.id = c.highlight_id
			JOIN document_files f ON f.id = h.file_id
			LEFT JOIN comments parent ON parent.id = c.parent_id
			LEFT JOIN comment_moderation_meta m ON m.comment_id = c.id
			WHERE c.search_vector @@ %s%s
				AND %s`, tsQuery, tsQuery, tsQuery, fileFilter, fmt.Sprintf(visibleComment, tagArg)))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, highlight_id, file_id, document_id, snippet
		FROM (%s) sub
		ORDER BY rank DESC, id
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.HighlightID, &r.FileID, &r.DocumentID, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]HighlightRecord, []CommentRecord, error) {
	highlightRows, err := p.db.QueryContext(ctx, `
		SELECT h.id, h.file_id, f.document_id, h.created_by, h.memo, h.text
		FROM highlights h
		JOIN document_files f ON f.id = h.file_id
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load highlights: %w", err)
	}
	defer highlightRows.Close()

	highlights := make([]HighlightRecord, 0)
	for highlightRows.Next() {
		var h HighlightRecord
		if err := highlightRows.Scan(&h.ID, &h.FileID, &h.DocumentID, &h.CreatedBy, &h.Memo, &h.Text); err != nil {
			return nil, nil, fmt.Errorf("scan highlight: %w", err)
		}
		highlights = append(highlights, h)
	}
	if err := highlightRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate highlights: %w", err)
	}

	commentRows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.id, c.highlight_id, h.file_id, f.document_id, c.author, c.text
		FROM comments c
		JOIN highlights h ON h.id = c.highlight_id
		JOIN document_files f ON f.id = h.file_id
		LEFT JOIN comments parent ON parent.id = c.parent_id
		LEFT JOIN comment_moderation_meta m ON m.comment_id = c.id
		WHERE %s
	`, fmt.Sprintf(visibleComment, "$1")), p.automatedTag)
	if err != nil {
		return nil, nil, fmt.Errorf("load comments: %w", err)
	}
	defer commentRows.Close()

	comments := make([]CommentRecord, 0)
	for commentRows.Next() {
		var c CommentRecord
		if err := commentRows.Scan(&c.ID, &c.HighlightID, &c.FileID, &c.DocumentID, &c.Author, &c.Text); err != nil {
			return nil, nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate comments: %w", err)
	}

	return highlights, comments, nil
}
