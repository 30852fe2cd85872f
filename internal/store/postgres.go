package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PostgresStore is the Store backed by a *sql.DB using the pgx driver.
type PostgresStore struct {
	*Queries
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{Queries: NewQueries(db), db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Querier) error) error {
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		return fn(NewQueries(tx))
	})
}

// Queries implements Querier over any DBTX, so the same statements run
// against the pool or inside a transaction.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO documents (user_id, name)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, doc.UserID, doc.Name).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

func (q *Queries) GetDocument(ctx context.Context, id int64) (Document, error) {
	var doc Document
	err := q.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM documents
		WHERE id=$1
	`, id).Scan(&doc.ID, &doc.UserID, &doc.Name, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (q *Queries) DeleteDocument(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	return rowsAffected(res)
}

func (q *Queries) InsertFile(ctx context.Context, file DocumentFile) (DocumentFile, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO document_files (document_id, file_name, file_key, mime_type, file_size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, file.DocumentID, file.FileName, file.FileKey, file.MimeType, file.FileSize).Scan(&file.ID, &file.CreatedAt)
	if err != nil {
		return DocumentFile{}, fmt.Errorf("insert file: %w", err)
	}
	return file, nil
}

func (q *Queries) GetFile(ctx context.Context, id int64) (DocumentFile, error) {
	var file DocumentFile
	err := q.db.QueryRowContext(ctx, `
		SELECT id, document_id, file_name, file_key, mime_type, file_size, created_at
		FROM document_files
		WHERE id=$1
	`, id).Scan(&file.ID, &file.DocumentID, &file.FileName, &file.FileKey, &file.MimeType, &file.FileSize, &file.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentFile{}, ErrNotFound
	}
	if err != nil {
		return DocumentFile{}, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

func (q *Queries) ListFilesByDocument(ctx context.Context, documentID int64) ([]DocumentFile, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, document_id, file_name, file_key, mime_type, file_size, created_at
		FROM document_files
		WHERE document_id=$1
		ORDER BY created_at DESC, id DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]DocumentFile, 0)
	for rows.Next() {
		var file DocumentFile
		if err := rows.Scan(&file.ID, &file.DocumentID, &file.FileName, &file.FileKey, &file.MimeType, &file.FileSize, &file.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (q *Queries) DeleteFiles(ctx context.Context, ids []int64) (int64, error) {
	return q.execByIDs(ctx, "delete files", `DELETE FROM document_files WHERE id IN (%s)`, ids)
}

func (q *Queries) InsertHighlight(ctx context.Context, h Highlight) (Highlight, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO highlights (file_id, created_by, memo, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, h.FileID, h.CreatedBy, h.Memo, h.Text).Scan(&h.ID, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return Highlight{}, fmt.Errorf("insert highlight: %w", err)
	}
	return h, nil
}

func (q *Queries) GetHighlight(ctx context.Context, id int64) (Highlight, error) {
	var h Highlight
	err := q.db.QueryRowContext(ctx, `
		SELECT id, file_id, created_by, memo, text, created_at, updated_at
		FROM highlights
		WHERE id=$1
	`, id).Scan(&h.ID, &h.FileID, &h.CreatedBy, &h.Memo, &h.Text, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Highlight{}, ErrNotFound
	}
	if err != nil {
		return Highlight{}, fmt.Errorf("get highlight: %w", err)
	}
	return h, nil
}

func (q *Queries) UpdateHighlight(ctx context.Context, h Highlight) (Highlight, error) {
	err := q.db.QueryRowContext(ctx, `
		UPDATE highlights
		SET memo=$2, text=$3, updated_at=NOW()
		WHERE id=$1
		RETURNING updated_at
	`, h.ID, h.Memo, h.Text).Scan(&h.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Highlight{}, ErrNotFound
	}
	if err != nil {
		return Highlight{}, fmt.Errorf("update highlight: %w", err)
	}
	return h, nil
}

func (q *Queries) ListHighlightsByFile(ctx context.Context, fileID int64) ([]Highlight, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, file_id, created_by, memo, text, created_at, updated_at
		FROM highlights
		WHERE file_id=$1
		ORDER BY created_at ASC, id ASC
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("list highlights: %w", err)
	}
	defer rows.Close()

	items := make([]Highlight, 0)
	for rows.Next() {
		var h Highlight
		if err := rows.Scan(&h.ID, &h.FileID, &h.CreatedBy, &h.Memo, &h.Text, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan highlight: %w", err)
		}
		items = append(items, h)
	}
	return items, rows.Err()
}

func (q *Queries) ListHighlightIDsByFiles(ctx context.Context, fileIDs []int64) ([]int64, error) {
	return q.selectIDs(ctx, "list highlight ids", `SELECT id FROM highlights WHERE file_id IN (%s) ORDER BY id`, fileIDs)
}

func (q *Queries) DeleteHighlights(ctx context.Context, ids []int64) (int64, error) {
	return q.execByIDs(ctx, "delete highlights", `DELETE FROM highlights WHERE id IN (%s)`, ids)
}

func (q *Queries) InsertRect(ctx context.Context, r Rect) (Rect, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO highlight_rects (highlight_id, page_num, x1, y1, x2, y2, element_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, r.HighlightID, r.PageNum, r.X1, r.Y1, r.X2, r.Y2, r.ElementType).Scan(&r.ID)
	if err != nil {
		return Rect{}, fmt.Errorf("insert rect: %w", err)
	}
	return r, nil
}

func (q *Queries) GetRect(ctx context.Context, id int64) (Rect, error) {
	var r Rect
	err := q.db.QueryRowContext(ctx, `
		SELECT id, highlight_id, page_num, x1, y1, x2, y2, element_type
		FROM highlight_rects
		WHERE id=$1
	`, id).Scan(&r.ID, &r.HighlightID, &r.PageNum, &r.X1, &r.Y1, &r.X2, &r.Y2, &r.ElementType)
	if errors.Is(err, sql.ErrNoRows) {
		return Rect{}, ErrNotFound
	}
	if err != nil {
		return Rect{}, fmt.Errorf("get rect: %w", err)
	}
	return r, nil
}

func (q *Queries) ListRectsByHighlights(ctx context.Context, highlightIDs []int64) ([]Rect, error) {
	if len(highlightIDs) == 0 {
		return []Rect{}, nil
	}
	list, args := idList(1, highlightIDs)
	rows, err := q.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, highlight_id, page_num, x1, y1, x2, y2, element_type
		FROM highlight_rects
		WHERE highlight_id IN (%s)
		ORDER BY highlight_id, id
	`, list), args...)
	if err != nil {
		return nil, fmt.Errorf("list rects: %w", err)
	}
	defer rows.Close()

	rects := make([]Rect, 0)
	for rows.Next() {
		var r Rect
		if err := rows.Scan(&r.ID, &r.HighlightID, &r.PageNum, &r.X1, &r.Y1, &r.X2, &r.Y2, &r.ElementType); err != nil {
			return nil, fmt.Errorf("scan rect: %w", err)
		}
		rects = append(rects, r)
	}
	return rects, rows.Err()
}

func (q *Queries) DeleteRectsByHighlights(ctx context.Context, highlightIDs []int64) (int64, error) {
	return q.execByIDs(ctx, "delete rects", `DELETE FROM highlight_rects WHERE highlight_id IN (%s)`, highlightIDs)
}

const commentColumns = `id, highlight_id, parent_id, author, text, created_at, updated_at`

func (q *Queries) InsertComment(ctx context.Context, c Comment) (Comment, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO comments (highlight_id, parent_id, author, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, c.HighlightID, nullableID(c.ParentID), c.Author, c.Text).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return c, nil
}

func (q *Queries) GetComment(ctx context.Context, id int64) (Comment, error) {
	c, err := scanComment(q.db.QueryRowContext(ctx, `SELECT `+commentColumns+` FROM comments WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("get comment: %w", err)
	}
	return c, nil
}

func (q *Queries) UpdateComment(ctx context.Context, c Comment) (Comment, error) {
	err := q.db.QueryRowContext(ctx, `
		UPDATE comments
		SET text=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING updated_at
	`, c.ID, c.Text).Scan(&c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, ErrNotFound
	}
	if err != nil {
		return Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return c, nil
}

func (q *Queries) ListRootComments(ctx context.Context, highlightID int64) ([]Comment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE highlight_id=$1 AND parent_id IS NULL
		ORDER BY created_at ASC, id ASC
	`, highlightID)
	if err != nil {
		return nil, fmt.Errorf("list root comments: %w", err)
	}
	return collectComments(rows)
}

func (q *Queries) ListChildComments(ctx context.Context, parentIDs []int64) ([]Comment, error) {
	if len(parentIDs) == 0 {
		return []Comment{}, nil
	}
	list, args := idList(1, parentIDs)
	rows, err := q.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT `+commentColumns+`
		FROM comments
		WHERE parent_id IN (%s)
		ORDER BY created_at ASC, id ASC
	`, list), args...)
	if err != nil {
		return nil, fmt.Errorf("list child comments: %w", err)
	}
	return collectComments(rows)
}

// DetachChildComments turns the replies of parentIDs into roots.
func (q *Queries) DetachChildComments(ctx context.Context, parentIDs []int64) (int64, error) {
	return q.execByIDs(ctx, "detach child comments", `UPDATE comments SET parent_id=NULL, updated_at=clock_timestamp() WHERE parent_id IN (%s)`, parentIDs)
}

func (q *Queries) ListCommentEdgesByHighlights(ctx context.Context, highlightIDs []int64) ([]CommentEdge, error) {
	if len(highlightIDs) == 0 {
		return []CommentEdge{}, nil
	}
	list, args := idList(1, highlightIDs)
	rows, err := q.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, parent_id
		FROM comments
		WHERE highlight_id IN (%s)
		ORDER BY id
	`, list), args...)
	if err != nil {
		return nil, fmt.Errorf("list comment edges: %w", err)
	}
	defer rows.Close()

	edges := make([]CommentEdge, 0)
	for rows.Next() {
		var (
			edge   CommentEdge
			parent sql.NullInt64
		)
		if err := rows.Scan(&edge.ID, &parent); err != nil {
			return nil, fmt.Errorf("scan comment edge: %w", err)
		}
		if parent.Valid {
			edge.ParentID = &parent.Int64
		}
		edges = append(edges, edge)
	}
	return edges, rows.Err()
}

func (q *Queries) DeleteComments(ctx context.Context, ids []int64) (int64, error) {
	return q.execByIDs(ctx, "delete comments", `DELETE FROM comments WHERE id IN (%s)`, ids)
}

const metaColumns = `id, comment_id, suggestion_reason, deletion_reason, created_at, updated_at`

func (q *Queries) GetModerationMeta(ctx context.Context, commentID int64) (ModerationMeta, error) {
	m, err := scanMeta(q.db.QueryRowContext(ctx, `SELECT `+metaColumns+` FROM comment_moderation_meta WHERE comment_id=$1`, commentID))
	if errors.Is(err, sql.ErrNoRows) {
		return ModerationMeta{}, ErrNotFound
	}
	if err != nil {
		return ModerationMeta{}, fmt.Errorf("get moderation meta: %w", err)
	}
	return m, nil
}

func (q *Queries) InsertModerationMeta(ctx context.Context, m ModerationMeta) (ModerationMeta, error) {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO comment_moderation_meta (comment_id, suggestion_reason, deletion_reason, created_at, updated_at)
		VALUES ($1, $2, $3, clock_timestamp(), clock_timestamp())
		RETURNING id, created_at, updated_at
	`, m.CommentID, nullableText(m.SuggestionReason), nullableText(m.DeletionReason)).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return ModerationMeta{}, fmt.Errorf("insert moderation meta: %w", err)
	}
	return m, nil
}

func (q *Queries) UpdateModerationMeta(ctx context.Context, m ModerationMeta) (ModerationMeta, error) {
	err := q.db.QueryRowContext(ctx, `
		UPDATE comment_moderation_meta
		SET suggestion_reason=$2, deletion_reason=$3, updated_at=clock_timestamp()
		WHERE comment_id=$1
		RETURNING id, created_at, updated_at
	`, m.CommentID, nullableText(m.SuggestionReason), nullableText(m.DeletionReason)).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ModerationMeta{}, ErrNotFound
	}
	if err != nil {
		return ModerationMeta{}, fmt.Errorf("update moderation meta: %w", err)
	}
	return m, nil
}

func (q *Queries) SoftDeletedCommentIDs(ctx context.Context, commentIDs []int64) (map[int64]bool, error) {
	ids, err := q.selectIDs(ctx, "list soft-deleted comments", `
		SELECT comment_id
		FROM comment_moderation_meta
		WHERE deletion_reason IS NOT NULL AND comment_id IN (%s)
	`, commentIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (q *Queries) LatestSoftDeletedMeta(ctx context.Context, automatedTag string) (ModerationMeta, error) {
	m, err := scanMeta(q.db.QueryRowContext(ctx, `
		SELECT m.id, m.comment_id, m.suggestion_reason, m.deletion_reason, m.created_at, m.updated_at
		FROM comment_moderation_meta m
		JOIN comments c ON c.id = m.comment_id
		WHERE m.deletion_reason IS NOT NULL
			AND c.parent_id IS NOT NULL
			AND LOWER(TRIM(c.author)) = LOWER(TRIM($1))
		ORDER BY m.updated_at DESC, m.id DESC
		LIMIT 1
	`, automatedTag))
	if errors.Is(err, sql.ErrNoRows) {
		return ModerationMeta{}, ErrNotFound
	}
	if err != nil {
		return ModerationMeta{}, fmt.Errorf("latest soft-deleted meta: %w", err)
	}
	return m, nil
}

func (q *Queries) HasSoftDeleted(ctx context.Context, automatedTag string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM comment_moderation_meta m
			JOIN comments c ON c.id = m.comment_id
			WHERE m.deletion_reason IS NOT NULL
				AND c.parent_id IS NOT NULL
				AND LOWER(TRIM(c.author)) = LOWER(TRIM($1))
		)
	`, automatedTag).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check soft-deleted: %w", err)
	}
	return exists, nil
}

func (q *Queries) DeleteModerationMeta(ctx context.Context, commentIDs []int64) (int64, error) {
	return q.execByIDs(ctx, "delete moderation meta", `DELETE FROM comment_moderation_meta WHERE comment_id IN (%s)`, commentIDs)
}

func (q *Queries) execByIDs(ctx context.Context, op, statement string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	list, args := idList(1, ids)
	res, err := q.db.ExecContext(ctx, fmt.Sprintf(statement, list), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return rowsAffected(res)
}

func (q *Queries) selectIDs(ctx context.Context, op, query string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	list, args := idList(1, ids)
	rows, err := q.db.QueryContext(ctx, fmt.Sprintf(query, list), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]int64, 0, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (Comment, error) {
	var (
		c      Comment
		parent sql.NullInt64
	)
	if err := row.Scan(&c.ID, &c.HighlightID, &parent, &c.Author, &c.Text, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Comment{}, err
	}
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	return c, nil
}

func collectComments(rows *sql.Rows) ([]Comment, error) {
	defer rows.Close()
	items := make([]Comment, 0)
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func scanMeta(row rowScanner) (ModerationMeta, error) {
	var (
		m          ModerationMeta
		suggestion sql.NullString
		deletion   sql.NullString
	)
	if err := row.Scan(&m.ID, &m.CommentID, &suggestion, &deletion, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return ModerationMeta{}, err
	}
	if suggestion.Valid {
		m.SuggestionReason = &suggestion.String
	}
	if deletion.Valid {
		m.DeletionReason = &deletion.String
	}
	return m, nil
}

// idList renders "$start, $start+1, ..." for an IN clause.
func idList(start int, ids []int64) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "$" + strconv.Itoa(start+i)
		args[i] = id
	}
	return strings.Join(placeholders, ", "), args
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableText(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
