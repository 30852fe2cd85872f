package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by point lookups when the row does not exist.
var ErrNotFound = errors.New("not found")

// Querier lists the relational primitives the annotation core relies on:
// point lookups, ordered range reads by foreign key, bulk deletes by id set,
// inserts and updates. Bulk operations with an empty id set are no-ops.
type Querier interface {
	InsertDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	DeleteDocument(ctx context.Context, id int64) (int64, error)

	InsertFile(ctx context.Context, file DocumentFile) (DocumentFile, error)
	GetFile(ctx context.Context, id int64) (DocumentFile, error)
	ListFilesByDocument(ctx context.Context, documentID int64) ([]DocumentFile, error)
	DeleteFiles(ctx context.Context, ids []int64) (int64, error)

	InsertHighlight(ctx context.Context, h Highlight) (Highlight, error)
	GetHighlight(ctx context.Context, id int64) (Highlight, error)
	UpdateHighlight(ctx context.Context, h Highlight) (Highlight, error)
	ListHighlightsByFile(ctx context.Context, fileID int64) ([]Highlight, error)
	ListHighlightIDsByFiles(ctx context.Context, fileIDs []int64) ([]int64, error)
	DeleteHighlights(ctx context.Context, ids []int64) (int64, error)

	InsertRect(ctx context.Context, r Rect) (Rect, error)
	GetRect(ctx context.Context, id int64) (Rect, error)
	ListRectsByHighlights(ctx context.Context, highlightIDs []int64) ([]Rect, error)
	DeleteRectsByHighlights(ctx context.Context, highlightIDs []int64) (int64, error)

	InsertComment(ctx context.Context, c Comment) (Comment, error)
	GetComment(ctx context.Context, id int64) (Comment, error)
	UpdateComment(ctx context.Context, c Comment) (Comment, error)
	ListRootComments(ctx context.Context, highlightID int64) ([]Comment, error)
	ListChildComments(ctx context.Context, parentIDs []int64) ([]Comment, error)
	DetachChildComments(ctx context.Context, parentIDs []int64) (int64, error)
	ListCommentEdgesByHighlights(ctx context.Context, highlightIDs []int64) ([]CommentEdge, error)
	DeleteComments(ctx context.Context, ids []int64) (int64, error)

	GetModerationMeta(ctx context.Context, commentID int64) (ModerationMeta, error)
	InsertModerationMeta(ctx context.Context, m ModerationMeta) (ModerationMeta, error)
	UpdateModerationMeta(ctx context.Context, m ModerationMeta) (ModerationMeta, error)
	SoftDeletedCommentIDs(ctx context.Context, commentIDs []int64) (map[int64]bool, error)
	LatestSoftDeletedMeta(ctx context.Context, automatedTag string) (ModerationMeta, error)
	HasSoftDeleted(ctx context.Context, automatedTag string) (bool, error)
	DeleteModerationMeta(ctx context.Context, commentIDs []int64) (int64, error)
}

// Store is a Querier that can also open a transaction scope. Everything fn
// does through the Querier it receives commits or rolls back together.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(q Querier) error) error
}
