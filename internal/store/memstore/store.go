package memstore

import (
	"context"

	"marginalia/api/internal/store"
)

func (s *Store) InsertDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	var out store.Document
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.InsertDocument(ctx, doc)
		return err
	})
	return out, err
}

func (s *Store) GetDocument(ctx context.Context, id int64) (store.Document, error) {
	var out store.Document
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.GetDocument(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) DeleteDocument(ctx context.Context, id int64) (int64, error) {
	var out int64
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.DeleteDocument(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) InsertFile(ctx context.Context, file store.DocumentFile) (store.DocumentFile, error) {
	var out store.DocumentFile
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.InsertFile(ctx, file)
		return err
	})
	return out, err
}

func (s *Store) GetFile(ctx context.Context, id int64) (store.DocumentFile, error) {
	var out store.DocumentFile
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.GetFile(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) ListFilesByDocument(ctx context.Context, documentID int64) ([]store.DocumentFile, error) {
	var out []store.DocumentFile
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.ListFilesByDocument(ctx, documentID)
		return err
	})
	return out, err
}

func (s *Store) DeleteFiles(ctx context.Context, ids []int64) (int64, error) {
	var out int64
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.DeleteFiles(ctx, ids)
		return err
	})
	return out, err
}

func (s *Store) InsertHighlight(ctx context.Context, h store.Highlight) (store.Highlight, error) {
	var out store.Highlight
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.InsertHighlight(ctx, h)
		return err
	})
	return out, err
}

func (s *Store) GetHighlight(ctx context.Context, id int64) (store.Highlight, error) {
	var out store.Highlight
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.GetHighlight(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) UpdateHighlight(ctx context.Context, h store.Highlight) (store.Highlight, error) {
	var out store.Highlight
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.UpdateHighlight(ctx, h)
		return err
	})
	return out, err
}

func (s *Store) ListHighlightsByFile(ctx context.Context, fileID int64) ([]store.Highlight, error) {
	var out []store.Highlight
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.ListHighlightsByFile(ctx, fileID)
		return err
	})
	return out, err
}

func (s *Store) ListHighlightIDsByFiles(ctx context.Context, fileIDs []int64) ([]int64, error) {
	var out []int64
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.ListHighlightIDsByFiles(ctx, fileIDs)
		return err
	})
	return out, err
}

func (s *Store) DeleteHighlights(ctx context.Context, ids []int64) (int64, error) {
	var out int64
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.DeleteHighlights(ctx, ids)
		return err
	})
	return out, err
}

func (s *Store) InsertRect(ctx context.Context, r store.Rect) (store.Rect, error) {
	var out store.Rect
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.InsertRect(ctx, r)
		return err
	})
	return out, err
}

func (s *Store) GetRect(ctx context.Context, id int64) (store.Rect, error) {
	var out store.Rect
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.GetRect(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) ListRectsByHighlights(ctx context.Context, highlightIDs []int64) ([]store.Rect, error) {
	var out []store.Rect
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.ListRectsByHighlights(ctx, highlightIDs)
		return err
	})
	return out, err
}

func (s *Store) DeleteRectsByHighlights(ctx context.Context, highlightIDs []int64) (int64, error) {
	var out int64
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.DeleteRectsByHighlights(ctx, highlightIDs)
		return err
	})
	return out, err
}

func (s *Store) InsertComment(ctx context.Context, c store.Comment) (store.Comment, error) {
	var out store.Comment
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.InsertComment(ctx, c)
		return err
	})
	return out, err
}

func (s *Store) GetComment(ctx context.Context, id int64) (store.Comment, error) {
	var out store.Comment
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.GetComment(ctx, id)
		return err
	})
	return out, err
}

func (s *Store) UpdateComment(ctx context.Context, c store.Comment) (store.Comment, error) {
	var out store.Comment
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.UpdateComment(ctx, c)
		return err
	})
	return out, err
}

func (s *Store) ListRootComments(ctx context.Context, highlightID int64) ([]store.Comment, error) {
	var out []store.Comment
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.ListRootComments(ctx, highlightID)
		return err
	})
	return out, err
}

func (s *Store) ListChildComments(ctx context.Context, parentIDs []int64) ([]store.Comment, error) {
	var out []store.Comment
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.ListChildComments(ctx, parentIDs)
		return err
	})
	return out, err
}

func (s *Store) DetachChildComments(ctx context.Context, parentIDs []int64) (int64, error) {
	var out int64
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.DetachChildComments(ctx, parentIDs)
		return err
	})
	return out, err
}

func (s *Store) ListCommentEdgesByHighlights(ctx context.Context, highlightIDs []int64) ([]store.CommentEdge, error) {
	var out []store.CommentEdge
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.ListCommentEdgesByHighlights(ctx, highlightIDs)
		return err
	})
	return out, err
}

func (s *Store) DeleteComments(ctx context.Context, ids []int64) (int64, error) {
	var out int64
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.DeleteComments(ctx, ids)
		return err
	})
	return out, err
}

func (s *Store) GetModerationMeta(ctx context.Context, commentID int64) (store.ModerationMeta, error) {
	var out store.ModerationMeta
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.GetModerationMeta(ctx, commentID)
		return err
	})
	return out, err
}

func (s *Store) InsertModerationMeta(ctx context.Context, m store.ModerationMeta) (store.ModerationMeta, error) {
	var out store.ModerationMeta
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.InsertModerationMeta(ctx, m)
		return err
	})
	return out, err
}

func (s *Store) UpdateModerationMeta(ctx context.Context, m store.ModerationMeta) (store.ModerationMeta, error) {
	var out store.ModerationMeta
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.UpdateModerationMeta(ctx, m)
		return err
	})
	return out, err
}

func (s *Store) SoftDeletedCommentIDs(ctx context.Context, commentIDs []int64) (map[int64]bool, error) {
	var out map[int64]bool
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.SoftDeletedCommentIDs(ctx, commentIDs)
		return err
	})
	return out, err
}

func (s *Store) LatestSoftDeletedMeta(ctx context.Context, automatedTag string) (store.ModerationMeta, error) {
	var out store.ModerationMeta
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.LatestSoftDeletedMeta(ctx, automatedTag)
		return err
	})
	return out, err
}

func (s *Store) HasSoftDeleted(ctx context.Context, automatedTag string) (bool, error) {
	var out bool
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.HasSoftDeleted(ctx, automatedTag)
		return err
	})
	return out, err
}

func (s *Store) DeleteModerationMeta(ctx context.Context, commentIDs []int64) (int64, error) {
	var out int64
	err := s.do(func(q *txQuerier) error {
		var err error
		out, err = q.DeleteModerationMeta(ctx, commentIDs)
		return err
	})
	return out, err
}
