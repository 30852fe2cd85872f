package memstore

import (
	"context"
	"sort"

	"marginalia/api/internal/store"
)

type txQuerier struct {
	st     *state
	faults map[string]error
}

var _ store.Querier = (*txQuerier)(nil)

func (q *txQuerier) fault(method string) error {
	return q.faults[method]
}

func (q *txQuerier) InsertDocument(_ context.Context, doc store.Document) (store.Document, error) {
	if err := q.fault("InsertDocument"); err != nil {
		return store.Document{}, err
	}
	doc.ID = q.st.nextID()
	doc.CreatedAt = q.st.now()
	doc.UpdatedAt = doc.CreatedAt
	q.st.documents[doc.ID] = doc
	return doc, nil
}

func (q *txQuerier) GetDocument(_ context.Context, id int64) (store.Document, error) {
	if err := q.fault("GetDocument"); err != nil {
		return store.Document{}, err
	}
	doc, ok := q.st.documents[id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return doc, nil
}

func (q *txQuerier) DeleteDocument(_ context.Context, id int64) (int64, error) {
	if err := q.fault("DeleteDocument"); err != nil {
		return 0, err
	}
	if _, ok := q.st.documents[id]; !ok {
		return 0, nil
	}
	for _, f := range q.st.files {
		if f.DocumentID == id {
			return 0, fkError("document_files", "document_files_document_id_fkey")
		}
	}
	delete(q.st.documents, id)
	return 1, nil
}

func (q *txQuerier) InsertFile(_ context.Context, file store.DocumentFile) (store.DocumentFile, error) {
	if err := q.fault("InsertFile"); err != nil {
		return store.DocumentFile{}, err
	}
	if _, ok := q.st.documents[file.DocumentID]; !ok {
		return store.DocumentFile{}, fkError("document_files", "document_files_document_id_fkey")
	}
	file.ID = q.st.nextID()
	file.CreatedAt = q.st.now()
	q.st.files[file.ID] = file
	return file, nil
}

func (q *txQuerier) GetFile(_ context.Context, id int64) (store.DocumentFile, error) {
	if err := q.fault("GetFile"); err != nil {
		return store.DocumentFile{}, err
	}
	file, ok := q.st.files[id]
	if !ok {
		return store.DocumentFile{}, store.ErrNotFound
	}
	return file, nil
}

func (q *txQuerier) ListFilesByDocument(_ context.Context, documentID int64) ([]store.DocumentFile, error) {
	if err := q.fault("ListFilesByDocument"); err != nil {
		return nil, err
	}
	out := make([]store.DocumentFile, 0)
	for _, f := range q.st.files {
		if f.DocumentID == documentID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (q *txQuerier) DeleteFiles(_ context.Context, ids []int64) (int64, error) {
	if err := q.fault("DeleteFiles"); err != nil {
		return 0, err
	}
	set := idSet(ids)
	for _, h := range q.st.highlights {
		if set[h.FileID] {
			return 0, fkError("highlights", "highlights_file_id_fkey")
		}
	}
	var n int64
	for id := range set {
		if _, ok := q.st.files[id]; ok {
			delete(q.st.files, id)
			n++
		}
	}
	return n, nil
}

func (q *txQuerier) InsertHighlight(_ context.Context, h store.Highlight) (store.Highlight, error) {
	if err := q.fault("InsertHighlight"); err != nil {
		return store.Highlight{}, err
	}
	if _, ok := q.st.files[h.FileID]; !ok {
		return store.Highlight{}, fkError("highlights", "highlights_file_id_fkey")
	}
	h.ID = q.st.nextID()
	h.CreatedAt = q.st.now()
	h.UpdatedAt = h.CreatedAt
	h.Rects = nil
	q.st.highlights[h.ID] = h
	return h, nil
}

func (q *txQuerier) GetHighlight(_ context.Context, id int64) (store.Highlight, error) {
	if err := q.fault("GetHighlight"); err != nil {
		return store.Highlight{}, err
	}
	h, ok := q.st.highlights[id]
	if !ok {
		return store.Highlight{}, store.ErrNotFound
	}
	return h, nil
}

func (q *txQuerier) UpdateHighlight(_ context.Context, h store.Highlight) (store.Highlight, error) {
	if err := q.fault("UpdateHighlight"); err != nil {
		return store.Highlight{}, err
	}
	current, ok := q.st.highlights[h.ID]
	if !ok {
		return store.Highlight{}, store.ErrNotFound
	}
	current.Memo = h.Memo
	current.Text = h.Text
	current.UpdatedAt = q.st.now()
	q.st.highlights[h.ID] = current
	h.UpdatedAt = current.UpdatedAt
	return h, nil
}

func (q *txQuerier) ListHighlightsByFile(_ context.Context, fileID int64) ([]store.Highlight, error) {
	if err := q.fault("ListHighlightsByFile"); err != nil {
		return nil, err
	}
	out := make([]store.Highlight, 0)
	for _, h := range q.st.highlights {
		if h.FileID == fileID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *txQuerier) ListHighlightIDsByFiles(_ context.Context, fileIDs []int64) ([]int64, error) {
	if err := q.fault("ListHighlightIDsByFiles"); err != nil {
		return nil, err
	}
	set := idSet(fileIDs)
	out := make([]int64, 0)
	for _, h := range q.st.highlights {
		if set[h.FileID] {
			out = append(out, h.ID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (q *txQuerier) DeleteHighlights(_ context.Context, ids []int64) (int64, error) {
	if err := q.fault("DeleteHighlights"); err != nil {
		return 0, err
	}
	set := idSet(ids)
	for _, r := range q.st.rects {
		if set[r.HighlightID] {
			return 0, fkError("highlight_rects", "highlight_rects_highlight_id_fkey")
		}
	}
	for _, c := range q.st.comments {
		if set[c.HighlightID] {
			return 0, fkError("comments", "comments_highlight_id_fkey")
		}
	}
	var n int64
	for id := range set {
		if _, ok := q.st.highlights[id]; ok {
			delete(q.st.highlights, id)
			n++
		}
	}
	return n, nil
}

func (q *txQuerier) InsertRect(_ context.Context, r store.Rect) (store.Rect, error) {
	if err := q.fault("InsertRect"); err != nil {
		return store.Rect{}, err
	}
	if _, ok := q.st.highlights[r.HighlightID]; !ok {
		return store.Rect{}, fkError("highlight_rects", "highlight_rects_highlight_id_fkey")
	}
	r.ID = q.st.nextID()
	q.st.rects[r.ID] = r
	return r, nil
}

func (q *txQuerier) GetRect(_ context.Context, id int64) (store.Rect, error) {
	if err := q.fault("GetRect"); err != nil {
		return store.Rect{}, err
	}
	r, ok := q.st.rects[id]
	if !ok {
		return store.Rect{}, store.ErrNotFound
	}
	return r, nil
}

func (q *txQuerier) ListRectsByHighlights(_ context.Context, highlightIDs []int64) ([]store.Rect, error) {
	if err := q.fault("ListRectsByHighlights"); err != nil {
		return nil, err
	}
	set := idSet(highlightIDs)
	out := make([]store.Rect, 0)
	for _, r := range q.st.rects {
		if set[r.HighlightID] {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HighlightID != out[j].HighlightID {
			return out[i].HighlightID < out[j].HighlightID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *txQuerier) DeleteRectsByHighlights(_ context.Context, highlightIDs []int64) (int64, error) {
	if err := q.fault("DeleteRectsByHighlights"); err != nil {
		return 0, err
	}
	set := idSet(highlightIDs)
	var n int64
	for id, r := range q.st.rects {
		if set[r.HighlightID] {
			delete(q.st.rects, id)
			n++
		}
	}
	return n, nil
}

func (q *txQuerier) InsertComment(_ context.Context, c store.Comment) (store.Comment, error) {
	if err := q.fault("InsertComment"); err != nil {
		return store.Comment{}, err
	}
	if _, ok := q.st.highlights[c.HighlightID]; !ok {
		return store.Comment{}, fkError("comments", "comments_highlight_id_fkey")
	}
	if c.ParentID != nil {
		if _, ok := q.st.comments[*c.ParentID]; !ok {
			return store.Comment{}, fkError("comments", "comments_parent_id_fkey")
		}
	}
	c.ID = q.st.nextID()
	c.ParentID = copyID(c.ParentID)
	c.CreatedAt = q.st.now()
	c.UpdatedAt = c.CreatedAt
	q.st.comments[c.ID] = c
	return c, nil
}

func (q *txQuerier) GetComment(_ context.Context, id int64) (store.Comment, error) {
	if err := q.fault("GetComment"); err != nil {
		return store.Comment{}, err
	}
	c, ok := q.st.comments[id]
	if !ok {
		return store.Comment{}, store.ErrNotFound
	}
	c.ParentID = copyID(c.ParentID)
	return c, nil
}

func (q *txQuerier) UpdateComment(_ context.Context, c store.Comment) (store.Comment, error) {
	if err := q.fault("UpdateComment"); err != nil {
		return store.Comment{}, err
	}
	current, ok := q.st.comments[c.ID]
	if !ok {
		return store.Comment{}, store.ErrNotFound
	}
	current.Text = c.Text
	current.UpdatedAt = q.st.now()
	q.st.comments[c.ID] = current
	c.UpdatedAt = current.UpdatedAt
	return c, nil
}

func (q *txQuerier) ListRootComments(_ context.Context, highlightID int64) ([]store.Comment, error) {
	if err := q.fault("ListRootComments"); err != nil {
		return nil, err
	}
	out := make([]store.Comment, 0)
	for _, c := range q.st.comments {
		if c.HighlightID == highlightID && c.ParentID == nil {
			out = append(out, c)
		}
	}
	sortComments(out)
	return out, nil
}

func (q *txQuerier) ListChildComments(_ context.Context, parentIDs []int64) ([]store.Comment, error) {
	if err := q.fault("ListChildComments"); err != nil {
		return nil, err
	}
	set := idSet(parentIDs)
	out := make([]store.Comment, 0)
	for _, c := range q.st.comments {
		if c.ParentID != nil && set[*c.ParentID] {
			c.ParentID = copyID(c.ParentID)
			out = append(out, c)
		}
	}
	sortComments(out)
	return out, nil
}

func (q *txQuerier) DetachChildComments(_ context.Context, parentIDs []int64) (int64, error) {
	if err := q.fault("DetachChildComments"); err != nil {
		return 0, err
	}
	set := idSet(parentIDs)
	var n int64
	for id, c := range q.st.comments {
		if c.ParentID == nil || !set[*c.ParentID] {
			continue
		}
		c.ParentID = nil
		c.UpdatedAt = q.st.now()
		q.st.comments[id] = c
		n++
	}
	return n, nil
}

func (q *txQuerier) ListCommentEdgesByHighlights(_ context.Context, highlightIDs []int64) ([]store.CommentEdge, error) {
	if err := q.fault("ListCommentEdgesByHighlights"); err != nil {
		return nil, err
	}
	set := idSet(highlightIDs)
	out := make([]store.CommentEdge, 0)
	for _, c := range q.st.comments {
		if set[c.HighlightID] {
			out = append(out, store.CommentEdge{ID: c.ID, ParentID: copyID(c.ParentID)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteComments checks the self reference after the whole set is removed,
// the way Postgres checks a single DELETE statement. Moderation meta rows
// follow their comment (ON DELETE CASCADE).
func (q *txQuerier) DeleteComments(_ context.Context, ids []int64) (int64, error) {
	if err := q.fault("DeleteComments"); err != nil {
		return 0, err
	}
	set := idSet(ids)
	for id, c := range q.st.comments {
		if set[id] || c.ParentID == nil {
			continue
		}
		if set[*c.ParentID] {
			return 0, fkError("comments", "comments_parent_id_fkey")
		}
	}
	var n int64
	for id := range set {
		if _, ok := q.st.comments[id]; ok {
			delete(q.st.comments, id)
			delete(q.st.metas, id)
			n++
		}
	}
	return n, nil
}

func (q *txQuerier) GetModerationMeta(_ context.Context, commentID int64) (store.ModerationMeta, error) {
	if err := q.fault("GetModerationMeta"); err != nil {
		return store.ModerationMeta{}, err
	}
	m, ok := q.st.metas[commentID]
	if !ok {
		return store.ModerationMeta{}, store.ErrNotFound
	}
	return copyMeta(m), nil
}

func (q *txQuerier) InsertModerationMeta(_ context.Context, m store.ModerationMeta) (store.ModerationMeta, error) {
	if err := q.fault("InsertModerationMeta"); err != nil {
		return store.ModerationMeta{}, err
	}
	if _, ok := q.st.comments[m.CommentID]; !ok {
		return store.ModerationMeta{}, fkError("comment_moderation_meta", "comment_moderation_meta_comment_id_fkey")
	}
	if _, exists := q.st.metas[m.CommentID]; exists {
		return store.ModerationMeta{}, fkError("comment_moderation_meta", "comment_moderation_meta_comment_id_key")
	}
	m.ID = q.st.nextID()
	m.CreatedAt = q.st.now()
	m.UpdatedAt = m.CreatedAt
	m = copyMeta(m)
	q.st.metas[m.CommentID] = m
	return copyMeta(m), nil
}

func (q *txQuerier) UpdateModerationMeta(_ context.Context, m store.ModerationMeta) (store.ModerationMeta, error) {
	if err := q.fault("UpdateModerationMeta"); err != nil {
		return store.ModerationMeta{}, err
	}
	current, ok := q.st.metas[m.CommentID]
	if !ok {
		return store.ModerationMeta{}, store.ErrNotFound
	}
	current.SuggestionReason = copyText(m.SuggestionReason)
	current.DeletionReason = copyText(m.DeletionReason)
	current.UpdatedAt = q.st.now()
	q.st.metas[m.CommentID] = current
	return copyMeta(current), nil
}

func (q *txQuerier) SoftDeletedCommentIDs(_ context.Context, commentIDs []int64) (map[int64]bool, error) {
	if err := q.fault("SoftDeletedCommentIDs"); err != nil {
		return nil, err
	}
	out := map[int64]bool{}
	for _, id := range commentIDs {
		if m, ok := q.st.metas[id]; ok && m.DeletionReason != nil {
			out[id] = true
		}
	}
	return out, nil
}

func (q *txQuerier) LatestSoftDeletedMeta(_ context.Context, automatedTag string) (store.ModerationMeta, error) {
	if err := q.fault("LatestSoftDeletedMeta"); err != nil {
		return store.ModerationMeta{}, err
	}
	candidates := q.softDeleted(automatedTag)
	if len(candidates) == 0 {
		return store.ModerationMeta{}, store.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].UpdatedAt.Equal(candidates[j].UpdatedAt) {
			return candidates[i].UpdatedAt.After(candidates[j].UpdatedAt)
		}
		return candidates[i].ID > candidates[j].ID
	})
	return copyMeta(candidates[0]), nil
}

func (q *txQuerier) HasSoftDeleted(_ context.Context, automatedTag string) (bool, error) {
	if err := q.fault("HasSoftDeleted"); err != nil {
		return false, err
	}
	return len(q.softDeleted(automatedTag)) > 0, nil
}

func (q *txQuerier) softDeleted(automatedTag string) []store.ModerationMeta {
	tag := normalizeTag(automatedTag)
	var out []store.ModerationMeta
	for commentID, m := range q.st.metas {
		if m.DeletionReason == nil {
			continue
		}
		c, ok := q.st.comments[commentID]
		if !ok || c.ParentID == nil || normalizeTag(c.Author) != tag {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (q *txQuerier) DeleteModerationMeta(_ context.Context, commentIDs []int64) (int64, error) {
	if err := q.fault("DeleteModerationMeta"); err != nil {
		return 0, err
	}
	var n int64
	for _, id := range commentIDs {
		if _, ok := q.st.metas[id]; ok {
			delete(q.st.metas, id)
			n++
		}
	}
	return n, nil
}

func copyMeta(m store.ModerationMeta) store.ModerationMeta {
	m.SuggestionReason = copyText(m.SuggestionReason)
	m.DeletionReason = copyText(m.DeletionReason)
	return m
}
