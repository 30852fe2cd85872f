package app

import (
	"time"

	"marginalia/api/internal/annotation"
	"marginalia/api/internal/moderation"
	"marginalia/api/internal/store"
)

type documentView struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type fileView struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"documentId"`
	FileName   string    `json:"fileName"`
	FileKey    string    `json:"fileKey"`
	MimeType   string    `json:"mimeType"`
	FileSize   int64     `json:"fileSize"`
	CreatedAt  time.Time `json:"createdAt"`
}

type rectView struct {
	ID          int64   `json:"id"`
	PageNum     int     `json:"pageNum"`
	X1          float64 `json:"x1"`
	Y1          float64 `json:"y1"`
	X2          float64 `json:"x2"`
	Y2          float64 `json:"y2"`
	ElementType string  `json:"elementType"`
}

type highlightView struct {
	ID        int64      `json:"id"`
	FileID    int64      `json:"fileId"`
	CreatedBy string     `json:"createdBy"`
	Memo      string     `json:"memo"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Rects     []rectView `json:"rects"`
}

type commentView struct {
	ID          int64     `json:"id"`
	HighlightID int64     `json:"highlightId"`
	ParentID    *int64    `json:"parentId"`
	Author      string    `json:"author"`
	Kind        string    `json:"kind"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type threadView struct {
	Root    commentView   `json:"root"`
	Replies []commentView `json:"replies"`
}

func toDocumentView(d store.Document) documentView {
	return documentView{ID: d.ID, UserID: d.UserID, Name: d.Name, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

func toFileView(f store.DocumentFile) fileView {
	return fileView{
		ID:         f.ID,
		DocumentID: f.DocumentID,
		FileName:   f.FileName,
		FileKey:    f.FileKey,
		MimeType:   f.MimeType,
		FileSize:   f.FileSize,
		CreatedAt:  f.CreatedAt,
	}
}

func toHighlightView(h store.Highlight) highlightView {
	rects := make([]rectView, 0, len(h.Rects))
	for _, r := range h.Rects {
		rects = append(rects, rectView{ID: r.ID, PageNum: r.PageNum, X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2, ElementType: r.ElementType})
	}
	return highlightView{
		ID:        h.ID,
		FileID:    h.FileID,
		CreatedBy: h.CreatedBy,
		Memo:      h.Memo,
		Text:      h.Text,
		CreatedAt: h.CreatedAt,
		UpdatedAt: h.UpdatedAt,
		Rects:     rects,
	}
}

func toCommentView(policy moderation.Policy, c store.Comment) commentView {
	return commentView{
		ID:          c.ID,
		HighlightID: c.HighlightID,
		ParentID:    c.ParentID,
		Author:      c.Author,
		Kind:        policy.Kind(c.Author).String(),
		Text:        c.Text,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func toThreadViews(policy moderation.Policy, threads []annotation.Thread) []threadView {
	out := make([]threadView, 0, len(threads))
	for _, t := range threads {
		replies := make([]commentView, 0, len(t.Replies))
		for _, r := range t.Replies {
			replies = append(replies, toCommentView(policy, r))
		}
		out = append(out, threadView{Root: toCommentView(policy, t.Root), Replies: replies})
	}
	return out
}
