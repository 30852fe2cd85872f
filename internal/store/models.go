package store

import "time"

type Document struct {
	ID        int64
	UserID    string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DocumentFile struct {
	ID         int64
	DocumentID int64
	FileName   string
	FileKey    string
	MimeType   string
	FileSize   int64
	CreatedAt  time.Time
}

type Highlight struct {
	ID        int64
	FileID    int64
	CreatedBy string
	Memo      string
	Text      string
	CreatedAt time.Time
	UpdatedAt time.Time
	Rects     []Rect
}

// Rect is one region on one page. Coordinates are in the viewer's page space.
type Rect struct {
	ID          int64
	HighlightID int64
	PageNum     int
	X1          float64
	Y1          float64
	X2          float64
	Y2          float64
	ElementType string
}

type Comment struct {
	ID          int64
	HighlightID int64
	ParentID    *int64
	Author      string
	Text        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c Comment) IsRoot() bool {
	return c.ParentID == nil
}

// ModerationMeta is the side record kept for automated comments only.
type ModerationMeta struct {
	ID               int64
	CommentID        int64
	SuggestionReason *string
	DeletionReason   *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (m ModerationMeta) SoftDeleted() bool {
	return m.DeletionReason != nil
}

// CommentEdge is the minimal projection the cascade engine needs.
type CommentEdge struct {
	ID       int64
	ParentID *int64
}
