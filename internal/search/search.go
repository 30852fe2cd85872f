package search

import "context"

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultHighlight ResultType = "highlight"
	ResultComment   ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type        ResultType `json:"type"`
	ID          int64      `json:"id"`
	HighlightID int64      `json:"highlightId"`
	FileID      int64      `json:"fileId"`
	DocumentID  int64      `json:"documentId"`
	Snippet     string     `json:"snippet"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	FileID     int64      // 0 = every file
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexHighlight(h HighlightRecord) error
	IndexComment(c CommentRecord) error
	DeleteHighlight(id int64) error
	DeleteComment(id int64) error
}

// HighlightRecord is the data we index for a highlight.
type HighlightRecord struct {
	ID         int64  `json:"id"`
	FileID     int64  `json:"fileId"`
	DocumentID int64  `json:"documentId"`
	CreatedBy  string `json:"createdBy"`
	Memo       string `json:"memo"`
	Text       string `json:"text"`
}

// CommentRecord is the data we index for a visible comment.
type CommentRecord struct {
	ID          int64  `json:"id"`
	HighlightID int64  `json:"highlightId"`
	FileID      int64  `json:"fileId"`
	DocumentID  int64  `json:"documentId"`
	Author      string `json:"author"`
	Text        string `json:"text"`
}
