// Package export produces an annotated copy of a stored PDF: the original
// pages followed by appendix pages listing every highlight and its comments.
package export

import (
	"context"
	"errors"

	"marginalia/api/internal/annotation"
	"marginalia/api/internal/store"
)

const pdfMimeType = "application/pdf"

// Entry is one highlight as it appears in the appendix.
type Entry struct {
	Highlight store.Highlight
	Threads   []annotation.Thread
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// ExportID correlates the log lines of one export.
	ExportID string
}

// Stats describes a finished render.
type Stats struct {
	InputBytes    int
	OriginalPages int
	AppendixPages int
	OutputBytes   int
	Substitutions int
	PassThrough   bool
}

var (
	// ErrMalformedInput indicates the original bytes could not be parsed as a PDF.
	ErrMalformedInput = errors.New("export input is not a readable pdf")
	// ErrEmptyInput indicates the original document has no bytes.
	ErrEmptyInput = errors.New("export input is empty")
)

// DataStore is the read side of the annotation store the export walks.
type DataStore interface {
	GetFile(ctx context.Context, id int64) (*store.DocumentFile, error)
	ListHighlightsForFile(ctx context.Context, fileID int64) ([]store.Highlight, error)
	ListActiveCommentsForHighlight(ctx context.Context, highlightID int64) ([]store.Comment, error)
}

// Fetcher returns the stored bytes of an uploaded file.
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}
