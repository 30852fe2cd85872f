package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"marginalia/api/internal/annotation"
	"marginalia/api/internal/apperr"
	"marginalia/api/internal/blob"
	"marginalia/api/internal/logging"
)

const DefaultMaxInputBytes = 50 << 20

type Options struct {
	FontPaths     []string
	MaxInputBytes int64
}

// Service provides document export functionality
type Service struct {
	store    DataStore
	blobs    Fetcher
	fonts    *FontResolver
	maxInput int64
	logger   *slog.Logger

	faceOnce sync.Once
	face     Face
}

// NewService creates a new export service. Fonts are resolved on first use
// and the result is shared read-only by later exports.
func NewService(store DataStore, blobs Fetcher, opts Options, logger *slog.Logger) *Service {
	logger = logging.OrDefault(logger)
	if opts.MaxInputBytes <= 0 {
		opts.MaxInputBytes = DefaultMaxInputBytes
	}
	return &Service{
		store:    store,
		blobs:    blobs,
		fonts:    NewFontResolver(opts.FontPaths, logger),
		maxInput: opts.MaxInputBytes,
		logger:   logger,
	}
}

func (s *Service) resolvedFace() Face {
	s.faceOnce.Do(func() {
		s.face = s.fonts.Resolve()
	})
	return s.face
}

// ExportDocument renders the stored file with its annotation appendix.
func (s *Service) ExportDocument(ctx context.Context, fileID int64) (*Result, error) {
	exportID := uuid.NewString()
	logger := s.logger.With("export_id", exportID, "file_id", fileID)

	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, apperr.NotFound("file not found")
	}

	entries, err := s.Entries(ctx, fileID)
	if err != nil {
		return nil, err
	}

	original, err := s.fetch(ctx, file.FileKey)
	if err != nil {
		return nil, err
	}
	logger.Info("export started", "input_bytes", len(original), "highlights", len(entries))

	data, stats, err := NewRenderer(s.resolvedFace(), logger).Render(ctx, original, entries)
	if err != nil {
		logger.Error("export failed", "error", err)
		return nil, err
	}
	logger.Info("export finished",
		"input_bytes", stats.InputBytes,
		"original_pages", stats.OriginalPages,
		"appendix_pages", stats.AppendixPages,
		"output_bytes", stats.OutputBytes,
		"substitutions", stats.Substitutions,
		"pass_through", stats.PassThrough,
	)

	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = pdfMimeType
	}
	return &Result{
		Data:     data,
		Filename: OutputFilename(file.FileName),
		MimeType: mimeType,
		ExportID: exportID,
	}, nil
}

// Entries collects every highlight of the file with its visible threads, in
// creation order.
func (s *Service) Entries(ctx context.Context, fileID int64) ([]Entry, error) {
	highlights, err := s.store.ListHighlightsForFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(highlights))
	for _, h := range highlights {
		comments, err := s.store.ListActiveCommentsForHighlight(ctx, h.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Highlight: h, Threads: annotation.GroupThreads(comments)})
	}
	return entries, nil
}

func (s *Service) fetch(ctx context.Context, key string) ([]byte, error) {
	if s.blobs == nil {
		return nil, apperr.Persistence("fetch original", errors.New("no blob store configured"))
	}
	data, err := s.blobs.Fetch(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, apperr.NotFound("original document not found in storage")
	}
	if err != nil {
		return nil, apperr.Persistence("fetch original", err)
	}
	if int64(len(data)) > s.maxInput {
		return nil, apperr.Validation(fmt.Sprintf("document is %d bytes, export limit is %d", len(data), s.maxInput))
	}
	return data, nil
}

// OutputFilename inserts "_with_comments" before the extension.
func OutputFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "document.pdf"
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	if base == "" {
		base, ext = name, ""
	}
	return base + "_with_comments" + ext
}
