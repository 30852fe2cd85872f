package search

import (
	"context"
	"log/slog"

	"marginalia/api/internal/logging"
	"marginalia/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili  *Meili
	pgfts  Searcher
	logger *slog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured; pgfts may be nil when no database is attached.
func NewService(meili *Meili, pgfts Searcher, logger *slog.Logger) *Service {
	return &Service{meili: meili, pgfts: pgfts, logger: logging.OrDefault(logger)}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meiliReady() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", "error", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Indexing reports whether index updates currently reach Meilisearch.
func (s *Service) Indexing() bool {
	return s.meiliReady()
}

func (s *Service) meiliReady() bool {
	return s.meili != nil && s.meili.Healthy()
}

// IndexHighlight indexes a highlight (fire-and-forget to Meilisearch).
func (s *Service) IndexHighlight(h HighlightRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexHighlight(h); err != nil {
			s.logger.Warn("index highlight failed", "highlight_id", h.ID, "error", err)
		}
	}()
}

// IndexComment indexes a comment (fire-and-forget to Meilisearch).
func (s *Service) IndexComment(c CommentRecord) {
	if !s.meiliReady() {
		return
	}
	go func() {
		if err := s.meili.IndexComment(c); err != nil {
			s.logger.Warn("index comment failed", "comment_id", c.ID, "error", err)
		}
	}()
}

// Forget removes highlights and comments from the index (fire-and-forget).
func (s *Service) Forget(highlightIDs, commentIDs []int64) {
	if !s.meiliReady() || len(highlightIDs)+len(commentIDs) == 0 {
		return
	}
	go func() {
		for _, id := range commentIDs {
			if err := s.meili.DeleteComment(id); err != nil {
				s.logger.Warn("unindex comment failed", "comment_id", id, "error", err)
			}
		}
		for _, id := range highlightIDs {
			if err := s.meili.DeleteHighlight(id); err != nil {
				s.logger.Warn("unindex highlight failed", "highlight_id", id, "error", err)
			}
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	pg, ok := s.pgfts.(*PgFTS)
	if !s.meiliReady() || !ok {
		return
	}
	highlights, comments, err := pg.LoadAllRecords(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", "error", err)
		return
	}
	if err := s.meili.IndexHighlights(highlights); err != nil {
		s.logger.Error("reindex highlights failed", "error", err)
	}
	if err := s.meili.IndexComments(comments); err != nil {
		s.logger.Error("reindex comments failed", "error", err)
	}
	s.logger.Info("search reindexed", "highlights", len(highlights), "comments", len(comments))
}

// HighlightRecordFrom builds the index record for a stored highlight.
func HighlightRecordFrom(h store.Highlight, documentID int64) HighlightRecord {
	return HighlightRecord{
		ID:         h.ID,
		FileID:     h.FileID,
		DocumentID: documentID,
		CreatedBy:  h.CreatedBy,
		Memo:       h.Memo,
		Text:       h.Text,
	}
}

// CommentRecordFrom builds the index record for a stored comment.
func CommentRecordFrom(c store.Comment, fileID, documentID int64) CommentRecord {
	return CommentRecord{
		ID:          c.ID,
		HighlightID: c.HighlightID,
		FileID:      fileID,
		DocumentID:  documentID,
		Author:      c.Author,
		Text:        c.Text,
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
