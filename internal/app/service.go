package app

import (
	"context"
	"log/slog"
	"strings"

	"marginalia/api/internal/annotation"
	"marginalia/api/internal/apperr"
	"marginalia/api/internal/auth"
	"marginalia/api/internal/cascade"
	"marginalia/api/internal/export"
	"marginalia/api/internal/logging"
	"marginalia/api/internal/moderation"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
)

// Session is the authenticated caller of a request.
type Session struct {
	UserID   string
	UserName string
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the API service is assembled from.
type Deps struct {
	Store       store.Store
	Annotations *annotation.Service
	Moderation  *moderation.Service
	Cascade     *cascade.Engine
	Exports     *export.Service
	Search      *search.Service
	AuthSecret  []byte
	DB          Pinger
	Logger      *slog.Logger
}

// Service checks ownership and then delegates to the domain components,
// keeping the search index in step with what they change.
type Service struct {
	annotations *annotation.Service
	moderation  *moderation.Service
	cascade     *cascade.Engine
	exports     *export.Service
	search      *search.Service
	authz       *annotation.Authorizer
	authSecret  []byte
	db          Pinger
	logger      *slog.Logger
}

func NewService(d Deps) *Service {
	logger := logging.OrDefault(d.Logger)
	searchSvc := d.Search
	if searchSvc == nil {
		searchSvc = search.NewService(nil, nil, logger)
	}
	return &Service{
		annotations: d.Annotations,
		moderation:  d.Moderation,
		cascade:     d.Cascade,
		exports:     d.Exports,
		search:      searchSvc,
		authz:       annotation.NewAuthorizer(d.Store),
		authSecret:  d.AuthSecret,
		db:          d.DB,
		logger:      logger,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

func (s *Service) Policy() moderation.Policy {
	return s.moderation.Policy()
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken(s.authSecret, token)
	if err != nil {
		return Session{}, err
	}
	return Session{UserID: claims.Subject, UserName: claims.Name}, nil
}

func (s *Service) CreateDocument(ctx context.Context, session Session, name string) (store.Document, error) {
	return s.annotations.CreateDocument(ctx, session.UserID, name)
}

func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID int64) (cascade.Report, error) {
	if err := s.authz.Document(ctx, session.UserID, documentID); err != nil {
		return cascade.Report{}, err
	}
	report, err := s.cascade.DeleteDocument(ctx, documentID)
	if err != nil {
		return cascade.Report{}, err
	}
	s.search.Forget(report.HighlightIDs, report.CommentIDs)
	return report, nil
}

func (s *Service) RegisterFile(ctx context.Context, session Session, in annotation.RegisterFileInput) (store.DocumentFile, error) {
	if err := s.authz.Document(ctx, session.UserID, in.DocumentID); err != nil {
		return store.DocumentFile{}, err
	}
	return s.annotations.RegisterFile(ctx, in)
}

func (s *Service) ListFiles(ctx context.Context, session Session, documentID int64) ([]store.DocumentFile, error) {
	if err := s.authz.Document(ctx, session.UserID, documentID); err != nil {
		return nil, err
	}
	return s.annotations.ListFiles(ctx, documentID)
}

func (s *Service) ListHighlights(ctx context.Context, session Session, fileID int64) ([]store.Highlight, error) {
	if err := s.authz.File(ctx, session.UserID, fileID); err != nil {
		return nil, err
	}
	return s.annotations.ListHighlightsForFile(ctx, fileID)
}

func (s *Service) CreateHighlight(ctx context.Context, session Session, in annotation.CreateHighlightInput) (annotation.CreatedHighlight, error) {
	if err := s.authz.File(ctx, session.UserID, in.FileID); err != nil {
		return annotation.CreatedHighlight{}, err
	}
	created, err := s.annotations.CreateHighlightWithRootComment(ctx, in)
	if err != nil {
		return annotation.CreatedHighlight{}, err
	}
	if s.search.Indexing() {
		if file, err := s.annotations.GetFile(ctx, in.FileID); err == nil && file != nil {
			s.search.IndexHighlight(search.HighlightRecordFrom(created.Highlight, file.DocumentID))
			s.indexComment(ctx, created.RootCommentID)
		}
	}
	return created, nil
}

func (s *Service) UpdateHighlight(ctx context.Context, session Session, highlightID int64, memo, text *string) (store.Highlight, error) {
	if err := s.authz.Highlight(ctx, session.UserID, highlightID); err != nil {
		return store.Highlight{}, err
	}
	h, err := s.annotations.UpdateHighlight(ctx, highlightID, memo, text)
	if err != nil {
		return store.Highlight{}, err
	}
	if s.search.Indexing() {
		if file, err := s.annotations.GetFile(ctx, h.FileID); err == nil && file != nil {
			s.search.IndexHighlight(search.HighlightRecordFrom(h, file.DocumentID))
		}
	}
	return h, nil
}

func (s *Service) DeleteHighlight(ctx context.Context, session Session, highlightID int64) (cascade.Report, error) {
	if err := s.authz.Highlight(ctx, session.UserID, highlightID); err != nil {
		return cascade.Report{}, err
	}
	report, err := s.cascade.DeleteHighlight(ctx, highlightID)
	if err != nil {
		return cascade.Report{}, err
	}
	s.search.Forget(report.HighlightIDs, report.CommentIDs)
	return report, nil
}

func (s *Service) ListThreads(ctx context.Context, session Session, highlightID int64) ([]annotation.Thread, error) {
	if err := s.authz.Highlight(ctx, session.UserID, highlightID); err != nil {
		return nil, err
	}
	comments, err := s.annotations.ListActiveCommentsForHighlight(ctx, highlightID)
	if err != nil {
		return nil, err
	}
	return annotation.GroupThreads(comments), nil
}

func (s *Service) CreateComment(ctx context.Context, session Session, in annotation.CreateCommentInput) (store.Comment, error) {
	if err := s.authz.Highlight(ctx, session.UserID, in.HighlightID); err != nil {
		return store.Comment{}, err
	}
	c, err := s.annotations.CreateComment(ctx, in)
	if err != nil {
		return store.Comment{}, err
	}
	s.indexComment(ctx, c.ID)
	return c, nil
}

func (s *Service) UpdateComment(ctx context.Context, session Session, commentID int64, text string) (store.Comment, error) {
	if err := s.authz.Comment(ctx, session.UserID, commentID); err != nil {
		return store.Comment{}, err
	}
	c, err := s.annotations.UpdateComment(ctx, commentID, text)
	if err != nil {
		return store.Comment{}, err
	}
	s.indexComment(ctx, c.ID)
	return c, nil
}

// DeleteComment applies the moderation delete transition. The index loses
// every removed row, and a soft-deleted reply as well.
func (s *Service) DeleteComment(ctx context.Context, session Session, commentID int64, reason string) (moderation.DeleteResult, error) {
	if err := s.authz.Comment(ctx, session.UserID, commentID); err != nil {
		return moderation.DeleteResult{}, err
	}
	result, err := s.moderation.Delete(ctx, commentID, reason)
	if err != nil {
		return moderation.DeleteResult{}, err
	}
	switch result.Outcome {
	case moderation.OutcomeNotFound:
		return result, apperr.NotFound("comment not found")
	case moderation.OutcomeSoftDeleted:
		s.search.Forget(nil, []int64{result.CommentID})
	default:
		s.search.Forget(nil, result.RemovedIDs)
	}
	return result, nil
}

func (s *Service) RestoreLatestSoftDeleted(ctx context.Context) (store.Comment, bool, error) {
	c, ok, err := s.moderation.RestoreLatestSoftDeleted(ctx)
	if err != nil || !ok {
		return store.Comment{}, ok, err
	}
	s.indexComment(ctx, c.ID)
	return c, true, nil
}

func (s *Service) HasSoftDeletedAutomatedComment(ctx context.Context) (bool, error) {
	return s.moderation.HasSoftDeletedAutomatedComment(ctx)
}

func (s *Service) ExportFile(ctx context.Context, session Session, fileID int64) (*export.Result, error) {
	if err := s.authz.File(ctx, session.UserID, fileID); err != nil {
		return nil, err
	}
	return s.exports.ExportDocument(ctx, fileID)
}

func (s *Service) Search(ctx context.Context, session Session, fileID int64, q search.Query) (search.Response, error) {
	if err := s.authz.File(ctx, session.UserID, fileID); err != nil {
		return search.Response{}, err
	}
	q.Text = strings.TrimSpace(q.Text)
	q.FileID = fileID
	return s.search.Search(ctx, q), nil
}

// indexComment pushes the comment's current text to the index.
func (s *Service) indexComment(ctx context.Context, commentID int64) {
	if !s.search.Indexing() {
		return
	}
	if record, ok := s.commentRecord(ctx, commentID); ok {
		s.search.IndexComment(record)
	}
}

// commentRecord builds the index record for a comment that is currently
// visible. Soft-deleted automated replies stay out of the index.
func (s *Service) commentRecord(ctx context.Context, commentID int64) (search.CommentRecord, bool) {
	c, err := s.annotations.GetComment(ctx, commentID)
	if err != nil || c == nil {
		return search.CommentRecord{}, false
	}
	meta, err := s.annotations.GetModerationMeta(ctx, c.ID)
	if err != nil {
		return search.CommentRecord{}, false
	}
	if !s.moderation.Policy().Visible(*c, meta != nil && meta.SoftDeleted()) {
		return search.CommentRecord{}, false
	}
	h, err := s.annotations.GetHighlight(ctx, c.HighlightID)
	if err != nil || h == nil {
		return search.CommentRecord{}, false
	}
	file, err := s.annotations.GetFile(ctx, h.FileID)
	if err != nil || file == nil {
		return search.CommentRecord{}, false
	}
	return search.CommentRecordFrom(*c, file.ID, file.DocumentID), true
}
