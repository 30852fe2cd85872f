// Package annotation owns highlights, their rects and their comment threads.
package annotation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"marginalia/api/internal/apperr"
	"marginalia/api/internal/logging"
	"marginalia/api/internal/moderation"
	"marginalia/api/internal/store"
)

const (
	ElementImage   = "image"
	ElementShape   = "shape"
	ElementUnknown = "unknown"
)

type RectInput struct {
	PageNum     int     `json:"pageNum"`
	X1          float64 `json:"x1"`
	Y1          float64 `json:"y1"`
	X2          float64 `json:"x2"`
	Y2          float64 `json:"y2"`
	ElementType string  `json:"elementType"`
}

type CreateHighlightInput struct {
	FileID    int64  `json:"fileId"`
	CreatedBy string `json:"createdBy"`
	Memo      string `json:"memo"`
	Text      string `json:"text"`
	// ElementType, when set, overrides the tag of every rect.
	ElementType      string      `json:"elementType"`
	SuggestionReason string      `json:"suggestionReason"`
	Rects            []RectInput `json:"rects"`
}

func (in CreateHighlightInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.FileID, validation.Required, validation.Min(int64(1))),
		validation.Field(&in.CreatedBy, validation.Required),
		validation.Field(&in.Memo, validation.Required),
		validation.Field(&in.Rects, validation.Required),
	)
}

type CreatedHighlight struct {
	Highlight     store.Highlight
	RootCommentID int64
}

type CreateCommentInput struct {
	HighlightID      int64  `json:"highlightId"`
	ParentID         *int64 `json:"parentId"`
	Author           string `json:"author"`
	Text             string `json:"text"`
	SuggestionReason string `json:"suggestionReason"`
}

func (in CreateCommentInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.HighlightID, validation.Required, validation.Min(int64(1))),
		validation.Field(&in.Author, validation.Required),
		validation.Field(&in.Text, validation.Required),
	)
}

type Service struct {
	store      store.Store
	moderation *moderation.Service
	policy     moderation.Policy
	logger     *slog.Logger
}

func NewService(st store.Store, mod *moderation.Service, logger *slog.Logger) *Service {
	return &Service{
		store:      st,
		moderation: mod,
		policy:     mod.Policy(),
		logger:     logging.OrDefault(logger),
	}
}

// CreateHighlightWithRootComment inserts the highlight, its rects and a root
// comment carrying the memo, all in one transaction.
func (s *Service) CreateHighlightWithRootComment(ctx context.Context, in CreateHighlightInput) (CreatedHighlight, error) {
	in.CreatedBy = strings.TrimSpace(in.CreatedBy)
	in.Memo = strings.TrimSpace(in.Memo)
	if err := in.Validate(); err != nil {
		return CreatedHighlight{}, validationError(err)
	}

	var out CreatedHighlight
	err := s.store.InTx(ctx, func(q store.Querier) error {
		if _, err := q.GetFile(ctx, in.FileID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("file not found")
			}
			return err
		}

		h, err := q.InsertHighlight(ctx, store.Highlight{
			FileID:    in.FileID,
			CreatedBy: in.CreatedBy,
			Memo:      in.Memo,
			Text:      in.Text,
		})
		if err != nil {
			return err
		}

		h.Rects = make([]store.Rect, 0, len(in.Rects))
		for _, r := range in.Rects {
			rect, err := q.InsertRect(ctx, store.Rect{
				HighlightID: h.ID,
				PageNum:     r.PageNum,
				X1:          r.X1,
				Y1:          r.Y1,
				X2:          r.X2,
				Y2:          r.Y2,
				ElementType: resolveElementType(in.ElementType, r.ElementType),
			})
			if err != nil {
				return err
			}
			h.Rects = append(h.Rects, rect)
		}

		root, err := q.InsertComment(ctx, store.Comment{
			HighlightID: h.ID,
			Author:      in.CreatedBy,
			Text:        in.Memo,
		})
		if err != nil {
			return err
		}
		if err := s.moderation.RecordSuggestion(ctx, q, root, in.SuggestionReason); err != nil {
			return err
		}

		out = CreatedHighlight{Highlight: h, RootCommentID: root.ID}
		return nil
	})
	if err != nil {
		return CreatedHighlight{}, apperr.Persistence("create highlight", err)
	}

	s.logger.Info("highlight created",
		"highlight_id", out.Highlight.ID,
		"file_id", out.Highlight.FileID,
		"rects", len(out.Highlight.Rects),
		"root_comment_id", out.RootCommentID,
	)
	return out, nil
}

// CreateComment adds a root comment or a reply. A reply must point at a
// parent under the same highlight.
func (s *Service) CreateComment(ctx context.Context, in CreateCommentInput) (store.Comment, error) {
	in.Author = strings.TrimSpace(in.Author)
	in.Text = strings.TrimSpace(in.Text)
	if err := in.Validate(); err != nil {
		return store.Comment{}, validationError(err)
	}

	var out store.Comment
	err := s.store.InTx(ctx, func(q store.Querier) error {
		if _, err := q.GetHighlight(ctx, in.HighlightID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("highlight not found")
			}
			return err
		}
		if in.ParentID != nil {
			parent, err := q.GetComment(ctx, *in.ParentID)
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("parent comment not found")
			}
			if err != nil {
				return err
			}
			if parent.HighlightID != in.HighlightID {
				return apperr.Validation("parent comment belongs to a different highlight")
			}
		}

		c, err := q.InsertComment(ctx, store.Comment{
			HighlightID: in.HighlightID,
			ParentID:    in.ParentID,
			Author:      in.Author,
			Text:        in.Text,
		})
		if err != nil {
			return err
		}
		if err := s.moderation.RecordSuggestion(ctx, q, c, in.SuggestionReason); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return store.Comment{}, apperr.Persistence("create comment", err)
	}
	return out, nil
}

// ListActiveCommentsForHighlight returns the roots in creation order followed
// by their direct replies in creation order, leaving out soft-deleted
// automated replies.
func (s *Service) ListActiveCommentsForHighlight(ctx context.Context, highlightID int64) ([]store.Comment, error) {
	roots, err := s.store.ListRootComments(ctx, highlightID)
	if err != nil {
		return nil, apperr.Persistence("list root comments", err)
	}
	if len(roots) == 0 {
		return roots, nil
	}

	rootIDs := make([]int64, len(roots))
	for i, r := range roots {
		rootIDs[i] = r.ID
	}
	children, err := s.store.ListChildComments(ctx, rootIDs)
	if err != nil {
		return nil, apperr.Persistence("list replies", err)
	}

	childIDs := make([]int64, len(children))
	for i, c := range children {
		childIDs[i] = c.ID
	}
	soft, err := s.store.SoftDeletedCommentIDs(ctx, childIDs)
	if err != nil {
		return nil, apperr.Persistence("load moderation state", err)
	}

	out := make([]store.Comment, 0, len(roots)+len(children))
	out = append(out, roots...)
	for _, c := range children {
		if s.policy.Visible(c, soft[c.ID]) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListHighlightsForFile returns the file's highlights in creation order with
// their rects attached.
func (s *Service) ListHighlightsForFile(ctx context.Context, fileID int64) ([]store.Highlight, error) {
	highlights, err := s.store.ListHighlightsByFile(ctx, fileID)
	if err != nil {
		return nil, apperr.Persistence("list highlights", err)
	}
	if len(highlights) == 0 {
		return highlights, nil
	}

	ids := make([]int64, len(highlights))
	for i, h := range highlights {
		ids[i] = h.ID
	}
	rects, err := s.store.ListRectsByHighlights(ctx, ids)
	if err != nil {
		return nil, apperr.Persistence("list rects", err)
	}
	byHighlight := make(map[int64][]store.Rect, len(highlights))
	for _, r := range rects {
		byHighlight[r.HighlightID] = append(byHighlight[r.HighlightID], r)
	}
	for i := range highlights {
		highlights[i].Rects = byHighlight[highlights[i].ID]
		if highlights[i].Rects == nil {
			highlights[i].Rects = []store.Rect{}
		}
	}
	return highlights, nil
}

// GetHighlight returns nil when the highlight does not exist.
func (s *Service) GetHighlight(ctx context.Context, id int64) (*store.Highlight, error) {
	h, err := s.store.GetHighlight(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("get highlight", err)
	}
	rects, err := s.store.ListRectsByHighlights(ctx, []int64{id})
	if err != nil {
		return nil, apperr.Persistence("list rects", err)
	}
	h.Rects = rects
	return &h, nil
}

func (s *Service) GetRect(ctx context.Context, id int64) (*store.Rect, error) {
	r, err := s.store.GetRect(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("get rect", err)
	}
	return &r, nil
}

func (s *Service) GetComment(ctx context.Context, id int64) (*store.Comment, error) {
	c, err := s.store.GetComment(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("get comment", err)
	}
	return &c, nil
}

// GetModerationMeta returns nil for comments without a moderation record,
// which includes every human comment.
func (s *Service) GetModerationMeta(ctx context.Context, commentID int64) (*store.ModerationMeta, error) {
	m, err := s.store.GetModerationMeta(ctx, commentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("get moderation meta", err)
	}
	return &m, nil
}

// UpdateHighlight changes memo and/or excerpt text. Nil fields are kept.
func (s *Service) UpdateHighlight(ctx context.Context, id int64, memo, text *string) (store.Highlight, error) {
	if memo != nil && strings.TrimSpace(*memo) == "" {
		return store.Highlight{}, apperr.ValidationWithDetails("invalid highlight", map[string]string{"memo": "cannot be blank"})
	}

	var out store.Highlight
	err := s.store.InTx(ctx, func(q store.Querier) error {
		h, err := q.GetHighlight(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("highlight not found")
		}
		if err != nil {
			return err
		}
		if memo != nil {
			h.Memo = strings.TrimSpace(*memo)
		}
		if text != nil {
			h.Text = *text
		}
		out, err = q.UpdateHighlight(ctx, h)
		return err
	})
	if err != nil {
		return store.Highlight{}, apperr.Persistence("update highlight", err)
	}
	return out, nil
}

func (s *Service) UpdateComment(ctx context.Context, id int64, text string) (store.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.Comment{}, apperr.ValidationWithDetails("invalid comment", map[string]string{"text": "cannot be blank"})
	}

	var out store.Comment
	err := s.store.InTx(ctx, func(q store.Querier) error {
		c, err := q.GetComment(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("comment not found")
		}
		if err != nil {
			return err
		}
		c.Text = text
		out, err = q.UpdateComment(ctx, c)
		return err
	})
	if err != nil {
		return store.Comment{}, apperr.Persistence("update comment", err)
	}
	return out, nil
}

func resolveElementType(override, tag string) string {
	if v := strings.ToLower(strings.TrimSpace(override)); v != "" {
		return v
	}
	if v := strings.ToLower(strings.TrimSpace(tag)); v != "" {
		return v
	}
	return ElementUnknown
}

func validationError(err error) error {
	var fields validation.Errors
	if errors.As(err, &fields) {
		details := make(map[string]string, len(fields))
		for name, fieldErr := range fields {
			details[name] = fieldErr.Error()
		}
		return apperr.ValidationWithDetails("invalid request", details)
	}
	return apperr.Validation(err.Error())
}
