package annotation

import (
	"context"
	"errors"

	"marginalia/api/internal/apperr"
	"marginalia/api/internal/store"
)

// Authorizer answers whether an acting user may operate on a resource: a
// user may touch anything inside a document they own.
type Authorizer struct {
	store store.Querier
}

func NewAuthorizer(q store.Querier) *Authorizer {
	return &Authorizer{store: q}
}

func (a *Authorizer) Document(ctx context.Context, userID string, documentID int64) error {
	doc, err := a.store.GetDocument(ctx, documentID)
	if err != nil {
		return lookupError("document", err)
	}
	if doc.UserID != userID {
		return apperr.Forbidden("document belongs to another user")
	}
	return nil
}

func (a *Authorizer) File(ctx context.Context, userID string, fileID int64) error {
	file, err := a.store.GetFile(ctx, fileID)
	if err != nil {
		return lookupError("file", err)
	}
	return a.Document(ctx, userID, file.DocumentID)
}

func (a *Authorizer) Highlight(ctx context.Context, userID string, highlightID int64) error {
	h, err := a.store.GetHighlight(ctx, highlightID)
	if err != nil {
		return lookupError("highlight", err)
	}
	return a.File(ctx, userID, h.FileID)
}

func (a *Authorizer) Comment(ctx context.Context, userID string, commentID int64) error {
	c, err := a.store.GetComment(ctx, commentID)
	if err != nil {
		return lookupError("comment", err)
	}
	return a.Highlight(ctx, userID, c.HighlightID)
}

func lookupError(resource string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(resource + " not found")
	}
	return apperr.Persistence("resolve "+resource+" owner", err)
}
