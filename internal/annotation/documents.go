package annotation

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"marginalia/api/internal/apperr"
	"marginalia/api/internal/store"
)

const defaultMimeType = "application/pdf"

type RegisterFileInput struct {
	DocumentID int64  `json:"documentId"`
	FileName   string `json:"fileName"`
	FileKey    string `json:"fileKey"`
	MimeType   string `json:"mimeType"`
	FileSize   int64  `json:"fileSize"`
}

func (in RegisterFileInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.DocumentID, validation.Required, validation.Min(int64(1))),
		validation.Field(&in.FileName, validation.Required, validation.Length(1, 255)),
		validation.Field(&in.FileKey, validation.Required, validation.Length(1, 1024)),
		validation.Field(&in.FileSize, validation.Min(int64(0))),
	)
}

func (s *Service) CreateDocument(ctx context.Context, userID, name string) (store.Document, error) {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	err := validation.Errors{
		"userId": validation.Validate(userID, validation.Required),
		"name":   validation.Validate(name, validation.Required, validation.Length(1, 255)),
	}.Filter()
	if err != nil {
		return store.Document{}, validationError(err)
	}

	doc, err := s.store.InsertDocument(ctx, store.Document{UserID: userID, Name: name})
	if err != nil {
		return store.Document{}, apperr.Persistence("create document", err)
	}
	return doc, nil
}

func (s *Service) GetDocument(ctx context.Context, id int64) (*store.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("get document", err)
	}
	return &doc, nil
}

// RegisterFile records an already uploaded blob under a document.
func (s *Service) RegisterFile(ctx context.Context, in RegisterFileInput) (store.DocumentFile, error) {
	in.FileName = strings.TrimSpace(in.FileName)
	in.FileKey = strings.TrimSpace(in.FileKey)
	if err := in.Validate(); err != nil {
		return store.DocumentFile{}, validationError(err)
	}
	if strings.TrimSpace(in.MimeType) == "" {
		in.MimeType = defaultMimeType
	}

	var out store.DocumentFile
	err := s.store.InTx(ctx, func(q store.Querier) error {
		if _, err := q.GetDocument(ctx, in.DocumentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("document not found")
			}
			return err
		}
		var err error
		out, err = q.InsertFile(ctx, store.DocumentFile{
			DocumentID: in.DocumentID,
			FileName:   in.FileName,
			FileKey:    in.FileKey,
			MimeType:   in.MimeType,
			FileSize:   in.FileSize,
		})
		return err
	})
	if err != nil {
		return store.DocumentFile{}, apperr.Persistence("register file", err)
	}
	return out, nil
}

func (s *Service) GetFile(ctx context.Context, id int64) (*store.DocumentFile, error) {
	file, err := s.store.GetFile(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("get file", err)
	}
	return &file, nil
}

// ListFiles returns the document's files, newest first.
func (s *Service) ListFiles(ctx context.Context, documentID int64) ([]store.DocumentFile, error) {
	files, err := s.store.ListFilesByDocument(ctx, documentID)
	if err != nil {
		return nil, apperr.Persistence("list files", err)
	}
	return files, nil
}
