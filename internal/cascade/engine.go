// Package cascade deletes a document's annotation graph in foreign-key safe
// order without relying on cascading constraints in the database.
package cascade

import (
	"context"
	"errors"
	"log/slog"

	"marginalia/api/internal/apperr"
	"marginalia/api/internal/logging"
	"marginalia/api/internal/store"
)

const DefaultMaxIterations = 100

// BlobRemover is the delete half of the blob collaborator.
type BlobRemover interface {
	DeleteMany(ctx context.Context, keys []string) (int, map[string]error)
}

// Report lists what a cascade removed so callers can drop derived state
// such as search entries and cached bytes.
type Report struct {
	DocumentID   int64
	FileIDs      []int64
	HighlightIDs []int64
	CommentIDs   []int64
	BlobKeys     []string
	BlobsDeleted int
	BlobFailures map[string]error
	Iterations   int
	Forced       bool
}

type Engine struct {
	store         store.Store
	blobs         BlobRemover
	maxIterations int
	logger        *slog.Logger
}

// NewEngine builds an engine. blobs may be nil, in which case stored objects
// are left for manual cleanup.
func NewEngine(st store.Store, blobs BlobRemover, maxIterations int, logger *slog.Logger) *Engine {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Engine{store: st, blobs: blobs, maxIterations: maxIterations, logger: logging.OrDefault(logger)}
}

// DeleteDocument removes every file of the document with their highlights,
// rects, comments and moderation records, then the document itself, in one
// transaction. Blob objects are deleted after commit on a best-effort basis.
func (e *Engine) DeleteDocument(ctx context.Context, documentID int64) (Report, error) {
	report := Report{DocumentID: documentID}
	err := e.store.InTx(ctx, func(q store.Querier) error {
		if _, err := q.GetDocument(ctx, documentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("document not found")
			}
			return err
		}

		files, err := q.ListFilesByDocument(ctx, documentID)
		if err != nil {
			return err
		}
		report.FileIDs = make([]int64, 0, len(files))
		report.BlobKeys = make([]string, 0, len(files))
		for _, f := range files {
			report.FileIDs = append(report.FileIDs, f.ID)
			if f.FileKey != "" {
				report.BlobKeys = append(report.BlobKeys, f.FileKey)
			}
		}

		highlightIDs, err := q.ListHighlightIDsByFiles(ctx, report.FileIDs)
		if err != nil {
			return err
		}
		if err := e.purgeHighlights(ctx, q, highlightIDs, &report); err != nil {
			return err
		}

		if _, err := q.DeleteFiles(ctx, report.FileIDs); err != nil {
			return err
		}
		if _, err := q.DeleteDocument(ctx, documentID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		e.logger.Error("document cascade failed, rolled back", "document_id", documentID, "error", err)
		return Report{}, apperr.Persistence("delete document", err)
	}

	e.removeBlobs(ctx, &report)
	e.logger.Info("document deleted",
		"document_id", documentID,
		"files", len(report.FileIDs),
		"highlights", len(report.HighlightIDs),
		"comments", len(report.CommentIDs),
		"iterations", report.Iterations,
		"forced", report.Forced,
	)
	return report, nil
}

// DeleteHighlight runs the same leaf-first removal scoped to one highlight.
func (e *Engine) DeleteHighlight(ctx context.Context, highlightID int64) (Report, error) {
	var report Report
	err := e.store.InTx(ctx, func(q store.Querier) error {
		h, err := q.GetHighlight(ctx, highlightID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.NotFound("highlight not found")
			}
			return err
		}
		// The file survives; it is listed so callers can invalidate caches.
		report.FileIDs = []int64{h.FileID}
		return e.purgeHighlights(ctx, q, []int64{highlightID}, &report)
	})
	if err != nil {
		return Report{}, apperr.Persistence("delete highlight", err)
	}
	e.logger.Info("highlight deleted",
		"highlight_id", highlightID,
		"comments", len(report.CommentIDs),
		"iterations", report.Iterations,
	)
	return report, nil
}

func (e *Engine) purgeHighlights(ctx context.Context, q store.Querier, highlightIDs []int64, report *Report) error {
	report.HighlightIDs = highlightIDs
	report.CommentIDs = []int64{}
	if len(highlightIDs) == 0 {
		return nil
	}

	edges, err := q.ListCommentEdgesByHighlights(ctx, highlightIDs)
	if err != nil {
		return err
	}

	plan := PlanLeafOrder(edges, e.maxIterations)
	if plan.Cyclic {
		e.logger.Error("comment graph has no leaf, force deleting remaining candidates",
			"highlight_ids", highlightIDs,
			"remaining", len(plan.Batches[len(plan.Batches)-1]),
			"integrity", "cyclic_or_dangling_parent",
		)
	}
	if plan.Capped {
		e.logger.Error("comment cascade hit iteration cap, force deleting remainder",
			"highlight_ids", highlightIDs,
			"max_iterations", e.maxIterations,
			"remaining", len(plan.Batches[len(plan.Batches)-1]),
			"integrity", "iteration_cap",
		)
	}

	for i, batch := range plan.Batches {
		e.logger.Debug("cascade iteration", "iteration", i+1, "leaves", len(batch))
		if _, err := q.DeleteModerationMeta(ctx, batch); err != nil {
			return err
		}
		if _, err := q.DeleteComments(ctx, batch); err != nil {
			return err
		}
		report.CommentIDs = append(report.CommentIDs, batch...)
	}
	report.Iterations = len(plan.Batches)
	report.Forced = plan.Forced()

	if _, err := q.DeleteRectsByHighlights(ctx, highlightIDs); err != nil {
		return err
	}
	if _, err := q.DeleteHighlights(ctx, highlightIDs); err != nil {
		return err
	}
	return nil
}

func (e *Engine) removeBlobs(ctx context.Context, report *Report) {
	if len(report.BlobKeys) == 0 {
		return
	}
	if e.blobs == nil {
		e.logger.Warn("no blob store configured, objects left behind", "keys", report.BlobKeys)
		return
	}
	deleted, failures := e.blobs.DeleteMany(ctx, report.BlobKeys)
	report.BlobsDeleted = deleted
	if len(failures) == 0 {
		return
	}
	report.BlobFailures = failures
	for key, err := range failures {
		e.logger.Error("blob cleanup failed, manual follow-up needed",
			"document_id", report.DocumentID,
			"key", key,
			"error", err,
		)
	}
}
