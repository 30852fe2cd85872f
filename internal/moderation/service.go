// Package moderation implements the create, delete and restore transitions
// for comments, including the rules specific to automated authors.
package moderation

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"marginalia/api/internal/apperr"
	"marginalia/api/internal/logging"
	"marginalia/api/internal/store"
)

type Outcome string

const (
	OutcomeNotFound      Outcome = "not_found"
	OutcomeHardDeleted   Outcome = "hard_deleted"
	OutcomeThreadDeleted Outcome = "thread_deleted"
	OutcomeSoftDeleted   Outcome = "soft_deleted"
)

// DeleteResult describes what a delete transition did. RemovedIDs lists every
// comment row that no longer exists, the target first.
type DeleteResult struct {
	Outcome     Outcome
	CommentID   int64
	HighlightID int64
	Kind        Kind
	RemovedIDs  []int64
}

type Service struct {
	store  store.Store
	policy Policy
	logger *slog.Logger
}

func NewService(st store.Store, policy Policy, logger *slog.Logger) *Service {
	return &Service{store: st, policy: policy, logger: logging.OrDefault(logger)}
}

func (s *Service) Policy() Policy {
	return s.policy
}

// Delete applies the delete transition for the comment's kind and position.
// A human comment is removed alone and its replies become roots. An
// automated root is removed with its direct replies, and anything nested
// below those is promoted to a root. Automated replies are soft deleted and
// need a reason. A missing comment yields OutcomeNotFound without an error.
func (s *Service) Delete(ctx context.Context, commentID int64, reason string) (DeleteResult, error) {
	var result DeleteResult
	err := s.store.InTx(ctx, func(q store.Querier) error {
		comment, err := q.GetComment(ctx, commentID)
		if errors.Is(err, store.ErrNotFound) {
			result = DeleteResult{Outcome: OutcomeNotFound, CommentID: commentID}
			return nil
		}
		if err != nil {
			return err
		}

		kind := s.policy.Kind(comment.Author)
		result = DeleteResult{CommentID: comment.ID, HighlightID: comment.HighlightID, Kind: kind}

		if kind == Automated && !comment.IsRoot() {
			reason = strings.TrimSpace(reason)
			if reason == "" {
				return apperr.Validation("a deletion reason is required for automated replies")
			}
			if err := setDeletionReason(ctx, q, comment.ID, &reason); err != nil {
				return err
			}
			result.Outcome = OutcomeSoftDeleted
			return nil
		}

		if kind == Automated {
			removed, err := deleteWithReplies(ctx, q, comment.ID)
			if err != nil {
				return err
			}
			result.RemovedIDs = removed
			result.Outcome = OutcomeThreadDeleted
			return nil
		}
		if err := deleteComments(ctx, q, []int64{comment.ID}); err != nil {
			return err
		}
		result.RemovedIDs = []int64{comment.ID}
		result.Outcome = OutcomeHardDeleted
		return nil
	})
	if err != nil {
		return DeleteResult{}, apperr.Persistence("delete comment", err)
	}

	if result.Outcome == OutcomeNotFound {
		s.logger.Info("comment delete skipped, not found", "comment_id", commentID)
	} else {
		s.logger.Info("comment moderation transition",
			"comment_id", result.CommentID,
			"kind", result.Kind.String(),
			"transition", string(result.Outcome),
			"removed", len(result.RemovedIDs),
		)
	}
	return result, nil
}

// RestoreLatestSoftDeleted clears the deletion reason on the most recently
// modified soft-deleted automated reply. The boolean is false when there is
// nothing to restore.
func (s *Service) RestoreLatestSoftDeleted(ctx context.Context) (store.Comment, bool, error) {
	var (
		restored store.Comment
		found    bool
	)
	err := s.store.InTx(ctx, func(q store.Querier) error {
		meta, err := q.LatestSoftDeletedMeta(ctx, s.policy.Tag())
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		meta.DeletionReason = nil
		if _, err := q.UpdateModerationMeta(ctx, meta); err != nil {
			return err
		}
		restored, err = q.GetComment(ctx, meta.CommentID)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return store.Comment{}, false, apperr.Persistence("restore soft-deleted comment", err)
	}
	if found {
		s.logger.Info("comment moderation transition",
			"comment_id", restored.ID,
			"kind", Automated.String(),
			"transition", "restored",
		)
	}
	return restored, found, nil
}

func (s *Service) HasSoftDeletedAutomatedComment(ctx context.Context) (bool, error) {
	ok, err := s.store.HasSoftDeleted(ctx, s.policy.Tag())
	if err != nil {
		return false, apperr.Persistence("check soft-deleted comments", err)
	}
	return ok, nil
}

// RecordSuggestion stores why the system proposed comment c. It runs on the
// caller's transaction and does nothing for human authors or a blank reason.
func (s *Service) RecordSuggestion(ctx context.Context, q store.Querier, c store.Comment, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" || s.policy.Kind(c.Author) != Automated {
		return nil
	}
	meta, err := q.GetModerationMeta(ctx, c.ID)
	if errors.Is(err, store.ErrNotFound) {
		_, err = q.InsertModerationMeta(ctx, store.ModerationMeta{CommentID: c.ID, SuggestionReason: &reason})
		return err
	}
	if err != nil {
		return err
	}
	meta.SuggestionReason = &reason
	_, err = q.UpdateModerationMeta(ctx, meta)
	return err
}

// setDeletionReason creates the moderation record on first use.
func setDeletionReason(ctx context.Context, q store.Querier, commentID int64, reason *string) error {
	meta, err := q.GetModerationMeta(ctx, commentID)
	if errors.Is(err, store.ErrNotFound) {
		_, err = q.InsertModerationMeta(ctx, store.ModerationMeta{CommentID: commentID, DeletionReason: reason})
		return err
	}
	if err != nil {
		return err
	}
	meta.DeletionReason = reason
	_, err = q.UpdateModerationMeta(ctx, meta)
	return err
}

// deleteWithReplies removes rootID and its direct replies.
func deleteWithReplies(ctx context.Context, q store.Querier, rootID int64) ([]int64, error) {
	children, err := q.ListChildComments(ctx, []int64{rootID})
	if err != nil {
		return nil, err
	}
	childIDs := make([]int64, 0, len(children))
	for _, c := range children {
		if c.ID != rootID {
			childIDs = append(childIDs, c.ID)
		}
	}
	if err := deleteComments(ctx, q, childIDs); err != nil {
		return nil, err
	}
	if err := deleteComments(ctx, q, []int64{rootID}); err != nil {
		return nil, err
	}
	return append([]int64{rootID}, childIDs...), nil
}

// deleteComments detaches the replies of ids, then removes the moderation
// records and the rows themselves.
func deleteComments(ctx context.Context, q store.Querier, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := q.DetachChildComments(ctx, ids); err != nil {
		return err
	}
	if _, err := q.DeleteModerationMeta(ctx, ids); err != nil {
		return err
	}
	_, err := q.DeleteComments(ctx, ids)
	return err
}
