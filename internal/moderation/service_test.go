package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"marginalia/api/internal/apperr"
	"marginalia/api/internal/logging"
	"marginalia/api/internal/store"
	"marginalia/api/internal/store/memstore"
)

type fixture struct {
	ctx   context.Context
	store *memstore.Store
	svc   *Service
	hl    store.Highlight
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	doc, err := st.InsertDocument(ctx, store.Document{UserID: "u1", Name: "essay"})
	require.NoError(t, err)
	file, err := st.InsertFile(ctx, store.DocumentFile{DocumentID: doc.ID, FileName: "essay.pdf", FileKey: "u1/essay.pdf"})
	require.NoError(t, err)
	hl, err := st.InsertHighlight(ctx, store.Highlight{FileID: file.ID, CreatedBy: "user", Memo: "needs rewording"})
	require.NoError(t, err)
	return &fixture{
		ctx:   ctx,
		store: st,
		svc:   NewService(st, NewPolicy("LLM"), logging.Discard()),
		hl:    hl,
	}
}

func (f *fixture) comment(t *testing.T, parent *int64, author, text string) store.Comment {
	t.Helper()
	c, err := f.store.InsertComment(f.ctx, store.Comment{HighlightID: f.hl.ID, ParentID: parent, Author: author, Text: text})
	require.NoError(t, err)
	return c
}

func (f *fixture) exists(t *testing.T, id int64) bool {
	t.Helper()
	_, err := f.store.GetComment(f.ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func TestPolicyKind(t *testing.T) {
	p := NewPolicy("LLM")
	cases := map[string]Kind{
		"LLM":    Automated,
		"llm":    Automated,
		"  Llm ": Automated,
		"user":   Human,
		"LLM-2":  Human,
		"":       Human,
	}
	for author, want := range cases {
		require.Equal(t, want, p.Kind(author), "author %q", author)
	}
	require.Equal(t, "LLM", NewPolicy("   ").Tag())
	require.Equal(t, Automated, NewPolicy("bot").Kind("BOT"))
}

func TestPolicyVisibility(t *testing.T) {
	p := NewPolicy("LLM")
	parent := int64(1)
	reply := store.Comment{ID: 2, ParentID: &parent, Author: "LLM"}
	root := store.Comment{ID: 1, Author: "LLM"}
	human := store.Comment{ID: 3, ParentID: &parent, Author: "user"}

	require.False(t, p.Visible(reply, true))
	require.True(t, p.Visible(reply, false))
	require.True(t, p.Visible(root, true), "roots are never soft deleted")
	require.True(t, p.Visible(human, true), "human comments are never soft deleted")
	require.Equal(t, StateSoftDeleted, p.State(reply, true))
}

func TestDeleteHumanCommentRemovesExactlyThatRow(t *testing.T) {
	f := newFixture(t)
	root := f.comment(t, nil, "user", "root")
	reply := f.comment(t, &root.ID, "user", "reply")
	other := f.comment(t, &root.ID, "user", "other")

	res, err := f.svc.Delete(f.ctx, reply.ID, "")
	require.NoError(t, err)
	require.Equal(t, OutcomeHardDeleted, res.Outcome)
	require.Equal(t, Human, res.Kind)
	require.Equal(t, []int64{reply.ID}, res.RemovedIDs)

	require.False(t, f.exists(t, reply.ID))
	require.True(t, f.exists(t, root.ID))
	require.True(t, f.exists(t, other.ID))
}

func TestDeleteHumanRootKeepsRepliesAsRoots(t *testing.T) {
	f := newFixture(t)
	root := f.comment(t, nil, "user", "needs rewording")
	reply := f.comment(t, &root.ID, "user", "agreed")
	suggestion := f.comment(t, &root.ID, "LLM", "consider passive voice")

	res, err := f.svc.Delete(f.ctx, root.ID, "")
	require.NoError(t, err)
	require.Equal(t, OutcomeHardDeleted, res.Outcome)
	require.Equal(t, []int64{root.ID}, res.RemovedIDs)

	require.False(t, f.exists(t, root.ID))
	for _, id := range []int64{reply.ID, suggestion.ID} {
		c, err := f.store.GetComment(f.ctx, id)
		require.NoError(t, err)
		require.True(t, c.IsRoot(), "comment %d should be promoted to a root", id)
	}
	require.Equal(t, 2, f.store.Counts()["comments"])
}

func TestDeleteAutomatedRootRemovesDirectReplies(t *testing.T) {
	f := newFixture(t)
	human := f.comment(t, nil, "user", "needs rewording")
	c2 := f.comment(t, nil, "LLM", "tone")
	c3 := f.comment(t, &c2.ID, "LLM", "consider passive voice")
	c4 := f.comment(t, &c2.ID, "user", "agreed")
	nested := f.comment(t, &c4.ID, "user", "me too")

	reason := "resolved"
	_, err := f.store.InsertModerationMeta(f.ctx, store.ModerationMeta{CommentID: c3.ID, DeletionReason: &reason})
	require.NoError(t, err)

	res, err := f.svc.Delete(f.ctx, c2.ID, "")
	require.NoError(t, err)
	require.Equal(t, OutcomeThreadDeleted, res.Outcome)
	require.ElementsMatch(t, []int64{c2.ID, c3.ID, c4.ID}, res.RemovedIDs)

	require.False(t, f.exists(t, c2.ID))
	require.False(t, f.exists(t, c3.ID))
	require.False(t, f.exists(t, c4.ID))
	require.True(t, f.exists(t, human.ID))
	require.Equal(t, 0, f.store.Counts()["comment_moderation_meta"])

	kept, err := f.store.GetComment(f.ctx, nested.ID)
	require.NoError(t, err)
	require.True(t, kept.IsRoot())
}

func TestDeleteAutomatedReplySoftDeletes(t *testing.T) {
	f := newFixture(t)
	root := f.comment(t, nil, "LLM", "tone")
	reply := f.comment(t, &root.ID, "llm", "consider passive voice")

	res, err := f.svc.Delete(f.ctx, reply.ID, "  resolved ")
	require.NoError(t, err)
	require.Equal(t, OutcomeSoftDeleted, res.Outcome)
	require.Empty(t, res.RemovedIDs)
	require.True(t, f.exists(t, reply.ID), "row stays in storage")

	meta, err := f.store.GetModerationMeta(f.ctx, reply.ID)
	require.NoError(t, err)
	require.NotNil(t, meta.DeletionReason)
	require.Equal(t, "resolved", *meta.DeletionReason)
}

func TestDeleteAutomatedReplyKeepsSuggestionReason(t *testing.T) {
	f := newFixture(t)
	root := f.comment(t, nil, "LLM", "tone")
	reply := f.comment(t, &root.ID, "LLM", "x")
	suggestion := "style"
	_, err := f.store.InsertModerationMeta(f.ctx, store.ModerationMeta{CommentID: reply.ID, SuggestionReason: &suggestion})
	require.NoError(t, err)

	_, err = f.svc.Delete(f.ctx, reply.ID, "resolved")
	require.NoError(t, err)

	meta, err := f.store.GetModerationMeta(f.ctx, reply.ID)
	require.NoError(t, err)
	require.Equal(t, "style", *meta.SuggestionReason)
	require.Equal(t, "resolved", *meta.DeletionReason)
}

func TestDeleteAutomatedReplyRequiresReason(t *testing.T) {
	f := newFixture(t)
	root := f.comment(t, nil, "LLM", "tone")
	reply := f.comment(t, &root.ID, "LLM", "x")

	for _, reason := range []string{"", "   ", "\t\n"} {
		_, err := f.svc.Delete(f.ctx, reply.ID, reason)
		require.Error(t, err)
		require.True(t, apperr.IsValidation(err), "reason %q: %v", reason, err)
	}
	require.Equal(t, 0, f.store.Counts()["comment_moderation_meta"])
}

func TestDeleteMissingCommentIsNotFoundOutcome(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Delete(f.ctx, 4242, "")
	require.NoError(t, err)
	require.Equal(t, OutcomeNotFound, res.Outcome)
}

func TestRestoreLatestSoftDeleted(t *testing.T) {
	f := newFixture(t)
	root := f.comment(t, nil, "LLM", "tone")
	a := f.comment(t, &root.ID, "LLM", "a")
	b := f.comment(t, &root.ID, "LLM", "b")

	has, err := f.svc.HasSoftDeletedAutomatedComment(f.ctx)
	require.NoError(t, err)
	require.False(t, has)

	_, err = f.svc.Delete(f.ctx, a.ID, "first")
	require.NoError(t, err)
	_, err = f.svc.Delete(f.ctx, b.ID, "second")
	require.NoError(t, err)

	has, err = f.svc.HasSoftDeletedAutomatedComment(f.ctx)
	require.NoError(t, err)
	require.True(t, has)

	restored, ok, err := f.svc.RestoreLatestSoftDeleted(f.ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b.ID, restored.ID)

	restored, ok, err = f.svc.RestoreLatestSoftDeleted(f.ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, a.ID, restored.ID)

	_, ok, err = f.svc.RestoreLatestSoftDeleted(f.ctx)
	require.NoError(t, err)
	require.False(t, ok, "nothing left to restore")

	has, err = f.svc.HasSoftDeletedAutomatedComment(f.ctx)
	require.NoError(t, err)
	require.False(t, has)
}

func TestRecordSuggestion(t *testing.T) {
	f := newFixture(t)
	auto := f.comment(t, nil, "LLM", "tone")
	human := f.comment(t, nil, "user", "hi")

	err := f.store.InTx(f.ctx, func(q store.Querier) error {
		if err := f.svc.RecordSuggestion(f.ctx, q, auto, "tone flag"); err != nil {
			return err
		}
		if err := f.svc.RecordSuggestion(f.ctx, q, human, "ignored"); err != nil {
			return err
		}
		return f.svc.RecordSuggestion(f.ctx, q, auto, "  ")
	})
	require.NoError(t, err)

	meta, err := f.store.GetModerationMeta(f.ctx, auto.ID)
	require.NoError(t, err)
	require.Equal(t, "tone flag", *meta.SuggestionReason)
	require.Nil(t, meta.DeletionReason)

	_, err = f.store.GetModerationMeta(f.ctx, human.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteSurfacesPersistenceErrors(t *testing.T) {
	f := newFixture(t)
	c := f.comment(t, nil, "user", "x")
	f.store.FailOn("DeleteComments", errors.New("disk full"))

	_, err := f.svc.Delete(f.ctx, c.ID, "")
	require.Error(t, err)
	require.True(t, apperr.IsPersistence(err))
	require.True(t, f.exists(t, c.ID))
}
