package annotation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"marginalia/api/internal/apperr"
	"marginalia/api/internal/logging"
	"marginalia/api/internal/moderation"
	"marginalia/api/internal/store"
	"marginalia/api/internal/store/memstore"
)

type fixture struct {
	ctx  context.Context
	st   *memstore.Store
	mod  *moderation.Service
	svc  *Service
	doc  store.Document
	file store.DocumentFile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	mod := moderation.NewService(st, moderation.NewPolicy("LLM"), logging.Discard())
	svc := NewService(st, mod, logging.Discard())

	doc, err := svc.CreateDocument(ctx, "u1", "Thesis draft")
	require.NoError(t, err)
	file, err := svc.RegisterFile(ctx, RegisterFileInput{DocumentID: doc.ID, FileName: "thesis.pdf", FileKey: "u1/thesis.pdf", FileSize: 1024})
	require.NoError(t, err)
	return &fixture{ctx: ctx, st: st, mod: mod, svc: svc, doc: doc, file: file}
}

func (f *fixture) highlight(t *testing.T, memo string) CreatedHighlight {
	t.Helper()
	out, err := f.svc.CreateHighlightWithRootComment(f.ctx, CreateHighlightInput{
		FileID:    f.file.ID,
		CreatedBy: "user",
		Memo:      memo,
		Text:      "the excerpt",
		Rects:     []RectInput{{PageNum: 1, X1: 10, Y1: 10, X2: 100, Y2: 20}},
	})
	require.NoError(t, err)
	return out
}

func TestCreateHighlightThenListHasOneRootWithMemo(t *testing.T) {
	f := newFixture(t)
	memos := []string{"needs rewording", "日本語のメモ", "x"}
	for _, memo := range memos {
		created := f.highlight(t, memo)
		comments, err := f.svc.ListActiveCommentsForHighlight(f.ctx, created.Highlight.ID)
		require.NoError(t, err)
		require.Len(t, comments, 1)
		require.True(t, comments[0].IsRoot())
		require.Equal(t, memo, comments[0].Text)
		require.Equal(t, "user", comments[0].Author)
		require.Equal(t, created.RootCommentID, comments[0].ID)
	}
}

func TestCreateHighlightResolvesElementType(t *testing.T) {
	f := newFixture(t)

	withOverride, err := f.svc.CreateHighlightWithRootComment(f.ctx, CreateHighlightInput{
		FileID: f.file.ID, CreatedBy: "user", Memo: "m", ElementType: "image",
		Rects: []RectInput{{PageNum: 1, ElementType: "shape"}, {PageNum: 2}},
	})
	require.NoError(t, err)
	for _, r := range withOverride.Highlight.Rects {
		require.Equal(t, ElementImage, r.ElementType)
	}

	perRect, err := f.svc.CreateHighlightWithRootComment(f.ctx, CreateHighlightInput{
		FileID: f.file.ID, CreatedBy: "user", Memo: "m",
		Rects: []RectInput{{PageNum: 1, ElementType: "shape"}, {PageNum: 2}},
	})
	require.NoError(t, err)
	require.Equal(t, ElementShape, perRect.Highlight.Rects[0].ElementType)
	require.Equal(t, ElementUnknown, perRect.Highlight.Rects[1].ElementType)

	got, err := f.svc.GetRect(f.ctx, perRect.Highlight.Rects[1].ID)
	require.NoError(t, err)
	require.Equal(t, ElementUnknown, got.ElementType)
}

func TestCreateHighlightValidation(t *testing.T) {
	f := newFixture(t)
	valid := CreateHighlightInput{FileID: f.file.ID, CreatedBy: "user", Memo: "m", Rects: []RectInput{{PageNum: 1}}}

	cases := map[string]func(in *CreateHighlightInput){
		"zero file":      func(in *CreateHighlightInput) { in.FileID = 0 },
		"negative file":  func(in *CreateHighlightInput) { in.FileID = -3 },
		"empty creator":  func(in *CreateHighlightInput) { in.CreatedBy = "  " },
		"empty memo":     func(in *CreateHighlightInput) { in.Memo = "" },
		"no rects":       func(in *CreateHighlightInput) { in.Rects = nil },
		"empty rect set": func(in *CreateHighlightInput) { in.Rects = []RectInput{} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := f.svc.CreateHighlightWithRootComment(f.ctx, in)
			require.Error(t, err)
			require.True(t, apperr.IsValidation(err), "%v", err)
		})
	}
	require.Equal(t, 0, f.st.Counts()["highlights"])
}

func TestCreateHighlightLeavesNoPartialRows(t *testing.T) {
	f := newFixture(t)
	f.st.FailOn("InsertComment", errors.New("connection lost"))

	_, err := f.svc.CreateHighlightWithRootComment(f.ctx, CreateHighlightInput{
		FileID: f.file.ID, CreatedBy: "user", Memo: "m",
		Rects: []RectInput{{PageNum: 1}, {PageNum: 2}},
	})
	require.Error(t, err)
	require.True(t, apperr.IsPersistence(err))

	counts := f.st.Counts()
	require.Zero(t, counts["highlights"])
	require.Zero(t, counts["highlight_rects"])
	require.Zero(t, counts["comments"])
}

func TestCreateHighlightUnknownFile(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateHighlightWithRootComment(f.ctx, CreateHighlightInput{
		FileID: 9999, CreatedBy: "user", Memo: "m", Rects: []RectInput{{PageNum: 1}},
	})
	require.True(t, apperr.IsNotFound(err), "%v", err)
}

func TestCreateHighlightBySystemRecordsSuggestion(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.CreateHighlightWithRootComment(f.ctx, CreateHighlightInput{
		FileID: f.file.ID, CreatedBy: "LLM", Memo: "tone", SuggestionReason: "tone flag",
		Rects: []RectInput{{PageNum: 1}},
	})
	require.NoError(t, err)

	meta, err := f.svc.GetModerationMeta(f.ctx, out.RootCommentID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, "tone flag", *meta.SuggestionReason)
}

func TestReplyToParentUnderOtherHighlightIsRejected(t *testing.T) {
	f := newFixture(t)
	h1 := f.highlight(t, "first")
	h2 := f.highlight(t, "second")

	_, err := f.svc.CreateComment(f.ctx, CreateCommentInput{
		HighlightID: h2.Highlight.ID,
		ParentID:    &h1.RootCommentID,
		Author:      "user",
		Text:        "crossed wires",
	})
	require.Error(t, err)
	require.True(t, apperr.IsValidation(err), "%v", err)
}

func TestReplyToMissingParent(t *testing.T) {
	f := newFixture(t)
	h := f.highlight(t, "m")
	missing := int64(777)
	_, err := f.svc.CreateComment(f.ctx, CreateCommentInput{HighlightID: h.Highlight.ID, ParentID: &missing, Author: "user", Text: "x"})
	require.True(t, apperr.IsNotFound(err), "%v", err)
}

func TestCreateCommentRequiresAuthorAndText(t *testing.T) {
	f := newFixture(t)
	h := f.highlight(t, "m")
	_, err := f.svc.CreateComment(f.ctx, CreateCommentInput{HighlightID: h.Highlight.ID, Author: "", Text: "x"})
	require.True(t, apperr.IsValidation(err))
	_, err = f.svc.CreateComment(f.ctx, CreateCommentInput{HighlightID: h.Highlight.ID, Author: "user", Text: " "})
	require.True(t, apperr.IsValidation(err))

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	require.Contains(t, appErr.Details, "text")
}

func TestListActiveCommentsOrderingAndVisibility(t *testing.T) {
	f := newFixture(t)
	h := f.highlight(t, "needs rewording")
	hid := h.Highlight.ID

	c2, err := f.svc.CreateComment(f.ctx, CreateCommentInput{HighlightID: hid, Author: "LLM", Text: "tone", SuggestionReason: "tone flag"})
	require.NoError(t, err)
	c3, err := f.svc.CreateComment(f.ctx, CreateCommentInput{HighlightID: hid, ParentID: &c2.ID, Author: "LLM", Text: "consider passive voice"})
	require.NoError(t, err)
	c4, err := f.svc.CreateComment(f.ctx, CreateCommentInput{HighlightID: hid, ParentID: &h.RootCommentID, Author: "user", Text: "reply"})
	require.NoError(t, err)
	deep, err := f.svc.CreateComment(f.ctx, CreateCommentInput{HighlightID: hid, ParentID: &c4.ID, Author: "user", Text: "grandchild"})
	require.NoError(t, err)

	comments, err := f.svc.ListActiveCommentsForHighlight(f.ctx, hid)
	require.NoError(t, err)
	require.Equal(t, []int64{h.RootCommentID, c2.ID, c3.ID, c4.ID}, ids(comments), "roots then direct replies, grandchildren omitted")
	require.NotContains(t, ids(comments), deep.ID)

	_, err = f.mod.Delete(f.ctx, c3.ID, "resolved")
	require.NoError(t, err)

	comments, err = f.svc.ListActiveCommentsForHighlight(f.ctx, hid)
	require.NoError(t, err)
	require.Equal(t, []int64{h.RootCommentID, c2.ID, c4.ID}, ids(comments))

	stored, err := f.svc.GetComment(f.ctx, c3.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "soft-deleted rows stay in storage")

	restored, ok, err := f.mod.RestoreLatestSoftDeleted(f.ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c3.ID, restored.ID)

	comments, err = f.svc.ListActiveCommentsForHighlight(f.ctx, hid)
	require.NoError(t, err)
	require.Contains(t, ids(comments), c3.ID)

	_, ok, err = f.mod.RestoreLatestSoftDeleted(f.ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGroupThreads(t *testing.T) {
	f := newFixture(t)
	h := f.highlight(t, "m")
	hid := h.Highlight.ID
	c2, err := f.svc.CreateComment(f.ctx, CreateCommentInput{HighlightID: hid, Author: "LLM", Text: "tone"})
	require.NoError(t, err)
	c3, err := f.svc.CreateComment(f.ctx, CreateCommentInput{HighlightID: hid, ParentID: &c2.ID, Author: "LLM", Text: "x"})
	require.NoError(t, err)

	comments, err := f.svc.ListActiveCommentsForHighlight(f.ctx, hid)
	require.NoError(t, err)
	threads := GroupThreads(comments)
	require.Len(t, threads, 2)
	require.Equal(t, h.RootCommentID, threads[0].Root.ID)
	require.Empty(t, threads[0].Replies)
	require.Equal(t, c2.ID, threads[1].Root.ID)
	require.Equal(t, []int64{c3.ID}, ids(threads[1].Replies))
}

func TestPointLookupsReturnNilWhenAbsent(t *testing.T) {
	f := newFixture(t)
	h, err := f.svc.GetHighlight(f.ctx, 404)
	require.NoError(t, err)
	require.Nil(t, h)
	r, err := f.svc.GetRect(f.ctx, 404)
	require.NoError(t, err)
	require.Nil(t, r)
	c, err := f.svc.GetComment(f.ctx, 404)
	require.NoError(t, err)
	require.Nil(t, c)
	m, err := f.svc.GetModerationMeta(f.ctx, 404)
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestUpdateHighlightAndComment(t *testing.T) {
	f := newFixture(t)
	h := f.highlight(t, "old memo")

	memo := "new memo"
	updated, err := f.svc.UpdateHighlight(f.ctx, h.Highlight.ID, &memo, nil)
	require.NoError(t, err)
	require.Equal(t, "new memo", updated.Memo)
	require.Equal(t, "the excerpt", updated.Text)
	require.True(t, updated.UpdatedAt.After(h.Highlight.UpdatedAt))

	blank := "  "
	_, err = f.svc.UpdateHighlight(f.ctx, h.Highlight.ID, &blank, nil)
	require.True(t, apperr.IsValidation(err))

	_, err = f.svc.UpdateHighlight(f.ctx, 999, &memo, nil)
	require.True(t, apperr.IsNotFound(err))

	c, err := f.svc.UpdateComment(f.ctx, h.RootCommentID, "edited")
	require.NoError(t, err)
	require.Equal(t, "edited", c.Text)

	_, err = f.svc.UpdateComment(f.ctx, 999, "edited")
	require.True(t, apperr.IsNotFound(err))
}

func TestListHighlightsForFileAttachesRects(t *testing.T) {
	f := newFixture(t)
	first := f.highlight(t, "first")
	second := f.highlight(t, "second")

	items, err := f.svc.ListHighlightsForFile(f.ctx, f.file.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, first.Highlight.ID, items[0].ID)
	require.Equal(t, second.Highlight.ID, items[1].ID)
	require.Len(t, items[0].Rects, 1)

	empty, err := f.svc.ListHighlightsForFile(f.ctx, 12345)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestDocumentsAndFiles(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateDocument(f.ctx, "u1", " ")
	require.True(t, apperr.IsValidation(err))

	_, err = f.svc.RegisterFile(f.ctx, RegisterFileInput{DocumentID: 999, FileName: "a.pdf", FileKey: "k"})
	require.True(t, apperr.IsNotFound(err))

	_, err = f.svc.RegisterFile(f.ctx, RegisterFileInput{DocumentID: f.doc.ID, FileName: "", FileKey: "k"})
	require.True(t, apperr.IsValidation(err))

	second, err := f.svc.RegisterFile(f.ctx, RegisterFileInput{DocumentID: f.doc.ID, FileName: "v2.pdf", FileKey: "u1/v2.pdf"})
	require.NoError(t, err)
	require.Equal(t, "application/pdf", second.MimeType)

	files, err := f.svc.ListFiles(f.ctx, f.doc.ID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, second.ID, files[0].ID, "newest first")
}

func TestAuthorizer(t *testing.T) {
	f := newFixture(t)
	h := f.highlight(t, "m")
	auth := NewAuthorizer(f.st)

	require.NoError(t, auth.Document(f.ctx, "u1", f.doc.ID))
	require.NoError(t, auth.File(f.ctx, "u1", f.file.ID))
	require.NoError(t, auth.Highlight(f.ctx, "u1", h.Highlight.ID))
	require.NoError(t, auth.Comment(f.ctx, "u1", h.RootCommentID))

	require.True(t, apperr.IsForbidden(auth.Comment(f.ctx, "intruder", h.RootCommentID)))
	require.True(t, apperr.IsNotFound(auth.File(f.ctx, "u1", 4040)))
}

func ids(comments []store.Comment) []int64 {
	out := make([]int64, len(comments))
	for i, c := range comments {
		out[i] = c.ID
	}
	return out
}
