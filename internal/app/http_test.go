package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"

	"marginalia/api/internal/annotation"
	"marginalia/api/internal/auth"
	"marginalia/api/internal/blob"
	"marginalia/api/internal/cascade"
	"marginalia/api/internal/export"
	"marginalia/api/internal/logging"
	"marginalia/api/internal/moderation"
	"marginalia/api/internal/store/memstore"
)

var testSecret = []byte("test-secret")

type memBlobs struct {
	objects map[string][]byte
}

func (m *memBlobs) Fetch(_ context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return data, nil
}

func (m *memBlobs) DeleteMany(_ context.Context, keys []string) (int, map[string]error) {
	deleted := 0
	for _, k := range keys {
		if _, ok := m.objects[k]; ok {
			delete(m.objects, k)
			deleted++
		}
	}
	return deleted, nil
}

type harness struct {
	st      *memstore.Store
	blobs   *memBlobs
	svc     *Service
	handler http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := memstore.New()
	mod := moderation.NewService(st, moderation.NewPolicy("LLM"), logging.Discard())
	ann := annotation.NewService(st, mod, logging.Discard())
	blobs := &memBlobs{objects: map[string][]byte{}}

	svc := NewService(Deps{
		Store:       st,
		Annotations: ann,
		Moderation:  mod,
		Cascade:     cascade.NewEngine(st, blobs, 100, logging.Discard()),
		Exports:     export.NewService(ann, blobs, export.Options{}, logging.Discard()),
		AuthSecret:  testSecret,
		Logger:      logging.Discard(),
	})
	return &harness{
		st:      st,
		blobs:   blobs,
		svc:     svc,
		handler: NewHTTPServer(svc, nil, logging.Discard()).Handler(),
	}
}

func (h *harness) do(t *testing.T, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		token, err := auth.IssueToken(testSecret, user, "", time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse response: %v body=%s", err, rr.Body.String())
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d body=%s", want, rr.Code, rr.Body.String())
	}
}

func idOf(t *testing.T, payload map[string]any, key string) int64 {
	t.Helper()
	obj, ok := payload[key].(map[string]any)
	if !ok {
		t.Fatalf("missing %s in %v", key, payload)
	}
	return int64(obj["id"].(float64))
}

func samplePDF(t *testing.T) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetFont("Helvetica", "", 12)
	doc.AddPage()
	doc.Text(20, 30, "original")
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		t.Fatalf("sample pdf: %v", err)
	}
	return buf.Bytes()
}

// seed creates a document, a file and a highlight owned by user.
func (h *harness) seed(t *testing.T, user string) (documentID, fileID, highlightID, rootID int64) {
	t.Helper()
	rr := h.do(t, http.MethodPost, "/api/documents", user, `{"name":"Thesis"}`)
	expectStatus(t, rr, http.StatusCreated)
	documentID = idOf(t, decode(t, rr), "document")

	key := fmt.Sprintf("%s/thesis-%d.pdf", user, documentID)
	h.blobs.objects[key] = samplePDF(t)
	rr = h.do(t, http.MethodPost, fmt.Sprintf("/api/documents/%d/files", documentID), user,
		fmt.Sprintf(`{"fileName":"thesis.pdf","fileKey":%q,"fileSize":10}`, key))
	expectStatus(t, rr, http.StatusCreated)
	fileID = idOf(t, decode(t, rr), "file")

	rr = h.do(t, http.MethodPost, fmt.Sprintf("/api/files/%d/highlights", fileID), user,
		`{"createdBy":"user","memo":"needs rewording","text":"the results was","rects":[{"pageNum":1,"x1":1,"y1":2,"x2":3,"y2":4}]}`)
	expectStatus(t, rr, http.StatusCreated)
	payload := decode(t, rr)
	highlightID = idOf(t, payload, "highlight")
	rootID = int64(payload["rootCommentId"].(float64))
	return documentID, fileID, highlightID, rootID
}

func TestRequiresBearerToken(t *testing.T) {
	h := newHarness(t)
	expectStatus(t, h.do(t, http.MethodGet, "/api/documents/1/files", "", ""), http.StatusUnauthorized)

	req := httptest.NewRequest(http.MethodGet, "/api/documents/1/files", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rr := httptest.NewRecorder()
	h.handler.ServeHTTP(rr, req)
	expectStatus(t, rr, http.StatusUnauthorized)
}

func TestModerationFlowOverHTTP(t *testing.T) {
	h := newHarness(t)
	documentID, fileID, highlightID, _ := h.seed(t, "u1")

	rr := h.do(t, http.MethodPost, fmt.Sprintf("/api/highlights/%d/comments", highlightID), "u1",
		`{"author":"LLM","text":"tone is informal","suggestionReason":"tone flag"}`)
	expectStatus(t, rr, http.StatusCreated)
	c2 := decode(t, rr)["comment"].(map[string]any)
	if c2["kind"] != "automated" {
		t.Fatalf("expected automated kind, got %v", c2["kind"])
	}
	c2ID := int64(c2["id"].(float64))

	rr = h.do(t, http.MethodPost, fmt.Sprintf("/api/highlights/%d/comments", highlightID), "u1",
		fmt.Sprintf(`{"parentId":%d,"author":" llm ","text":"consider passive voice"}`, c2ID))
	expectStatus(t, rr, http.StatusCreated)
	c3ID := idOf(t, decode(t, rr), "comment")

	rr = h.do(t, http.MethodGet, fmt.Sprintf("/api/highlights/%d/comments", highlightID), "u1", "")
	expectStatus(t, rr, http.StatusOK)
	threads := decode(t, rr)["threads"].([]any)
	if len(threads) != 2 {
		t.Fatalf("expected two threads, got %d", len(threads))
	}
	if replies := threads[1].(map[string]any)["replies"].([]any); len(replies) != 1 {
		t.Fatalf("expected one reply under the automated root, got %d", len(replies))
	}

	// Automated replies need a reason.
	rr = h.do(t, http.MethodDelete, fmt.Sprintf("/api/comments/%d", c3ID), "u1", `{"reason":"   "}`)
	expectStatus(t, rr, http.StatusBadRequest)
	if decode(t, rr)["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR")
	}

	rr = h.do(t, http.MethodDelete, fmt.Sprintf("/api/comments/%d", c3ID), "u1", `{"reason":"resolved"}`)
	expectStatus(t, rr, http.StatusOK)
	if decode(t, rr)["outcome"] != string(moderation.OutcomeSoftDeleted) {
		t.Fatalf("expected soft delete")
	}

	rr = h.do(t, http.MethodGet, fmt.Sprintf("/api/highlights/%d/comments", highlightID), "u1", "")
	threads = decode(t, rr)["threads"].([]any)
	if replies := threads[1].(map[string]any)["replies"].([]any); len(replies) != 0 {
		t.Fatalf("soft-deleted reply still listed")
	}

	rr = h.do(t, http.MethodGet, "/api/comments/soft-deleted/exists", "u1", "")
	expectStatus(t, rr, http.StatusOK)
	if decode(t, rr)["exists"] != true {
		t.Fatalf("expected a soft-deleted automated comment")
	}

	rr = h.do(t, http.MethodPost, "/api/comments/restore-latest", "u1", "")
	expectStatus(t, rr, http.StatusOK)
	payload := decode(t, rr)
	if payload["restored"] != true || idOf(t, payload, "comment") != c3ID {
		t.Fatalf("unexpected restore payload %v", payload)
	}

	rr = h.do(t, http.MethodPost, "/api/comments/restore-latest", "u1", "")
	if decode(t, rr)["restored"] != false {
		t.Fatalf("second restore should find nothing")
	}

	// Deleting the automated root removes its reply too.
	rr = h.do(t, http.MethodDelete, fmt.Sprintf("/api/comments/%d", c2ID), "u1", "")
	expectStatus(t, rr, http.StatusOK)
	if removed := decode(t, rr)["removedIds"].([]any); len(removed) != 2 {
		t.Fatalf("expected two removed comments, got %v", removed)
	}

	rr = h.do(t, http.MethodDelete, fmt.Sprintf("/api/comments/%d", c2ID), "u1", "")
	expectStatus(t, rr, http.StatusNotFound)

	rr = h.do(t, http.MethodDelete, fmt.Sprintf("/api/documents/%d", documentID), "u1", "")
	expectStatus(t, rr, http.StatusOK)
	for table, n := range h.st.Counts() {
		if n != 0 {
			t.Errorf("table %s still has %d rows", table, n)
		}
	}
	if len(h.blobs.objects) != 0 {
		t.Errorf("blob left behind")
	}

	rr = h.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d/highlights", fileID), "u1", "")
	expectStatus(t, rr, http.StatusNotFound)
}

func TestOwnershipIsEnforced(t *testing.T) {
	h := newHarness(t)
	documentID, fileID, highlightID, rootID := h.seed(t, "owner")

	cases := []struct {
		method, path, body string
	}{
		{http.MethodGet, fmt.Sprintf("/api/documents/%d/files", documentID), ""},
		{http.MethodDelete, fmt.Sprintf("/api/documents/%d", documentID), ""},
		{http.MethodGet, fmt.Sprintf("/api/files/%d/highlights", fileID), ""},
		{http.MethodGet, fmt.Sprintf("/api/files/%d/export", fileID), ""},
		{http.MethodPatch, fmt.Sprintf("/api/highlights/%d", highlightID), `{"memo":"x"}`},
		{http.MethodGet, fmt.Sprintf("/api/highlights/%d/comments", highlightID), ""},
		{http.MethodPatch, fmt.Sprintf("/api/comments/%d", rootID), `{"text":"x"}`},
		{http.MethodDelete, fmt.Sprintf("/api/comments/%d", rootID), ""},
	}
	for _, tc := range cases {
		rr := h.do(t, tc.method, tc.path, "intruder", tc.body)
		if rr.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected 403, got %d", tc.method, tc.path, rr.Code)
		}
	}
}

func TestUpdateEndpoints(t *testing.T) {
	h := newHarness(t)
	_, fileID, highlightID, rootID := h.seed(t, "u1")

	rr := h.do(t, http.MethodPatch, fmt.Sprintf("/api/highlights/%d", highlightID), "u1", `{"memo":"rephrase"}`)
	expectStatus(t, rr, http.StatusOK)
	hl := decode(t, rr)["highlight"].(map[string]any)
	if hl["memo"] != "rephrase" || hl["text"] != "the results was" {
		t.Fatalf("unexpected highlight %v", hl)
	}

	rr = h.do(t, http.MethodPatch, fmt.Sprintf("/api/comments/%d", rootID), "u1", `{"text":"rephrase please"}`)
	expectStatus(t, rr, http.StatusOK)

	rr = h.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d/highlights", fileID), "u1", "")
	expectStatus(t, rr, http.StatusOK)
	highlights := decode(t, rr)["highlights"].([]any)
	if len(highlights) != 1 || len(highlights[0].(map[string]any)["rects"].([]any)) != 1 {
		t.Fatalf("unexpected highlights %v", highlights)
	}

	rr = h.do(t, http.MethodDelete, fmt.Sprintf("/api/highlights/%d", highlightID), "u1", "")
	expectStatus(t, rr, http.StatusOK)
	rr = h.do(t, http.MethodGet, fmt.Sprintf("/api/highlights/%d/comments", highlightID), "u1", "")
	expectStatus(t, rr, http.StatusNotFound)
}

func TestExportEndpoint(t *testing.T) {
	h := newHarness(t)
	_, fileID, _, _ := h.seed(t, "u1")

	rr := h.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d/export", fileID), "u1", "")
	expectStatus(t, rr, http.StatusOK)
	if got := rr.Header().Get("Content-Type"); got != "application/pdf" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "thesis_with_comments.pdf") {
		t.Fatalf("unexpected disposition %q", got)
	}
	if !bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")) {
		t.Fatalf("body is not a pdf")
	}
}

func TestExportEndpointRenderFailure(t *testing.T) {
	h := newHarness(t)
	_, fileID, _, _ := h.seed(t, "u1")
	for k := range h.blobs.objects {
		h.blobs.objects[k] = []byte("not a pdf")
	}

	rr := h.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d/export", fileID), "u1", "")
	expectStatus(t, rr, http.StatusUnprocessableEntity)
	if decode(t, rr)["code"] != "RENDER_FAILED" {
		t.Fatalf("expected RENDER_FAILED")
	}
}

func TestSearchWithoutBackendsReturnsEmpty(t *testing.T) {
	h := newHarness(t)
	_, fileID, _, _ := h.seed(t, "u1")

	rr := h.do(t, http.MethodGet, fmt.Sprintf("/api/files/%d/search?q=rewording", fileID), "u1", "")
	expectStatus(t, rr, http.StatusOK)
	payload := decode(t, rr)
	if payload["query"] != "rewording" || len(payload["results"].([]any)) != 0 {
		t.Fatalf("unexpected search payload %v", payload)
	}
}

func TestBadRequests(t *testing.T) {
	h := newHarness(t)
	_, fileID, highlightID, _ := h.seed(t, "u1")

	tests := []struct {
		name           string
		method, path   string
		body           string
		wantStatus     int
		wantCode       string
	}{
		{"non numeric id", http.MethodGet, "/api/files/abc/highlights", "", http.StatusBadRequest, "INVALID_ID"},
		{"invalid json", http.MethodPost, "/api/documents", "{", http.StatusBadRequest, "INVALID_BODY"},
		{"blank document name", http.MethodPost, "/api/documents", `{"name":" "}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"highlight without rects", http.MethodPost, fmt.Sprintf("/api/files/%d/highlights", fileID), `{"createdBy":"u","memo":"m"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"reply to missing parent", http.MethodPost, fmt.Sprintf("/api/highlights/%d/comments", highlightID), `{"parentId":999,"author":"u","text":"t"}`, http.StatusNotFound, "NOT_FOUND"},
		{"unknown route", http.MethodGet, "/api/nothing", "", http.StatusNotFound, "NOT_FOUND"},
		{"missing highlight", http.MethodGet, "/api/highlights/999/comments", "", http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := h.do(t, tt.method, tt.path, "u1", tt.body)
			expectStatus(t, rr, tt.wantStatus)
			if code := decode(t, rr)["code"]; code != tt.wantCode {
				t.Fatalf("expected code %s, got %v", tt.wantCode, code)
			}
		})
	}
}

func TestSoftDeletedReplyStaysOutOfSearchIndex(t *testing.T) {
	h := newHarness(t)
	_, fileID, highlightID, rootID := h.seed(t, "u1")
	ctx := context.Background()

	rr := h.do(t, http.MethodPost, fmt.Sprintf("/api/highlights/%d/comments", highlightID), "u1",
		fmt.Sprintf(`{"parentId":%d,"author":"LLM","text":"consider passive voice"}`, rootID))
	expectStatus(t, rr, http.StatusCreated)
	replyID := idOf(t, decode(t, rr), "comment")

	record, ok := h.svc.commentRecord(ctx, replyID)
	if !ok {
		t.Fatal("active reply should be indexable")
	}
	if record.FileID != fileID || record.HighlightID != highlightID {
		t.Fatalf("unexpected record %+v", record)
	}

	rr = h.do(t, http.MethodDelete, fmt.Sprintf("/api/comments/%d", replyID), "u1", `{"reason":"resolved"}`)
	expectStatus(t, rr, http.StatusOK)

	rr = h.do(t, http.MethodPatch, fmt.Sprintf("/api/comments/%d", replyID), "u1", `{"text":"edited while hidden"}`)
	expectStatus(t, rr, http.StatusOK)
	if _, ok := h.svc.commentRecord(ctx, replyID); ok {
		t.Fatal("soft-deleted reply must not be indexed")
	}

	if _, ok := h.svc.commentRecord(ctx, rootID); !ok {
		t.Fatal("human root should be indexable")
	}
}
