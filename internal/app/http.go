package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"marginalia/api/internal/annotation"
	"marginalia/api/internal/auth"
	"marginalia/api/internal/logging"
	"marginalia/api/internal/search"
)

type HTTPServer struct {
	service     *Service
	corsOrigins []string
	logger      *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigins []string, logger *slog.Logger) *HTTPServer {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	return &HTTPServer{service: service, corsOrigins: corsOrigins, logger: logging.OrDefault(logger)}
}

func (s *HTTPServer) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
	})
	return s.withMiddleware(c.Handler(http.HandlerFunc(s.handle)))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "documents":
		s.handleDocuments(w, r, session, parts)
		return
	case "files":
		s.handleFiles(w, r, session, parts)
		return
	case "highlights":
		s.handleHighlights(w, r, session, parts)
		return
	case "comments":
		s.handleComments(w, r, session, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 && r.Method == http.MethodPost {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.CreateDocument(r.Context(), session, body.Name)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"document": toDocumentView(doc)})
		return
	}

	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	documentID, ok := pathID(w, parts[2])
	if !ok {
		return
	}

	if len(parts) == 3 && r.Method == http.MethodDelete {
		report, err := s.service.DeleteDocument(r.Context(), session, documentID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"deleted":      true,
			"files":        len(report.FileIDs),
			"highlights":   len(report.HighlightIDs),
			"comments":     len(report.CommentIDs),
			"blobsDeleted": report.BlobsDeleted,
			"blobFailures": len(report.BlobFailures),
		})
		return
	}

	if len(parts) == 4 && parts[3] == "files" {
		switch r.Method {
		case http.MethodGet:
			files, err := s.service.ListFiles(r.Context(), session, documentID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			views := make([]fileView, 0, len(files))
			for _, f := range files {
				views = append(views, toFileView(f))
			}
			writeJSON(w, http.StatusOK, map[string]any{"files": views})
			return
		case http.MethodPost:
			var body annotation.RegisterFileInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			body.DocumentID = documentID
			file, err := s.service.RegisterFile(r.Context(), session, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"file": toFileView(file)})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleFiles(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) != 4 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	fileID, ok := pathID(w, parts[2])
	if !ok {
		return
	}

	switch {
	case parts[3] == "highlights" && r.Method == http.MethodGet:
		highlights, err := s.service.ListHighlights(r.Context(), session, fileID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		views := make([]highlightView, 0, len(highlights))
		for _, h := range highlights {
			views = append(views, toHighlightView(h))
		}
		writeJSON(w, http.StatusOK, map[string]any{"highlights": views})
		return

	case parts[3] == "highlights" && r.Method == http.MethodPost:
		var body annotation.CreateHighlightInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		body.FileID = fileID
		created, err := s.service.CreateHighlight(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"highlight":     toHighlightView(created.Highlight),
			"rootCommentId": created.RootCommentID,
		})
		return

	case parts[3] == "export" && r.Method == http.MethodGet:
		result, err := s.service.ExportFile(r.Context(), session, fileID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": result.Filename}))
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return

	case parts[3] == "search" && r.Method == http.MethodGet:
		query := r.URL.Query()
		q := search.Query{
			Text:       query.Get("q"),
			FilterType: search.ResultType(strings.TrimSpace(query.Get("type"))),
			Limit:      queryInt(query.Get("limit"), 20),
			Offset:     queryInt(query.Get("offset"), 0),
		}
		resp, err := s.service.Search(r.Context(), session, fileID, q)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleHighlights(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	highlightID, ok := pathID(w, parts[2])
	if !ok {
		return
	}

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodPatch:
			var body struct {
				Memo *string `json:"memo"`
				Text *string `json:"text"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			h, err := s.service.UpdateHighlight(r.Context(), session, highlightID, body.Memo, body.Text)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"highlight": toHighlightView(h)})
			return
		case http.MethodDelete:
			report, err := s.service.DeleteHighlight(r.Context(), session, highlightID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "comments": len(report.CommentIDs)})
			return
		}
	}

	if len(parts) == 4 && parts[3] == "comments" {
		switch r.Method {
		case http.MethodGet:
			threads, err := s.service.ListThreads(r.Context(), session, highlightID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"threads": toThreadViews(s.service.Policy(), threads)})
			return
		case http.MethodPost:
			var body annotation.CreateCommentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			body.HighlightID = highlightID
			c, err := s.service.CreateComment(r.Context(), session, body)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"comment": toCommentView(s.service.Policy(), c)})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 3 && parts[2] == "restore-latest" && r.Method == http.MethodPost {
		c, ok, err := s.service.RestoreLatestSoftDeleted(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"restored": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"restored": true, "comment": toCommentView(s.service.Policy(), c)})
		return
	}

	if len(parts) == 4 && parts[2] == "soft-deleted" && parts[3] == "exists" && r.Method == http.MethodGet {
		exists, err := s.service.HasSoftDeletedAutomatedComment(r.Context())
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"exists": exists})
		return
	}

	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	commentID, ok := pathID(w, parts[2])
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		c, err := s.service.UpdateComment(r.Context(), session, commentID, body.Text)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comment": toCommentView(s.service.Policy(), c)})
		return
	case http.MethodDelete:
		var body struct {
			Reason string `json:"reason"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		result, err := s.service.DeleteComment(r.Context(), session, commentID, body.Reason)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"outcome":    result.Outcome,
			"kind":       result.Kind.String(),
			"removedIds": result.RemovedIDs,
		})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("Cache-Control", "no-store")
		writer.Header().Set("Content-Type", "application/json")
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

// RequestID returns the id the middleware attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func pathID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid id", nil)
		return 0, false
	}
	return id, true
}

func queryInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
