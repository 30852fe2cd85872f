package blob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMinioDeleteMany(t *testing.T) {
	var removed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/locked.pdf") {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied.</Message></Error>`))
			return
		}
		removed = append(removed, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s, err := NewMinioStore(MinioOptions{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "docs",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	n, failures := s.DeleteMany(context.Background(), []string{"u1/a.pdf", "u1/locked.pdf"})
	require.Equal(t, 1, n)
	require.Contains(t, failures, "u1/locked.pdf")
	require.Equal(t, []string{"/docs/u1/a.pdf"}, removed)
}
