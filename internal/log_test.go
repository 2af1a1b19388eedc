package internal

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestErrorLogFilter(t *testing.T) {
	var buf bytes.Buffer
	testErrorLogger := log.New(&ErrorLogFilter{Unwrap: log.New(&buf, "", 0)}, "", 0)

	testErrorLogger.Println("http: proxy error: context canceled")
	if buf.Len() != 0 {
		t.Errorf("suppressed message was written to output: %q", buf.String())
	}

	testErrorLogger.Println("http: another error occurred")
	output := buf.String()
	if !strings.Contains(output, "another error occurred") {
		t.Errorf("allowed message was not written to output: %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("allowed message output is missing newline: %q", output)
	}
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if seen == "" {
			t.Fatal("no request id in context")
		}
		if got := rec.Header().Get(RequestIDHeader); got != seen {
			t.Errorf("header %q does not match context %q", got, seen)
		}
	})

	t.Run("from client", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc123")
		h.ServeHTTP(httptest.NewRecorder(), req)

		if seen != "abc123" {
			t.Errorf("got %q want abc123", seen)
		}
	})

	t.Run("oversized id is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, strings.Repeat("x", 500))
		h.ServeHTTP(httptest.NewRecorder(), req)

		if len(seen) > 128 {
			t.Errorf("oversized id was kept")
		}
	})
}
