package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	called := false
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	req := httptest.NewRequest(http.MethodOptions, "/api/rooms", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if called {
		t.Error("preflight should not reach the handler")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}

func TestCORSPassesThrough(t *testing.T) {
	t.Parallel()
	h := CORS(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusTeapot {
		t.Errorf("expected handler status, got %d", w.Code)
	}
}

func TestLoggingRecordsStatus(t *testing.T) {
	t.Parallel()
	var seen *statusRecorder
	h := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = w.(*statusRecorder)
		w.WriteHeader(http.StatusNotFound)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/rooms/x", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if seen == nil || seen.status != http.StatusNotFound {
		t.Errorf("expected recorder with 404, got %+v", seen)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 passed through, got %d", w.Code)
	}
}

func TestHijackUnsupported(t *testing.T) {
	t.Parallel()
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("expected error from a writer that cannot hijack")
	}
}
