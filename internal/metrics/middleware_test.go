package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMiddleware(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/api/v1/campaigns/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/abc123", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	// counted under the route pattern, not the raw path
	counter := m.APIRequestsTotal.WithLabelValues("GET", "/api/v1/campaigns/{id}", "200")
	if got := testutil.ToFloat64(counter); got != 1 {
		t.Errorf("APIRequestsTotal = %f, want 1", got)
	}
}

func TestHTTPMiddlewareCountsErrors(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates/nope", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := testutil.ToFloat64(m.APIErrorsTotal.WithLabelValues("not_found")); got != 1 {
		t.Errorf("APIErrorsTotal{not_found} = %f, want 1", got)
	}
}

func TestHTTPMiddlewareNilGlobal(t *testing.T) {
	SetGlobal(nil)

	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestNormalizePathFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/3f2f6a8e-5f3a-4f0e-9c0f-1a2b3c4d5e6f", nil)
	if got := normalizePath(req); got != "/api/v1/campaigns/{id}" {
		t.Errorf("normalizePath() = %q", got)
	}
}

func TestCategorizeStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{500, "server_error"},
		{429, "rate_limited"},
		{401, "auth_error"},
		{404, "not_found"},
		{400, "bad_request"},
		{418, "client_error"},
		{200, "unknown"},
	}
	for _, tt := range tests {
		if got := categorizeStatus(tt.status); got != tt.want {
			t.Errorf("categorizeStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
