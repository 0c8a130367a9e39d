package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserve(t *testing.T) {
	r := NewRecorder()
	r.Observe(context.Background(), "create_order", true, 10*time.Millisecond)
	r.Observe(context.Background(), "create_order", false, 10*time.Millisecond)
	r.Observe(context.Background(), "create_order", true, 10*time.Millisecond)

	if got := testutil.ToFloat64(r.operations.WithLabelValues("create_order", "ok")); got != 2 {
		t.Fatalf("ok counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.operations.WithLabelValues("create_order", "error")); got != 1 {
		t.Fatalf("error counter = %v, want 1", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	rec := NewRecorder()

	router := chi.NewRouter()
	router.Use(rec.Middleware)
	router.Get("/api/clients/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Method(http.MethodGet, "/metrics", rec.Handler())

	for _, id := range []string{"1", "2"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/clients/"+id, nil))
	}

	if got := testutil.ToFloat64(rec.requests.WithLabelValues(http.MethodGet, "/api/clients/{id}", "404")); got != 2 {
		t.Fatalf("requests counter = %v, want 2", got)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "clientbook_http_requests_total") {
		t.Fatalf("metrics output does not contain request counter")
	}
}
