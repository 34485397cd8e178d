package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/partner-ledger/internal/metrics"
)

func TestLoggerRecordsRoutePattern(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.NewNop()

	r := chi.NewRouter()
	r.Use(Logger(zap.New(core), m))
	r.Get("/api/partner/withdrawals/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2", "3"} {
		req := httptest.NewRequest(http.MethodGet, "/api/partner/withdrawals/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := testutil.CollectAndCount(m.HTTPRequestDuration); got != 1 {
		t.Fatalf("expected a single series per route, got %d", got)
	}
	if logs.Len() != 3 {
		t.Fatalf("expected 3 log entries, got %d", logs.Len())
	}
	entry := logs.All()[0].ContextMap()
	if entry["status"] != int64(http.StatusNotFound) {
		t.Errorf("expected status 404 in log, got %v", entry["status"])
	}
}

func TestLoggerDefaultsStatusToOK(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	h := Logger(zap.New(core), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	entry := logs.All()[0].ContextMap()
	if entry["status"] != int64(http.StatusOK) {
		t.Errorf("expected status 200, got %v", entry["status"])
	}
	if entry["size"] != int64(2) {
		t.Errorf("expected size 2, got %v", entry["size"])
	}
}
