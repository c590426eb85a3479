package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sentibridge/oracle/internal/orchestrator"
)

type fakeHealthChecker struct {
	err error
}

func (f *fakeHealthChecker) HealthCheck(ctx context.Context) error { return f.err }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHealthzHealthy(t *testing.T) {
	s := New(Config{HTTPPort: 0}, &fakeHealthChecker{}, &orchestrator.Metrics{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHealthzUnhealthy(t *testing.T) {
	s := New(Config{HTTPPort: 0}, &fakeHealthChecker{err: errors.New("db down")}, &orchestrator.Metrics{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStatusReportsMetrics(t *testing.T) {
	metrics := &orchestrator.Metrics{}
	metrics.CyclesRun.Store(5)
	metrics.SamplesSubmitted.Store(12)

	s := New(Config{HTTPPort: 0}, &fakeHealthChecker{}, metrics, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !contains(body, `"cycles_run":5`) || !contains(body, `"samples_submitted":12`) {
		t.Errorf("status body missing expected counters: %s", body)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
