package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegistry_AllHealthy(t *testing.T) {
	r := NewRegistry("test")
	r.Register("storage", func(ctx context.Context) error { return nil })
	r.Register("kafka", func(ctx context.Context) error { return nil })

	report := r.Run(context.Background())

	if report.State != StateHealthy {
		t.Fatalf("expected healthy, got %s", report.State)
	}
	if len(report.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(report.Components))
	}
	if report.Version != "test" {
		t.Fatalf("unexpected version %q", report.Version)
	}
}

func TestRegistry_RequiredFailureIsUnhealthy(t *testing.T) {
	r := NewRegistry("test")
	r.Register("storage", func(ctx context.Context) error { return errors.New("connection refused") })

	report := r.Run(context.Background())

	if report.State != StateUnhealthy {
		t.Fatalf("expected unhealthy, got %s", report.State)
	}
	if report.Components["storage"].Error != "connection refused" {
		t.Fatalf("unexpected component error: %q", report.Components["storage"].Error)
	}
}

func TestRegistry_OptionalFailureIsDegraded(t *testing.T) {
	r := NewRegistry("test")
	r.Register("storage", func(ctx context.Context) error { return nil })
	r.RegisterOptional("kafka", func(ctx context.Context) error { return errors.New("broker down") })

	report := r.Run(context.Background())

	if report.State != StateDegraded {
		t.Fatalf("expected degraded, got %s", report.State)
	}
	if report.Components["kafka"].State != StateDegraded {
		t.Fatalf("expected degraded component, got %s", report.Components["kafka"].State)
	}
}

func TestHandler_StatusCodes(t *testing.T) {
	r := NewRegistry("test")
	r.Register("storage", func(ctx context.Context) error { return nil })

	rec := httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.State != StateHealthy {
		t.Fatalf("expected healthy, got %s", report.State)
	}

	r.Register("broken", func(ctx context.Context) error { return errors.New("boom") })
	rec = httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReadinessAndLiveness(t *testing.T) {
	r := NewRegistry("test")
	r.RegisterOptional("kafka", func(ctx context.Context) error { return errors.New("broker down") })

	rec := httptest.NewRecorder()
	r.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("degraded service must stay ready, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
