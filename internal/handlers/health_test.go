package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/seera-lab/api/internal/domain"
	"github.com/seera-lab/api/internal/services"
)

type stubSystemService struct {
	reportFunc func(ctx context.Context) (services.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemHealthReport, error) {
	if s.reportFunc != nil {
		return s.reportFunc(ctx)
	}
	return services.SystemHealthReport{}, errors.New("not implemented")
}

func TestHealthHandlersHealthzIncludesBuildInfo(t *testing.T) {
	started := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	now := time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC)

	handler := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{
			Version:     "1.4.0",
			CommitSHA:   "abc1234",
			Environment: "production",
			StartedAt:   started,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != domain.HealthStatusOK {
		t.Fatalf("expected status ok, got %#v", resp["status"])
	}
	if resp["version"] != "1.4.0" || resp["commitSha"] != "abc1234" {
		t.Fatalf("expected build metadata, got %#v", resp)
	}
	if resp["uptime"] != "1h30m0s" {
		t.Fatalf("expected uptime 1h30m0s, got %#v", resp["uptime"])
	}
}

func TestHealthHandlersReadyzWithoutSystemService(t *testing.T) {
	handler := NewHealthHandlers()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzReportsFailingChecks(t *testing.T) {
	handler := NewHealthHandlers(WithHealthSystemService(&stubSystemService{
		reportFunc: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Status: domain.HealthStatusDegraded,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
					"pubsub":    {Status: domain.HealthStatusError, Error: "deadline exceeded"},
				},
			}, nil
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var resp readyzResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.HealthStatusDegraded {
		t.Fatalf("expected degraded status, got %s", resp.Status)
	}
	if len(resp.Details) != 1 || resp.Details[0] != "pubsub: deadline exceeded" {
		t.Fatalf("unexpected details %#v", resp.Details)
	}
	if resp.Checks["firestore"].Latency != "12ms" {
		t.Fatalf("expected latency rendered, got %#v", resp.Checks["firestore"])
	}
}

func TestHealthHandlersReadyzDependencyError(t *testing.T) {
	handler := NewHealthHandlers(WithHealthSystemService(&stubSystemService{
		reportFunc: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{}, errors.New("registry unavailable")
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var resp readyzResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", resp.Status)
	}
}
