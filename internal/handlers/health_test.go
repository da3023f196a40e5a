package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var _ services.SystemService = (*stubSystemService)(nil)

type readyzBody struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Checks  map[string]struct {
		Status    string `json:"status"`
		LatencyMS int64  `json:"latencyMs"`
	} `json:"checks"`
	Details []string `json:"details"`
}

func serveReadyz(t *testing.T, svc services.SystemService) (*httptest.ResponseRecorder, readyzBody) {
	t.Helper()
	now := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	h := NewHealthHandlers(WithHealthSystemService(svc), WithHealthClock(func() time.Time { return now }))

	rr := httptest.NewRecorder()
	h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	var body readyzBody
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	return rr, body
}

func TestHealthzReportsBuildAndUptime(t *testing.T) {
	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{Version: "2.4.0", CommitSHA: "f00d", Environment: "staging", StartedAt: start}),
		WithHealthClock(func() time.Time { return start.Add(90 * time.Second) }),
	)

	rr := httptest.NewRecorder()
	h.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode healthz: %v", err)
	}
	want := map[string]any{
		"status":      domain.HealthStatusOK,
		"version":     "2.4.0",
		"commitSha":   "f00d",
		"environment": "staging",
		"uptime":      "1m30s",
	}
	for key, value := range want {
		if body[key] != value {
			t.Fatalf("expected %s=%v, got %v", key, value, body[key])
		}
	}
}

func TestReadyzWithoutSystemServiceIsOK(t *testing.T) {
	rr, body := serveReadyz(t, nil)
	if rr.Code != http.StatusOK || body.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok, got %d %s", rr.Code, body.Status)
	}
}

func TestReadyzHealthyStore(t *testing.T) {
	rr, body := serveReadyz(t, &stubSystemService{report: services.SystemHealthReport{
		Status:  domain.HealthStatusOK,
		Version: "2.4.0",
		Uptime:  2 * time.Hour,
		Checks: map[string]domain.SystemHealthCheck{
			"orderStore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
			"payments":   {Status: domain.HealthStatusOK, Detail: "stripe"},
		},
	}})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body.Uptime != "2h0m0s" || body.Version != "2.4.0" {
		t.Fatalf("unexpected metadata %+v", body)
	}
	if body.Checks["orderStore"].LatencyMS != 12 {
		t.Fatalf("expected 12ms latency, got %d", body.Checks["orderStore"].LatencyMS)
	}
	if len(body.Details) != 0 {
		t.Fatalf("expected no details, got %v", body.Details)
	}
}

func TestReadyzDegradedStillServesTraffic(t *testing.T) {
	rr, body := serveReadyz(t, &stubSystemService{report: services.SystemHealthReport{
		Status: domain.HealthStatusDegraded,
		Checks: map[string]domain.SystemHealthCheck{
			"orderStore": {Status: domain.HealthStatusOK},
			"pubsub":     {Status: domain.HealthStatusDegraded, Error: "topic order-events not found"},
			"payments":   {Status: domain.HealthStatusDegraded, Detail: "payment provider not configured"},
		},
	}})

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for degraded report, got %d", rr.Code)
	}
	want := []string{"payments: degraded", "pubsub: topic order-events not found"}
	if len(body.Details) != len(want) {
		t.Fatalf("expected details %v, got %v", want, body.Details)
	}
	for i := range want {
		if body.Details[i] != want[i] {
			t.Fatalf("expected details %v, got %v", want, body.Details)
		}
	}
}

func TestReadyzOrderStoreDownIsUnavailable(t *testing.T) {
	rr, body := serveReadyz(t, &stubSystemService{report: services.SystemHealthReport{
		Status: domain.HealthStatusError,
		Checks: map[string]domain.SystemHealthCheck{
			"orderStore": {Status: domain.HealthStatusError, Error: "context deadline exceeded"},
		},
	}})

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if len(body.Details) != 1 || body.Details[0] != "orderStore: context deadline exceeded" {
		t.Fatalf("unexpected details %v", body.Details)
	}
}

func TestReadyzReportFailure(t *testing.T) {
	rr, body := serveReadyz(t, &stubSystemService{err: errors.New("collect failed")})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if body.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %s", body.Status)
	}
}
