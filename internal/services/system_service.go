package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const paymentsCheckName = "payments"

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
//
// CriticalChecks names the dependencies the storefront cannot take orders without. A failing
// critical check turns the report into an error; any other failing check only degrades it.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	CriticalChecks   []string
	PaymentsEnabled  bool
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	healthRepo      repositories.HealthRepository
	critical        map[string]struct{}
	paymentsEnabled bool
	clock           func() time.Time
	build           BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the service behind the readiness probe.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}

	critical := make(map[string]struct{}, len(deps.CriticalChecks))
	for _, name := range deps.CriticalChecks {
		if name = strings.TrimSpace(name); name != "" {
			critical[name] = struct{}{}
		}
	}

	return &systemService{
		healthRepo:      deps.HealthRepository,
		critical:        critical,
		paymentsEnabled: deps.PaymentsEnabled,
		clock:           func() time.Time { return clock().UTC() },
		build:           build,
	}, nil
}

// HealthReport runs the dependency checks, adds the payment provider state and grades the result.
func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	} else {
		report.GeneratedAt = report.GeneratedAt.UTC()
	}
	report.Version = firstNonBlank(report.Version, s.build.Version)
	report.CommitSHA = firstNonBlank(report.CommitSHA, s.build.CommitSHA)
	report.Environment = firstNonBlank(report.Environment, s.build.Environment)
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}

	checks := make(map[string]domain.SystemHealthCheck, len(report.Checks)+1)
	for name, check := range report.Checks {
		checks[name] = check
	}
	checks[paymentsCheckName] = s.paymentsCheck(now)
	report.Checks = checks
	report.Status = s.grade(checks)

	return report, nil
}

func (s *systemService) paymentsCheck(now time.Time) domain.SystemHealthCheck {
	if s.paymentsEnabled {
		return domain.SystemHealthCheck{Status: domain.HealthStatusOK, Detail: "stripe", CheckedAt: now}
	}
	return domain.SystemHealthCheck{
		Status:    domain.HealthStatusDegraded,
		Detail:    "payment provider not configured",
		CheckedAt: now,
	}
}

// grade returns error when a critical dependency is unhealthy and degraded when only optional
// ones are.
func (s *systemService) grade(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for name, check := range checks {
		if check.Status == domain.HealthStatusOK || check.Status == "" {
			continue
		}
		if _, ok := s.critical[name]; ok {
			return domain.HealthStatusError
		}
		status = domain.HealthStatusDegraded
	}
	return status
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
