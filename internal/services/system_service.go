package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// Health statuses reported by SystemService.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"

	defaultHealthCheckTimeout = 2 * time.Second
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthCheckFunc checks one dependency.
type HealthCheckFunc func(ctx context.Context) error

// HealthCheck is the outcome of one dependency check.
type HealthCheck struct {
	Status  string
	Latency time.Duration
	Error   string
}

// SystemHealthReport aggregates the dependency checks.
type SystemHealthReport struct {
	Status      string
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
	Checks      map[string]HealthCheck
}

// SystemService reports readiness.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	Checks       map[string]HealthCheckFunc
	CheckTimeout time.Duration
	Clock        func() time.Time
	Build        BuildInfo
}

type systemService struct {
	checks  map[string]HealthCheckFunc
	timeout time.Duration
	clock   func() time.Time
	build   BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the system utility service providing health reports and metadata.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if len(deps.Checks) == 0 {
		return nil, errors.New("system service: at least one health check is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	timeout := deps.CheckTimeout
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}

	return &systemService{
		checks:  deps.Checks,
		timeout: timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		build: build,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	if ctx == nil {
		return SystemHealthReport{}, errors.New("system service: context is required")
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]HealthCheck, len(names))
	for _, name := range names {
		checks[name] = s.runCheck(ctx, s.checks[name])
	}

	now := s.clock()
	return SystemHealthReport{
		Status:      deriveStatus(checks),
		Version:     chooseFirstNonEmpty(s.build.Version, "dev"),
		CommitSHA:   s.build.CommitSHA,
		Environment: s.build.Environment,
		Uptime:      now.Sub(s.build.StartedAt),
		GeneratedAt: now,
		Checks:      checks,
	}, nil
}

func (s *systemService) runCheck(ctx context.Context, check HealthCheckFunc) HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	err := check(ctx)
	result := HealthCheck{Status: HealthStatusOK, Latency: time.Since(started)}
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		result.Status = HealthStatusDegraded
		result.Error = err.Error()
	default:
		result.Status = HealthStatusError
		result.Error = err.Error()
	}
	return result
}

func chooseFirstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func deriveStatus(checks map[string]HealthCheck) string {
	status := HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case HealthStatusOK, "":
			continue
		case HealthStatusError:
			return HealthStatusError
		default:
			status = HealthStatusDegraded
		}
	}
	return status
}
