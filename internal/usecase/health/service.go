package health

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates every dependency failed.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckEmpty marks the document check before the first ingestion.
	CheckEmpty CheckResult = "empty"
)

// DefaultCheckTimeout bounds each dependency probe.
const DefaultCheckTimeout = 5 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type component struct {
	name    string
	checker Checker
}

// Service probes the configured dependencies in parallel.
type Service struct {
	components []component
	document   DocumentState
	timeout    time.Duration
}

// New creates a Service with no components.
func New() *Service {
	return &Service{timeout: DefaultCheckTimeout}
}

// With registers a dependency under name. A nil checker is skipped.
func (s *Service) With(name string, c Checker) *Service {
	if c != nil {
		s.components = append(s.components, component{name: name, checker: c})
	}
	return s
}

// WithDocument adds the informational "document" check. It never affects Status.
func (s *Service) WithDocument(d DocumentState) *Service {
	s.document = d
	return s
}

// WithTimeout overrides the per-check timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs every probe and aggregates the outcome.
func (s *Service) Check(ctx context.Context) Report {
	results := make([]CheckResult, len(s.components))

	// Probes never return an error: a failed dependency is a result, not a reason to stop.
	var g errgroup.Group
	for i, c := range s.components {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			results[i] = CheckOK
			if err := c.checker.HealthCheck(cctx); err != nil {
				results[i] = CheckError
			}
			return nil
		})
	}
	_ = g.Wait()

	checks := make(map[string]CheckResult, len(s.components)+1)
	failed := 0
	for i, c := range s.components {
		checks[c.name] = results[i]
		if results[i] == CheckError {
			failed++
		}
	}

	status := Healthy
	switch {
	case failed > 0 && failed == len(s.components):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}

	if s.document != nil {
		checks["document"] = CheckEmpty
		if s.document.Loaded() {
			checks["document"] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
