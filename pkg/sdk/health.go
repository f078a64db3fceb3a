package postcards

import (
	"context"
	"time"

	healthuc "github.com/cardscout/postcards/internal/usecase/health"
)

// HealthStatus is the aggregated health of the cache and the vision provider.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component: "ok", "error" or "disabled"
}

// Healthy reports whether every enabled component responded.
func (h HealthStatus) Healthy() bool {
	return h.Status == string(healthuc.Healthy)
}

// Health checks the shared cache and the vision provider. Components that are
// not configured report "disabled" and do not degrade the status.
func (c *Client) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	report := c.healthSvc.Check(ctx)
	c.obs.observe("health", start, nil)

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	return HealthStatus{
		Status: string(report.Status),
		Checks: checks,
	}
}

// healthUseCase is the internal interface for health checks.
type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
