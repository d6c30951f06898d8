package knnsearch

import (
	"context"

	healthuc "github.com/kailas-cloud/knnsearch/internal/usecase/health"
)

// HealthStatus is the aggregated state of the client's dependencies.
type HealthStatus struct {
	Status string            // "ok", "degraded", "error"
	Checks map[string]string // component → "ok"/"error"/"missing"
}

// Health checks the store and, when given, that the named indexes exist.
func (c *Client) Health(ctx context.Context, indexNames ...string) HealthStatus {
	report := c.health.Check(ctx)
	checks := make(map[string]string, len(report.Checks)+len(indexNames))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	status := string(report.Status)

	for _, name := range indexNames {
		ok, err := c.store.IndexExists(ctx, name)
		key := "index:" + name
		switch {
		case err != nil:
			checks[key] = string(healthuc.CheckError)
		case !ok:
			checks[key] = string(healthuc.CheckMissing)
		default:
			checks[key] = string(healthuc.CheckOK)
			continue
		}
		if status == string(healthuc.Healthy) {
			status = string(healthuc.Degraded)
		}
	}
	return HealthStatus{Status: status, Checks: checks}
}

// healthUseCase is the internal interface for health checks.
type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
