package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// otelInstruments mirror the Prometheus auth collectors onto an OTel meter
type otelInstruments struct {
	logins           metric.Int64Counter
	identityDuration metric.Float64Histogram
	identityErrors   metric.Int64Counter
	projectCache     metric.Int64Counter
}

// EnableOTel mirrors login, identity-call and project-cache measurements
// onto meter. Call it once before serving.
func (m *AuthMetrics) EnableOTel(meter metric.Meter) error {
	if m == nil {
		return nil
	}
	inst := &otelInstruments{}
	var err error

	inst.logins, err = meter.Int64Counter(
		"keystone_auth.logins",
		metric.WithDescription("Login attempts by result"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create logins counter: %w", err)
	}

	inst.identityDuration, err = meter.Float64Histogram(
		"keystone_auth.identity.duration",
		metric.WithDescription("Identity service request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create identity duration histogram: %w", err)
	}

	inst.identityErrors, err = meter.Int64Counter(
		"keystone_auth.identity.errors",
		metric.WithDescription("Identity service errors by operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create identity errors counter: %w", err)
	}

	inst.projectCache, err = meter.Int64Counter(
		"keystone_auth.project_cache.lookups",
		metric.WithDescription("Authorized-projects cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create project cache counter: %w", err)
	}

	m.otel = inst
	return nil
}

func (i *otelInstruments) recordLogin(result string) {
	if i == nil {
		return
	}
	i.logins.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
}

func (i *otelInstruments) observeIdentity(operation string, status int, duration time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("operation", operation))
	i.identityDuration.Record(context.Background(), duration.Seconds(), attrs)
	if status == 0 || status >= 400 {
		i.identityErrors.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.Int("status", status),
		))
	}
}

func (i *otelInstruments) recordProjectCache(cacheType string, hit bool) {
	if i == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	i.projectCache.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("cache_type", cacheType),
		attribute.String("result", result),
	))
}
