package jobs

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/mediad/api"
	"pkt.systems/pslog"
)

// jobMetrics counts the lifecycle events the controller owns. Instruments
// come from the global meter provider, so with telemetry disabled every
// record call is a no-op.
type jobMetrics struct {
	submitted    metric.Int64Counter
	terminal     metric.Int64Counter
	materialized metric.Int64Counter
}

func newJobMetrics(logger pslog.Logger) *jobMetrics {
	meter := otel.Meter("pkt.systems/mediad/jobs")
	m := &jobMetrics{}
	var err error

	m.submitted, err = meter.Int64Counter(
		"mediad.jobs.submitted",
		metric.WithDescription("Generation jobs submitted to the remote API"),
	)
	logMetricInitError(logger, "mediad.jobs.submitted", err)

	m.terminal, err = meter.Int64Counter(
		"mediad.jobs.terminal",
		metric.WithDescription("Jobs observed reaching a terminal status"),
	)
	logMetricInitError(logger, "mediad.jobs.terminal", err)

	m.materialized, err = meter.Int64Counter(
		"mediad.artifacts.materialized_bytes",
		metric.WithDescription("Artifact bytes streamed into sandboxed storage"),
		metric.WithUnit("By"),
	)
	logMetricInitError(logger, "mediad.artifacts.materialized_bytes", err)

	return m
}

func (m *jobMetrics) recordSubmitted(ctx context.Context, kind api.JobKind, source string) {
	if m == nil || m.submitted == nil {
		return
	}
	m.submitted.Add(metricContext(ctx), 1, metric.WithAttributes(
		attribute.String("mediad.job.kind", string(kind)),
		attribute.String("mediad.job.source", source),
	))
}

func (m *jobMetrics) recordTerminal(ctx context.Context, kind api.JobKind, status api.JobStatus) {
	if m == nil || m.terminal == nil {
		return
	}
	m.terminal.Add(metricContext(ctx), 1, metric.WithAttributes(
		attribute.String("mediad.job.kind", string(kind)),
		attribute.String("mediad.job.status", string(status)),
	))
}

func (m *jobMetrics) recordMaterialized(ctx context.Context, pathType api.PathType, bytes int64) {
	if m == nil || m.materialized == nil {
		return
	}
	m.materialized.Add(metricContext(ctx), bytes, metric.WithAttributes(
		attribute.String("mediad.path_type", string(pathType)),
	))
}

func metricContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("metric init failed", "name", name, "error", err)
}
