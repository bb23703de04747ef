package transfer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"pkt.systems/mediad/api"
	"pkt.systems/pslog"
)

// transferMetrics counts served chunks and raw bytes. Instruments come from
// the global meter provider; with telemetry disabled they are no-ops.
type transferMetrics struct {
	chunks metric.Int64Counter
	bytes  metric.Int64Counter
}

func newTransferMetrics(logger pslog.Logger) *transferMetrics {
	meter := otel.Meter("pkt.systems/mediad/transfer")
	m := &transferMetrics{}
	var err error

	m.chunks, err = meter.Int64Counter(
		"mediad.transfer.chunks",
		metric.WithDescription("Artifact chunks served"),
	)
	logMetricInitError(logger, "mediad.transfer.chunks", err)

	m.bytes, err = meter.Int64Counter(
		"mediad.transfer.bytes",
		metric.WithDescription("Raw artifact bytes served, before base64"),
		metric.WithUnit("By"),
	)
	logMetricInitError(logger, "mediad.transfer.bytes", err)

	return m
}

func (m *transferMetrics) recordChunk(ctx context.Context, pathType api.PathType, rawBytes int64, isLast bool) {
	if m == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	attrs := metric.WithAttributes(
		attribute.String("mediad.path_type", string(pathType)),
		attribute.Bool("mediad.chunk.is_last", isLast),
	)
	if m.chunks != nil {
		m.chunks.Add(ctx, 1, attrs)
	}
	if m.bytes != nil {
		m.bytes.Add(ctx, rawBytes, attrs)
	}
}

func logMetricInitError(logger pslog.Logger, name string, err error) {
	if err == nil || logger == nil {
		return
	}
	logger.Warn("metric init failed", "name", name, "error", err)
}
