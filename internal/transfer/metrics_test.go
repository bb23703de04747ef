package transfer

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"pkt.systems/mediad/api"
)

// Not parallel: swaps the global meter provider.
func TestFetchChunkCountsChunksAndBytes(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() {
		otel.SetMeterProvider(prev)
		_ = provider.Shutdown(context.Background())
	})

	server, store := newTestServer(t)
	total := int64(3*1024 + 17)
	seedArtifact(t, store, api.PathTypeVideo, "counted.mp4", total)
	ctx := context.Background()

	var offset int64
	chunks := 0
	for {
		resp, err := server.FetchChunk(ctx, api.PathTypeVideo, "counted.mp4", offset, 1024)
		if err != nil {
			t.Fatalf("fetch at %d: %v", offset, err)
		}
		chunks++
		offset += resp.ChunkSize
		if resp.IsLast {
			break
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := sumCounter(t, rm, "mediad.transfer.chunks"); got != int64(chunks) {
		t.Fatalf("chunks = %d, want %d", got, chunks)
	}
	if got := sumCounter(t, rm, "mediad.transfer.bytes"); got != total {
		t.Fatalf("bytes = %d, want %d", got, total)
	}
}

func sumCounter(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	found := false
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %s has data type %T", name, m.Data)
			}
			found = true
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if !found {
		t.Fatalf("metric %s not collected", name)
	}
	return total
}
