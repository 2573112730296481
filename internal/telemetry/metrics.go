package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DirectoryMetrics instruments refresh cycles and directory queries.
type DirectoryMetrics struct {
	environment string

	refreshCycles   metric.Int64Counter
	refreshDuration metric.Float64Histogram
	snapshotSize    metric.Int64Gauge
	droppedEntries  metric.Int64Counter
	queries         metric.Int64Counter
}

// NewDirectoryMetrics registers the directory instruments on the global meter.
func NewDirectoryMetrics() *DirectoryMetrics {
	meter := otel.Meter("prefixd.directory")
	m := &DirectoryMetrics{environment: Environment()}

	m.refreshCycles, _ = meter.Int64Counter("prefixd_refresh_cycles",
		metric.WithDescription("Refresh cycles completed, labelled by outcome"),
		metric.WithUnit("{cycle}"))

	m.refreshDuration, _ = meter.Float64Histogram("prefixd_refresh_duration",
		metric.WithDescription("Wall time of one fetch-parse-build-publish cycle"),
		metric.WithUnit("ms"))

	m.snapshotSize, _ = meter.Int64Gauge("prefixd_snapshot_prefixes",
		metric.WithDescription("Prefix records held by the current snapshot"),
		metric.WithUnit("{prefix}"))

	m.droppedEntries, _ = meter.Int64Counter("prefixd_dataset_dropped_entries",
		metric.WithDescription("Malformed upstream entries dropped during parse"),
		metric.WithUnit("{entry}"))

	m.queries, _ = meter.Int64Counter("prefixd_directory_queries",
		metric.WithDescription("Directory queries served, labelled by operation and outcome"),
		metric.WithUnit("{query}"))

	return m
}

// RecordRefresh records one completed refresh cycle.
func (m *DirectoryMetrics) RecordRefresh(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil || m.refreshCycles == nil {
		return
	}
	set := metric.WithAttributes(
		attribute.String("environment", m.environment),
		attribute.String("outcome", outcome),
	)
	m.refreshCycles.Add(ctx, 1, set)
	m.refreshDuration.Record(ctx, float64(elapsed.Milliseconds()), set)
}

// RecordSnapshot records the size of a freshly published snapshot and the
// entries dropped while parsing its source document.
func (m *DirectoryMetrics) RecordSnapshot(ctx context.Context, prefixes, dropped int) {
	if m == nil || m.snapshotSize == nil {
		return
	}
	set := metric.WithAttributes(attribute.String("environment", m.environment))
	m.snapshotSize.Record(ctx, int64(prefixes), set)
	if dropped > 0 {
		m.droppedEntries.Add(ctx, int64(dropped), set)
	}
}

// RecordQuery records one served directory query.
func (m *DirectoryMetrics) RecordQuery(ctx context.Context, operation, outcome string) {
	if m == nil || m.queries == nil {
		return
	}
	m.queries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("environment", m.environment),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}
