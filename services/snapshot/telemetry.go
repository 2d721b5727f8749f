package snapshot

import (
	"context"
	"sync"
	"time"

	"snapseal/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	snapshotTelemetryOnce    sync.Once
	snapshotTracer           trace.Tracer
	snapshotLockLatency      metric.Float64Histogram
	snapshotLockFileCount    metric.Float64Histogram
	snapshotVerifyCounter    metric.Int64Counter
	snapshotPackageCounter   metric.Int64Counter
	manifestCacheEventsTotal metric.Int64Counter
)

func initSnapshotTelemetry() {
	snapshotTelemetryOnce.Do(func() {
		logger := logging.GetLogger()
		snapshotTracer = otel.Tracer("snapseal/services/snapshot")
		meter := otel.GetMeterProvider().Meter("snapseal/services/snapshot")

		var err error
		if snapshotLockLatency, err = meter.Float64Histogram(
			"snapseal_snapshot_lock_duration_ms",
			metric.WithDescription("Latency of snapshot lock operations in milliseconds"),
			metric.WithUnit("ms"),
		); err != nil {
			logger.Warn("Failed to register snapshot lock latency metric: %v", err)
		}

		if snapshotLockFileCount, err = meter.Float64Histogram(
			"snapseal_snapshot_lock_file_count",
			metric.WithDescription("Number of evidence files frozen per snapshot lock"),
		); err != nil {
			logger.Warn("Failed to register snapshot lock file count metric: %v", err)
		}

		if snapshotVerifyCounter, err = meter.Int64Counter(
			"snapseal_snapshot_verifications_total",
			metric.WithDescription("Total snapshot verifications grouped by outcome"),
		); err != nil {
			logger.Warn("Failed to register snapshot verification counter: %v", err)
		}

		if snapshotPackageCounter, err = meter.Int64Counter(
			"snapseal_snapshot_packages_total",
			metric.WithDescription("Total evidence packages exported"),
		); err != nil {
			logger.Warn("Failed to register snapshot package counter: %v", err)
		}

		if manifestCacheEventsTotal, err = meter.Int64Counter(
			"snapseal_manifest_cache_events_total",
			metric.WithDescription("Manifest cache events (hit/miss)"),
		); err != nil {
			logger.Warn("Failed to register manifest cache counter: %v", err)
		}
	})
}

func startSnapshotSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	initSnapshotTelemetry()
	if snapshotTracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return snapshotTracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func recordSnapshotLock(ctx context.Context, duration time.Duration, fileCount int) {
	if snapshotLockLatency != nil {
		snapshotLockLatency.Record(ctx, float64(duration.Milliseconds()))
	}
	if snapshotLockFileCount != nil {
		snapshotLockFileCount.Record(ctx, float64(fileCount))
	}
}

func recordSnapshotVerification(ctx context.Context, valid bool) {
	if snapshotVerifyCounter == nil {
		return
	}
	outcome := "invalid"
	if valid {
		outcome = "valid"
	}
	snapshotVerifyCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func recordSnapshotPackage(ctx context.Context, includedFiles int) {
	if snapshotPackageCounter == nil {
		return
	}
	snapshotPackageCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("included_files", includedFiles),
	))
}

func recordManifestCacheEvent(ctx context.Context, hit bool) {
	if manifestCacheEventsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	manifestCacheEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
	))
}
