// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package curve

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/learningcurve/services/curve/model"
)

// =============================================================================
// Prometheus Metrics for Curve Generation
// =============================================================================

var (
	// shardDuration measures wall-clock time per shard.
	// Labels: family, status (ok, failed)
	shardDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lrncrv",
		Subsystem: "curve",
		Name:      "shard_duration_seconds",
		Help:      "Time spent training and scoring one shard",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"family", "status"})

	// shardsTotal counts shard outcomes.
	// Labels: family, status (ok, failed, skipped)
	shardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lrncrv",
		Subsystem: "curve",
		Name:      "shards_total",
		Help:      "Total shards by outcome",
	}, []string{"family", "status"})

	// shardsInFlight tracks shards currently executing.
	shardsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "lrncrv",
		Subsystem: "curve",
		Name:      "shards_in_flight",
		Help:      "Shards currently executing",
	})

	// runsTotal counts finished runs.
	// Labels: family, outcome (ok, partial, failed, interrupted, error)
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lrncrv",
		Subsystem: "curve",
		Name:      "runs_total",
		Help:      "Total curve runs by outcome",
	}, []string{"family", "outcome"})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// recordShard records a finished shard.
func recordShard(family model.Family, status ShardStatus, elapsed time.Duration) {
	shardsTotal.WithLabelValues(family.String(), string(status)).Inc()
	shardDuration.WithLabelValues(family.String(), string(status)).Observe(elapsed.Seconds())
}

// recordSkipped records shards that were never dispatched.
func recordSkipped(family model.Family, n int) {
	if n > 0 {
		shardsTotal.WithLabelValues(family.String(), string(StatusSkipped)).Add(float64(n))
	}
}

// recordRun records a finished run.
func recordRun(family model.Family, outcome string) {
	runsTotal.WithLabelValues(family.String(), outcome).Inc()
}

// =============================================================================
// OpenTelemetry Run Metrics
// =============================================================================

var meter = otel.Meter("lrncrv.curve")

var (
	otelMetricsOnce sync.Once
	runDuration     metric.Float64Histogram
	runRows         metric.Int64Counter
)

// initOtelMetrics lazily creates the run instruments. Failures are logged
// and the instruments stay nil.
func initOtelMetrics(logger *slog.Logger) {
	otelMetricsOnce.Do(func() {
		var err error
		runDuration, err = meter.Float64Histogram("lrncrv_run_duration_seconds",
			metric.WithDescription("Wall-clock time of a learning-curve run"),
			metric.WithUnit("s"),
		)
		if err != nil {
			logger.Error("failed to create run duration histogram", slog.String("error", err.Error()))
		}
		runRows, err = meter.Int64Counter("lrncrv_run_rows_total",
			metric.WithDescription("Score table rows produced, by status"),
		)
		if err != nil {
			logger.Error("failed to create run rows counter", slog.String("error", err.Error()))
		}
	})
}

// recordRunOtel records the finished run's duration and row counts.
func recordRunOtel(ctx context.Context, family model.Family, summary RunSummary) {
	fam := attribute.String("family", family.String())
	if runDuration != nil {
		runDuration.Record(ctx, summary.Elapsed.Seconds(), metric.WithAttributes(fam))
	}
	if runRows == nil {
		return
	}
	for status, n := range map[ShardStatus]int{
		StatusOK:      summary.Succeeded,
		StatusFailed:  summary.Failed,
		StatusSkipped: summary.Skipped,
	} {
		runRows.Add(ctx, int64(n), metric.WithAttributes(fam, attribute.String("status", string(status))))
	}
}
