package observability

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics contains all Prometheus metrics for the paper ETL pipeline.
// Metrics are organized by stage: runs, fetching, normalization, upserts,
// data quality, snapshots, events and source HTTP requests.
//
// Every Record method is safe to call on a nil *Metrics, so components can be
// built without metrics in tests.
type Metrics struct {
	// RunsTotal counts finished pipeline runs, labeled by final state (DONE, ABORTED).
	RunsTotal *prometheus.CounterVec

	// RunDuration observes end-to-end run duration in seconds.
	RunDuration prometheus.Histogram

	// LastRunTimestamp is the unix time of the last finished run, labeled by final state.
	LastRunTimestamp *prometheus.GaugeVec

	// RecordsFetched counts raw records returned by a source, labeled by source.
	RecordsFetched *prometheus.CounterVec

	// RecordsSkipped counts raw records the normalizer rejected.
	RecordsSkipped prometheus.Counter

	// PapersWritten counts rows inserted or updated by the upserter.
	PapersWritten prometheus.Counter

	// RowFailures counts papers that could not be written even on their own.
	RowFailures prometheus.Counter

	// ChunksTotal counts upsert chunks, labeled by the tier that finished them (batch, fallback).
	ChunksTotal *prometheus.CounterVec

	// ChunkDuration observes the time to write one chunk in seconds, labeled by tier.
	ChunkDuration *prometheus.HistogramVec

	// QualityChecks counts validator check outcomes, labeled by check and status.
	QualityChecks *prometheus.CounterVec

	// QualityViolations is the violation count from the latest validation, labeled by check.
	QualityViolations *prometheus.GaugeVec

	// SnapshotsWritten counts archived snapshots, labeled by target (local, s3) and result.
	SnapshotsWritten *prometheus.CounterVec

	// EventsPublished counts run events, labeled by result (success, error).
	EventsPublished *prometheus.CounterVec

	// SourceRequestsTotal counts HTTP requests to record sources, labeled by source and endpoint.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed HTTP requests, labeled by source, endpoint and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to record sources in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses from record sources, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates a Metrics instance registered with the default Prometheus registry.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return newMetrics(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry creates a Metrics instance registered with reg.
func NewMetricsWithRegistry(namespace string, reg *prometheus.Registry) *Metrics {
	return newMetrics(namespace, reg, reg)
}

func newMetrics(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Runs
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by final state",
		}, []string{"state"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		LastRunTimestamp: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last finished pipeline run by final state",
		}, []string{"state"}),

		// Records
		RecordsFetched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_fetched_total",
			Help:      "Total number of raw records returned by a source",
		}, []string{"source"}),
		RecordsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Total number of raw records rejected by the normalizer",
		}),

		// Upserts
		PapersWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_written_total",
			Help:      "Total number of paper rows inserted or updated",
		}),
		RowFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_failures_total",
			Help:      "Total number of papers that failed to upsert individually",
		}),
		ChunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upsert_chunks_total",
			Help:      "Total number of upsert chunks by the tier that completed them",
		}, []string{"tier"}),
		ChunkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upsert_chunk_duration_seconds",
			Help:      "Duration of writing one upsert chunk in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tier"}),

		// Data quality
		QualityChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quality_checks_total",
			Help:      "Total number of data quality check outcomes by check and status",
		}, []string{"check", "status"}),
		QualityViolations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quality_violations",
			Help:      "Violations found by the latest data quality run by check",
		}, []string{"check"}),

		// Snapshots and events
		SnapshotsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_written_total",
			Help:      "Total number of snapshot archive attempts by target and result",
		}, []string{"target", "result"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of run events published by result",
		}, []string{"result"}),

		// Source HTTP
		SourceRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to record sources",
		}, []string{"source", "endpoint"}),
		SourceRequestsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to record sources",
		}, []string{"source", "endpoint", "error_type"}),
		SourceRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to record sources in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source", "endpoint"}),
		SourceRateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from record sources",
		}, []string{"source"}),

		gatherer: gatherer,
	}
}

// RecordRunFinished records the final state and duration of a run.
func (m *Metrics) RecordRunFinished(state string, durationSeconds float64, finishedUnix float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(state).Inc()
	m.RunDuration.Observe(durationSeconds)
	m.LastRunTimestamp.WithLabelValues(state).Set(finishedUnix)
}

// RecordRecordsFetched records raw records returned by a source.
func (m *Metrics) RecordRecordsFetched(source string, count int) {
	if m == nil {
		return
	}
	m.RecordsFetched.WithLabelValues(source).Add(float64(count))
}

// RecordRecordsSkipped records records rejected by the normalizer.
func (m *Metrics) RecordRecordsSkipped(count int) {
	if m == nil {
		return
	}
	m.RecordsSkipped.Add(float64(count))
}

// RecordChunk records one finished upsert chunk. tier is "batch" when the
// whole chunk was written at once and "fallback" when rows were retried alone.
func (m *Metrics) RecordChunk(tier string, written int64, failed int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(tier).Inc()
	m.ChunkDuration.WithLabelValues(tier).Observe(durationSeconds)
	m.PapersWritten.Add(float64(written))
	m.RowFailures.Add(float64(failed))
}

// RecordQualityCheck records one validator check outcome.
func (m *Metrics) RecordQualityCheck(check, status string, violations int64) {
	if m == nil {
		return
	}
	m.QualityChecks.WithLabelValues(check, status).Inc()
	m.QualityViolations.WithLabelValues(check).Set(float64(violations))
}

// RecordSnapshot records a snapshot archive attempt.
func (m *Metrics) RecordSnapshot(target string, err error) {
	if m == nil {
		return
	}
	m.SnapshotsWritten.WithLabelValues(target, resultLabel(err)).Inc()
}

// RecordEventPublished records a run event publish attempt.
func (m *Metrics) RecordEventPublished(err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(resultLabel(err)).Inc()
}

// RecordSourceRequest records a request to a record source.
func (m *Metrics) RecordSourceRequest(source, endpoint string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.SourceRequestsTotal.WithLabelValues(source, endpoint).Inc()
	m.SourceRequestDuration.WithLabelValues(source, endpoint).Observe(durationSeconds)
	if err != nil {
		m.SourceRequestsFailed.WithLabelValues(source, endpoint, errorType(err)).Inc()
	}
}

// RecordSourceRateLimited records a rate limit response from a record source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	if m == nil {
		return
	}
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// Push sends every metric in the registry to a Prometheus Pushgateway.
// An empty url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if m == nil || url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(m.gatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// errorType categorizes an error for metric labels.
func errorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case isContextError(err):
		return "canceled"
	default:
		return "request"
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
