// Package observability provides logging and metrics support for the paper
// ETL pipeline.
//
// # Logging
//
// Create a logger from configuration:
//
//	logger := observability.NewLogger(observability.LoggingConfig{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "stdout",
//	})
//
// Add run context to a logger:
//
//	logger = observability.WithRunContext(logger, runID, "openalex")
//
// # Metrics
//
// Metrics are grouped by pipeline stage. The pipeline command pushes them to a
// Pushgateway when a push URL is configured, and the dashboard serves them on
// its metrics path:
//
//	metrics := observability.NewMetrics("paper_etl")
//	metrics.RecordChunk("batch", 100, 0, elapsed.Seconds())
//	_ = metrics.Push(ctx, cfg.Metrics.PushURL, cfg.Metrics.PushJob)
//
// # Standard Fields
//
//   - run_id: pipeline run identifier
//   - source: record source (openalex, snapshot)
//   - openalex_id: paper identifier
//   - chunk: upsert chunk index
//   - check: data quality check name
//   - request_id: dashboard request identifier
package observability
