package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logger configuration options.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error, fatal, panic).
	Level string

	// Format is the output format (json, console, pretty).
	Format string

	// Output is the output destination (stdout, stderr).
	Output string

	// AddSource adds source file and line number to log entries.
	AddSource bool

	// TimeFormat is the time format for timestamps.
	TimeFormat string
}

// DefaultLoggingConfig returns a LoggingConfig with sensible defaults.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		AddSource:  false,
		TimeFormat: time.RFC3339,
	}
}

// NewLogger creates a new zerolog logger based on configuration.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	var output io.Writer

	switch strings.ToLower(cfg.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	// Configure time format
	if cfg.TimeFormat != "" {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	} else {
		zerolog.TimeFieldFormat = time.RFC3339
	}

	// Use console writer for pretty output in development
	if strings.ToLower(cfg.Format) == "console" || strings.ToLower(cfg.Format) == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: zerolog.TimeFieldFormat,
		}
	}

	// Create logger with context
	logger := zerolog.New(output).With().Timestamp()

	// Add caller information if configured
	if cfg.AddSource {
		logger = logger.Caller()
	}

	// Build the final logger
	log := logger.Logger()

	// Set log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	log = log.Level(level)

	return log
}

// parseLevel converts a string log level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithRunContext adds pipeline run fields to a logger.
func WithRunContext(logger zerolog.Logger, runID, source string) zerolog.Logger {
	return logger.With().
		Str("run_id", runID).
		Str("source", source).
		Logger()
}

// WithChunkContext adds upsert chunk fields to a logger.
func WithChunkContext(logger zerolog.Logger, index, size int) zerolog.Logger {
	return logger.With().
		Int("chunk", index).
		Int("chunk_size", size).
		Logger()
}

// WithPaperContext adds the paper's OpenAlex id to a logger.
func WithPaperContext(logger zerolog.Logger, externalID string) zerolog.Logger {
	return logger.With().
		Str("openalex_id", externalID).
		Logger()
}

// WithCheckContext adds a data quality check name to a logger.
func WithCheckContext(logger zerolog.Logger, check string) zerolog.Logger {
	return logger.With().
		Str("check", check).
		Logger()
}

// LoggerFromContext returns base enriched with the run and request ids stored in ctx.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	lc := base.With()
	if runID := RunIDFromContext(ctx); runID != "" {
		lc = lc.Str("run_id", runID)
	}
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		lc = lc.Str("request_id", requestID)
	}
	return lc.Logger()
}
