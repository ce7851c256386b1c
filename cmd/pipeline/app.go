package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-etl/internal/config"
	"github.com/helixir/paper-etl/internal/database"
	"github.com/helixir/paper-etl/internal/events"
	"github.com/helixir/paper-etl/internal/observability"
	"github.com/helixir/paper-etl/internal/papersources/openalex"
	"github.com/helixir/paper-etl/internal/snapshot"
)

// app holds what every command needs: configuration, a logger and metrics.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	metrics *observability.Metrics
}

func newApp(component string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", component).Logger()

	a := &app{cfg: cfg, logger: logger}
	if cfg.Metrics.Enabled {
		// A private registry keeps pushes free of Go runtime collectors.
		a.metrics = observability.NewMetricsWithRegistry(cfg.Metrics.Namespace, prometheus.NewRegistry())
	}
	return a, nil
}

func (a *app) connect(ctx context.Context) (*database.DB, error) {
	db, err := database.New(ctx, &a.cfg.Database, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.logger.Info().Msg("database connection established")
	return db, nil
}

// open returns a pool that dials on first use. Pipeline runs check the store
// themselves once there is something to write.
func (a *app) open(ctx context.Context) (*database.DB, error) {
	db, err := database.Open(ctx, &a.cfg.Database, a.logger)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	return db, nil
}

func (a *app) openAlex() *openalex.Client {
	c := a.cfg.OpenAlex
	return openalex.New(openalex.Config{
		BaseURL:    c.BaseURL,
		Email:      c.Email,
		APIKey:     c.APIKey,
		Timeout:    c.Timeout,
		RateLimit:  c.RateLimit,
		PerPage:    c.PerPage,
		MaxPages:   c.MaxPages,
		TopicQuery: c.TopicQuery,
		FieldID:    c.FieldID,
		SubfieldID: c.SubfieldID,
	}, a.logger, a.metrics)
}

// archiver builds the snapshot targets: a local directory and, when
// configured, an S3 bucket. dir overrides the configured directory.
func (a *app) archiver(ctx context.Context, dir string) (*snapshot.MultiArchiver, error) {
	if dir == "" {
		dir = a.cfg.Snapshot.Dir
	}
	multi := &snapshot.MultiArchiver{
		Targets: []snapshot.Archiver{&snapshot.LocalArchiver{Dir: dir, Metrics: a.metrics}},
		Logger:  a.logger,
	}

	s3cfg := a.cfg.Snapshot.S3
	if s3cfg.Enabled {
		client, err := snapshot.NewS3Client(ctx, snapshot.S3Config{
			Bucket:          s3cfg.Bucket,
			Prefix:          s3cfg.Prefix,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		multi.Targets = append(multi.Targets, snapshot.NewS3Archiver(client, s3cfg.Bucket, s3cfg.Prefix, a.metrics))
	}
	return multi, nil
}

func (a *app) publisher() events.Publisher {
	k := a.cfg.Kafka
	if !k.Enabled {
		return events.NoopPublisher{}
	}
	return events.NewKafkaPublisher(events.Config{
		Brokers:      k.Brokers,
		Topic:        k.Topic,
		BatchTimeout: k.BatchTimeout,
		WriteTimeout: k.WriteTimeout,
	}, a.logger, a.metrics)
}

// pushMetrics sends run metrics to the Pushgateway when one is configured.
func (a *app) pushMetrics(ctx context.Context) {
	if a.metrics == nil || a.cfg.Metrics.PushURL == "" {
		return
	}
	if err := a.metrics.Push(context.WithoutCancel(ctx), a.cfg.Metrics.PushURL, a.cfg.Metrics.PushJob); err != nil {
		a.logger.Warn().Err(err).Msg("failed to push metrics")
	}
}

func closePublisher(p events.Publisher, logger zerolog.Logger) {
	if err := p.Close(); err != nil {
		logger.Warn().Err(err).Msg("failed to close event publisher")
	}
}
