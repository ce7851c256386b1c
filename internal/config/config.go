// Package config provides configuration management for the paper ETL pipeline.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// EnvPrefix is the prefix for every environment variable read by Load.
const EnvPrefix = "PAPERETL"

// MaxBatchSize bounds pipeline.batch_size. A chunk of this many papers stays
// well under PostgreSQL's 65535 bind parameter limit.
const MaxBatchSize = 2000

// Config holds all configuration for the paper ETL pipeline.
type Config struct {
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Pipeline contains run defaults for the pipeline CLI.
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex OpenAlexConfig `mapstructure:"openalex"`
	// Snapshot contains snapshot file and archive settings.
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	// Kafka contains run event publisher settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// Dashboard contains the read-only stats server settings.
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// URL is a full connection string. When set it takes precedence over the individual fields.
	URL string `mapstructure:"url"`
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// Table is the papers table the pipeline writes and validates.
	Table string `mapstructure:"table"`
	// MaxConns is the maximum number of connections in the pool (default: 10).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 1).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun applies pending migrations before a pipeline run writes (default: true).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
	// Path is the HTTP path for the dashboard's metrics endpoint.
	Path string `mapstructure:"path"`
	// PushURL is a Prometheus Pushgateway address. Batch runs push their metrics there when set.
	PushURL string `mapstructure:"push_url"`
	// PushJob is the Pushgateway job label.
	PushJob string `mapstructure:"push_job"`
}

// PipelineConfig holds the defaults for a pipeline run. CLI flags override them.
type PipelineConfig struct {
	// Days is the publication date lookback window (default: 3).
	Days int `mapstructure:"days"`
	// BatchSize is the number of papers per upsert chunk (default: 100).
	BatchSize int `mapstructure:"batch_size"`
	// SkipTests disables the data quality validator.
	SkipTests bool `mapstructure:"skip_tests"`
}

// OpenAlexConfig holds OpenAlex API configuration.
type OpenAlexConfig struct {
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email is sent as mailto to join the polite pool.
	Email string `mapstructure:"email"`
	// APIKey is the premium API key (loaded from PAPERETL_OPENALEX_API_KEY).
	APIKey string `mapstructure:"-"`
	// Timeout is the timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// PerPage is the page size for works queries (max 200).
	PerPage int `mapstructure:"per_page"`
	// MaxPages bounds how many pages one filter may fetch. Zero means no bound.
	MaxPages int `mapstructure:"max_pages"`
	// TopicQuery is the text used to resolve field and subfield ids.
	TopicQuery string `mapstructure:"topic_query"`
	// FieldID skips topic resolution when set (e.g. "fields/17").
	FieldID string `mapstructure:"field_id"`
	// SubfieldID skips topic resolution when set (e.g. "subfields/1702").
	SubfieldID string `mapstructure:"subfield_id"`
}

// SnapshotConfig holds snapshot file settings.
type SnapshotConfig struct {
	// Enabled writes every fetched batch to a snapshot before upserting.
	Enabled bool `mapstructure:"enabled"`
	// Dir is the local directory snapshots are written to.
	Dir string `mapstructure:"dir"`
	// S3 contains the optional S3 archive settings.
	S3 S3Config `mapstructure:"s3"`
}

// S3Config holds S3 snapshot archive settings.
type S3Config struct {
	// Enabled uploads snapshots to S3 in addition to writing them locally.
	Enabled bool `mapstructure:"enabled"`
	// Bucket is the destination bucket.
	Bucket string `mapstructure:"bucket"`
	// Prefix is prepended to every object key.
	Prefix string `mapstructure:"prefix"`
	// Region is the bucket region.
	Region string `mapstructure:"region"`
	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint string `mapstructure:"endpoint"`
	// AccessKeyID is loaded from PAPERETL_SNAPSHOT_S3_ACCESS_KEY_ID.
	AccessKeyID string `mapstructure:"-"`
	// SecretAccessKey is loaded from PAPERETL_SNAPSHOT_S3_SECRET_ACCESS_KEY.
	SecretAccessKey string `mapstructure:"-"`
}

// KafkaConfig holds run event publisher settings.
type KafkaConfig struct {
	// Enabled controls whether run events are published.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic is the Kafka topic run events are written to.
	Topic string `mapstructure:"topic"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	// WriteTimeout bounds a single publish.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DashboardConfig holds the stats server configuration.
type DashboardConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// Port is the HTTP port (default: 8080).
	Port int `mapstructure:"port"`
	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}

	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// Address returns the dashboard listen address.
func (c *DashboardConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads configuration from a .env file, environment variables and config files.
func Load() (*Config, error) {
	// A .env file is optional. Variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/paper-etl")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.OpenAlex.APIKey = os.Getenv(EnvPrefix + "_OPENALEX_API_KEY")
	cfg.Snapshot.S3.AccessKeyID = os.Getenv(EnvPrefix + "_SNAPSHOT_S3_ACCESS_KEY_ID")
	cfg.Snapshot.S3.SecretAccessKey = os.Getenv(EnvPrefix + "_SNAPSHOT_S3_SECRET_ACCESS_KEY")

	// DB_PASSWORD and DATABASE_URL are honoured for .env files written for other tools.
	if cfg.Database.Password == "" {
		cfg.Database.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.table", "papers")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", true)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "paper_etl")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.push_url", "")
	v.SetDefault("metrics.push_job", "paper_etl_pipeline")

	// Pipeline defaults
	v.SetDefault("pipeline.days", 3)
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.skip_tests", false)

	// OpenAlex defaults
	v.SetDefault("openalex.base_url", "https://api.openalex.org")
	v.SetDefault("openalex.email", "")
	v.SetDefault("openalex.timeout", "30s")
	v.SetDefault("openalex.rate_limit", 10.0)
	v.SetDefault("openalex.per_page", 200)
	v.SetDefault("openalex.max_pages", 0)
	v.SetDefault("openalex.topic_query", "artificial intelligence")
	v.SetDefault("openalex.field_id", "")
	v.SetDefault("openalex.subfield_id", "")

	// Snapshot defaults
	v.SetDefault("snapshot.enabled", true)
	v.SetDefault("snapshot.dir", "temp")
	v.SetDefault("snapshot.s3.enabled", false)
	v.SetDefault("snapshot.s3.bucket", "")
	v.SetDefault("snapshot.s3.prefix", "snapshots/")
	v.SetDefault("snapshot.s3.region", "us-east-1")
	v.SetDefault("snapshot.s3.endpoint", "")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "events.paper_etl.runs")
	v.SetDefault("kafka.batch_timeout", "10ms")
	v.SetDefault("kafka.write_timeout", "10s")

	// Dashboard defaults
	v.SetDefault("dashboard.host", "0.0.0.0")
	v.SetDefault("dashboard.port", 8080)
	v.SetDefault("dashboard.read_timeout", "30s")
	v.SetDefault("dashboard.write_timeout", "30s")
	v.SetDefault("dashboard.shutdown_timeout", "15s")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate database config
	if c.Database.URL == "" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
	}
	if c.Database.Table == "" {
		return fmt.Errorf("database table is required")
	}
	if c.Database.MinConns < 0 {
		return fmt.Errorf("min_conns must be >= 0")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("max_conns must be >= 1")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate pipeline defaults
	if c.Pipeline.Days < 1 {
		return fmt.Errorf("pipeline days must be >= 1, got %d", c.Pipeline.Days)
	}
	if c.Pipeline.BatchSize < 1 || c.Pipeline.BatchSize > MaxBatchSize {
		return fmt.Errorf("pipeline batch_size must be between 1 and %d, got %d", MaxBatchSize, c.Pipeline.BatchSize)
	}

	// Validate OpenAlex config
	if c.OpenAlex.BaseURL == "" {
		return fmt.Errorf("openalex base_url is required")
	}
	if c.OpenAlex.PerPage < 1 || c.OpenAlex.PerPage > 200 {
		return fmt.Errorf("openalex per_page must be between 1 and 200, got %d", c.OpenAlex.PerPage)
	}
	if c.OpenAlex.TopicQuery == "" && c.OpenAlex.FieldID == "" && c.OpenAlex.SubfieldID == "" {
		return fmt.Errorf("openalex topic_query is required when neither field_id nor subfield_id is set")
	}

	// Validate snapshot archive
	if c.Snapshot.S3.Enabled && c.Snapshot.S3.Bucket == "" {
		return fmt.Errorf("snapshot s3 bucket is required when s3 archiving is enabled")
	}

	// Validate Kafka
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka brokers are required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka topic is required when kafka is enabled")
		}
	}

	// Validate dashboard port
	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("invalid dashboard port: %d", c.Dashboard.Port)
	}

	return nil
}
