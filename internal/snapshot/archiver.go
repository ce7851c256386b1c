package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-etl/internal/domain"
	"github.com/helixir/paper-etl/internal/observability"
)

// Archive targets used in metrics.
const (
	TargetLocal = "local"
	TargetS3    = "s3"
)

// Archiver stores a snapshot of fetched records and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, records []domain.RawRecord, days int, now time.Time) (string, error)
}

// LocalArchiver writes snapshots into Dir.
type LocalArchiver struct {
	Dir     string
	Metrics *observability.Metrics
}

// Archive writes a timestamped file.
func (a *LocalArchiver) Archive(ctx context.Context, records []domain.RawRecord, days int, now time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p, err := Write(a.Dir, records, days, now)
	a.Metrics.RecordSnapshot(TargetLocal, err)
	return p, err
}

// PutObjectAPI is the part of the S3 client the archiver uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 client and the object key prefix.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an S3 client. A custom Endpoint switches to path-style
// addressing for S3-compatible stores; static keys are used when set and the
// default credential chain otherwise.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Archiver uploads snapshots to a bucket.
type S3Archiver struct {
	client  PutObjectAPI
	bucket  string
	prefix  string
	metrics *observability.Metrics
}

// NewS3Archiver creates an archiver writing under prefix in bucket.
func NewS3Archiver(client PutObjectAPI, bucket, prefix string, metrics *observability.Metrics) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), metrics: metrics}
}

// Key returns the object key for a snapshot taken at now.
func (a *S3Archiver) Key(now time.Time) string {
	return path.Join(a.prefix, now.Format("2006/01/02"), FileName(now))
}

// Archive uploads the snapshot and returns its s3:// URI.
func (a *S3Archiver) Archive(ctx context.Context, records []domain.RawRecord, days int, now time.Time) (uri string, err error) {
	defer func() { a.metrics.RecordSnapshot(TargetS3, err) }()

	var buf bytes.Buffer
	if err := Encode(&buf, records, days, now); err != nil {
		return "", err
	}

	key := a.Key(now)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading snapshot to s3://%s/%s: %w", a.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, key), nil
}

// MultiArchiver archives to every target. Each target is attempted even when
// an earlier one fails.
type MultiArchiver struct {
	Targets []Archiver
	Logger  zerolog.Logger
}

// Archive returns the locations joined by ", " and any errors joined.
func (m *MultiArchiver) Archive(ctx context.Context, records []domain.RawRecord, days int, now time.Time) (string, error) {
	var locations []string
	var errs []error
	for _, target := range m.Targets {
		loc, err := target.Archive(ctx, records, days, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		m.Logger.Info().Str("location", loc).Int("papers", len(records)).Msg("snapshot archived")
		locations = append(locations, loc)
	}
	return strings.Join(locations, ", "), errors.Join(errs...)
}
