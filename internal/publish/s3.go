package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/ayusman/facecascade/internal/cascade"
)

// S3Config holds the export destination. Export is disabled when Bucket is empty.
type S3Config struct {
	Bucket   string `envconfig:"FACECASCADE_S3_BUCKET"`
	Prefix   string `envconfig:"FACECASCADE_S3_PREFIX" default:"cascades"`
	Region   string `envconfig:"FACECASCADE_S3_REGION" default:"us-east-1"`
	Endpoint string `envconfig:"FACECASCADE_S3_ENDPOINT"`
}

// ReadS3Config reads S3Config from the environment.
func ReadS3Config() (*S3Config, error) {
	var cfg S3Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// uploader is the part of *s3manager.Uploader the exporter uses.
type uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3Exporter uploads finished cascades as JSON documents.
type S3Exporter struct {
	bucket   string
	prefix   string
	uploader uploader
	log      zerolog.Logger
}

// NewS3Exporter creates an exporter with a session built from cfg and the
// default credential chain.
func NewS3Exporter(cfg *S3Config, log zerolog.Logger) (*S3Exporter, error) {
	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithMaxRetries(4)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint).WithS3ForcePathStyle(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("could not initialize S3 session: %w", err)
	}

	return &S3Exporter{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: s3manager.NewUploader(sess),
		log:      log,
	}, nil
}

// Key returns the object key of a run's cascade.
func (e *S3Exporter) Key(runID string) string {
	return path.Join(e.prefix, runID+".json")
}

// Export uploads the cascade of a run and returns its location.
func (e *S3Exporter) Export(ctx context.Context, runID string, c *cascade.Cascade) (string, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return "", err
	}

	key := e.Key(runID)
	e.log.Debug().Str("bucket", e.bucket).Str("key", key).Int("bytes", len(body)).Msg("Uploading cascade")

	out, err := e.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return out.Location, nil
}
