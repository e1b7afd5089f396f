// Package upload publishes finished reports to object storage.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Uploader stores a session report remotely. Uploads are best effort:
// callers log failures and continue.
type Uploader interface {
	Upload(ctx context.Context, sessionID, report string) (bool, error)
}

// Locator is implemented by uploaders that can name where a report went.
type Locator interface {
	Location(sessionID string) string
}

// Nop discards uploads.
type Nop struct{}

// Upload reports that nothing was uploaded.
func (Nop) Upload(context.Context, string, string) (bool, error) { return false, nil }

// PutObjectAPI is the part of the S3 client the uploader uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3 or S3-compatible (e.g. Cloudflare R2) target.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	// Prefix is prepended to object keys. Defaults to "reports".
	Prefix string `mapstructure:"prefix"`
}

// Enabled reports whether enough is configured to attempt uploads.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// S3Uploader writes reports to <prefix>/<session>/report.md.
type S3Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger *zap.Logger
}

// Option configures an S3Uploader.
type Option func(*S3Uploader)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *S3Uploader) {
		if l != nil {
			u.logger = l
		}
	}
}

// WithPrefix sets the object key prefix.
func WithPrefix(p string) Option {
	return func(u *S3Uploader) {
		if p != "" {
			u.prefix = p
		}
	}
}

// NewS3Uploader builds an uploader from cfg. Static keys are used when set,
// otherwise the default AWS credential chain applies. A custom endpoint
// switches to path-style addressing, which R2 and most S3-compatible
// stores expect.
func NewS3Uploader(ctx context.Context, cfg S3Config, opts ...Option) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("upload bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	if cfg.Prefix != "" {
		opts = append(opts, WithPrefix(cfg.Prefix))
	}
	return NewS3UploaderWithClient(client, cfg.Bucket, opts...), nil
}

// NewS3UploaderWithClient builds an uploader over an existing client.
func NewS3UploaderWithClient(client PutObjectAPI, bucket string, opts ...Option) *S3Uploader {
	u := &S3Uploader{client: client, bucket: bucket, prefix: "reports", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Key returns the object key for a session's report.
func (u *S3Uploader) Key(sessionID string) string {
	return path.Join(u.prefix, sessionID, "report.md")
}

// Location returns the s3:// URL of a session's report.
func (u *S3Uploader) Location(sessionID string) string {
	return "s3://" + u.bucket + "/" + u.Key(sessionID)
}

// Upload puts the report object.
func (u *S3Uploader) Upload(ctx context.Context, sessionID, report string) (bool, error) {
	key := u.Key(sessionID)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(report)),
		ContentType: aws.String("text/markdown"),
	})
	if err != nil {
		return false, fmt.Errorf("put report object %s: %w", key, err)
	}
	u.logger.Info("report uploaded", zap.String("bucket", u.bucket), zap.String("key", key))
	return true, nil
}

var (
	_ Uploader = Nop{}
	_ Uploader = (*S3Uploader)(nil)
	_ Locator  = (*S3Uploader)(nil)
)
