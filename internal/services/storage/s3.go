package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"path"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"foundry/internal/config"
	"foundry/internal/logging"
	"foundry/internal/services"
)

// s3PutObjectAPI is the minimal S3 interface needed by the provider,
// allowing injection of a mock client in tests.
type s3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 stores payloads in an S3 (or S3-compatible) bucket. Object storage has
// no per-upload funding model, so cost estimation reports zero and the
// balance check always passes.
type S3 struct {
	bucket    string
	region    string
	endpoint  string
	publicURL string
	client    s3PutObjectAPI
	logger    *slog.Logger
}

// S3Option customizes the provider.
type S3Option func(*S3)

// WithS3Client injects an S3 client (used in tests).
func WithS3Client(client s3PutObjectAPI) S3Option {
	return func(p *S3) {
		if client != nil {
			p.client = client
		}
	}
}

// NewS3 constructs an S3-backed storage provider.
func NewS3(ctx context.Context, cfg config.S3, logger *slog.Logger, opts ...S3Option) (*S3, error) {
	provider := &S3{
		bucket:    strings.TrimSpace(cfg.Bucket),
		region:    strings.TrimSpace(cfg.Region),
		endpoint:  strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		publicURL: strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/"),
		logger:    logging.NewComponentLogger(logger, "s3"),
	}
	for _, opt := range opts {
		opt(provider)
	}
	if provider.client != nil {
		return provider, nil
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(provider.region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "s3", "new", "load aws config", err)
	}

	var s3Opts []func(*s3.Options)
	if provider.endpoint != "" {
		endpoint := provider.endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
			o.UsePathStyle = true
		})
	}
	provider.client = s3.NewFromConfig(awsCfg, s3Opts...)
	return provider, nil
}

// Name identifies the provider.
func (p *S3) Name() string { return "s3" }

// Upload puts one payload under a random key and returns its public URL.
func (p *S3) Upload(ctx context.Context, payload []byte, contentType string) (string, error) {
	key := uuid.NewString() + extensionFor(contentType)
	input := &s3.PutObjectInput{
		Bucket:      &p.bucket,
		Key:         &key,
		Body:        bytes.NewReader(payload),
		ContentType: &contentType,
	}
	if _, err := p.client.PutObject(ctx, input); err != nil {
		return "", services.Wrap(services.ErrTransient, "s3", "upload", "put object", err)
	}
	return p.objectURL(key), nil
}

// EstimateCost reports zero: object storage is billed out of band.
func (p *S3) EstimateCost(ctx context.Context, totalBytes int64) (uint64, error) {
	return 0, nil
}

// Balance always passes for object storage.
func (p *S3) Balance(ctx context.Context) (uint64, error) {
	return math.MaxUint64, nil
}

func (p *S3) objectURL(key string) string {
	if p.publicURL != "" {
		return p.publicURL + "/" + key
	}
	if p.endpoint != "" {
		return p.endpoint + "/" + path.Join(p.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, p.region, key)
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "video/quicktime":
		return ".mov"
	case "video/webm":
		return ".webm"
	case "application/json":
		return ".json"
	default:
		return ""
	}
}
