package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// S3Config configures the S3 backend. Endpoint is set for S3 compatible
// services such as MinIO. With BaseURL set, URLs are BaseURL/path instead
// of presigned links.
type S3Config struct {
	Bucket     string
	Region     string
	Endpoint   string
	Key        string
	Secret     string
	BaseURL    string
	PresignTTL time.Duration
	Timeout    time.Duration
}

type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type objectHeader interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3 stores media in an S3 bucket.
type S3 struct {
	uploader  objectUploader
	client    objectHeader
	presigner objectPresigner
	bucket    string
	baseURL   string
	ttl       time.Duration
	timeout   time.Duration
	logger    log.Logger
}

func NewS3(ctx context.Context, cfg S3Config, logger log.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is empty")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.Key != "" {
		creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.Key, cfg.Secret, ""))
		opts = append(opts, config.WithCredentialsProvider(creds))
	}
	awsConf, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsConf, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3(manager.NewUploader(client), client, s3.NewPresignClient(client), cfg, logger), nil
}

func newS3(uploader objectUploader, client objectHeader, presigner objectPresigner, cfg S3Config, logger log.Logger) *S3 {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 24 * time.Hour
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &S3{
		uploader:  uploader,
		client:    client,
		presigner: presigner,
		bucket:    cfg.Bucket,
		baseURL:   cfg.BaseURL,
		ttl:       cfg.PresignTTL,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
}

// Upload puts data at path and returns its download URL.
func (s *S3) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := checkPath(path); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmpty
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to upload media", "path", path, "err", err)
		return "", classify(err, path)
	}
	level.Debug(s.logger).Log("msg", "media uploaded", "path", path, "location", out.Location)
	return s.resolve(ctx, path)
}

// DownloadURL returns a URL for an existing object.
func (s *S3) DownloadURL(ctx context.Context, path string) (string, error) {
	if err := checkPath(path); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return "", classify(err, path)
	}
	return s.resolve(ctx, path)
}

func (s *S3) resolve(ctx context.Context, path string) (string, error) {
	if s.baseURL != "" {
		return joinURL(s.baseURL, path), nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", path, err)
	}
	return req.URL, nil
}

func classify(err error, path string) error {
	var notFound *s3Types.NotFound
	var noKey *s3Types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %s", ErrDenied, path)
		}
	}
	return err
}
