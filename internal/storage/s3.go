package storage

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	enginerrors "github.com/clearlaw/lexengine/internal/errors"
)

// S3Config configures the S3-compatible object store client.
type S3Config struct {
	Endpoint  string // custom endpoint for S3-compatible stores; empty for AWS
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string        // optional key prefix inside the bucket
	Timeout   time.Duration // per-call timeout (default: 5s)
}

// S3Store reads corpus blobs from an S3-compatible object store.
type S3Store struct {
	client  *s3.Client
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewS3Store creates the store client. Missing bucket or credentials are
// configuration errors and fail here, once, rather than per-request.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, enginerrors.New(enginerrors.ErrCodeCredentialMissing, "object storage bucket is required", nil)
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, enginerrors.New(enginerrors.ErrCodeCredentialMissing, "object storage credentials are required", nil)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, enginerrors.ConfigError("load aws config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
		timeout: cfg.Timeout,
	}, nil
}

// Get reads the blob at key, bounded by the configured timeout.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	objectKey := key
	if s.prefix != "" {
		objectKey = s.prefix + "/" + key
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, enginerrors.New(enginerrors.ErrCodeBlobNotFound, "object not found: "+key, ErrNotFound)
		}
		return nil, enginerrors.NetworkError("get object "+key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, enginerrors.NetworkError("read object body "+key, err)
	}
	return data, nil
}

// isNoSuchKey detects the S3 missing-key error codes.
func isNoSuchKey(err error) bool {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

var _ ObjectStore = (*S3Store)(nil)
