package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/jmylchreest/versery-api/internal/config"
)

// ArtifactStore stores binary artifacts and resolves their public location.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	URL(ctx context.Context, key string) (string, error)
}

// StorageService handles object storage operations (S3-compatible, e.g.
// Yandex Object Storage or MinIO).
type StorageService struct {
	client   *s3.Client
	bucket   string
	endpoint string
	enabled  bool
	logger   *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if !cfg.StorageEnabled() {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{
			enabled: false,
			logger:  logger,
		}, nil
	}

	// Load AWS config with static credentials
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true
	})

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)

	return &StorageService{
		client:   client,
		bucket:   cfg.StorageBucket,
		endpoint: strings.TrimRight(cfg.StorageEndpoint, "/"),
		enabled:  true,
		logger:   logger,
	}, nil
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

// Put uploads data under key and returns the key.
func (s *StorageService) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if !s.enabled {
		return "", fmt.Errorf("%w: storage is not configured", ErrStorageFailure)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to upload %s: %w", ErrStorageFailure, key, err)
	}

	s.logger.Info("stored artifact", "key", key, "size_bytes", len(data))
	return key, nil
}

// URL returns the path-style public URL of key.
func (s *StorageService) URL(ctx context.Context, key string) (string, error) {
	if !s.enabled {
		return "", fmt.Errorf("%w: storage is not configured", ErrStorageFailure)
	}
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key), nil
}

// PresignedURL returns a time-limited download URL for key, for buckets that
// are not publicly readable.
func (s *StorageService) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if !s.enabled {
		return "", fmt.Errorf("%w: storage is not configured", ErrStorageFailure)
	}
	if expiry == 0 {
		expiry = 1 * time.Hour
	}

	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("%w: failed to presign %s: %w", ErrStorageFailure, key, err)
	}
	return req.URL, nil
}
