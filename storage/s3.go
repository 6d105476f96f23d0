// Package storage uploads local temporary files to S3 and returns stable
// object URLs.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/tryonix/tryonix-server/apperr"
	appConfig "github.com/tryonix/tryonix-server/config"
)

// BlobStore wraps the S3 client for namespaced image uploads.
type BlobStore struct {
	client  *s3.Client
	bucket  string
	region  string
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

// New builds a BlobStore from the default AWS credential chain.
func New(ctx context.Context, cfg *appConfig.Config, logger *slog.Logger) (*BlobStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	return &BlobStore{
		client:  s3.NewFromConfig(awsCfg),
		bucket:  cfg.AWSBucketName,
		region:  cfg.AWSRegion,
		prefix:  cfg.UploadPrefix,
		timeout: cfg.UploadTimeout,
		logger:  logger,
	}, nil
}

// Upload pushes the file at localPath to S3 and returns its durable URL.
// On success the local file is deleted (best-effort, failures are logged).
// On failure the local file is left in place for the caller's own cleanup.
// Each call creates a new object, so blind retries duplicate storage.
func (b *BlobStore) Upload(ctx context.Context, localPath string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", apperr.ExternalService("Image upload failed", fmt.Errorf("open %s: %w", localPath, err))
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(localPath))
	objectKey := fmt.Sprintf("%s/%s%s", b.prefix, uuid.NewString(), ext)

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(objectKey),
		Body:        file,
		ContentType: aws.String(contentTypeForExt(ext)),
	})
	if err != nil {
		return "", apperr.ExternalService("Image upload failed", fmt.Errorf("put %s: %w", objectKey, err))
	}

	if err := os.Remove(localPath); err != nil {
		b.logger.Warn("failed to delete local file after upload", "path", localPath, "error", err)
	}

	return b.objectURL(objectKey), nil
}

func (b *BlobStore) objectURL(objectKey string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", b.bucket, b.region, objectKey)
}

func contentTypeForExt(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
