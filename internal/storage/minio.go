// Package storage mirrors written result artifacts to S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dante-gpu/dante-backend/llama4-task/internal/config"
	"github.com/dante-gpu/dante-backend/llama4-task/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

const artifactContentType = "text/plain; charset=utf-8"

// MinioMirror uploads artifacts under {prefix}/{job_id}/{filename}.
type MinioMirror struct {
	client        *minio.Client
	logger        *zap.Logger
	cfg           config.ArtifactSettings
	jobID         string
	uploadTimeout time.Duration
}

// NewMinioMirror creates a mirror for one job. No request is made until
// EnsureBucket or Mirror is called.
func NewMinioMirror(cfg config.ArtifactSettings, jobID string, logger *zap.Logger) (*MinioMirror, error) {
	logger.Info("Initializing MinIO artifact mirror",
		zap.String("endpoint", cfg.Endpoint),
		zap.Bool("useSSL", cfg.UseSSL),
		zap.String("region", cfg.Region),
		zap.String("bucket", cfg.Bucket),
	)
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("artifact bucket is not configured")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		logger.Error("Failed to create MinIO client", zap.Error(err))
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioMirror{
		client:        client,
		logger:        logger.Named("minio_mirror"),
		cfg:           cfg,
		jobID:         jobID,
		uploadTimeout: cfg.UploadTimeout,
	}, nil
}

// EnsureBucket creates the configured bucket if it does not already exist.
func (m *MinioMirror) EnsureBucket(ctx context.Context) error {
	m.logger.Debug("Ensuring bucket exists", zap.String("bucket", m.cfg.Bucket), zap.String("region", m.cfg.Region))
	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		m.logger.Error("Failed to check if bucket exists", zap.String("bucket", m.cfg.Bucket), zap.Error(err))
		return fmt.Errorf("failed to check for bucket %s: %w", m.cfg.Bucket, err)
	}
	if exists {
		m.logger.Debug("Bucket already exists", zap.String("bucket", m.cfg.Bucket))
		return nil
	}

	m.logger.Info("Bucket does not exist, creating it", zap.String("bucket", m.cfg.Bucket))
	if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{Region: m.cfg.Region}); err != nil {
		m.logger.Error("Failed to create bucket", zap.String("bucket", m.cfg.Bucket), zap.Error(err))
		return fmt.Errorf("failed to create bucket %s: %w", m.cfg.Bucket, err)
	}
	return nil
}

// ObjectKey returns the object key for an artifact file name.
func (m *MinioMirror) ObjectKey(filename string) string {
	return path.Join(strings.Trim(m.cfg.Prefix, "/"), m.jobID, filename)
}

// Mirror uploads one artifact's content.
func (m *MinioMirror) Mirror(ctx context.Context, artifact models.ResultArtifact) error {
	if m.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.uploadTimeout)
		defer cancel()
	}

	key := m.ObjectKey(artifact.Filename)
	body := strings.NewReader(artifact.Content)
	m.logger.Debug("Uploading artifact",
		zap.String("bucket", m.cfg.Bucket),
		zap.String("key", key),
		zap.Int("size", len(artifact.Content)),
	)

	info, err := m.client.PutObject(ctx, m.cfg.Bucket, key, body, int64(body.Len()), minio.PutObjectOptions{
		ContentType:  artifactContentType,
		UserMetadata: map[string]string{"job-id": m.jobID},
	})
	if err != nil {
		m.logger.Error("Failed to upload artifact", zap.String("bucket", m.cfg.Bucket), zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to upload to %s/%s: %w", m.cfg.Bucket, key, err)
	}

	m.logger.Info("Artifact mirrored",
		zap.String("bucket", info.Bucket),
		zap.String("key", info.Key),
		zap.String("etag", info.ETag),
	)
	return nil
}
