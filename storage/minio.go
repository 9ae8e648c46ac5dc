// Package storage wraps the MinIO SDK behind the small object-store surface
// the sync stage needs: idempotent puts of local files under deterministic
// keys, readable by anyone.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"trackforge/config"
	"trackforge/logger"
)

// MinioStore uploads files to one bucket on an S3-compatible endpoint.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	baseURL string
	timeout time.Duration
}

// NewMinioStore connects to the configured endpoint and makes sure the
// bucket exists with a public-read policy, so uploaded objects are
// streamable without signed URLs.
func NewMinioStore(cfg *config.Config) (*MinioStore, error) {
	client, err := minio.New(cfg.StorageEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: cfg.StorageUseSSL,
		Region: cfg.StorageRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	s := &MinioStore{
		client:  client,
		bucket:  cfg.StorageBucket,
		baseURL: strings.TrimRight(cfg.StorageBaseURL, "/"),
		timeout: cfg.UploadTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.ensureBucket(ctx, cfg.StorageRegion); err != nil {
		return nil, err
	}

	logger.Info("storage ready",
		logger.String("endpoint", cfg.StorageEndpoint),
		logger.String("bucket", cfg.StorageBucket))
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
		}
		logger.Info("created bucket", logger.String("bucket", s.bucket))
	}

	// Anonymous download for everything in the bucket; the site links
	// straight to the objects.
	policy := fmt.Sprintf(`{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"AWS": ["*"]},
      "Action": ["s3:GetObject"],
      "Resource": ["arn:aws:s3:::%s/*"]
    }
  ]
}`, s.bucket)
	if err := s.client.SetBucketPolicy(ctx, s.bucket, policy); err != nil {
		return fmt.Errorf("setting public-read policy on %s: %w", s.bucket, err)
	}
	return nil
}

// Put uploads the file at path under key and returns its public URL. The
// operation is idempotent at the remote: re-putting the same key simply
// overwrites the object.
func (s *MinioStore) Put(ctx context.Context, key, path, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.client.FPutObject(ctx, s.bucket, key, path, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}
