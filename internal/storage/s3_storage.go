package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultS3PartSize = 16 * 1024 * 1024

type S3Storage struct {
	client   *minio.Client
	bucket   string
	partSize uint64
}

func NewS3Storage(config *BackendConfig) (*S3Storage, error) {
	client, err := minio.New(config.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.S3AccessKey, config.S3SecretKey, ""),
		Secure: config.S3UseSSL,
		Region: config.S3Region,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, config.S3Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", config.S3Bucket, err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, config.S3Bucket, minio.MakeBucketOptions{Region: config.S3Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", config.S3Bucket, err)
		}
	}

	partSize := config.S3PartSize
	if partSize == 0 {
		partSize = defaultS3PartSize
	}

	return &S3Storage{
		client:   client,
		bucket:   config.S3Bucket,
		partSize: partSize,
	}, nil
}

// Store uploads with an unknown length; PartSize bounds how much of the
// stream minio buffers per multipart part.
func (s *S3Storage) Store(ctx context.Context, path string, reader io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, reader, -1, minio.PutObjectOptions{
		ContentType: contentTypeFor(path),
		PartSize:    s.partSize,
	})
	return err
}

func (s *S3Storage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}

	if _, err = obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	return obj, nil
}

func (s *S3Storage) Delete(ctx context.Context, path string) error {
	return s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
}

func (s *S3Storage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Storage) GetURL(ctx context.Context, path string) (string, error) {
	presignedURL, err := s.client.PresignedGetObject(ctx, s.bucket, path, 24*time.Hour, nil)
	if err != nil {
		return "", err
	}
	return presignedURL.String(), nil
}
