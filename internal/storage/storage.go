package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"

	"github.com/spf13/afero"
)

var ErrNotFound = errors.New("file not found")

// StorageBackend is where finalized recordings end up. Store must consume
// the reader incrementally; recordings can be many hours long.
type StorageBackend interface {
	Store(ctx context.Context, path string, reader io.Reader) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	GetURL(ctx context.Context, path string) (string, error)
}

type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

type BackendConfig struct {
	Type         StorageType `mapstructure:"type"`
	LocalPath    string      `mapstructure:"local_path"`
	PublicPrefix string      `mapstructure:"public_prefix"`
	S3Endpoint   string      `mapstructure:"s3_endpoint"`
	S3Bucket     string      `mapstructure:"s3_bucket"`
	S3AccessKey  string      `mapstructure:"s3_access_key"`
	S3SecretKey  string      `mapstructure:"s3_secret_key"`
	S3Region     string      `mapstructure:"s3_region"`
	S3UseSSL     bool        `mapstructure:"s3_use_ssl"`
	S3PartSize   uint64      `mapstructure:"s3_part_size"`
	ExternalURL  string      `mapstructure:"-"`
}

func NewBackend(config *BackendConfig) (StorageBackend, error) {
	switch config.Type {
	case StorageTypeS3:
		return NewS3Storage(config)
	default:
		return NewLocalStorage(afero.NewOsFs(), config)
	}
}

func contentTypeFor(path string) string {
	ext := filepath.Ext(path)
	if ext == ".webm" {
		return "video/webm"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
