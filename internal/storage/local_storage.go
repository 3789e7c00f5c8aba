package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

type LocalStorage struct {
	fs           afero.Fs
	basePath     string
	externalURL  string
	publicPrefix string
}

func NewLocalStorage(fs afero.Fs, config *BackendConfig) (*LocalStorage, error) {
	basePath := config.LocalPath
	if basePath == "" {
		basePath = "./uploads/recordings"
	}
	publicPrefix := config.PublicPrefix
	if publicPrefix == "" {
		publicPrefix = "/uploads/recordings"
	}

	if err := fs.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		fs:           fs,
		basePath:     basePath,
		externalURL:  strings.TrimSuffix(config.ExternalURL, "/"),
		publicPrefix: "/" + strings.Trim(publicPrefix, "/"),
	}, nil
}

// Store writes reader to path. On a copy failure the partial file is left
// in place so it can be recovered by hand.
func (s *LocalStorage) Store(ctx context.Context, path string, reader io.Reader) error {
	fullPath := filepath.Join(s.basePath, path)

	if err := s.fs.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	file, err := s.fs.Create(fullPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(file, &contextReader{ctx: ctx, r: reader}); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", fullPath, err)
	}

	return file.Close()
}

func (s *LocalStorage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := s.fs.Open(filepath.Join(s.basePath, path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return file, nil
}

func (s *LocalStorage) Delete(ctx context.Context, path string) error {
	if err := s.fs.Remove(filepath.Join(s.basePath, path)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	return afero.Exists(s.fs, filepath.Join(s.basePath, path))
}

func (s *LocalStorage) GetURL(ctx context.Context, path string) (string, error) {
	return fmt.Sprintf("%s%s/%s", s.externalURL, s.publicPrefix, strings.TrimPrefix(path, "/")), nil
}

// contextReader stops a long copy once the context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
