package chunkstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

var (
	ErrTooLarge     = errors.New("chunk exceeds size limit")
	ErrNoStagingDir = errors.New("staging directory does not exist")
)

// Store keeps uploaded chunks on disk under {baseDir}/{sessionID}/chunk-{index}.
// It knows nothing about session state; callers decide when files may be
// written or removed.
type Store struct {
	fs      afero.Fs
	baseDir string
}

func New(fs afero.Fs, baseDir string) (*Store, error) {
	if baseDir == "" {
		baseDir = "./uploads/temp"
	}
	if err := fs.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Store{fs: fs, baseDir: baseDir}, nil
}

func ChunkName(index int) string {
	return fmt.Sprintf("chunk-%06d", index)
}

func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.baseDir, sessionID)
}

func (s *Store) ChunkPath(sessionID string, index int) string {
	return filepath.Join(s.SessionDir(sessionID), ChunkName(index))
}

func (s *Store) CreateSessionDir(sessionID string) error {
	if err := s.fs.MkdirAll(s.SessionDir(sessionID), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	return nil
}

// RemoveSessionDir deletes the session directory and everything in it.
// Removing a directory that is already gone is not an error.
func (s *Store) RemoveSessionDir(sessionID string) error {
	if err := s.fs.RemoveAll(s.SessionDir(sessionID)); err != nil {
		return fmt.Errorf("failed to remove session directory: %w", err)
	}
	return nil
}

// WriteTemp streams payload into a uniquely named temporary file inside the
// session directory and returns its path and length. The directory is never
// recreated, so a write racing a removal fails with ErrNoStagingDir.
func (s *Store) WriteTemp(sessionID string, index int, payload io.Reader, maxBytes int64) (string, int64, error) {
	dir := s.SessionDir(sessionID)
	exists, err := afero.DirExists(s.fs, dir)
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat session directory: %w", err)
	}
	if !exists {
		return "", 0, ErrNoStagingDir
	}

	file, err := afero.TempFile(s.fs, dir, "."+ChunkName(index)+"-*.tmp")
	if err != nil {
		if os.IsNotExist(err) {
			return "", 0, ErrNoStagingDir
		}
		return "", 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := file.Name()

	src := payload
	if maxBytes > 0 {
		src = io.LimitReader(payload, maxBytes+1)
	}
	n, err := io.Copy(file, src)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.Discard(tmpPath)
		return "", 0, fmt.Errorf("failed to write chunk: %w", err)
	}
	if maxBytes > 0 && n > maxBytes {
		s.Discard(tmpPath)
		return "", 0, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, maxBytes)
	}

	return tmpPath, n, nil
}

// Commit atomically moves a temp file onto the chunk's final name,
// replacing any earlier payload for the same index.
func (s *Store) Commit(tmpPath, sessionID string, index int) (string, error) {
	finalPath := s.ChunkPath(sessionID, index)
	if err := s.fs.Rename(tmpPath, finalPath); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoStagingDir
		}
		return "", fmt.Errorf("failed to commit chunk: %w", err)
	}
	return finalPath, nil
}

func (s *Store) Discard(tmpPath string) {
	if err := s.Remove(tmpPath); err != nil {
		log.Warn().Err(err).Str("path", tmpPath).Msg("[CHUNKS] Failed to discard temp file")
	}
}

func (s *Store) Open(path string) (afero.File, error) {
	return s.fs.Open(path)
}

// Remove deletes a single file. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := s.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// PurgeOrphans removes staging directories that no live session owns and
// that have not been modified within olderThan. It returns how many were
// removed; individual failures are logged and skipped.
func (s *Store) PurgeOrphans(olderThan time.Duration, isLive func(sessionID string) bool) (int, error) {
	entries, err := afero.ReadDir(s.fs, s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list staging directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() || isLive(entry.Name()) {
			continue
		}
		if entry.ModTime().After(cutoff) {
			continue
		}
		if err := s.RemoveSessionDir(entry.Name()); err != nil {
			log.Warn().Err(err).Str("sessionId", entry.Name()).Msg("[CHUNKS] Failed to purge orphaned staging directory")
			continue
		}
		removed++
	}
	return removed, nil
}
