package recording

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/vitechat/vitechat_server/internal/chunkstore"
)

type ChunkResult struct {
	Index       int
	Stored      bool
	TotalSize   int64
	ChunkCount  int
	Processing  bool
	Filename    string
	DownloadURL string
}

type ChunkReceiver struct {
	registry     *SessionRegistry
	store        *chunkstore.Store
	finalizer    *Finalizer
	maxChunkSize int64
}

func NewChunkReceiver(registry *SessionRegistry, store *chunkstore.Store, finalizer *Finalizer) *ChunkReceiver {
	return &ChunkReceiver{
		registry:     registry,
		store:        store,
		finalizer:    finalizer,
		maxChunkSize: registry.config.MaxChunkSize,
	}
}

// Accept stores one chunk of a session. When isFinal is set the session moves
// to FINALIZING and assembly runs in the background; the call only blocks
// when there is nothing to assemble, so it can report ErrNoData.
func (c *ChunkReceiver) Accept(ctx context.Context, sessionID string, index int, payload io.Reader, isFinal bool) (*ChunkResult, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: chunk index must be non-negative", ErrValidation)
	}

	session, err := c.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	switch session.status {
	case StatusActive:
		session.pending.Add(1)
		session.mu.Unlock()
	case StatusFinalizing, StatusCompleted:
		status := session.status
		session.mu.Unlock()
		if isFinal {
			// retried final request; join the running or finished assembly
			return c.finalize(ctx, session, &ChunkResult{Index: index})
		}
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, status)
	case StatusExpired:
		session.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	default:
		status := session.status
		session.mu.Unlock()
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, status)
	}

	result, err := func() (*ChunkResult, error) {
		defer session.pending.Done()
		return c.write(session, index, payload)
	}()
	if err != nil {
		return nil, err
	}

	if !result.Stored && !isFinal {
		return nil, fmt.Errorf("%w: chunk %d is empty", ErrValidation, index)
	}
	if !isFinal {
		return result, nil
	}
	return c.finalize(ctx, session, result)
}

func (c *ChunkReceiver) finalize(ctx context.Context, session *Session, result *ChunkResult) (*ChunkResult, error) {
	t, err := c.finalizer.begin(session)
	if err != nil {
		return nil, err
	}

	if t.empty {
		if _, err := c.finalizer.wait(ctx, t); err != nil {
			return nil, err
		}
	}

	result.Processing = true
	result.Filename = t.filename
	result.DownloadURL = c.finalizer.downloadURL(ctx, t.filename)
	snapshot := session.Snapshot()
	result.ChunkCount = snapshot.ChunkCount
	result.TotalSize = snapshot.TotalSize
	return result, nil
}

// write streams the payload to disk outside the session lock, then commits it
// under the lock only if the session still accepts data.
func (c *ChunkReceiver) write(session *Session, index int, payload io.Reader) (*ChunkResult, error) {
	tmpPath, n, err := c.store.WriteTemp(session.ID, index, payload, c.maxChunkSize)
	if err != nil {
		switch {
		case errors.Is(err, chunkstore.ErrTooLarge):
			return nil, fmt.Errorf("%w: %v", ErrChunkTooLarge, err)
		case errors.Is(err, chunkstore.ErrNoStagingDir):
			return nil, fmt.Errorf("%w: %s", ErrUnknownSession, session.ID)
		}
		c.markError(session, err)
		return nil, err
	}

	if n == 0 {
		c.store.Discard(tmpPath)
		snapshot := session.Snapshot()
		return &ChunkResult{Index: index, TotalSize: snapshot.TotalSize, ChunkCount: snapshot.ChunkCount}, nil
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.status {
	case StatusActive, StatusFinalizing:
	case StatusExpired:
		c.store.Discard(tmpPath)
		if err := c.store.RemoveSessionDir(session.ID); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("[UPLOAD] Failed to remove staging directory of expired session")
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, session.ID)
	default:
		c.store.Discard(tmpPath)
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, session.status)
	}

	path, err := c.store.Commit(tmpPath, session.ID, index)
	if err != nil {
		c.store.Discard(tmpPath)
		if session.status == StatusActive {
			session.status = StatusError
		}
		log.Error().Err(err).Str("sessionId", session.ID).Int("chunkIndex", index).Msg("[UPLOAD] Failed to commit chunk")
		return nil, err
	}

	now := c.registry.touchLocked(session)
	if old, ok := session.chunks[index]; ok {
		session.totalSize -= old.SizeBytes
	}
	session.chunks[index] = &Chunk{
		Index:       index,
		SizeBytes:   n,
		StoragePath: path,
		UploadedAt:  now,
	}
	session.totalSize += n

	log.Debug().
		Str("sessionId", session.ID).
		Int("chunkIndex", index).
		Int64("size", n).
		Int64("totalSize", session.totalSize).
		Msg("[UPLOAD] Chunk stored")

	return &ChunkResult{
		Index:      index,
		Stored:     true,
		TotalSize:  session.totalSize,
		ChunkCount: len(session.chunks),
	}, nil
}

func (c *ChunkReceiver) markError(session *Session, cause error) {
	session.mu.Lock()
	if session.status == StatusActive {
		session.status = StatusError
	}
	session.mu.Unlock()
	log.Error().Err(cause).Str("sessionId", session.ID).Msg("[UPLOAD] Chunk write failed, session moved to ERROR")
}
