package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vitechat/vitechat_server/internal/chunkstore"
	"github.com/vitechat/vitechat_server/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Finalizer turns a session's staged chunks into one permanent recording.
// Each session is assembled at most once; concurrent triggers share the
// same outcome.
type Finalizer struct {
	registry   *SessionRegistry
	store      *chunkstore.Store
	backend    storage.StorageBackend
	repository Repository
	notifier   Notifier
	inflight   sync.WaitGroup
}

func NewFinalizer(registry *SessionRegistry, store *chunkstore.Store, backend storage.StorageBackend, repository Repository, notifier Notifier) *Finalizer {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Finalizer{
		registry:   registry,
		store:      store,
		backend:    backend,
		repository: repository,
		notifier:   notifier,
	}
}

type ticket struct {
	session  *Session
	filename string
	empty    bool
	done     <-chan struct{}
}

// Finalize triggers assembly if it has not started yet and waits for the
// outcome.
func (f *Finalizer) Finalize(ctx context.Context, sessionID string) (*FinalizedRecording, error) {
	session, err := f.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	t, err := f.begin(session)
	if err != nil {
		return nil, err
	}
	return f.wait(ctx, t)
}

// Shutdown waits for running assemblies to finish.
func (f *Finalizer) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Finalizer) begin(session *Session) (*ticket, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.status {
	case StatusActive:
		session.status = StatusFinalizing
		session.filename = buildFilename(session.RecordingType, session.Owner, session.ID, f.registry.now())
		session.done = make(chan struct{})
		f.inflight.Add(1)
		go f.assemble(session)
		log.Info().
			Str("sessionId", session.ID).
			Str("filename", session.filename).
			Int("chunkCount", len(session.chunks)).
			Msg("[FINALIZE] Finalization started")
	case StatusFinalizing, StatusCompleted:
	case StatusExpired:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, session.ID)
	default:
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, session.status)
	}

	return &ticket{
		session:  session,
		filename: session.filename,
		empty:    len(session.chunks) == 0,
		done:     session.done,
	}, nil
}

func (f *Finalizer) wait(ctx context.Context, t *ticket) (*FinalizedRecording, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	t.session.mu.Lock()
	defer t.session.mu.Unlock()
	return t.session.result, t.session.err
}

func (f *Finalizer) downloadURL(ctx context.Context, filename string) string {
	url, err := f.backend.GetURL(ctx, filename)
	if err != nil {
		log.Warn().Err(err).Str("filename", filename).Msg("[FINALIZE] Failed to build download URL")
		return ""
	}
	return url
}

func (f *Finalizer) assemble(session *Session) {
	defer f.inflight.Done()
	ctx := context.Background()

	// writes admitted before FINALIZING still belong to this recording
	session.pending.Wait()

	session.mu.Lock()
	chunks := session.sortedChunks()
	filename := session.filename
	session.mu.Unlock()

	if len(chunks) == 0 {
		f.finishEmpty(session)
		return
	}

	size, err := f.stream(ctx, session, chunks, filename)
	if err != nil {
		f.finishFailed(ctx, session, filename, err)
		return
	}
	f.releaseChunks(session, chunks)
	f.finishCompleted(ctx, session, filename, size, len(chunks))
}

// stream copies chunks in index order through a pipe into the permanent
// store. Chunks stay staged until the backend reports the recording saved.
func (f *Finalizer) stream(ctx context.Context, session *Session, chunks []Chunk, filename string) (int64, error) {
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var written int64
	g.Go(func() error {
		err := f.copyChunks(gctx, session, chunks, pw, &written)
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		err := f.backend.Store(gctx, filename, pr)
		if err == nil {
			err = drained(pr)
		}
		pr.CloseWithError(err)
		return err
	})

	if err := g.Wait(); err != nil {
		return written, err
	}
	return written, nil
}

func drained(pr *io.PipeReader) error {
	n, err := io.Copy(io.Discard, pr)
	if err != nil {
		return err
	}
	if n > 0 {
		return errors.New("storage backend returned before consuming the recording")
	}
	return nil
}

func (f *Finalizer) copyChunks(ctx context.Context, session *Session, chunks []Chunk, w io.Writer, written *int64) error {
	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}

		file, err := f.store.Open(chunk.StoragePath)
		if err != nil {
			return fmt.Errorf("failed to open chunk %d: %w", chunk.Index, err)
		}
		n, err := io.Copy(w, file)
		file.Close()
		*written += n
		if err != nil {
			return fmt.Errorf("failed to copy chunk %d: %w", chunk.Index, err)
		}

		f.registry.touch(session)
	}
	return nil
}

// releaseChunks deletes chunks once their bytes are durable in the
// permanent store.
func (f *Finalizer) releaseChunks(session *Session, chunks []Chunk) {
	for _, chunk := range chunks {
		if err := f.store.Remove(chunk.StoragePath); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Str("path", chunk.StoragePath).Msg("[FINALIZE] Failed to delete consumed chunk")
		}
		session.mu.Lock()
		if current, ok := session.chunks[chunk.Index]; ok && current.StoragePath == chunk.StoragePath {
			delete(session.chunks, chunk.Index)
			session.totalSize -= current.SizeBytes
		}
		session.mu.Unlock()
	}
}

func (f *Finalizer) finishEmpty(session *Session) {
	session.mu.Lock()
	if session.status == StatusFinalizing {
		session.status = StatusError
		session.err = fmt.Errorf("%w: session %s has no chunks", ErrNoData, session.ID)
	} else {
		session.err = fmt.Errorf("%w: %s", ErrUnknownSession, session.ID)
	}
	session.mu.Unlock()

	if err := f.store.RemoveSessionDir(session.ID); err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("[FINALIZE] Failed to remove staging directory")
	}
	f.registry.Remove(session.ID)
	close(session.done)

	log.Info().Str("sessionId", session.ID).Msg("[FINALIZE] Nothing to finalize, session discarded")
}

func (f *Finalizer) finishFailed(ctx context.Context, session *Session, filename string, cause error) {
	session.mu.Lock()
	expired := session.status == StatusExpired
	if expired {
		session.err = fmt.Errorf("%w: %s", ErrUnknownSession, session.ID)
	} else {
		session.status = StatusError
		session.err = fmt.Errorf("failed to assemble recording: %w", cause)
	}
	remaining := len(session.chunks)
	session.mu.Unlock()

	if expired {
		if err := f.backend.Delete(ctx, filename); err != nil {
			log.Warn().Err(err).Str("filename", filename).Msg("[FINALIZE] Failed to delete output of expired session")
		}
	} else {
		log.Error().
			Err(cause).
			Str("sessionId", session.ID).
			Str("partialOutput", filename).
			Int("remainingChunks", remaining).
			Msg("[FINALIZE] Finalization failed, partial output kept for recovery")
		f.publish(ctx, Event{
			Type:      EventRecordingFailed,
			Room:      session.Room,
			SessionID: session.ID,
			Owner:     session.Owner,
			Error:     cause.Error(),
		})
	}
	close(session.done)
}

func (f *Finalizer) finishCompleted(ctx context.Context, session *Session, filename string, size int64, chunkCount int) {
	completedAt := f.registry.now()

	session.mu.Lock()
	if session.status != StatusFinalizing {
		session.err = fmt.Errorf("%w: %s", ErrUnknownSession, session.ID)
		session.mu.Unlock()
		if err := f.backend.Delete(ctx, filename); err != nil {
			log.Warn().Err(err).Str("filename", filename).Msg("[FINALIZE] Failed to delete output of expired session")
		}
		close(session.done)
		return
	}

	rec := &FinalizedRecording{
		SessionID:       session.ID,
		Filename:        filename,
		StoragePath:     filename,
		DownloadURL:     f.downloadURL(ctx, filename),
		SizeBytes:       size,
		DurationSeconds: int64(completedAt.Sub(session.CreatedAt) / time.Second),
		ChunkCount:      chunkCount,
		RecordingType:   session.RecordingType,
		Kind:            session.Kind,
		Title:           session.Title,
		Owner:           session.Owner,
		Room:            session.Room,
		StartedAt:       session.CreatedAt,
		CompletedAt:     completedAt,
	}
	session.status = StatusCompleted
	session.result = rec
	session.mu.Unlock()

	if err := f.store.RemoveSessionDir(session.ID); err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("[FINALIZE] Failed to remove staging directory")
	}
	f.registry.Remove(session.ID)

	if f.repository != nil {
		if err := f.repository.SaveRecording(ctx, rec, newRecordingMessage(rec)); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Str("filename", filename).Msg("[FINALIZE] Failed to save recording, file kept")
		}
	}

	f.publish(ctx, Event{
		Type:      EventRecordingCompleted,
		Room:      rec.Room,
		SessionID: rec.SessionID,
		Owner:     rec.Owner,
		Recording: rec,
	})
	close(session.done)

	log.Info().
		Str("sessionId", session.ID).
		Str("filename", filename).
		Int64("size", size).
		Int64("duration", rec.DurationSeconds).
		Int("chunkCount", chunkCount).
		Msg("[FINALIZE] Recording finalized")
}

func (f *Finalizer) publish(ctx context.Context, event Event) {
	event.OccurredAt = f.registry.now().UnixMilli()
	if err := f.notifier.Publish(ctx, event); err != nil {
		log.Warn().Err(err).Str("sessionId", event.SessionID).Str("type", string(event.Type)).Msg("[FINALIZE] Failed to publish event")
	}
}

func newRecordingMessage(rec *FinalizedRecording) *Message {
	return &Message{
		ID:                uuid.NewString(),
		Room:              rec.Room,
		Username:          rec.Owner,
		Text:              fmt.Sprintf("%s (%d minutes)", rec.Title, rec.DurationSeconds/60),
		VideoURL:          rec.DownloadURL,
		RecordingFilename: rec.Filename,
		RecordingType:     rec.RecordingType,
		FileSize:          rec.SizeBytes,
		DurationSeconds:   rec.DurationSeconds,
		CreatedAt:         rec.CompletedAt,
	}
}
