package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/vitechat/vitechat_server/internal/chunkstore"
	"github.com/vitechat/vitechat_server/internal/storage"
)

type RecordingService struct {
	config     Config
	registry   *SessionRegistry
	receiver   *ChunkReceiver
	finalizer  *Finalizer
	streamer   *PartialStreamer
	reaper     *SessionReaper
	repository Repository
	backend    storage.StorageBackend
}

func NewRecordingService(config Config, store *chunkstore.Store, backend storage.StorageBackend, repository Repository, notifier Notifier) *RecordingService {
	config = config.WithDefaults()
	registry := NewSessionRegistry(store, config)
	finalizer := NewFinalizer(registry, store, backend, repository, notifier)

	return &RecordingService{
		config:     config,
		registry:   registry,
		receiver:   NewChunkReceiver(registry, store, finalizer),
		finalizer:  finalizer,
		streamer:   NewPartialStreamer(registry, store),
		reaper:     NewSessionReaper(registry, store, notifier),
		repository: repository,
		backend:    backend,
	}
}

func (s *RecordingService) Config() Config {
	return s.config
}

func (s *RecordingService) Start(ctx context.Context) {
	s.reaper.Start(ctx)
}

func (s *RecordingService) Shutdown(ctx context.Context) error {
	s.reaper.Stop()
	return s.finalizer.Shutdown(ctx)
}

func (s *RecordingService) StartSession(req NewSession) (*Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.registry.CreateSession(req)
}

func (s *RecordingService) AcceptChunk(ctx context.Context, sessionID string, index int, payload io.Reader, isFinal bool) (*ChunkResult, error) {
	return s.receiver.Accept(ctx, sessionID, index, payload, isFinal)
}

func (s *RecordingService) Finalize(ctx context.Context, sessionID string) (*FinalizedRecording, error) {
	return s.finalizer.Finalize(ctx, sessionID)
}

func (s *RecordingService) StreamPartial(sessionID string) (*PartialStream, error) {
	return s.streamer.StreamPartial(sessionID)
}

// ListActive returns sessions still accepting chunks, oldest first.
func (s *RecordingService) ListActive() []SessionSnapshot {
	var active []SessionSnapshot
	for _, session := range s.registry.List() {
		snapshot := session.Snapshot()
		if snapshot.Status == StatusActive {
			active = append(active, snapshot)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active
}

func (s *RecordingService) Now() time.Time {
	return s.registry.now()
}

type RecordingMetadata struct {
	*FinalizedRecording
	Exists bool `json:"exists"`
}

func (s *RecordingService) GetRecording(ctx context.Context, filename string) (*RecordingMetadata, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrValidation)
	}
	rec, err := s.repository.GetRecordingByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	exists, err := s.backend.Exists(ctx, rec.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("failed to check recording file: %w", err)
	}
	return &RecordingMetadata{FinalizedRecording: rec, Exists: exists}, nil
}

func (s *RecordingService) ListRoomRecordings(ctx context.Context, room string) ([]*FinalizedRecording, error) {
	if room == "" {
		return nil, fmt.Errorf("%w: room is required", ErrValidation)
	}
	return s.repository.ListRecordingsByRoom(ctx, room)
}

const listRecordingsLimit = 500

// ListRecordings returns the most recent finalized recordings across rooms.
func (s *RecordingService) ListRecordings(ctx context.Context) ([]*FinalizedRecording, error) {
	return s.repository.ListRecordings(ctx, listRecordingsLimit)
}

// RecordingDownload is an open finalized recording ready to be streamed.
type RecordingDownload struct {
	io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
}

func (s *RecordingService) OpenRecording(ctx context.Context, filename string) (*RecordingDownload, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrValidation)
	}
	rec, err := s.repository.GetRecordingByFilename(ctx, filename)
	if err != nil {
		return nil, err
	}
	reader, err := s.backend.Get(ctx, rec.StoragePath)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is missing from storage", ErrRecordingNotFound, filename)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	return &RecordingDownload{
		ReadCloser:  reader,
		Size:        rec.SizeBytes,
		ContentType: rec.RecordingType.ContentType(),
		Filename:    rec.Filename,
	}, nil
}

func (s *RecordingService) ActiveSessions() int {
	return s.registry.Count()
}

func (s *RecordingService) StagedBytes() int64 {
	return s.registry.StagedBytes()
}
