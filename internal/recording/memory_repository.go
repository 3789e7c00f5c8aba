package recording

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepository keeps recordings and messages in process memory. It is
// used when no database is configured and in tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	recordings map[string]*FinalizedRecording
	messages   map[string][]*Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		recordings: make(map[string]*FinalizedRecording),
		messages:   make(map[string][]*Message),
	}
}

func (r *MemoryRepository) SaveRecording(ctx context.Context, rec *FinalizedRecording, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.recordings[rec.Filename]; exists {
		return fmt.Errorf("recording %s already saved", rec.Filename)
	}
	copied := *rec
	r.recordings[rec.Filename] = &copied
	if msg != nil {
		r.messages[msg.Room] = append(r.messages[msg.Room], msg)
	}
	return nil
}

func (r *MemoryRepository) GetRecordingByFilename(ctx context.Context, filename string) (*FinalizedRecording, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.recordings[filename]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, filename)
	}
	copied := *rec
	return &copied, nil
}

func (r *MemoryRepository) ListRecordingsByRoom(ctx context.Context, room string) ([]*FinalizedRecording, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*FinalizedRecording
	for _, rec := range r.recordings {
		if rec.Room == room {
			copied := *rec
			result = append(result, &copied)
		}
	}

	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CompletedAt.After(result[j].CompletedAt)
	})
	return result, nil
}

func (r *MemoryRepository) ListRecordings(ctx context.Context, limit int) ([]*FinalizedRecording, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*FinalizedRecording, 0, len(r.recordings))
	for _, rec := range r.recordings {
		copied := *rec
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CompletedAt.After(result[j].CompletedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryRepository) Messages(room string) []*Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Message(nil), r.messages[room]...)
}
