package recording

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"
)

// Session is one in-progress capture. Identity fields are immutable; all
// other state is guarded by mu.
type Session struct {
	ID            string
	Owner         string
	Room          string
	RecordingType RecordingType
	Title         string
	Kind          Kind
	CreatedAt     time.Time
	ttl           time.Duration

	mu             sync.Mutex
	status         Status
	chunks         map[int]*Chunk
	totalSize      int64
	lastActivityAt time.Time
	filename       string
	done           chan struct{}
	result         *FinalizedRecording
	err            error

	// pending counts chunk writes admitted while ACTIVE. Add is only
	// called with mu held and status ACTIVE.
	pending sync.WaitGroup
}

type SessionSnapshot struct {
	ID             string        `json:"sessionId"`
	Owner          string        `json:"username"`
	Room           string        `json:"room"`
	RecordingType  RecordingType `json:"recordingType"`
	Title          string        `json:"title"`
	Kind           Kind          `json:"kind"`
	Status         Status        `json:"status"`
	CreatedAt      time.Time     `json:"startedAt"`
	LastActivityAt time.Time     `json:"lastActivityAt"`
	ChunkCount     int           `json:"chunkCount"`
	TotalSize      int64         `json:"totalSize"`
	Filename       string        `json:"filename,omitempty"`
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionSnapshot{
		ID:             s.ID,
		Owner:          s.Owner,
		Room:           s.Room,
		RecordingType:  s.RecordingType,
		Title:          s.Title,
		Kind:           s.Kind,
		Status:         s.status,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.lastActivityAt,
		ChunkCount:     len(s.chunks),
		TotalSize:      s.totalSize,
		Filename:       s.filename,
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// sortedChunks returns the chunk records in index order. Caller holds mu.
func (s *Session) sortedChunks() []Chunk {
	chunks := make([]Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		chunks = append(chunks, *c)
	}
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].Index < chunks[j].Index
	})
	return chunks
}

// idleFor reports whether the session has been idle longer than its ttl.
// Caller holds mu.
func (s *Session) idleFor(now time.Time) bool {
	return now.Sub(s.lastActivityAt) > s.ttl
}

func shortID(id string) string {
	if len(id) < 8 {
		return id
	}
	return id[:8]
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func buildFilename(recordingType RecordingType, owner, sessionID string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%d-%s.webm",
		recordingType,
		unsafeFilenameChars.ReplaceAllString(owner, "_"),
		now.UnixMilli(),
		shortID(sessionID),
	)
}
