package recording

import (
	"context"
	"time"
)

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusFinalizing Status = "FINALIZING"
	StatusCompleted  Status = "COMPLETED"
	StatusExpired    Status = "EXPIRED"
	StatusError      Status = "ERROR"
)

type RecordingType string

const (
	RecordingTypeScreen RecordingType = "screen"
	RecordingTypeVoice  RecordingType = "voice"
)

func (t RecordingType) Valid() bool {
	return t == RecordingTypeScreen || t == RecordingTypeVoice
}

func (t RecordingType) ContentType() string {
	if t == RecordingTypeVoice {
		return "audio/webm"
	}
	return "video/webm"
}

// Kind selects the upload path a session was started on, which fixes its
// idle expiry.
type Kind string

const (
	KindUpload Kind = "upload"
	KindLong   Kind = "long"
)

type Chunk struct {
	Index       int
	SizeBytes   int64
	StoragePath string
	UploadedAt  time.Time
}

type FinalizedRecording struct {
	SessionID       string        `json:"sessionId"`
	Filename        string        `json:"filename"`
	StoragePath     string        `json:"storagePath"`
	DownloadURL     string        `json:"downloadUrl"`
	SizeBytes       int64         `json:"sizeBytes"`
	DurationSeconds int64         `json:"durationSeconds"`
	ChunkCount      int           `json:"chunkCount"`
	RecordingType   RecordingType `json:"recordingType"`
	Kind            Kind          `json:"kind"`
	Title           string        `json:"title"`
	Owner           string        `json:"owner"`
	Room            string        `json:"room"`
	StartedAt       time.Time     `json:"startedAt"`
	CompletedAt     time.Time     `json:"completedAt"`
}

// Message is the chat message that announces a finalized recording.
type Message struct {
	ID                string        `json:"id"`
	Room              string        `json:"room"`
	Username          string        `json:"username"`
	Text              string        `json:"text"`
	VideoURL          string        `json:"videoUrl"`
	RecordingFilename string        `json:"recordingFilename"`
	RecordingType     RecordingType `json:"recordingType"`
	FileSize          int64         `json:"fileSize"`
	DurationSeconds   int64         `json:"duration"`
	CreatedAt         time.Time     `json:"timestamp"`
}

type Repository interface {
	// SaveRecording stores the recording and the chat message referencing it.
	SaveRecording(ctx context.Context, rec *FinalizedRecording, msg *Message) error
	GetRecordingByFilename(ctx context.Context, filename string) (*FinalizedRecording, error)
	ListRecordingsByRoom(ctx context.Context, room string) ([]*FinalizedRecording, error)
	ListRecordings(ctx context.Context, limit int) ([]*FinalizedRecording, error)
}

type EventType string

const (
	EventRecordingCompleted EventType = "recording.completed"
	EventRecordingFailed    EventType = "recording.failed"
	EventRecordingExpired   EventType = "recording.expired"
)

type Event struct {
	Type       EventType           `json:"type"`
	Room       string              `json:"room"`
	SessionID  string              `json:"sessionId"`
	Owner      string              `json:"owner"`
	Recording  *FinalizedRecording `json:"recording,omitempty"`
	Error      string              `json:"error,omitempty"`
	OccurredAt int64               `json:"occurredAt"`
}

type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

type NopNotifier struct{}

func (NopNotifier) Publish(context.Context, Event) error { return nil }

type Config struct {
	StagingDir                  string        `mapstructure:"staging_dir"`
	MaxChunkSize                int64         `mapstructure:"max_chunk_size"`
	UploadSessionTTL            time.Duration `mapstructure:"upload_session_ttl"`
	LongSessionTTL              time.Duration `mapstructure:"long_session_ttl"`
	SweepInterval               time.Duration `mapstructure:"sweep_interval"`
	OrphanGrace                 time.Duration `mapstructure:"orphan_grace"`
	RecommendedChunkDurationSec int           `mapstructure:"recommended_chunk_duration_sec"`
}

const (
	DefaultMaxChunkSize                = 50 * 1024 * 1024
	DefaultUploadSessionTTL            = time.Hour
	DefaultLongSessionTTL              = 24 * time.Hour
	DefaultSweepInterval               = 5 * time.Minute
	DefaultRecommendedChunkDurationSec = 300
)

func (c Config) WithDefaults() Config {
	if c.StagingDir == "" {
		c.StagingDir = "./uploads/temp"
	}
	if c.MaxChunkSize <= 0 {
		c.MaxChunkSize = DefaultMaxChunkSize
	}
	if c.UploadSessionTTL <= 0 {
		c.UploadSessionTTL = DefaultUploadSessionTTL
	}
	if c.LongSessionTTL <= 0 {
		c.LongSessionTTL = DefaultLongSessionTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.OrphanGrace <= 0 {
		c.OrphanGrace = time.Hour
	}
	if c.RecommendedChunkDurationSec <= 0 {
		c.RecommendedChunkDurationSec = DefaultRecommendedChunkDurationSec
	}
	return c
}

func (c Config) TTL(kind Kind) time.Duration {
	if kind == KindLong {
		return c.LongSessionTTL
	}
	return c.UploadSessionTTL
}
