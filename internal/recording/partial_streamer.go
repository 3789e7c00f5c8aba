package recording

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/vitechat/vitechat_server/internal/chunkstore"
)

type PartialStream struct {
	io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
	ChunkCount  int
}

type PartialStreamer struct {
	registry *SessionRegistry
	store    *chunkstore.Store
}

func NewPartialStreamer(registry *SessionRegistry, store *chunkstore.Store) *PartialStreamer {
	return &PartialStreamer{registry: registry, store: store}
}

// StreamPartial returns the concatenation of every chunk received so far.
// All chunk files are opened while the session is locked; the open handles
// keep the snapshot readable even if chunks are replaced or deleted later.
func (p *PartialStreamer) StreamPartial(sessionID string) (*PartialStream, error) {
	session, err := p.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.status {
	case StatusActive, StatusError:
	case StatusExpired, StatusCompleted:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	default:
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidState, session.status)
	}

	chunks := session.sortedChunks()
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks uploaded yet", ErrNoData)
	}

	files := make([]afero.File, 0, len(chunks))
	var size int64
	for _, chunk := range chunks {
		file, err := p.store.Open(chunk.StoragePath)
		if err != nil {
			closeAll(files)
			return nil, fmt.Errorf("failed to open chunk %d: %w", chunk.Index, err)
		}
		files = append(files, file)
		size += chunk.SizeBytes
	}

	log.Debug().
		Str("sessionId", sessionID).
		Int("chunkCount", len(chunks)).
		Int64("size", size).
		Msg("[PARTIAL] Streaming partial recording")

	return &PartialStream{
		ReadCloser:  &multiFileReader{files: files},
		Size:        size,
		ContentType: session.RecordingType.ContentType(),
		Filename:    fmt.Sprintf("partial-%s.webm", shortID(sessionID)),
		ChunkCount:  len(chunks),
	}, nil
}

type multiFileReader struct {
	files []afero.File
	pos   int
}

func (m *multiFileReader) Read(p []byte) (int, error) {
	for m.pos < len(m.files) {
		n, err := m.files[m.pos].Read(p)
		if err == io.EOF {
			m.files[m.pos].Close()
			m.pos++
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
	return 0, io.EOF
}

func (m *multiFileReader) Close() error {
	closeAll(m.files[m.pos:])
	m.pos = len(m.files)
	return nil
}

func closeAll(files []afero.File) {
	for _, f := range files {
		f.Close()
	}
}
