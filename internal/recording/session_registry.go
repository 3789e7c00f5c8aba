package recording

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog/log"
	"github.com/vitechat/vitechat_server/internal/chunkstore"
)

const maxIDAttempts = 3

type NewSession struct {
	Owner         string
	Room          string
	RecordingType RecordingType
	Title         string
	Kind          Kind
}

func (n *NewSession) Validate() error {
	if strings.TrimSpace(n.Owner) == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if strings.TrimSpace(n.Room) == "" {
		return fmt.Errorf("%w: room is required", ErrValidation)
	}
	if n.RecordingType != "" && !n.RecordingType.Valid() {
		return fmt.Errorf("%w: unsupported recording type %q", ErrValidation, n.RecordingType)
	}
	if n.Kind != KindUpload && n.Kind != KindLong {
		return fmt.Errorf("%w: unsupported session kind %q", ErrValidation, n.Kind)
	}
	return nil
}

// SessionRegistry is the in-process directory of sessions that still own
// staged chunks.
type SessionRegistry struct {
	sessions cmap.ConcurrentMap[string, *Session]
	store    *chunkstore.Store
	config   Config
	now      func() time.Time
	newID    func() string
}

func NewSessionRegistry(store *chunkstore.Store, config Config) *SessionRegistry {
	return &SessionRegistry{
		sessions: cmap.New[*Session](),
		store:    store,
		config:   config.WithDefaults(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (r *SessionRegistry) CreateSession(req NewSession) (*Session, error) {
	if req.RecordingType == "" {
		req.RecordingType = RecordingTypeScreen
	}
	if req.Title == "" {
		req.Title = string(req.RecordingType) + " recording"
	}

	now := r.now()
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := r.newID()
		if r.sessions.Has(id) {
			continue
		}
		if err := r.store.CreateSessionDir(id); err != nil {
			return nil, err
		}

		session := &Session{
			ID:             id,
			Owner:          req.Owner,
			Room:           req.Room,
			RecordingType:  req.RecordingType,
			Title:          req.Title,
			Kind:           req.Kind,
			CreatedAt:      now,
			ttl:            r.config.TTL(req.Kind),
			status:         StatusActive,
			chunks:         make(map[int]*Chunk),
			lastActivityAt: now,
		}
		if !r.sessions.SetIfAbsent(id, session) {
			continue
		}

		log.Info().
			Str("sessionId", id).
			Str("username", req.Owner).
			Str("room", req.Room).
			Str("kind", string(req.Kind)).
			Msg("[UPLOAD] Session started")
		return session, nil
	}
	return nil, ErrIDExhausted
}

func (r *SessionRegistry) Get(sessionID string) (*Session, error) {
	session, ok := r.sessions.Get(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return session, nil
}

func (r *SessionRegistry) Touch(sessionID string) error {
	session, err := r.Get(sessionID)
	if err != nil {
		return err
	}
	r.touch(session)
	return nil
}

func (r *SessionRegistry) touch(session *Session) {
	session.mu.Lock()
	r.touchLocked(session)
	session.mu.Unlock()
}

// touchLocked records activity on a session whose mu the caller holds.
func (r *SessionRegistry) touchLocked(session *Session) time.Time {
	now := r.now()
	session.lastActivityAt = now
	return now
}

func (r *SessionRegistry) Remove(sessionID string) {
	r.sessions.Remove(sessionID)
}

func (r *SessionRegistry) Has(sessionID string) bool {
	return r.sessions.Has(sessionID)
}

func (r *SessionRegistry) List() []*Session {
	items := r.sessions.Items()
	sessions := make([]*Session, 0, len(items))
	for _, session := range items {
		sessions = append(sessions, session)
	}
	return sessions
}

func (r *SessionRegistry) Count() int {
	return r.sessions.Count()
}

// StagedBytes sums the chunk bytes currently held on disk by all sessions.
func (r *SessionRegistry) StagedBytes() int64 {
	var total int64
	for _, session := range r.sessions.Items() {
		session.mu.Lock()
		total += session.totalSize
		session.mu.Unlock()
	}
	return total
}
