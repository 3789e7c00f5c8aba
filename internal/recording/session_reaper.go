package recording

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vitechat/vitechat_server/internal/chunkstore"
)

// SessionReaper periodically expires sessions that have been idle longer
// than their kind allows and reclaims their staged chunks.
type SessionReaper struct {
	registry    *SessionRegistry
	store       *chunkstore.Store
	notifier    Notifier
	interval    time.Duration
	orphanGrace time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSessionReaper(registry *SessionRegistry, store *chunkstore.Store, notifier Notifier) *SessionReaper {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &SessionReaper{
		registry:    registry,
		store:       store,
		notifier:    notifier,
		interval:    registry.config.SweepInterval,
		orphanGrace: registry.config.OrphanGrace,
	}
}

// Start purges staging directories left behind by a previous process and
// begins sweeping every interval until Stop is called or ctx is done.
func (r *SessionReaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	removed, err := r.store.PurgeOrphans(r.orphanGrace, r.registry.Has)
	if err != nil {
		log.Error().Err(err).Msg("[REAPER] Failed to purge orphaned staging directories")
	} else if removed > 0 {
		log.Info().Int("removed", removed).Msg("[REAPER] Purged orphaned staging directories")
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)

	log.Info().Dur("interval", r.interval).Msg("[REAPER] Session reaper started")
}

func (r *SessionReaper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the sweep loop and waits for a running sweep to finish.
func (r *SessionReaper) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	log.Info().Msg("[REAPER] Stopping session reaper")
	cancel()
	<-done
}

// Sweep expires every idle session once and returns how many were expired.
func (r *SessionReaper) Sweep() int {
	now := r.registry.now()
	expired := 0

	for _, session := range r.registry.List() {
		if !r.expire(session, now) {
			continue
		}
		expired++
		r.reclaim(session)
	}

	if expired > 0 {
		log.Info().Int("expired", expired).Int("active", r.registry.Count()).Msg("[REAPER] Sweep completed")
	}
	return expired
}

func (r *SessionReaper) expire(session *Session, now time.Time) bool {
	session.mu.Lock()
	defer session.mu.Unlock()

	switch session.status {
	case StatusActive, StatusFinalizing, StatusError:
	default:
		return false
	}
	if !session.idleFor(now) {
		return false
	}
	session.status = StatusExpired
	return true
}

func (r *SessionReaper) reclaim(session *Session) {
	session.mu.Lock()
	chunks := session.sortedChunks()
	session.chunks = make(map[int]*Chunk)
	session.totalSize = 0
	session.mu.Unlock()

	for _, chunk := range chunks {
		if err := r.store.Remove(chunk.StoragePath); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Str("path", chunk.StoragePath).Msg("[REAPER] Failed to delete chunk")
		}
	}
	if err := r.store.RemoveSessionDir(session.ID); err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("[REAPER] Failed to remove staging directory")
	}
	r.registry.Remove(session.ID)

	log.Info().
		Str("sessionId", session.ID).
		Str("username", session.Owner).
		Int("chunkCount", len(chunks)).
		Msg("[REAPER] Session expired")

	event := Event{
		Type:       EventRecordingExpired,
		Room:       session.Room,
		SessionID:  session.ID,
		Owner:      session.Owner,
		OccurredAt: r.registry.now().UnixMilli(),
	}
	if err := r.notifier.Publish(context.Background(), event); err != nil {
		log.Warn().Err(err).Str("sessionId", session.ID).Msg("[REAPER] Failed to publish expiry")
	}
}
