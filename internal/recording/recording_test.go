package recording

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/vitechat/vitechat_server/internal/chunkstore"
	"github.com/vitechat/vitechat_server/internal/storage"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type capturingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *capturingNotifier) Publish(_ context.Context, event Event) error {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
	return nil
}

func (n *capturingNotifier) Types() []EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]EventType, 0, len(n.events))
	for _, e := range n.events {
		types = append(types, e.Type)
	}
	return types
}

// gatedBackend blocks Store until release is closed.
type gatedBackend struct {
	storage.StorageBackend
	entered chan struct{}
	release chan struct{}
}

func (b *gatedBackend) Store(ctx context.Context, path string, reader io.Reader) error {
	close(b.entered)
	<-b.release
	return b.StorageBackend.Store(ctx, path, reader)
}

type failingBackend struct {
	storage.StorageBackend
}

func (b *failingBackend) Store(ctx context.Context, path string, reader io.Reader) error {
	return errors.New("bucket unavailable")
}

// lossyBackend consumes the whole recording and then fails to save it.
type lossyBackend struct {
	storage.StorageBackend
	consumed int64
}

func (b *lossyBackend) Store(ctx context.Context, path string, reader io.Reader) error {
	n, err := io.Copy(io.Discard, reader)
	b.consumed = n
	if err != nil {
		return err
	}
	return errors.New("upload failed after reading")
}

type testEnv struct {
	fs       afero.Fs
	store    *chunkstore.Store
	backend  *storage.LocalStorage
	repo     *MemoryRepository
	notifier *capturingNotifier
	clock    *fakeClock
	service  *RecordingService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithBackend(t, nil)
}

func newTestEnvWithBackend(t *testing.T, wrap func(storage.StorageBackend) storage.StorageBackend) *testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	store, err := chunkstore.New(fs, "/staging")
	require.NoError(t, err)
	local, err := storage.NewLocalStorage(fs, &storage.BackendConfig{LocalPath: "/recordings"})
	require.NoError(t, err)

	var backend storage.StorageBackend = local
	if wrap != nil {
		backend = wrap(local)
	}

	env := &testEnv{
		fs:       fs,
		store:    store,
		backend:  local,
		repo:     NewMemoryRepository(),
		notifier: &capturingNotifier{},
		clock:    newFakeClock(),
	}
	env.service = NewRecordingService(Config{StagingDir: "/staging", MaxChunkSize: 1024}, store, backend, env.repo, env.notifier)
	env.service.registry.now = env.clock.Now
	return env
}

func (e *testEnv) start(t *testing.T, kind Kind) *Session {
	t.Helper()
	session, err := e.service.StartSession(NewSession{
		Owner:         "alice",
		Room:          "general",
		RecordingType: RecordingTypeScreen,
		Title:         "standup",
		Kind:          kind,
	})
	require.NoError(t, err)
	return session
}

func (e *testEnv) put(session *Session, index int, data string, isFinal bool) (*ChunkResult, error) {
	return e.service.AcceptChunk(context.Background(), session.ID, index, strings.NewReader(data), isFinal)
}

func (e *testEnv) mustPut(t *testing.T, session *Session, index int, data string) {
	t.Helper()
	_, err := e.put(session, index, data, false)
	require.NoError(t, err)
}

// awaitOutcome waits for a finalization that was started in the background.
func (e *testEnv) awaitOutcome(t *testing.T, session *Session) (*FinalizedRecording, error) {
	t.Helper()
	session.mu.Lock()
	done := session.done
	session.mu.Unlock()
	require.NotNil(t, done, "finalization was never started")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("finalization did not finish")
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.result, session.err
}

func (e *testEnv) readRecording(t *testing.T, filename string) string {
	t.Helper()
	data, err := afero.ReadFile(e.fs, "/recordings/"+filename)
	require.NoError(t, err)
	return string(data)
}

func (e *testEnv) stagingExists(sessionID string) bool {
	exists, _ := afero.DirExists(e.fs, "/staging/"+sessionID)
	return exists
}
