package recording

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitechat/vitechat_server/internal/storage"
)

func TestPartialStreamer_StreamPartial_ShouldServeConsistentSnapshot(t *testing.T) {
	// given
	env := newTestEnv(t)
	session := env.start(t, KindLong)
	first := strings.Repeat("a", 10)
	second := strings.Repeat("b", 20)
	env.mustPut(t, session, 1, second)
	env.mustPut(t, session, 0, first)

	// when
	stream, err := env.service.StreamPartial(session.ID)
	require.NoError(t, err)
	defer stream.Close()
	env.mustPut(t, session, 2, "late chunk")
	env.mustPut(t, session, 0, strings.Repeat("z", 10))
	data, err := io.ReadAll(stream)

	// then
	require.NoError(t, err)
	assert.Equal(t, int64(30), stream.Size)
	assert.Equal(t, 2, stream.ChunkCount)
	assert.Equal(t, first+second, string(data))
	assert.Equal(t, "video/webm", stream.ContentType)
	assert.Equal(t, "partial-"+session.ID[:8]+".webm", stream.Filename)
	assert.Equal(t, 3, session.Snapshot().ChunkCount)
}

func TestPartialStreamer_StreamPartial_ShouldNotMutateSession(t *testing.T) {
	// given
	env := newTestEnv(t)
	session := env.start(t, KindLong)
	env.mustPut(t, session, 0, "AAA")
	before := session.Snapshot()

	// when
	stream, err := env.service.StreamPartial(session.ID)
	require.NoError(t, err)
	io.Copy(io.Discard, stream)
	stream.Close()

	// then
	assert.Equal(t, before, session.Snapshot())
	assert.True(t, env.stagingExists(session.ID))
}

func TestPartialStreamer_StreamPartial_ShouldUseAudioTypeForVoice(t *testing.T) {
	// given
	env := newTestEnv(t)
	session, err := env.service.StartSession(NewSession{Owner: "bob", Room: "general", RecordingType: RecordingTypeVoice, Kind: KindLong})
	require.NoError(t, err)
	env.mustPut(t, session, 0, "voice")

	// when
	stream, err := env.service.StreamPartial(session.ID)

	// then
	require.NoError(t, err)
	defer stream.Close()
	assert.Equal(t, "audio/webm", stream.ContentType)
}

func TestPartialStreamer_StreamPartial_ShouldReturnNoDataWithoutChunks(t *testing.T) {
	env := newTestEnv(t)
	session := env.start(t, KindLong)

	_, err := env.service.StreamPartial(session.ID)

	assert.ErrorIs(t, err, ErrNoData)
}

func TestPartialStreamer_StreamPartial_ShouldReturnUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.StreamPartial("missing")

	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestPartialStreamer_StreamPartial_ShouldRejectFinalizingSession(t *testing.T) {
	// given
	var gate *gatedBackend
	env := newTestEnvWithBackend(t, func(b storage.StorageBackend) storage.StorageBackend {
		gate = &gatedBackend{StorageBackend: b, entered: make(chan struct{}), release: make(chan struct{})}
		return gate
	})
	session := env.start(t, KindLong)
	env.mustPut(t, session, 0, "AAA")
	_, err := env.put(session, 1, "BBB", true)
	require.NoError(t, err)
	<-gate.entered

	// when
	_, partialErr := env.service.StreamPartial(session.ID)
	close(gate.release)

	// then
	assert.ErrorIs(t, partialErr, ErrInvalidState)
	_, err = env.awaitOutcome(t, session)
	assert.NoError(t, err)
}

func TestPartialStreamer_StreamPartial_ShouldServeErroredSession(t *testing.T) {
	// given
	env := newTestEnvWithBackend(t, func(b storage.StorageBackend) storage.StorageBackend {
		return &failingBackend{StorageBackend: b}
	})
	session := env.start(t, KindLong)
	env.mustPut(t, session, 0, "AAA")
	env.mustPut(t, session, 1, "BBB")
	_, err := env.service.Finalize(context.Background(), session.ID)
	require.Error(t, err)

	// when
	stream, err := env.service.StreamPartial(session.ID)

	// then
	require.NoError(t, err)
	defer stream.Close()
	data, _ := io.ReadAll(stream)
	assert.Equal(t, "AAABBB", string(data))
}
