package recording

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionReaper_Sweep_ShouldExpireIdleUploadSession(t *testing.T) {
	// given
	env := newTestEnv(t)
	session := env.start(t, KindUpload)
	env.mustPut(t, session, 0, "AAA")
	env.mustPut(t, session, 1, "BBB")
	env.clock.Advance(61 * time.Minute)

	// when
	expired := env.service.reaper.Sweep()

	// then
	assert.Equal(t, 1, expired)
	assert.Equal(t, StatusExpired, session.Status())
	assert.False(t, env.service.registry.Has(session.ID))
	assert.False(t, env.stagingExists(session.ID))
	assert.Equal(t, int64(0), env.service.StagedBytes())
	assert.Equal(t, []EventType{EventRecordingExpired}, env.notifier.Types())

	_, err := env.put(session, 2, "CCC", false)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestSessionReaper_Sweep_ShouldKeepLongSessionWithinThreshold(t *testing.T) {
	// given
	env := newTestEnv(t)
	long := env.start(t, KindLong)
	upload := env.start(t, KindUpload)
	env.clock.Advance(2 * time.Hour)

	// when
	expired := env.service.reaper.Sweep()

	// then
	assert.Equal(t, 1, expired)
	assert.Equal(t, StatusActive, long.Status())
	assert.Equal(t, StatusExpired, upload.Status())

	env.clock.Advance(23 * time.Hour)
	assert.Equal(t, 1, env.service.reaper.Sweep())
	assert.Equal(t, StatusExpired, long.Status())
}

func TestSessionReaper_Sweep_ShouldMeasureIdleTimeFromLastChunk(t *testing.T) {
	// given
	env := newTestEnv(t)
	session := env.start(t, KindUpload)
	env.clock.Advance(50 * time.Minute)
	env.mustPut(t, session, 0, "AAA")
	env.clock.Advance(50 * time.Minute)

	// when
	expired := env.service.reaper.Sweep()

	// then
	assert.Equal(t, 0, expired)
	assert.Equal(t, StatusActive, session.Status())
}

func TestSessionReaper_Sweep_ShouldSkipCompletedSessions(t *testing.T) {
	// given
	env := newTestEnv(t)
	session := env.start(t, KindUpload)
	env.mustPut(t, session, 0, "AAA")
	rec, err := env.service.Finalize(context.Background(), session.ID)
	require.NoError(t, err)
	env.clock.Advance(48 * time.Hour)

	// when
	expired := env.service.reaper.Sweep()

	// then
	assert.Equal(t, 0, expired)
	assert.Equal(t, StatusCompleted, session.Status())
	assert.Equal(t, "AAA", env.readRecording(t, rec.Filename))
}

func TestSessionReaper_Sweep_ShouldExpireErroredSession(t *testing.T) {
	// given
	env := newTestEnv(t)
	session := env.start(t, KindUpload)
	env.mustPut(t, session, 0, "AAA")
	session.mu.Lock()
	session.status = StatusError
	session.mu.Unlock()
	env.clock.Advance(2 * time.Hour)

	// when
	expired := env.service.reaper.Sweep()

	// then
	assert.Equal(t, 1, expired)
	assert.False(t, env.stagingExists(session.ID))
}

func TestSessionReaper_Start_ShouldPurgeOrphansAndSweepPeriodically(t *testing.T) {
	// given
	env := newTestEnv(t)
	require.NoError(t, env.fs.MkdirAll("/staging/orphan", 0755))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, env.fs.Chtimes("/staging/orphan", old, old))

	session := env.start(t, KindUpload)
	env.clock.Advance(2 * time.Hour)
	env.service.reaper.interval = 5 * time.Millisecond

	// when
	env.service.Start(context.Background())
	defer env.service.reaper.Stop()

	// then
	exists, _ := afero.DirExists(env.fs, "/staging/orphan")
	assert.False(t, exists)
	assert.Eventually(t, func() bool {
		return !env.service.registry.Has(session.ID)
	}, time.Second, 5*time.Millisecond)
}

func TestSessionReaper_Stop_ShouldBeIdempotent(t *testing.T) {
	env := newTestEnv(t)

	env.service.Start(context.Background())
	env.service.reaper.Stop()
	env.service.reaper.Stop()

	assert.NoError(t, env.service.Shutdown(context.Background()))
}
