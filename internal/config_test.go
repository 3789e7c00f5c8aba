package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitechat/vitechat_server/internal/storage"
)

func TestLoadConfig_MissingFileShouldFallBackToDefaults(t *testing.T) {
	// when
	config, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))

	// then
	require.NoError(t, err)
	assert.Equal(t, ":8080", config.Server.Addr)
	assert.Equal(t, int64(50*1024*1024), config.Recording.MaxChunkSize)
	assert.Equal(t, time.Hour, config.Recording.UploadSessionTTL)
	assert.Equal(t, 24*time.Hour, config.Recording.LongSessionTTL)
	assert.Equal(t, 5*time.Minute, config.Recording.SweepInterval)
	assert.Equal(t, 300, config.Recording.RecommendedChunkDurationSec)
	assert.Equal(t, storage.StorageTypeLocal, config.Storage.Type)
	assert.Empty(t, config.Database.URL)
	assert.Equal(t, "info", config.Log.Level)
}

func TestLoadConfig_ShouldReadYAMLSections(t *testing.T) {
	// given
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  addr: ":9090"
  external_url: "https://chat.example.com"
  allowed_origins: ["https://chat.example.com"]
recording:
  max_chunk_size: 1048576
  long_session_ttl: 2h
storage:
  type: s3
  s3_bucket: recordings
notify:
  kafka_brokers: ["kafka-1:9092", "kafka-2:9092"]
log:
  level: debug
  pretty: true
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	// when
	config, err := loadConfig(path)

	// then
	require.NoError(t, err)
	assert.Equal(t, ":9090", config.Server.Addr)
	assert.Equal(t, []string{"https://chat.example.com"}, config.Server.AllowedOrigins)
	assert.Equal(t, int64(1048576), config.Recording.MaxChunkSize)
	assert.Equal(t, 2*time.Hour, config.Recording.LongSessionTTL)
	assert.Equal(t, time.Hour, config.Recording.UploadSessionTTL)
	assert.Equal(t, storage.StorageTypeS3, config.Storage.Type)
	assert.Equal(t, "recordings", config.Storage.S3Bucket)
	assert.Equal(t, "https://chat.example.com", config.Storage.ExternalURL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, config.Notify.KafkaBrokers)
	assert.True(t, config.Log.Pretty)
}

func TestLoadConfig_EnvironmentShouldOverrideFile(t *testing.T) {
	// given
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o644))
	t.Setenv("VITECHAT_SERVER_ADDR", ":7070")
	t.Setenv("VITECHAT_RECORDING_UPLOAD_SESSION_TTL", "90s")
	t.Setenv("VITECHAT_DATABASE_URL", "postgres://localhost/vitechat")

	// when
	config, err := loadConfig(path)

	// then
	require.NoError(t, err)
	assert.Equal(t, ":7070", config.Server.Addr)
	assert.Equal(t, 90*time.Second, config.Recording.UploadSessionTTL)
	assert.Equal(t, "postgres://localhost/vitechat", config.Database.URL)
}
