package internal

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/vitechat/vitechat_server/internal/recording"
	"github.com/vitechat/vitechat_server/internal/storage"
)

const (
	defaultConfigPath = "files/config.yaml"
	envPrefix         = "VITECHAT"
)

type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	Recording recording.Config      `mapstructure:"recording"`
	Storage   storage.BackendConfig `mapstructure:"storage"`
	Database  DatabaseConfig        `mapstructure:"database"`
	Notify    NotifyConfig          `mapstructure:"notify"`
	Log       LogConfig             `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ExternalURL     string        `mapstructure:"external_url"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type NotifyConfig struct {
	RedisAddr     string   `mapstructure:"redis_addr"`
	RedisPassword string   `mapstructure:"redis_password"`
	RedisDB       int      `mapstructure:"redis_db"`
	RedisChannel  string   `mapstructure:"redis_channel"`
	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
	KafkaTopic    string   `mapstructure:"kafka_topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return loadConfig(defaultConfigPath)
}

func loadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Warn().Str("path", path).Msg("Config file not found, using defaults")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Recording = config.Recording.WithDefaults()
	config.Storage.ExternalURL = config.Server.ExternalURL
	return &config, nil
}

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.external_url", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.read_timeout", 5*time.Minute)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("recording.staging_dir", "./uploads/temp")
	v.SetDefault("recording.max_chunk_size", recording.DefaultMaxChunkSize)
	v.SetDefault("recording.upload_session_ttl", recording.DefaultUploadSessionTTL)
	v.SetDefault("recording.long_session_ttl", recording.DefaultLongSessionTTL)
	v.SetDefault("recording.sweep_interval", recording.DefaultSweepInterval)
	v.SetDefault("recording.orphan_grace", time.Hour)
	v.SetDefault("recording.recommended_chunk_duration_sec", recording.DefaultRecommendedChunkDurationSec)

	v.SetDefault("storage.type", string(storage.StorageTypeLocal))
	v.SetDefault("storage.local_path", "./uploads/recordings")
	v.SetDefault("storage.public_prefix", "/uploads/recordings")
	v.SetDefault("storage.s3_endpoint", "")
	v.SetDefault("storage.s3_bucket", "")
	v.SetDefault("storage.s3_access_key", "")
	v.SetDefault("storage.s3_secret_key", "")
	v.SetDefault("storage.s3_region", "")
	v.SetDefault("storage.s3_use_ssl", true)
	v.SetDefault("storage.s3_part_size", 0)

	v.SetDefault("database.url", "")
	v.SetDefault("database.migrations_path", "file://files/migrations")

	v.SetDefault("notify.redis_addr", "")
	v.SetDefault("notify.redis_password", "")
	v.SetDefault("notify.redis_db", 0)
	v.SetDefault("notify.redis_channel", "vitechat:recordings")
	v.SetDefault("notify.kafka_brokers", []string{})
	v.SetDefault("notify.kafka_topic", "vitechat.recordings")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
