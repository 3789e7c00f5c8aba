package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/valyala/fasthttp"
	"github.com/vitechat/vitechat_server/internal"
	"github.com/vitechat/vitechat_server/internal/chunkstore"
	"github.com/vitechat/vitechat_server/internal/health"
	"github.com/vitechat/vitechat_server/internal/middleware"
	"github.com/vitechat/vitechat_server/internal/notify"
	"github.com/vitechat/vitechat_server/internal/recording"
	"github.com/vitechat/vitechat_server/internal/storage"
	"github.com/vitechat/vitechat_server/internal/websocket"
)

const version = "1.0.0"

// multipart framing and form fields on top of the chunk payload
const requestBodyOverhead = 1 << 20

func main() {
	config, err := internal.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading config")
		return
	}
	setupLogging(config.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := chunkstore.New(afero.NewOsFs(), config.Recording.StagingDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing chunk store")
		return
	}
	backend, err := storage.NewBackend(&config.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing recording storage")
		return
	}

	var repository recording.Repository
	if config.Database.URL != "" {
		db, err := internal.NewDB(config.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Error initializing database")
			return
		}
		defer db.Close()
		repository = recording.NewPostgresRepository(db)
	} else {
		log.Warn().Msg("No database configured, finalized recordings are kept in memory")
		repository = recording.NewMemoryRepository()
	}

	hub := websocket.NewHub()
	notifier := notify.NewMulti(hub)
	if config.Notify.RedisAddr != "" {
		publisher, client, err := notify.NewRedisPublisher(ctx, config.Notify.RedisAddr, config.Notify.RedisPassword, config.Notify.RedisDB, config.Notify.RedisChannel)
		if err != nil {
			log.Fatal().Err(err).Msg("Error connecting to redis")
			return
		}
		defer client.Close()
		notifier.Add(publisher)
	}
	if len(config.Notify.KafkaBrokers) > 0 {
		publisher := notify.NewKafkaPublisher(config.Notify.KafkaBrokers, config.Notify.KafkaTopic)
		defer publisher.Close()
		notifier.Add(publisher)
	}

	service := recording.NewRecordingService(config.Recording, store, backend, repository, notifier)
	service.Start(ctx)
	go hub.Run(ctx)

	corsMiddleware := middleware.NewCORSMiddleware(config.Server.AllowedOrigins)
	requestHandler := internal.NewRequestHandler(
		config,
		corsMiddleware,
		recording.NewEndpoints(service),
		health.NewEndpoints(version, service),
		websocket.NewHandler(hub, corsMiddleware.Allowed),
	)

	server := &fasthttp.Server{
		Handler:            requestHandler,
		Name:               "vitechat",
		MaxRequestBodySize: int(config.Recording.MaxChunkSize) + requestBodyOverhead,
		ReadTimeout:        config.Server.ReadTimeout,
		WriteTimeout:       config.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", config.Server.Addr).Str("version", version).Msg("Server listening")
		serverErr <- server.ListenAndServe(config.Server.Addr)
	}()

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("Error starting server")
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()
	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server did not shut down cleanly")
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Recording service did not shut down cleanly")
	}
}

func setupLogging(config internal.LogConfig) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if config.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
