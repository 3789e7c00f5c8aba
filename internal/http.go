package internal

import (
	"strings"

	"github.com/valyala/fasthttp"
	"github.com/vitechat/vitechat_server/internal/health"
	"github.com/vitechat/vitechat_server/internal/middleware"
	"github.com/vitechat/vitechat_server/internal/recording"
	"github.com/vitechat/vitechat_server/internal/storage"
	"github.com/vitechat/vitechat_server/internal/websocket"
)

func NewRequestHandler(config *Config, corsMiddleware *middleware.CORSMiddleware, recordingEndpoints *recording.Endpoints, healthEndpoints *health.HealthEndpoints, wsHandler *websocket.Handler) fasthttp.RequestHandler {
	filesPrefix, filesHandler := recordingFilesHandler(config.Storage)

	handler := func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())

		switch {
		case path == "/api/recordings/long/start":
			requireMethod(ctx, fasthttp.MethodPost, recordingEndpoints.StartLongRecording)
		case path == "/api/recordings/long/chunk":
			requireMethod(ctx, fasthttp.MethodPost, recordingEndpoints.UploadLongChunk)
		case path == "/api/recordings/long/active":
			requireMethod(ctx, fasthttp.MethodGet, recordingEndpoints.ListActiveRecordings)
		case strings.HasPrefix(path, "/api/recordings/long/partial/"):
			parts := strings.Split(path, "/")
			if len(parts) == 6 && parts[5] != "" {
				ctx.SetUserValue("sessionID", parts[5])
				requireMethod(ctx, fasthttp.MethodGet, recordingEndpoints.GetPartialRecording)
			} else {
				ctx.Error("Not Found", fasthttp.StatusNotFound)
			}
		case path == "/api/recordings/list":
			requireMethod(ctx, fasthttp.MethodGet, recordingEndpoints.ListRecordings)
		case strings.HasPrefix(path, "/api/recordings/download/"):
			parts := strings.Split(path, "/")
			if len(parts) == 5 && parts[4] != "" {
				ctx.SetUserValue("filename", parts[4])
				requireMethod(ctx, fasthttp.MethodGet, recordingEndpoints.DownloadRecording)
			} else {
				ctx.Error("Not Found", fasthttp.StatusNotFound)
			}
		case strings.HasPrefix(path, "/api/recordings/metadata/"):
			parts := strings.Split(path, "/")
			if len(parts) == 5 && parts[4] != "" {
				ctx.SetUserValue("filename", parts[4])
				requireMethod(ctx, fasthttp.MethodGet, recordingEndpoints.GetRecordingMetadata)
			} else {
				ctx.Error("Not Found", fasthttp.StatusNotFound)
			}
		case strings.HasPrefix(path, "/api/recordings/room/"):
			parts := strings.Split(path, "/")
			if len(parts) == 5 && parts[4] != "" {
				ctx.SetUserValue("room", parts[4])
				requireMethod(ctx, fasthttp.MethodGet, recordingEndpoints.ListRoomRecordings)
			} else {
				ctx.Error("Not Found", fasthttp.StatusNotFound)
			}

		case path == "/api/upload/start-session":
			requireMethod(ctx, fasthttp.MethodPost, recordingEndpoints.StartUploadSession)
		case path == "/api/upload/upload-chunk":
			requireMethod(ctx, fasthttp.MethodPost, recordingEndpoints.UploadChunk)
		case path == "/api/upload/finalize-upload":
			requireMethod(ctx, fasthttp.MethodPost, recordingEndpoints.FinalizeUpload)

		case filesHandler != nil && strings.HasPrefix(path, filesPrefix+"/"):
			requireMethod(ctx, fasthttp.MethodGet, filesHandler)

		case path == "/health":
			healthEndpoints.Health(ctx)
		case path == "/ws":
			wsHandler.HandleFastHTTP(ctx)

		default:
			ctx.Error("Not Found", fasthttp.StatusNotFound)
		}
	}

	return middleware.RequestLogger(corsMiddleware.Handle(handler))
}

func requireMethod(ctx *fasthttp.RequestCtx, method string, next fasthttp.RequestHandler) {
	if string(ctx.Method()) != method {
		ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
		return
	}
	next(ctx)
}

// recordingFilesHandler serves finalized recordings when they live on the
// local disk. S3 recordings are fetched from presigned URLs instead.
func recordingFilesHandler(config storage.BackendConfig) (string, fasthttp.RequestHandler) {
	if config.Type != "" && config.Type != storage.StorageTypeLocal {
		return "", nil
	}
	prefix := "/" + strings.Trim(config.PublicPrefix, "/")
	if prefix == "/" {
		return "", nil
	}

	fs := &fasthttp.FS{
		Root:               config.LocalPath,
		AcceptByteRange:    true,
		GenerateIndexPages: false,
		PathRewrite:        fasthttp.NewPathSlashesStripper(strings.Count(prefix, "/")),
	}
	return prefix, fs.NewRequestHandler()
}
