package recording

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const partialURLPrefix = "/api/recordings/long/partial/"

type Endpoints struct {
	service *RecordingService
}

func NewEndpoints(service *RecordingService) *Endpoints {
	return &Endpoints{service: service}
}

type StartLongRequest struct {
	Username      string        `json:"username"`
	Room          string        `json:"room"`
	RecordingType RecordingType `json:"recordingType"`
	Title         string        `json:"title"`
}

type StartUploadRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
	Text     string `json:"text"`
}

type FinalizeUploadRequest struct {
	SessionID string `json:"sessionId"`
}

type ChunkRequest struct {
	SessionID  string
	ChunkIndex int
	IsFinal    bool
	File       *multipart.FileHeader
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type ActiveSession struct {
	SessionID     string        `json:"sessionId"`
	Username      string        `json:"username"`
	RecordingType RecordingType `json:"recordingType"`
	Title         string        `json:"title"`
	StartedAt     time.Time     `json:"startedAt"`
	ChunkCount    int           `json:"chunkCount"`
	TotalSize     int64         `json:"totalSize"`
	Duration      int64         `json:"duration"`
	PartialURL    string        `json:"partialUrl"`
}

func (e *Endpoints) StartLongRecording(ctx *fasthttp.RequestCtx) {
	var req StartLongRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fmt.Errorf("%w: invalid request body", ErrValidation))
		return
	}

	session, err := e.service.StartSession(NewSession{
		Owner:         req.Username,
		Room:          req.Room,
		RecordingType: req.RecordingType,
		Title:         req.Title,
		Kind:          KindLong,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}

	config := e.service.Config()
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"success":                  true,
		"sessionId":                session.ID,
		"message":                  "Long recording session started",
		"maxChunkSize":             config.MaxChunkSize,
		"recommendedChunkDuration": config.RecommendedChunkDurationSec,
	})
}

func (e *Endpoints) UploadLongChunk(ctx *fasthttp.RequestCtx) {
	req, err := parseChunkRequest(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}

	result, err := e.acceptChunk(context.Background(), req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	partialURL := partialURLPrefix + req.SessionID
	if result.Processing {
		writeJSON(ctx, fasthttp.StatusOK, map[string]any{
			"success":     true,
			"message":     "Final chunk received. Processing recording...",
			"chunkIndex":  req.ChunkIndex,
			"totalChunks": result.ChunkCount,
			"filename":    result.Filename,
			"downloadUrl": result.DownloadURL,
			"partialUrl":  partialURL,
		})
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"success":    true,
		"message":    "Chunk uploaded successfully",
		"chunkIndex": req.ChunkIndex,
		"totalSize":  result.TotalSize,
		"chunkCount": result.ChunkCount,
		"partialUrl": partialURL,
	})
}

func (e *Endpoints) GetPartialRecording(ctx *fasthttp.RequestCtx) {
	sessionID, _ := ctx.UserValue("sessionID").(string)
	if sessionID == "" {
		writeError(ctx, fmt.Errorf("%w: session id is required", ErrValidation))
		return
	}

	stream, err := e.service.StreamPartial(sessionID)
	if err != nil {
		if errors.Is(err, ErrNoData) {
			writeJSON(ctx, fasthttp.StatusNotFound, errorResponse{Error: "No recording data available yet"})
			return
		}
		writeError(ctx, err)
		return
	}

	ctx.SetContentType(stream.ContentType)
	ctx.Response.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, stream.Filename))
	ctx.SetStatusCode(fasthttp.StatusOK)
	// fasthttp closes the stream once the body has been written
	ctx.SetBodyStream(stream, int(stream.Size))
}

func (e *Endpoints) ListActiveRecordings(ctx *fasthttp.RequestCtx) {
	now := e.service.Now()
	sessions := make([]ActiveSession, 0)
	for _, s := range e.service.ListActive() {
		sessions = append(sessions, ActiveSession{
			SessionID:     s.ID,
			Username:      s.Owner,
			RecordingType: s.RecordingType,
			Title:         s.Title,
			StartedAt:     s.CreatedAt,
			ChunkCount:    s.ChunkCount,
			TotalSize:     s.TotalSize,
			Duration:      int64(now.Sub(s.CreatedAt) / time.Second),
			PartialURL:    partialURLPrefix + s.ID,
		})
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"success":  true,
		"sessions": sessions,
	})
}

func (e *Endpoints) StartUploadSession(ctx *fasthttp.RequestCtx) {
	var req StartUploadRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeError(ctx, fmt.Errorf("%w: invalid request body", ErrValidation))
		return
	}

	session, err := e.service.StartSession(NewSession{
		Owner: req.Username,
		Room:  req.Room,
		Title: req.Text,
		Kind:  KindUpload,
	})
	if err != nil {
		writeError(ctx, err)
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"success":   true,
		"sessionId": session.ID,
		"message":   "Upload session started",
	})
}

func (e *Endpoints) UploadChunk(ctx *fasthttp.RequestCtx) {
	req, err := parseChunkRequest(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}

	result, err := e.acceptChunk(context.Background(), req)
	if err != nil {
		writeError(ctx, err)
		return
	}

	response := map[string]any{
		"success":    true,
		"chunkIndex": req.ChunkIndex,
		"message":    "Chunk uploaded successfully",
	}
	if result.Processing {
		response["filename"] = result.Filename
		response["videoUrl"] = result.DownloadURL
	}
	writeJSON(ctx, fasthttp.StatusOK, response)
}

func (e *Endpoints) FinalizeUpload(ctx *fasthttp.RequestCtx) {
	var req FinalizeUploadRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.SessionID == "" {
		writeError(ctx, fmt.Errorf("%w: session id is required", ErrValidation))
		return
	}

	rec, err := e.service.Finalize(context.Background(), req.SessionID)
	if err != nil {
		writeError(ctx, err)
		return
	}

	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"success":  true,
		"videoUrl": rec.DownloadURL,
		"filename": rec.Filename,
		"size":     rec.SizeBytes,
		"duration": rec.DurationSeconds,
	})
}

func (e *Endpoints) GetRecordingMetadata(ctx *fasthttp.RequestCtx) {
	filename, _ := ctx.UserValue("filename").(string)
	meta, err := e.service.GetRecording(context.Background(), filename)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, meta)
}

func (e *Endpoints) ListRoomRecordings(ctx *fasthttp.RequestCtx) {
	room, _ := ctx.UserValue("room").(string)
	recordings, err := e.service.ListRoomRecordings(context.Background(), room)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if recordings == nil {
		recordings = []*FinalizedRecording{}
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"success":    true,
		"recordings": recordings,
	})
}

func (e *Endpoints) ListRecordings(ctx *fasthttp.RequestCtx) {
	recordings, err := e.service.ListRecordings(context.Background())
	if err != nil {
		writeError(ctx, err)
		return
	}
	if recordings == nil {
		recordings = []*FinalizedRecording{}
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"success":    true,
		"count":      len(recordings),
		"recordings": recordings,
	})
}

func (e *Endpoints) DownloadRecording(ctx *fasthttp.RequestCtx) {
	filename, _ := ctx.UserValue("filename").(string)
	download, err := e.service.OpenRecording(context.Background(), filename)
	if err != nil {
		writeError(ctx, err)
		return
	}

	log.Debug().Str("filename", download.Filename).Int64("size", download.Size).Msg("[UPLOAD] Serving recording download")
	ctx.SetContentType(download.ContentType)
	ctx.Response.Header.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, download.Filename))
	ctx.Response.Header.Set("Cache-Control", "public, max-age=31536000")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBodyStream(download, int(download.Size))
}

func (e *Endpoints) acceptChunk(ctx context.Context, req *ChunkRequest) (*ChunkResult, error) {
	file, err := req.File.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded chunk: %w", err)
	}
	defer file.Close()

	return e.service.AcceptChunk(ctx, req.SessionID, req.ChunkIndex, file, req.IsFinal)
}

func parseChunkRequest(ctx *fasthttp.RequestCtx) (*ChunkRequest, error) {
	if !strings.HasPrefix(string(ctx.Request.Header.ContentType()), "multipart/form-data") {
		return nil, fmt.Errorf("%w: Content-Type must be multipart/form-data", ErrValidation)
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse multipart form", ErrValidation)
	}

	req := &ChunkRequest{SessionID: formValue(form, "sessionId")}
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrValidation)
	}

	rawIndex := formValue(form, "chunkIndex")
	if rawIndex == "" {
		return nil, fmt.Errorf("%w: chunk index is required", ErrValidation)
	}
	req.ChunkIndex, err = strconv.Atoi(rawIndex)
	if err != nil || req.ChunkIndex < 0 {
		return nil, fmt.Errorf("%w: chunk index must be a non-negative integer", ErrValidation)
	}

	if rawFinal := formValue(form, "isFinal"); rawFinal != "" {
		req.IsFinal, err = strconv.ParseBool(rawFinal)
		if err != nil {
			return nil, fmt.Errorf("%w: isFinal must be a boolean", ErrValidation)
		}
	}

	files := form.File["chunk"]
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no chunk file uploaded", ErrValidation)
	}
	req.File = files[0]

	return req, nil
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return fasthttp.StatusBadRequest
	case errors.Is(err, ErrUnknownSession), errors.Is(err, ErrRecordingNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, ErrInvalidState):
		return fasthttp.StatusConflict
	case errors.Is(err, ErrChunkTooLarge):
		return fasthttp.StatusRequestEntityTooLarge
	case errors.Is(err, ErrNoData):
		return fasthttp.StatusUnprocessableEntity
	default:
		return fasthttp.StatusInternalServerError
	}
}

func writeError(ctx *fasthttp.RequestCtx, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == fasthttp.StatusInternalServerError {
		log.Error().Err(err).Str("path", string(ctx.Path())).Msg("[UPLOAD] Request failed")
		message = "Internal server error"
	} else {
		log.Debug().Err(err).Str("path", string(ctx.Path())).Int("status", status).Msg("[UPLOAD] Request rejected")
	}
	writeJSON(ctx, status, errorResponse{Success: false, Error: message})
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, body any) {
	response, err := json.Marshal(body)
	if err != nil {
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(response)
}
