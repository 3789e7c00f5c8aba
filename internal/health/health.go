package health

import (
	"github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

type RecordingStats interface {
	ActiveSessions() int
	StagedBytes() int64
}

type HealthEndpoints struct {
	version string
	stats   RecordingStats
}

func NewEndpoints(version string, stats RecordingStats) *HealthEndpoints {
	return &HealthEndpoints{
		version: version,
		stats:   stats,
	}
}

type HealthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	ActiveSessions int    `json:"activeSessions"`
	StagedBytes    int64  `json:"stagedBytes"`
}

func (h *HealthEndpoints) Health(ctx *fasthttp.RequestCtx) {
	response := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	if h.stats != nil {
		response.ActiveSessions = h.stats.ActiveSessions()
		response.StagedBytes = h.stats.StagedBytes()
	}

	responseJSON, err := json.Marshal(response)
	if err != nil {
		ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(responseJSON)
}
