package health

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type fixedStats struct{}

func (fixedStats) ActiveSessions() int { return 3 }
func (fixedStats) StagedBytes() int64  { return 4096 }

func TestHealthEndpoints_Health_ShouldReportRecordingStats(t *testing.T) {
	// given
	endpoints := NewEndpoints("1.2.0", fixedStats{})
	ctx := &fasthttp.RequestCtx{}

	// when
	endpoints.Health(ctx)

	// then
	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	var response HealthResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Equal(t, HealthResponse{Status: "ok", Version: "1.2.0", ActiveSessions: 3, StagedBytes: 4096}, response)
}
