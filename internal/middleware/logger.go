package middleware

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

// RequestLogger logs one line per request. Chunk uploads are frequent, so
// successful requests log at debug and failures at warn or error.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)

		status := ctx.Response.StatusCode()
		var event *zerolog.Event
		switch {
		case status >= fasthttp.StatusInternalServerError:
			event = log.Error()
		case status >= fasthttp.StatusBadRequest:
			event = log.Warn()
		default:
			event = log.Debug()
		}

		event.
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", status).
			Int("requestBytes", len(ctx.Request.Body())).
			Dur("latency", time.Since(start)).
			Str("remote", ctx.RemoteIP().String()).
			Msg("[HTTP] Request handled")
	}
}
