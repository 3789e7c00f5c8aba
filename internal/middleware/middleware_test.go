package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
)

func serve(handler fasthttp.RequestHandler, method, origin string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI("/api/recordings/long/active")
	if origin != "" {
		ctx.Request.Header.Set("Origin", origin)
	}
	handler(ctx)
	return ctx
}

func okHandler(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
}

func TestCORSMiddleware_Handle_ShouldEchoAllowedOrigin(t *testing.T) {
	// given
	cors := NewCORSMiddleware([]string{"https://chat.example.com"})

	// when
	ctx := serve(cors.Handle(okHandler), fasthttp.MethodGet, "https://chat.example.com")

	// then
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, "https://chat.example.com", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
	assert.Equal(t, "true", string(ctx.Response.Header.Peek("Access-Control-Allow-Credentials")))
}

func TestCORSMiddleware_Handle_ShouldNotEchoUnknownOrigin(t *testing.T) {
	cors := NewCORSMiddleware([]string{"https://chat.example.com"})

	ctx := serve(cors.Handle(okHandler), fasthttp.MethodGet, "https://evil.example.com")

	assert.Empty(t, ctx.Response.Header.Peek("Access-Control-Allow-Origin"))
}

func TestCORSMiddleware_Handle_ShouldShortCircuitPreflight(t *testing.T) {
	// given
	called := false
	cors := NewCORSMiddleware(nil)

	// when
	ctx := serve(cors.Handle(func(ctx *fasthttp.RequestCtx) { called = true }), fasthttp.MethodOptions, "")

	// then
	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "*", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))
}

func TestCORSMiddleware_Allowed_ShouldMatchLocalhostPattern(t *testing.T) {
	cors := NewCORSMiddleware([]string{"http://localhost:*"})

	assert.True(t, cors.Allowed("http://localhost:5173"))
	assert.True(t, cors.Allowed("https://localhost:8443"))
	assert.False(t, cors.Allowed("http://localhost.evil.com:80"))
}

func TestRequestLogger_ShouldPassThroughResponse(t *testing.T) {
	ctx := serve(RequestLogger(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusRequestEntityTooLarge)
	}), fasthttp.MethodPost, "")

	assert.Equal(t, fasthttp.StatusRequestEntityTooLarge, ctx.Response.StatusCode())
}
