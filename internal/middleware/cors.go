package middleware

import (
	"regexp"

	"github.com/valyala/fasthttp"
)

var localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1)(:\d+)?$`)

type CORSMiddleware struct {
	allowedOrigins []string
	wildcard       bool
}

// NewCORSMiddleware treats an empty list as "*". "http://localhost:*" style
// entries match localhost on any port.
func NewCORSMiddleware(allowedOrigins []string) *CORSMiddleware {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	cm := &CORSMiddleware{allowedOrigins: allowedOrigins}
	for _, o := range allowedOrigins {
		if o == "*" {
			cm.wildcard = true
		}
	}
	return cm
}

func (cm *CORSMiddleware) Handle(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		origin := string(ctx.Request.Header.Peek("Origin"))

		switch {
		case origin != "" && cm.Allowed(origin):
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
			ctx.Response.Header.Add("Vary", "Origin")
		case cm.wildcard:
			ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
		}

		ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Response.Header.Set("Access-Control-Allow-Headers", "Content-Type")
		ctx.Response.Header.Set("Access-Control-Expose-Headers", "Content-Disposition, Content-Length")
		ctx.Response.Header.Set("Access-Control-Max-Age", "86400")

		if ctx.IsOptions() {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		next(ctx)
	}
}

// Allowed reports whether origin may call the API or open a websocket.
func (cm *CORSMiddleware) Allowed(origin string) bool {
	if cm.wildcard {
		return true
	}
	for _, allowed := range cm.allowedOrigins {
		if allowed == origin {
			return true
		}
		if (allowed == "http://localhost:*" || allowed == "https://localhost:*") && localhostOrigin.MatchString(origin) {
			return true
		}
	}
	return false
}
