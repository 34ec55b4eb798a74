package middleware

import (
	"crypto/rand"
	"log/slog"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/logger"
)

// RequestIDHeader is read from trusted upstreams and echoed on every response.
const RequestIDHeader = "X-Request-ID"

const requestIDContextKey = "request_id"

// requestIDPattern bounds IDs accepted from upstream proxies.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,64}$`)

type RequestIDConfig struct {
	// TrustUpstream keeps a well-formed X-Request-ID set by a proxy.
	TrustUpstream bool
	// Generate makes new IDs. Defaults to rand.Text.
	Generate func() string
}

// RequestID tags each request with an ID. The ID is sent back in
// X-Request-ID and added to the logger attrs of the request context, so
// form handlers logging with c.Request.Context() share it.
func RequestID(cfg RequestIDConfig) gin.HandlerFunc {
	generate := cfg.Generate
	if generate == nil {
		generate = rand.Text
	}

	return func(c *gin.Context) {
		id, ok := upstreamRequestID(c, cfg.TrustUpstream)
		if !ok {
			id = generate()
		}

		c.Set(requestIDContextKey, id)
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(
			logger.WithContextAttrs(c.Request.Context(), slog.String(requestIDContextKey, id)),
		)
		c.Next()
	}
}

func upstreamRequestID(c *gin.Context, trust bool) (string, bool) {
	if !trust {
		return "", false
	}
	id := c.GetHeader(RequestIDHeader)
	return id, requestIDPattern.MatchString(id)
}

// GetRequestID returns the ID set by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}
