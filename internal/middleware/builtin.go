package middleware

import (
	"time"

	"github.com/conneroisu/velto/internal/logging"
	"github.com/conneroisu/velto/internal/web"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// Logger logs each request on the way in and its status on the way out.
func Logger(logger logging.Logger) web.Middleware {
	logger = logger.WithComponent("http")

	return func(req *web.Request, next web.Next) *web.Response {
		start := time.Now()
		logger.Info(req.Context(), "request received",
			"method", req.WireMethod(),
			"path", req.Path)

		res := next(req)

		logger.Info(req.Context(), "request completed",
			"method", req.WireMethod(),
			"path", req.Path,
			"status", res.Status,
			"duration", time.Since(start).String())
		return res
	}
}

// RequestID echoes an inbound X-Request-ID or generates a UUID, and sets it
// on both the request headers and the response.
func RequestID() web.Middleware {
	return func(req *web.Request, next web.Next) *web.Response {
		id := req.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			req.Header.Set(RequestIDHeader, id)
		}

		res := next(req)
		return res.WithHeader(RequestIDHeader, id)
	}
}
