package middleware

import (
	"bytes"
	"net/http"
	"sync"
	"testing"

	"github.com/conneroisu/velto/internal/logging"
	"github.com/conneroisu/velto/internal/web"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the order in which pipeline stages run.
type recorder struct {
	mu    sync.Mutex
	steps []string
}

func (r *recorder) add(step string) {
	r.mu.Lock()
	r.steps = append(r.steps, step)
	r.mu.Unlock()
}

func (r *recorder) tracing(name string) web.Middleware {
	return func(req *web.Request, next web.Next) *web.Response {
		r.add(name + ":request")
		res := next(req)
		r.add(name + ":response")
		return res
	}
}

func newRequest() *web.Request {
	return &web.Request{Method: web.MethodGet, Path: "/", Header: make(http.Header)}
}

func TestWrapOrder(t *testing.T) {
	rec := &recorder{}
	chain := NewChain(rec.tracing("A"), rec.tracing("B"))

	handler := chain.Wrap(web.HandlerFunc(func(*web.Request) *web.Response {
		rec.add("H")
		return web.Text("ok")
	}))

	res := handler.Handle(newRequest())
	assert.Equal(t, "ok", res.BodyString())
	assert.Equal(t, []string{"A:request", "B:request", "H", "B:response", "A:response"}, rec.steps)
}

func TestWrapEmptyChainReturnsHandlerResult(t *testing.T) {
	chain := NewChain()
	handler := chain.Wrap(web.HandlerFunc(func(*web.Request) *web.Response {
		return web.Text("bare")
	}))
	assert.Equal(t, "bare", handler.Handle(newRequest()).BodyString())
}

func TestShortCircuit(t *testing.T) {
	rec := &recorder{}
	deny := func(req *web.Request, next web.Next) *web.Response {
		if req.Header.Get("Authorization") == "" {
			return web.Text("unauthorized").WithStatus(http.StatusUnauthorized)
		}
		return next(req)
	}
	chain := NewChain(rec.tracing("outer"), deny, rec.tracing("inner"))

	handler := chain.Wrap(web.HandlerFunc(func(*web.Request) *web.Response {
		rec.add("H")
		return web.Text("secret")
	}))

	res := handler.Handle(newRequest())
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, []string{"outer:request", "outer:response"}, rec.steps)

	authed := newRequest()
	authed.Header.Set("Authorization", "Bearer t")
	assert.Equal(t, "secret", handler.Handle(authed).BodyString())
}

func TestFreeze(t *testing.T) {
	chain := NewChain()
	chain.Add(func(req *web.Request, next web.Next) *web.Response { return next(req) })
	assert.Equal(t, 1, chain.Len())
	assert.False(t, chain.Frozen())

	chain.Freeze()
	chain.Freeze()
	assert.True(t, chain.Frozen())
	assert.Panics(t, func() {
		chain.Add(func(req *web.Request, next web.Next) *web.Response { return next(req) })
	})
	assert.Equal(t, 1, chain.Len())
}

func TestAddNilPanics(t *testing.T) {
	assert.Panics(t, func() { NewChain().Add(nil) })
	assert.Panics(t, func() { NewChain().Wrap(nil) })
}

func TestNilResponseFromMiddlewarePanics(t *testing.T) {
	chain := NewChain(func(*web.Request, web.Next) *web.Response { return nil })
	handler := chain.Wrap(web.HandlerFunc(func(*web.Request) *web.Response { return web.Text("x") }))
	assert.Panics(t, func() { handler.Handle(newRequest()) })
}

func TestRequestID(t *testing.T) {
	handler := NewChain(RequestID()).Wrap(web.HandlerFunc(func(req *web.Request) *web.Response {
		return web.Text(req.Header.Get(RequestIDHeader))
	}))

	t.Run("generates", func(t *testing.T) {
		res := handler.Handle(newRequest())
		id := res.Header.Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, res.BodyString(), "handler sees the same id")
	})

	t.Run("echoes", func(t *testing.T) {
		req := newRequest()
		req.Header.Set(RequestIDHeader, "upstream-1")
		res := handler.Handle(req)
		assert.Equal(t, "upstream-1", res.Header.Get(RequestIDHeader))
	})
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelInfo, Output: &buf})

	handler := NewChain(Logger(logger)).Wrap(web.HandlerFunc(func(*web.Request) *web.Response {
		return web.Text("teapot").WithStatus(http.StatusTeapot)
	}))

	res := handler.Handle(newRequest())
	assert.Equal(t, http.StatusTeapot, res.Status)

	out := buf.String()
	assert.Contains(t, out, "request received")
	assert.Contains(t, out, "request completed")
	assert.Contains(t, out, "status=418")
	assert.Contains(t, out, "component=http")
}
