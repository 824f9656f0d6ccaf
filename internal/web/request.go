package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// DefaultMaxBodyBytes bounds how much of a request body is buffered.
const DefaultMaxBodyBytes int64 = 10 << 20

// ErrBodyTooLarge is returned by NewRequest when the body exceeds the limit.
var ErrBodyTooLarge = errors.New("request body too large")

// Request is the handler-facing view of an inbound HTTP request. The body is
// read fully before dispatch so handlers and middleware can inspect it freely.
type Request struct {
	Method Method
	// Path is the decoded URL path used for route matching.
	Path string
	// RawPath is the URL path as escaped on the wire.
	RawPath string
	Query   url.Values
	Header  http.Header
	Body    []byte

	raw *http.Request
}

// NewRequest buffers r's body (up to maxBody bytes, DefaultMaxBodyBytes when
// maxBody <= 0) and returns the handler-facing request. The method is left as
// MethodUnknown when the wire method is not routable.
func NewRequest(r *http.Request, maxBody int64) (*Request, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	var body []byte
	if r.Body != nil && r.Body != http.NoBody {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		if int64(len(data)) > maxBody {
			return nil, ErrBodyTooLarge
		}
		body = data
	}

	method, _ := ParseMethod(r.Method)

	return &Request{
		Method:  method,
		Path:    r.URL.Path,
		RawPath: r.URL.EscapedPath(),
		Query:   r.URL.Query(),
		Header:  r.Header,
		Body:    body,
		raw:     r,
	}, nil
}

// WireMethod returns the method string exactly as the client sent it.
func (r *Request) WireMethod() string {
	if r.raw != nil {
		return r.raw.Method
	}
	return r.Method.String()
}

// Context returns the context of the underlying HTTP request.
func (r *Request) Context() context.Context {
	if r.raw != nil {
		return r.raw.Context()
	}
	return context.Background()
}

// HTTPRequest exposes the underlying *http.Request. Its body has already
// been consumed; use Body instead.
func (r *Request) HTTPRequest() *http.Request {
	return r.raw
}

// BodyString returns the buffered body as a string.
func (r *Request) BodyString() string {
	return string(r.Body)
}
