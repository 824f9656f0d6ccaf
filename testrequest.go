package velto

import (
	"net/http/httptest"
	"strings"
)

// TestRequest builds a request that is sent through an App in-process,
// exercising the same middleware, static fallback and 404 handling as a
// real connection.
type TestRequest struct {
	method string
	path   string
	body   string
	header map[string]string
}

// NewTestRequest creates a request for method and path. path may carry a
// query string.
func NewTestRequest(method, path string) *TestRequest {
	return &TestRequest{
		method: method,
		path:   path,
		header: make(map[string]string),
	}
}

// WithBody sets the request body.
func (t *TestRequest) WithBody(body string) *TestRequest {
	t.body = body
	return t
}

// WithHeader sets a request header.
func (t *TestRequest) WithHeader(key, value string) *TestRequest {
	t.header[key] = value
	return t
}

// Send dispatches the request through app and returns the response as
// written to the wire.
func (t *TestRequest) Send(app *App) *Response {
	req := httptest.NewRequest(t.method, t.path, strings.NewReader(t.body))
	for key, value := range t.header {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)

	res := rec.Result()
	defer res.Body.Close()

	return &Response{
		Status: res.StatusCode,
		Header: res.Header,
		Body:   rec.Body.Bytes(),
	}
}
