package web

import (
	"net/http"
	"strconv"
)

const (
	// NotFoundBody is the fixed body of every 404 produced by the runtime.
	NotFoundBody = "404 Not Found"
	// InternalErrorBody is the body returned when a handler fails.
	InternalErrorBody = "500 Internal Server Error"
	// MethodNotAllowedBody is the body returned for rejected wire methods.
	MethodNotAllowedBody = "405 Method Not Allowed"
)

// Response is a fully materialized HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Text returns a 200 response with a plain-text body.
func Text(body string) *Response {
	return Data([]byte(body)).WithContentType("text/plain; charset=utf-8")
}

// HTML returns a 200 response with an HTML body.
func HTML(body string) *Response {
	return Data([]byte(body)).WithContentType("text/html; charset=utf-8")
}

// Data returns a 200 response carrying body verbatim.
func Data(body []byte) *Response {
	return &Response{
		Status: http.StatusOK,
		Header: make(http.Header),
		Body:   body,
	}
}

// Empty returns a response with the given status and no body.
func Empty(status int) *Response {
	return &Response{
		Status: status,
		Header: make(http.Header),
	}
}

// NotFound returns the runtime's fixed 404 response.
func NotFound() *Response {
	return Text(NotFoundBody).WithStatus(http.StatusNotFound)
}

// InternalError returns the runtime's fixed 500 response.
func InternalError() *Response {
	return Text(InternalErrorBody).WithStatus(http.StatusInternalServerError)
}

// Redirect returns a 302 Found pointing at to.
func Redirect(to string) *Response {
	return RedirectWithStatus(to, http.StatusFound)
}

// RedirectWithStatus returns an empty response with a Location header.
// Typical statuses are 301, 302, 303, 307 and 308.
func RedirectWithStatus(to string, status int) *Response {
	return Empty(status).WithHeader("Location", to)
}

// WithStatus sets the status code.
func (r *Response) WithStatus(status int) *Response {
	r.Status = status
	return r
}

// WithHeader sets a header, replacing any previous values.
func (r *Response) WithHeader(key, value string) *Response {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Set(key, value)
	return r
}

// WithContentType sets the Content-Type header.
func (r *Response) WithContentType(contentType string) *Response {
	return r.WithHeader("Content-Type", contentType)
}

// BodyString returns the body as a string.
func (r *Response) BodyString() string {
	return string(r.Body)
}

// WriteTo copies the response onto w. The body is skipped when includeBody is
// false, which is how HEAD requests are answered.
func (r *Response) WriteTo(w http.ResponseWriter, includeBody bool) error {
	header := w.Header()
	for key, values := range r.Header {
		header[key] = append([]string(nil), values...)
	}
	if header.Get("Content-Length") == "" {
		header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}

	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if !includeBody || len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}
