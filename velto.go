package velto

import (
	"github.com/conneroisu/velto/internal/form"
	"github.com/conneroisu/velto/internal/logging"
	"github.com/conneroisu/velto/internal/middleware"
	"github.com/conneroisu/velto/internal/router"
	"github.com/conneroisu/velto/internal/web"
)

type (
	Method              = web.Method
	Request             = web.Request
	Response            = web.Response
	Handler             = web.Handler
	HandlerFunc         = web.HandlerFunc
	Middleware          = web.Middleware
	Next                = web.Next
	UnknownMethodPolicy = web.UnknownMethodPolicy
	RouteInfo           = router.Route
	Logger              = logging.Logger
)

const (
	GET     = web.MethodGet
	POST    = web.MethodPost
	PUT     = web.MethodPut
	DELETE  = web.MethodDelete
	PATCH   = web.MethodPatch
	OPTIONS = web.MethodOptions
	HEAD    = web.MethodHead
)

const (
	// RejectUnknownMethods answers unsupported wire methods with 405.
	RejectUnknownMethods = web.PolicyReject
	// TreatUnknownAsGET dispatches unsupported wire methods as GET.
	TreatUnknownAsGET = web.PolicyFallbackGET
)

// Methods lists every routable method.
var Methods = web.Methods

// Text returns a 200 text/plain response.
func Text(body string) *Response { return web.Text(body) }

// HTML returns a 200 text/html response.
func HTML(body string) *Response { return web.HTML(body) }

// Data returns a 200 response with body verbatim and no content type.
func Data(body []byte) *Response { return web.Data(body) }

// Status returns an empty response with the given status.
func Status(status int) *Response { return web.Empty(status) }

// NotFound returns the runtime's 404 response.
func NotFound() *Response { return web.NotFound() }

// Redirect returns a 302 Found to the given location.
func Redirect(to string) *Response { return web.Redirect(to) }

// RedirectWithStatus returns a redirect with an explicit 3xx status.
func RedirectWithStatus(to string, status int) *Response {
	return web.RedirectWithStatus(to, status)
}

// ParseForm decodes an application/x-www-form-urlencoded request body.
// Values are percent-decoded; '+' is left as is.
func ParseForm(req *Request) map[string]string {
	return form.Parse(req.BodyString())
}

// RequestID tags every request and response with an X-Request-ID.
func RequestID() Middleware {
	return middleware.RequestID()
}
