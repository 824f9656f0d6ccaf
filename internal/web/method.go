package web

import "strings"

// Method is the closed set of HTTP methods a route can be registered for.
type Method int

const (
	// MethodUnknown marks a wire method outside the supported set. Routes
	// can never be registered for it.
	MethodUnknown Method = iota
	MethodGet
	MethodPost
	MethodPut
	MethodDelete
	MethodPatch
	MethodOptions
	MethodHead
)

// Methods lists every routable method in declaration order.
var Methods = []Method{
	MethodGet,
	MethodPost,
	MethodPut,
	MethodDelete,
	MethodPatch,
	MethodOptions,
	MethodHead,
}

// String returns the wire form of the method
func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	case MethodPatch:
		return "PATCH"
	case MethodOptions:
		return "OPTIONS"
	case MethodHead:
		return "HEAD"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether m is one of the routable methods.
func (m Method) Valid() bool {
	return m >= MethodGet && m <= MethodHead
}

// ParseMethod maps a wire method to a Method. Matching is case-sensitive, as
// HTTP method tokens are. Unrecognized methods return MethodUnknown, false.
func ParseMethod(s string) (Method, bool) {
	switch s {
	case "GET":
		return MethodGet, true
	case "POST":
		return MethodPost, true
	case "PUT":
		return MethodPut, true
	case "DELETE":
		return MethodDelete, true
	case "PATCH":
		return MethodPatch, true
	case "OPTIONS":
		return MethodOptions, true
	case "HEAD":
		return MethodHead, true
	default:
		return MethodUnknown, false
	}
}

// UnknownMethodPolicy decides what happens to requests whose wire method is
// not in Methods.
type UnknownMethodPolicy int

const (
	// PolicyReject answers 405 Method Not Allowed.
	PolicyReject UnknownMethodPolicy = iota
	// PolicyFallbackGET dispatches the request as if it were a GET.
	PolicyFallbackGET
)

// String returns the configuration spelling of the policy
func (p UnknownMethodPolicy) String() string {
	switch p {
	case PolicyFallbackGET:
		return "get"
	default:
		return "reject"
	}
}

// ParseUnknownMethodPolicy parses "reject" or "get" (case-insensitive).
func ParseUnknownMethodPolicy(s string) (UnknownMethodPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return PolicyReject, true
	case "get", "fallback-get", "fallback_get":
		return PolicyFallbackGET, true
	default:
		return PolicyReject, false
	}
}
