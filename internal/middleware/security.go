package middleware

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/conneroisu/velto/internal/devmode"
	"github.com/conneroisu/velto/internal/web"
)

// SecurityConfig holds the response headers applied by SecurityHeaders.
type SecurityConfig struct {
	CSP            *CSPConfig
	FrameOptions   string
	NoSniff        bool
	ReferrerPolicy string
}

// CSPConfig holds Content Security Policy configuration
type CSPConfig struct {
	DefaultSrc     []string
	ScriptSrc      []string
	StyleSrc       []string
	ImgSrc         []string
	ConnectSrc     []string
	FrameAncestors []string
}

// DefaultSecurityConfig returns a same-origin policy.
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		CSP: &CSPConfig{
			DefaultSrc:     []string{"'self'"},
			ScriptSrc:      []string{"'self'"},
			StyleSrc:       []string{"'self'"},
			ImgSrc:         []string{"'self'", "data:"},
			ConnectSrc:     []string{"'self'"},
			FrameAncestors: []string{"'none'"},
		},
		FrameOptions:   "DENY",
		NoSniff:        true,
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}
}

// DevelopmentSecurityConfig relaxes the default policy so the inline
// live-reload client can run and reach the hub at reloadHost:reloadPort.
func DevelopmentSecurityConfig(reloadHost string, reloadPort int) *SecurityConfig {
	config := DefaultSecurityConfig()
	config.CSP.ScriptSrc = append(config.CSP.ScriptSrc, "'unsafe-inline'")
	config.CSP.StyleSrc = append(config.CSP.StyleSrc, "'unsafe-inline'")
	config.CSP.ConnectSrc = append(config.CSP.ConnectSrc,
		fmt.Sprintf("ws://localhost:%d", reloadPort),
		fmt.Sprintf("ws://127.0.0.1:%d", reloadPort))
	if reloadHost != "" && reloadHost != "localhost" && reloadHost != "127.0.0.1" {
		config.CSP.ConnectSrc = append(config.CSP.ConnectSrc,
			"ws://"+net.JoinHostPort(reloadHost, strconv.Itoa(reloadPort)))
	}
	config.FrameOptions = "SAMEORIGIN"
	config.CSP.FrameAncestors = []string{"'self'"}
	return config
}

// SecurityHeaders sets config's headers on every routed response. Headers
// the handler already set are left alone.
func SecurityHeaders(config *SecurityConfig) web.Middleware {
	if config == nil {
		config = DefaultSecurityConfig()
	}
	return func(req *web.Request, next web.Next) *web.Response {
		return applySecurityHeaders(next(req), config)
	}
}

// SecurityHeadersFor picks the development or default policy per request,
// following state.
func SecurityHeadersFor(state *devmode.State) web.Middleware {
	production := DefaultSecurityConfig()
	return func(req *web.Request, next web.Next) *web.Response {
		config := production
		if state.Enabled() {
			config = DevelopmentSecurityConfig(state.ReloadHost(), state.ReloadPort())
		}
		return applySecurityHeaders(next(req), config)
	}
}

func applySecurityHeaders(res *web.Response, config *SecurityConfig) *web.Response {
	set := func(key, value string) {
		if value != "" && res.Header.Get(key) == "" {
			res.WithHeader(key, value)
		}
	}

	if config.CSP != nil {
		set("Content-Security-Policy", buildCSPHeader(config.CSP))
	}
	set("X-Frame-Options", config.FrameOptions)
	if config.NoSniff {
		set("X-Content-Type-Options", "nosniff")
	}
	set("Referrer-Policy", config.ReferrerPolicy)
	return res
}

// buildCSPHeader constructs the Content-Security-Policy header value
func buildCSPHeader(csp *CSPConfig) string {
	var directives []string

	addDirective := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, name+" "+strings.Join(values, " "))
		}
	}

	addDirective("default-src", csp.DefaultSrc)
	addDirective("script-src", csp.ScriptSrc)
	addDirective("style-src", csp.StyleSrc)
	addDirective("img-src", csp.ImgSrc)
	addDirective("connect-src", csp.ConnectSrc)
	addDirective("frame-ancestors", csp.FrameAncestors)

	return strings.Join(directives, "; ")
}
