// Package internal contains the implementation packages behind the velto
// App and the velto command.
//
// # Package Organization
//
//   - web: request, response, handler and middleware types
//   - router: exact (path, method) route table
//   - middleware: ordered middleware chain plus built-in middleware
//   - static: static file resolver with traversal guard and MIME table
//   - dispatch: request dispatcher with failure isolation
//   - devmode: development-mode flag and negotiated reload port
//   - broadcast: lossy fan-out of reload signals
//   - watcher: recursive fsnotify watcher
//   - hub: WebSocket sessions that push "reload" frames
//   - reload: port negotiation and live-reload lifecycle
//   - renderer: HTML templates and templ components with reload injection
//   - form: urlencoded form parsing
//   - config, logging, errors, metrics, version: ambient support
//
// # Request Flow
//
// The dispatcher looks up the route table first. A matched handler runs
// inside the precomputed middleware pipeline; a miss falls through to the
// static resolver and then to a fixed 404. Neither the static response nor
// the 404 passes through middleware.
//
// # Live Reload
//
// In development mode the reload coordinator binds the hub to the first free
// port from the base port, watches the configured directories and publishes
// one broadcast signal per file event. Every hub session owns a subscription
// and forwards signals as text frames.
//
// # Testing Strategy
//
//   - Unit tests for every package with testify
//   - Property tests behind the "property" build tag using gopter
//   - End-to-end tests over real sockets for the hub, coordinator and App
package internal
