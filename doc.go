// Package velto is an embeddable HTTP runtime. An App matches requests to
// handlers registered for an exact (path, method) pair, wraps them in
// middleware, falls back to files from its static directories and answers
// everything else with a fixed 404.
//
// In development mode the App also negotiates a port for a live-reload
// WebSocket endpoint, watches its directories and pushes a "reload" frame to
// every connected browser whenever a file changes:
//
//	app := velto.New()
//	app.RouteFunc(velto.GET, "/", func(req *velto.Request) *velto.Response {
//		return velto.Text("hello")
//	})
//	app.ServeStatic("static")
//	app.EnableDevMode()
//	if err := app.Run(ctx, "127.0.0.1:8080"); err != nil {
//		log.Fatal(err)
//	}
package velto
