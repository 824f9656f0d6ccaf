package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/velto"
	"github.com/conneroisu/velto/internal/config"
	"github.com/conneroisu/velto/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve static directories, with live reload in development mode",
	Long: `Serve files from one or more static directories. Directories are searched
in the order given; the first match wins and everything else is a 404.

--watch directories join the same search order after the static ones. With
--dev, velto watches all of them plus the templates directory, and tells
connected browsers to reload on change.

Examples:
  velto serve                            # Serve ./static on 127.0.0.1:8080
  velto serve -p 3000 -s public -s dist  # Two static directories
  velto serve --dev -w content           # Live reload, also watching ./content`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringSliceP("static", "s", []string{"static"}, "Static directory (repeatable)")
	serveCmd.Flags().Bool("dev", false, "Enable development mode with live reload")
	serveCmd.Flags().StringSliceP("watch", "w", nil, "Extra directory to serve and watch in development mode (repeatable)")
	serveCmd.Flags().String("metrics-addr", "", "Expose Prometheus metrics on this address")

	addFlagValidation(serveCmd.Flags(), "port", ValidatePort)
	addFlagValidation(serveCmd.Flags(), "static", ValidateDirList)
	addFlagValidation(serveCmd.Flags(), "watch", ValidateDirList)

	bindFlags(serveCmd.Flags(), map[string]string{
		"port":         "server.port",
		"host":         "server.host",
		"static":       "static.dirs",
		"dev":          "development.enabled",
		"watch":        "development.watch_dirs",
		"metrics-addr": "metrics.addr",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)

	var registry *prometheus.Registry
	if cfg.Metrics.Addr != "" {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	app := newApp(cfg, logger, registry, cmd.OutOrStdout())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.Run(gctx, cfg.Addr())
	})
	if registry != nil {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.Addr, registry, logger)
		})
	}

	return g.Wait()
}

// newApp builds the application described by cfg.
func newApp(cfg *config.Config, logger logging.Logger, registry *prometheus.Registry, out io.Writer) *velto.App {
	opts := []velto.Option{
		velto.WithLogger(logger),
		velto.WithOutput(out),
		velto.WithUnknownMethodPolicy(cfg.UnknownMethodPolicy()),
		velto.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		velto.WithTemplatesDir(cfg.Development.TemplatesDir),
		velto.WithReloadPorts(
			cfg.Development.ReloadHost,
			cfg.Development.ReloadBasePort,
			cfg.Development.ReloadPortRange),
	}
	if registry != nil {
		opts = append(opts, velto.WithMetricsRegistry(registry))
	}

	app := velto.New(opts...)
	app.Use(velto.RequestID())
	app.Use(app.RequestLogger())
	app.Use(app.SecurityHeaders())

	app.RouteFunc(velto.GET, "/healthz", func(*velto.Request) *velto.Response {
		return velto.Text("ok")
	})

	for _, dir := range cfg.Static.Dirs {
		app.ServeStatic(dir)
	}
	for _, dir := range cfg.Development.WatchDirs {
		app.WatchPath(dir)
	}
	if cfg.Development.Enabled {
		app.EnableDevMode()
	}
	return app
}

// serveMetrics exposes registry on addr until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string, registry *prometheus.Registry, logger logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "metrics listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving metrics: %w", err)
	}
	return nil
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  cfg.LogLevel(),
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
}
