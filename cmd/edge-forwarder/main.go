package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/multierr"

	"edge-forwarder/internal/client"
	"edge-forwarder/internal/config"
	"edge-forwarder/internal/handler"
	"edge-forwarder/internal/metrics"
	"edge-forwarder/internal/middleware"
	"edge-forwarder/internal/route"
	"edge-forwarder/internal/server"
	"edge-forwarder/internal/service"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// adminEcho distinguishes the admin Echo instance from the public one in the fx graph.
type adminEcho struct {
	*echo.Echo
}

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("edge-forwarder"),
		kong.Description("Edge forwarder relaying path-prefixed requests to upstream origins."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	fx.New(
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			newRouteTable,
			newMetrics,
			newEcho,
			newAdminEcho,
			client.NewUpstreamClient,
			service.NewForwarder,
			handler.NewForwardHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(
			handler.RegisterRoutes,
			registerAdminRoutes,
			warnConfigPermissions,
			startServers,
		),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newRouteTable(cfg *config.Config, logger *slog.Logger) (*route.Table, error) {
	tbl, err := route.New(cfg.Routes)
	if err != nil {
		return nil, err
	}
	for _, r := range tbl.Rules() {
		logger.Info("route", "prefix", r.Prefix, "upstream_origin", r.Origin.String())
	}
	return tbl, nil
}

func newMetrics(tbl *route.Table) *metrics.Metrics {
	return metrics.New(tbl.Prefixes())
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadHeaderTimeout = 10 * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	// Read and write deadlines stay off: bodies in either direction are
	// streamed and may be arbitrarily large.
	e.Server.ReadTimeout = 0
	e.Server.WriteTimeout = 0

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}
	if cfg.Server.BodyMaxBytes > 0 {
		e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	}
	e.Use(middleware.StripHopByHop())

	if cfg.Server.RateLimit.Enabled {
		e.Use(middleware.RateLimiter(cfg.Server.RateLimit.RequestsPerSecond))
		logger.Info("rate limiter enabled", "rps", cfg.Server.RateLimit.RequestsPerSecond)
	}

	return e
}

func newAdminEcho() adminEcho {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Use(echomw.Recover())
	return adminEcho{e}
}

func registerAdminRoutes(a adminEcho, health *handler.HealthHandler, m *metrics.Metrics, cfg *config.Config) {
	handler.RegisterAdminRoutes(a.Echo, health, m, cfg)
}

func warnConfigPermissions(cfg *config.Config, logger *slog.Logger) {
	cfg.WarnPermissions(logger)
}

func startServers(lc fx.Lifecycle, e *echo.Echo, admin adminEcho, cfg *config.Config, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			addr := cfg.Server.Addr()
			ln, err := server.Listen(addr, cfg.Server.ProxyProtocol)
			if err != nil {
				return err
			}

			if cfg.Admin.Enabled {
				adminAddr := cfg.Admin.Addr()
				adminLn, err := server.Listen(adminAddr, false)
				if err != nil {
					_ = ln.Close()
					return err
				}
				logger.Info("starting admin server", "addr", adminAddr, "metrics", cfg.Metrics.Enabled)
				go serve(admin.Echo, adminLn, logger.With("listener", "admin"))
			}

			logger.Info("starting server", "addr", addr, "proxy_protocol", cfg.Server.ProxyProtocol)
			go serve(e, ln, logger.With("listener", "public"))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server")
			err := e.Shutdown(ctx)
			if cfg.Admin.Enabled {
				err = multierr.Append(err, admin.Shutdown(ctx))
			}
			return err
		},
	})
}

func serve(e *echo.Echo, ln net.Listener, logger *slog.Logger) {
	if err := e.Server.Serve(ln); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
