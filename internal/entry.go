// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/virt/internal/api"
	"github.com/starford/virt/internal/client"
	"github.com/starford/virt/internal/crawler"
	"github.com/starford/virt/internal/fetch"
	"github.com/starford/virt/internal/index"
	"github.com/starford/virt/internal/mcpserver"
	"github.com/starford/virt/internal/registrar"
	"github.com/starford/virt/internal/resolver"
	"github.com/starford/virt/internal/sse"
	"github.com/starford/virt/internal/storage"
)

const shutdownTimeout = 10 * time.Second

var errConfigRequired = errors.New("config is required")

// NewLogger builds the structured JSON logger and installs it as default.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// NewFetcher builds the HTTP fetcher shared by the resolver and crawler.
func NewFetcher(cfg *ResolverConfig, logger *slog.Logger) *fetch.Client {
	return fetch.New(
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithRetries(cfg.Retries),
		fetch.WithMaxBody(cfg.MaxBody),
		fetch.WithLogger(logger),
	)
}

// NewResolver builds a resolver over lookup. When cfg.AssetsDir is set,
// files there shadow the bundled system-name pages.
func NewResolver(cfg *ResolverConfig, lookup resolver.Lookuper, logger *slog.Logger) (*resolver.Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var assets storage.Layered
	if cfg.AssetsDir != "" {
		dir, err := storage.NewFS(cfg.AssetsDir)
		if err != nil {
			return nil, fmt.Errorf("init assets: %w", err)
		}
		assets = append(assets, dir)
	}
	assets = append(assets, storage.NewEmbedded(resolver.Assets()))

	return resolver.New(lookup, NewFetcher(cfg, logger),
		resolver.WithAssets(assets),
		resolver.WithCacheTTL(cfg.CacheTTL),
		resolver.WithLogger(logger),
	), nil
}

// Run starts the registrar server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := NewLogger(os.Stdout, cfg.App.LogLevel)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Bool("crawler_enabled", cfg.Crawler.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}
	defer db.Close()

	broker := sse.NewBroker(30 * time.Second)
	defer broker.Close()

	svc := registrar.NewService(db,
		registrar.WithBcryptCost(cfg.Registrar.BcryptCost),
		registrar.WithPublisher(broker),
		registrar.WithLogger(logger),
	)

	r := newRouter(svc, broker, cfg.RateLimit)
	httpServer := newHTTPServer(cfg.App.HTTP.Address(), r, broker)

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Crawler.Enabled {
		c := crawler.New(db, NewFetcher(&cfg.Resolver, logger), logger, crawler.WithPublisher(broker))
		g.Go(func() error {
			return c.Run(gCtx, cfg.Crawler.Interval)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...", slog.Int("event_streams", broker.ClientCount()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stops the crawler loop once the server is down.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// newRouter wires the health checks and the registrar API. Forwarding
// headers rewrite the client address only when the proxy is trusted, so the
// rate limiter cannot be dodged by spoofing them.
func newRouter(svc *registrar.Service, events http.Handler, rl RateLimitConfig) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if rl.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	api.MountHealth(r, svc.Ready)
	r.Mount("/api", api.NewRouter(svc, api.RouterOptions{
		RateLimit: api.RateLimitConfig{
			Burst:        rl.Burst,
			RefillPerMin: rl.RefillPerMin,
			MaxEntries:   rl.MaxEntries,
			TrustProxy:   rl.TrustProxy,
		},
		Events: events,
	}))
	return r
}

// newHTTPServer closes the event broker as soon as shutdown starts. Open
// event streams would otherwise keep Shutdown waiting until its deadline.
func newHTTPServer(addr string, handler http.Handler, broker *sse.Broker) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(broker.Close)
	return srv
}

// NewClient builds the registrar API client used by the CLI and `mcp --remote`.
func NewClient(cfg *ResolverConfig) *client.Client {
	return client.New(cfg.RegistrarURL,
		client.WithTimeout(cfg.Timeout),
		client.WithRetries(cfg.Retries),
	)
}

// RunMCP serves the read-only MCP tools over stdio. Logs go to stderr since
// stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := NewLogger(os.Stderr, cfg.App.LogLevel)

	var reg interface {
		mcpserver.Registry
		resolver.Lookuper
	}
	if app.remote {
		logger.Info("Using remote registrar", slog.String("url", cfg.Resolver.RegistrarURL))
		reg = NewClient(&cfg.Resolver)
	} else {
		db, err := index.Open(cfg.SQLite.Path)
		if err != nil {
			return fmt.Errorf("init index: %w", err)
		}
		defer db.Close()
		reg = registrar.NewService(db,
			registrar.WithBcryptCost(cfg.Registrar.BcryptCost),
			registrar.WithLogger(logger),
		)
	}

	res, err := NewResolver(&cfg.Resolver, reg, logger)
	if err != nil {
		return err
	}

	srv := mcpserver.New(reg, res, app.version)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeStdio() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}
