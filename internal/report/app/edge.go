package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	httpapi "github.com/aussiebroadwan/printq/internal/report/http"
	"github.com/aussiebroadwan/printq/internal/report/queue"
	"github.com/aussiebroadwan/printq/internal/report/service"
	"github.com/aussiebroadwan/printq/internal/report/store"
	"github.com/aussiebroadwan/printq/pkg/cryptox"
	"github.com/aussiebroadwan/printq/pkg/httpx"
	"github.com/aussiebroadwan/printq/pkg/jwtx"
)

// Edge is the HTTP front: it issues links, dispatches submits and serves
// rendered artifacts.
type Edge struct {
	cfg    EdgeConfig
	logger *slog.Logger

	queue queue.Queue
	db    *sql.DB

	server *http.Server
	router *httpapi.Router
}

// NewEdge validates cfg and wires every dependency. Nothing listens until
// Run.
func NewEdge(cfg EdgeConfig, opts ...Option) (e *Edge, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := collect(opts)
	e = &Edge{cfg: cfg, logger: d.logger}
	if e.logger == nil {
		e.logger = newLogger("printq-edge", cfg.Config)
	}
	defer func() {
		if err != nil {
			_ = e.closeResources()
		}
	}()

	verifier, err := newVerifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("token issuers: %w", err)
	}

	secret := cfg.LinkSecret
	if len(secret) == 0 {
		if secret, err = cryptox.RandomSecret(32); err != nil {
			return nil, err
		}
		e.logger.Warn("HMAC_SECRET_B64 not set; links are only valid on this instance")
	}
	links, err := cryptox.NewLinkSigner(secret)
	if err != nil {
		return nil, err
	}

	payloads, output, err := openBuckets(cfg.Config)
	if err != nil {
		return nil, err
	}

	db, placeholder, err := openDataDB(cfg.Config)
	if err != nil {
		return nil, err
	}
	e.db = db

	loader, err := newLoader(cfg.Config, placeholder)
	if err != nil {
		return nil, err
	}

	if e.queue = d.queue; e.queue == nil {
		if e.queue, err = openQueue(cfg.Config, leaseConfig{}, e.logger); err != nil {
			return nil, err
		}
	}

	dispatcher := &service.JobDispatcher{
		Cache:     &service.ContentCache{Output: output, TTL: cfg.CacheTTL},
		Templates: loader,
		Payloads:  payloads,
		Producer:  e.queue,
		Fetch:     service.NewFetchExecutor(cfg.FetchConcurrency),
		DB:        db,
	}

	if err := e.initHTTP(verifier, links, dispatcher, output, httpapi.HealthChecks{
		Storage: httpapi.PingFunc(pingBuckets(payloads, output)),
		Queue:   e.queue,
	}); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Edge) initHTTP(
	verifier jwtx.Verifier,
	links *cryptox.LinkSigner,
	dispatcher httpapi.Dispatcher,
	output store.Bucket,
	checks httpapi.HealthChecks,
) error {
	router := httpapi.NewRouter(
		verifier,
		jwtx.Requirement{Scope: e.cfg.RequiredScope, Role: e.cfg.RequiredRole},
		BuildVersion,
		e.logger,
	)
	router.Dispatcher = dispatcher
	router.Links = links
	router.Output = output
	router.Checks = checks
	router.Limit = httpx.ParseRateLimitFromEnv("EDGE", httpx.DefaultLimit)

	compress, err := httpx.Compress(e.cfg.CompressMinLen)
	if err != nil {
		return fmt.Errorf("response compression: %w", err)
	}
	router.Use(compress)
	router.ApplyRoutes()

	e.router = router
	e.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", e.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}

// Handler returns the edge's root handler.
func (e *Edge) Handler() http.Handler {
	return e.router
}

// Run serves until SIGINT or SIGTERM, then shuts down.
func (e *Edge) Run() error {
	ctx, stop := signalContext()
	defer stop()
	return e.Serve(ctx)
}

// Serve listens on PORT until ctx ends, then shuts down.
func (e *Edge) Serve(ctx context.Context) error {
	e.logger.Info("edge starting", "port", e.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- e.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		_ = e.closeResources()
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		e.logger.Info("shutdown signal received")
		return e.Shutdown()
	}
}

// Shutdown stops accepting requests, waits up to SHUTDOWN_GRACE_PERIOD for
// in-flight ones and then closes the queue client and data handle.
func (e *Edge) Shutdown() error {
	e.logger.Info("shutting down edge...")

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := e.server.Shutdown(ctx); err != nil {
		e.logger.Error("graceful server shutdown failed", "err", err)
		if err := e.server.Close(); err != nil {
			e.logger.Error("error closing server", "err", err)
		}
	}

	err := e.closeResources()
	e.logger.Info("edge stopped")
	return err
}

func (e *Edge) closeResources() error {
	return closeAll(e.logger, map[string]io.Closer{
		"queue": e.queue,
		"data":  dbCloser(e.db),
	})
}
