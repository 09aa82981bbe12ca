package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/aussiebroadwan/printq/internal/report/engine"
	httpapi "github.com/aussiebroadwan/printq/internal/report/http"
	"github.com/aussiebroadwan/printq/internal/report/queue"
	"github.com/aussiebroadwan/printq/internal/report/service"
	"github.com/aussiebroadwan/printq/internal/report/store"
)

// Worker consumes render jobs and exposes health probes on a side port.
type Worker struct {
	cfg    WorkerConfig
	logger *slog.Logger

	queue  queue.Queue
	audit  store.AuditLog
	engine engine.Engine
	db     *sql.DB

	pool   *service.WorkerPool
	reaper *service.LeaseReaper
	health *http.Server
}

// NewWorker validates cfg and wires every dependency. Nothing is consumed
// until Run.
func NewWorker(cfg WorkerConfig, opts ...Option) (w *Worker, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := collect(opts)

	w = &Worker{cfg: cfg, logger: d.logger}
	if w.logger == nil {
		w.logger = newLogger("printq-worker", cfg.Config)
	}
	defer func() {
		if err != nil {
			_ = w.closeResources()
		}
	}()

	payloads, output, err := openBuckets(cfg.Config)
	if err != nil {
		return nil, err
	}

	db, placeholder, err := openDataDB(cfg.Config)
	if err != nil {
		return nil, err
	}
	w.db = db

	loader, err := newLoader(cfg.Config, placeholder)
	if err != nil {
		return nil, err
	}

	if w.audit = d.audit; w.audit == nil {
		if w.audit, err = openAudit(cfg); err != nil {
			return nil, err
		}
	}

	if w.queue = d.queue; w.queue == nil {
		w.queue, err = openQueue(cfg.Config, leaseConfig{
			LockDuration:   cfg.LockDuration,
			MaxLockRenewal: cfg.MaxLockRenewal,
			ReceiveWait:    cfg.ReceiveWait,
		}, w.logger)
		if err != nil {
			return nil, err
		}
	}

	if w.engine = d.engine; w.engine == nil {
		chrome, err := engine.NewChrome(context.Background(), engine.ChromeConfig{
			ExecPath:  cfg.ChromePath,
			NoSandbox: cfg.ChromeNoSandbox,
			Logger:    w.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		w.engine = chrome
	}

	renderer := &service.RenderPipeline{
		Payloads:  payloads,
		Output:    output,
		Templates: loader,
		Engine:    w.engine,
		Fetch:     service.NewFetchExecutor(cfg.FetchConcurrency),
		DB:        db,
		Timeout:   cfg.RenderTimeout,
	}
	w.pool = service.NewWorkerPool(w.queue, renderer, w.audit, w.logger, cfg.Concurrency, cfg.MaxDelivery)

	if w.reaper, err = service.NewLeaseReaper(w.queue, w.logger, cfg.ReapSchedule); err != nil {
		return nil, err
	}

	w.health = &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.HealthPort),
		Handler: httpapi.HealthMux(time.Now(), BuildVersion, httpapi.HealthChecks{
			Storage: httpapi.PingFunc(pingBuckets(payloads, output)),
			Queue:   w.queue,
			Audit:   w.audit,
		}),
		ReadHeaderTimeout: 3 * time.Second,
	}
	return w, nil
}

// HealthHandler returns the probe handler served on HEALTH_PORT.
func (w *Worker) HealthHandler() http.Handler {
	return w.health.Handler
}

// Run consumes until SIGINT or SIGTERM, then drains and shuts down.
func (w *Worker) Run() error {
	ctx, stop := signalContext()
	defer stop()
	return w.Serve(ctx)
}

// Serve consumes until ctx ends, then drains and shuts down.
func (w *Worker) Serve(ctx context.Context) error {
	w.logger.Info("worker starting",
		"concurrency", w.cfg.Concurrency,
		"health_port", w.cfg.HealthPort,
		"version", BuildVersion,
	)

	healthErrors := make(chan error, 1)
	go func() {
		healthErrors <- w.health.ListenAndServe()
	}()

	w.reaper.Start()
	w.pool.Start(ctx)

	select {
	case err := <-healthErrors:
		if err != nil && err != http.ErrServerClosed {
			w.logger.Error("health listener failed", "err", err)
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	w.logger.Info("shutdown signal received")
	return w.Shutdown()
}

// Shutdown stops receiving, waits for every admitted render to settle,
// stops the reaper and closes the engine, queue, audit log and data handle.
// The drain has no deadline; only the health listener is bounded by
// SHUTDOWN_GRACE_PERIOD.
func (w *Worker) Shutdown() error {
	w.logger.Info("shutting down worker...")

	w.pool.Stop()
	w.reaper.Stop()

	var result *multierror.Error

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownGracePeriod)
	defer cancel()
	if err := w.health.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("health listener: %w", err))
	}

	if err := w.closeResources(); err != nil {
		result = multierror.Append(result, err)
	}

	w.logger.Info("worker stopped")
	return result.ErrorOrNil()
}

func (w *Worker) closeResources() error {
	return closeAll(w.logger, map[string]io.Closer{
		"engine": w.engine,
		"queue":  w.queue,
		"audit":  w.audit,
		"data":   dbCloser(w.db),
	})
}
