// Package app wires configuration, drivers and services into the edge and
// worker processes.
package app

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-multierror"

	"github.com/aussiebroadwan/printq/internal/report/engine"
	"github.com/aussiebroadwan/printq/internal/report/queue"
	"github.com/aussiebroadwan/printq/internal/report/store"
	"github.com/aussiebroadwan/printq/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Option overrides a dependency that NewEdge or NewWorker would otherwise
// build from the configuration.
type Option func(*deps)

type deps struct {
	engine engine.Engine
	audit  store.AuditLog
	queue  queue.Queue
	logger *slog.Logger
}

func collect(opts []Option) deps {
	var d deps
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithEngine skips launching the browser. Worker only.
func WithEngine(e engine.Engine) Option {
	return func(d *deps) { d.engine = e }
}

// WithAuditLog replaces the configured audit driver. Worker only.
func WithAuditLog(a store.AuditLog) Option {
	return func(d *deps) { d.audit = a }
}

// WithQueue replaces the configured queue driver. It is closed on shutdown
// like a configured one.
func WithQueue(q queue.Queue) Option {
	return func(d *deps) { d.queue = q }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *deps) { d.logger = l }
}

func newLogger(service string, cfg Config) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: service,
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// closeAll closes every resource and reports all failures together.
func closeAll(logger *slog.Logger, resources map[string]io.Closer) error {
	var result *multierror.Error
	for name, c := range resources {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			logger.Error("close failed", "resource", name, "err", err)
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// dbCloser keeps a nil *sql.DB from becoming a non-nil io.Closer.
func dbCloser(db *sql.DB) io.Closer {
	if db == nil {
		return nil
	}
	return db
}
