package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	_ "modernc.org/sqlite"

	"github.com/aussiebroadwan/printq/internal/report/plugins"
	"github.com/aussiebroadwan/printq/internal/report/queue"
	"github.com/aussiebroadwan/printq/internal/report/queue/memq"
	"github.com/aussiebroadwan/printq/internal/report/queue/redisq"
	"github.com/aussiebroadwan/printq/internal/report/store"
	"github.com/aussiebroadwan/printq/internal/report/store/drivers/fs"
	"github.com/aussiebroadwan/printq/internal/report/store/drivers/memory"
	"github.com/aussiebroadwan/printq/internal/report/store/drivers/postgres"
	"github.com/aussiebroadwan/printq/internal/report/store/drivers/sqlite"
	"github.com/aussiebroadwan/printq/internal/report/templates"
)

// leaseConfig is the part of the queue configuration only the worker sets.
type leaseConfig struct {
	LockDuration   time.Duration
	MaxLockRenewal time.Duration
	ReceiveWait    time.Duration
}

func openBuckets(cfg Config) (payloads, output store.Bucket, err error) {
	switch cfg.StorageDriver {
	case "memory":
		return memory.NewBucket(), memory.NewBucket(), nil
	case "fs":
		p, err := fs.NewBucket(cfg.StorageRoot, cfg.PayloadContainer)
		if err != nil {
			return nil, nil, fmt.Errorf("open payload container: %w", err)
		}
		o, err := fs.NewBucket(cfg.StorageRoot, cfg.OutputContainer)
		if err != nil {
			return nil, nil, fmt.Errorf("open output container: %w", err)
		}
		return p, o, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func openQueue(cfg Config, lease leaseConfig, logger *slog.Logger) (queue.Queue, error) {
	switch cfg.QueueDriver {
	case "memory":
		return memq.New(memq.Config{
			LockDuration:   lease.LockDuration,
			MaxLockRenewal: lease.MaxLockRenewal,
			ReceiveWait:    lease.ReceiveWait,
		}), nil
	case "redis":
		q, err := redisq.Dial(cfg.RedisURL, redisq.Config{
			Name:           cfg.QueueName,
			LockDuration:   lease.LockDuration,
			MaxLockRenewal: lease.MaxLockRenewal,
			ReceiveWait:    lease.ReceiveWait,
		}, redisq.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open queue: %w", err)
		}
		return q, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.QueueDriver)
	}
}

// openDataDB opens the handle plugins query. It returns a nil handle when
// no DSN is configured; the placeholder format is set either way.
func openDataDB(cfg Config) (*sql.DB, sq.PlaceholderFormat, error) {
	var (
		driver      string
		placeholder sq.PlaceholderFormat
	)
	switch cfg.DataDriver {
	case "pgx":
		driver, placeholder = "pgx", sq.Dollar
	case "sqlite":
		driver, placeholder = "sqlite", sq.Question
	default:
		return nil, nil, fmt.Errorf("unknown data driver %q", cfg.DataDriver)
	}

	if cfg.DataDSN == "" {
		return nil, placeholder, nil
	}
	db, err := sql.Open(driver, cfg.DataDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open data source: %w", err)
	}
	return db, placeholder, nil
}

func openAudit(cfg WorkerConfig) (store.AuditLog, error) {
	switch cfg.AuditDriver {
	case "sqlite":
		a, err := sqlite.Open(sqlite.DSN(cfg.AuditDSN), cfg.AuditTable)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		if err := a.ApplyMigrations(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("migrate audit log: %w", err)
		}
		return a, nil
	case "postgres":
		a, err := postgres.Open(cfg.AuditDSN, cfg.AuditTable)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		if err := a.ApplyMigrations(); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("migrate audit log: %w", err)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown audit driver %q", cfg.AuditDriver)
	}
}

// blobTokenSource returns nil when no token endpoint is configured.
func blobTokenSource(cfg BlobConfig) oauth2.TokenSource {
	if cfg.TokenURL == "" {
		return nil
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	return cc.TokenSource(context.Background())
}

// newLoader registers the bundled plugins and opens the template root.
func newLoader(cfg Config, placeholder sq.PlaceholderFormat) (*templates.Loader, error) {
	reg := templates.NewRegistry()
	if err := plugins.Register(reg, plugins.Config{
		Placeholder: placeholder,
		BlobToken:   blobTokenSource(cfg.Blob),
	}); err != nil {
		return nil, fmt.Errorf("register plugins: %w", err)
	}

	loader, err := templates.NewLoader(cfg.ScriptsDir, reg)
	if err != nil {
		return nil, fmt.Errorf("open template root: %w", err)
	}
	return loader, nil
}

// pingBuckets checks both containers for readiness probes.
func pingBuckets(payloads, output store.Bucket) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := payloads.Ping(ctx); err != nil {
			return fmt.Errorf("payloads: %w", err)
		}
		if err := output.Ping(ctx); err != nil {
			return fmt.Errorf("output: %w", err)
		}
		return nil
	}
}
