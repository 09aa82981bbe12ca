package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aussiebroadwan/printq/internal/report/queue"
)

const (
	DefaultReapSchedule = "@every 30s"

	reapTimeout = 30 * time.Second
)

// LeaseReaper periodically returns messages whose lease expired (e.g. their
// worker crashed) to the ready queue.
type LeaseReaper struct {
	Reaper   queue.Reaper
	Logger   *slog.Logger
	Schedule string

	cron *cron.Cron
}

// NewLeaseReaper validates schedule, a cron spec or "@every <duration>".
func NewLeaseReaper(reaper queue.Reaper, logger *slog.Logger, schedule string) (*LeaseReaper, error) {
	if schedule == "" {
		schedule = DefaultReapSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &LeaseReaper{Reaper: reaper, Logger: logger, Schedule: schedule}
	r.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := r.cron.AddFunc(schedule, func() { _, _ = r.ReapOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("reap schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start is non-blocking.
func (r *LeaseReaper) Start() {
	r.cron.Start()
	r.Logger.Info("lease reaper started", slog.String("schedule", r.Schedule))
}

// Stop waits for a running sweep to finish.
func (r *LeaseReaper) Stop() {
	<-r.cron.Stop().Done()
	r.Logger.Info("lease reaper stopped")
}

// ReapOnce runs a single sweep.
func (r *LeaseReaper) ReapOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, reapTimeout)
	defer cancel()

	n, err := r.Reaper.Reap(ctx)
	if err != nil {
		r.Logger.Error("lease reap failed", slog.Any("error", err))
		return 0, err
	}
	if n > 0 {
		r.Logger.Info("requeued expired leases", slog.Int("count", n))
	}
	return n, nil
}
