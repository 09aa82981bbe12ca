package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/queue"
	"github.com/aussiebroadwan/printq/internal/report/store"
)

const (
	DefaultConcurrency = 3
	DefaultMaxDelivery = 5

	// Dead-letter annotations for exhausted jobs.
	DeadLetterReason      = "render-failed"
	DeadLetterDescription = "max attempts"

	receiveBackoff = time.Second
)

// WorkerPool consumes jobs and renders at most Concurrency of them at once.
//
// Every delivery ends in exactly one of Complete, Abandon or DeadLetter and
// writes exactly one audit record.
type WorkerPool struct {
	Consumer    queue.Consumer
	Renderer    Renderer
	Audit       store.AuditLog
	Logger      *slog.Logger
	Concurrency int
	MaxDelivery int
	Now         func() time.Time

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewWorkerPool fills in defaults for zero limits.
func NewWorkerPool(consumer queue.Consumer, renderer Renderer, audit store.AuditLog, logger *slog.Logger, concurrency, maxDelivery int) *WorkerPool {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if maxDelivery <= 0 {
		maxDelivery = DefaultMaxDelivery
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerPool{
		Consumer:    consumer,
		Renderer:    renderer,
		Audit:       audit,
		Logger:      logger,
		Concurrency: concurrency,
		MaxDelivery: maxDelivery,
		Now:         time.Now,
	}
}

// Start launches the consume loop. Renders run on a context derived from
// ctx that is never cancelled, so Stop drains rather than aborts them.
func (p *WorkerPool) Start(ctx context.Context) {
	p.sem = semaphore.NewWeighted(int64(p.Concurrency))
	p.doneCh = make(chan struct{})

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.run(loopCtx, context.WithoutCancel(ctx))
	p.Logger.Info("worker.start",
		slog.Int("concurrency", p.Concurrency),
		slog.Int("max_delivery", p.MaxDelivery),
	)
}

// Stop stops receiving and blocks until every admitted render has settled.
func (p *WorkerPool) Stop() {
	p.cancel()
	<-p.doneCh
	p.wg.Wait()
	p.Logger.Info("worker.stop")
}

func (p *WorkerPool) run(loopCtx, renderCtx context.Context) {
	defer close(p.doneCh)

	for {
		// A slot is taken before receiving so no more than Concurrency
		// messages are leased by this pool at a time.
		if err := p.sem.Acquire(loopCtx, 1); err != nil {
			return
		}

		msg, err := p.Consumer.Receive(loopCtx)
		if err != nil {
			p.sem.Release(1)
			if loopCtx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			p.Logger.Error("receive failed", slog.Any("error", err))
			select {
			case <-loopCtx.Done():
				return
			case <-time.After(receiveBackoff):
			}
			continue
		}
		if msg == nil {
			p.sem.Release(1)
			continue
		}

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer p.sem.Release(1)
			p.handle(renderCtx, msg)
		}()
	}
}

func (p *WorkerPool) handle(ctx context.Context, msg queue.Message) {
	runID := uuid.NewString()
	id := string(msg.Body())
	start := p.Now()

	l := p.Logger.With(
		slog.String("run_id", runID),
		slog.String("payload_id", id),
		slog.Int("delivery_count", msg.DeliveryCount()),
	)

	template, err := p.render(ctx, id)
	if template == "" {
		template = domain.UnknownTemplate
	}
	elapsed := p.Now().Sub(start)
	l = l.With(slog.String("template", template), slog.Int64("duration_ms", elapsed.Milliseconds()))

	rec := domain.AuditRecord{
		RunID:     runID,
		Template:  template,
		PayloadID: id,
		Duration:  elapsed,
		Success:   err == nil,
		CreatedAt: p.Now().UTC(),
	}
	if err != nil {
		text := err.Error()
		rec.ErrorMsg = &text
	}
	if auditErr := p.Audit.Record(ctx, rec); auditErr != nil {
		l.Error("audit write failed", slog.Any("error", auditErr))
	}

	if err == nil {
		l.Info("pdf.done")
		if settleErr := msg.Complete(ctx); settleErr != nil {
			l.Error("complete failed", slog.Any("error", settleErr))
		}
		return
	}

	if msg.DeliveryCount() >= p.MaxDelivery {
		l.Error("pdf.error", slog.Any("error", err), slog.String("disposition", "dead-letter"))
		settleErr := msg.DeadLetter(ctx, queue.DeadLetterInfo{
			Reason:      DeadLetterReason,
			Description: DeadLetterDescription,
			Error:       err.Error(),
		})
		if settleErr != nil {
			l.Error("dead-letter failed", slog.Any("error", settleErr))
		}
		return
	}

	l.Warn("pdf.error", slog.Any("error", err), slog.String("disposition", "abandon"))
	if settleErr := msg.Abandon(ctx); settleErr != nil {
		l.Error("abandon failed", slog.Any("error", settleErr))
	}
}

// render converts a panic in the pipeline into an error so the message is
// still settled and audited.
func (p *WorkerPool) render(ctx context.Context, id string) (template string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", domain.ErrRender, r)
		}
	}()
	return p.Renderer.Render(ctx, id)
}
