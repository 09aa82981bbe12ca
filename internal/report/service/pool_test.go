package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/queue/memq"
	"github.com/aussiebroadwan/printq/internal/report/service"
	"github.com/aussiebroadwan/printq/internal/report/store/drivers/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// stubRenderer tracks how many renders overlap.
type stubRenderer struct {
	release chan struct{}
	started chan string
	render  func(id string) (string, error)

	mu        sync.Mutex
	active    int
	maxActive int
	calls     int
}

func (r *stubRenderer) Render(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	r.active++
	r.calls++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}()

	if r.started != nil {
		r.started <- id
	}
	if r.release != nil {
		<-r.release
	}
	if r.render != nil {
		return r.render(id)
	}
	return "tpl", nil
}

func (r *stubRenderer) stats() (calls, maxActive int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, r.maxActive
}

func newQueue() *memq.Queue {
	return memq.New(memq.Config{ReceiveWait: 20 * time.Millisecond})
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	for i := range 10 {
		require.NoError(t, q.Send(ctx, []byte(sha(string(rune('a'+i))))))
	}

	r := &stubRenderer{release: make(chan struct{}), started: make(chan string, 10)}
	audit := memory.NewAuditLog()
	pool := service.NewWorkerPool(q, r, audit, discard, 3, 5)
	pool.Start(ctx)

	for range 3 {
		<-r.started
	}
	// Give the loop a chance to over-admit if the gate were broken.
	time.Sleep(50 * time.Millisecond)
	_, maxActive := r.stats()
	require.Equal(t, 3, maxActive)
	require.Equal(t, 7, q.Len())

	close(r.release)
	require.Eventually(t, func() bool { return len(audit.Records()) == 10 }, 2*time.Second, 10*time.Millisecond)
	pool.Stop()

	calls, maxActive := r.stats()
	require.Equal(t, 10, calls)
	require.LessOrEqual(t, maxActive, 3)
	require.Zero(t, q.Len())
	for _, rec := range audit.Records() {
		require.True(t, rec.Success)
		require.Nil(t, rec.ErrorMsg)
		require.Equal(t, "tpl", rec.Template)
		require.NotEmpty(t, rec.RunID)
	}
}

func TestWorkerPoolRetriesThenDeadLetters(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	id := sha("poison")
	require.NoError(t, q.Send(ctx, []byte(id)))

	boom := errors.New("chrome exploded")
	r := &stubRenderer{render: func(string) (string, error) { return "t1", boom }}
	audit := memory.NewAuditLog()
	pool := service.NewWorkerPool(q, r, audit, discard, 2, 3)
	pool.Start(ctx)

	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, 2*time.Second, 10*time.Millisecond)
	pool.Stop()

	dl := q.DeadLetters()[0]
	require.NotEmpty(t, dl.ID)
	require.Equal(t, []byte(id), dl.Body)
	require.Equal(t, 3, dl.DeliveryCount)
	require.Equal(t, service.DeadLetterReason, dl.Info.Reason)
	require.Equal(t, service.DeadLetterDescription, dl.Info.Description)
	require.Equal(t, "chrome exploded", dl.Info.Error)

	recs := audit.Records()
	require.Len(t, recs, 3, "one audit record per attempt")
	for _, rec := range recs {
		require.False(t, rec.Success)
		require.Equal(t, "chrome exploded", *rec.ErrorMsg)
		require.Equal(t, id, rec.PayloadID)
		require.Equal(t, "t1", rec.Template)
	}
	require.Zero(t, q.Len())
}

func TestWorkerPoolRecordsUnknownTemplateAndPanics(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, []byte(sha("p"))))

	r := &stubRenderer{render: func(string) (string, error) { panic("nil map") }}
	audit := memory.NewAuditLog()
	pool := service.NewWorkerPool(q, r, audit, discard, 1, 1)
	pool.Start(ctx)

	require.Eventually(t, func() bool { return len(q.DeadLetters()) == 1 }, 2*time.Second, 10*time.Millisecond)
	pool.Stop()

	recs := audit.Records()
	require.Len(t, recs, 1)
	require.Equal(t, domain.UnknownTemplate, recs[0].Template)
	require.Contains(t, *recs[0].ErrorMsg, "panic: nil map")
}

func TestWorkerPoolAuditFailureDoesNotChangeOutcome(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, []byte(sha("ok"))))

	r := &stubRenderer{}
	audit := memory.NewAuditLog()
	audit.FailWith(errors.New("disk full"))
	pool := service.NewWorkerPool(q, r, audit, discard, 1, 5)
	pool.Start(ctx)

	require.Eventually(t, func() bool { calls, _ := r.stats(); return calls == 1 }, 2*time.Second, 10*time.Millisecond)
	pool.Stop()

	// Completed, so nothing is redelivered or dead-lettered.
	require.Zero(t, q.Len())
	require.Empty(t, q.DeadLetters())
	calls, _ := r.stats()
	require.Equal(t, 1, calls)
}

func TestWorkerPoolStopDrainsInFlight(t *testing.T) {
	q := newQueue()
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, []byte(sha("slow"))))

	r := &stubRenderer{release: make(chan struct{}), started: make(chan string, 1)}
	audit := memory.NewAuditLog()
	pool := service.NewWorkerPool(q, r, audit, discard, 2, 5)

	runCtx, cancel := context.WithCancel(ctx)
	pool.Start(runCtx)
	<-r.started

	// Cancelling the parent context must not abort the render either.
	cancel()

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a render was in flight")
	case <-time.After(100 * time.Millisecond):
	}
	require.Empty(t, audit.Records())

	close(r.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the render finished")
	}

	recs := audit.Records()
	require.Len(t, recs, 1)
	require.True(t, recs[0].Success)
	require.Zero(t, q.Len())
}
