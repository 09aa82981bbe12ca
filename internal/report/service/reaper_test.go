package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/printq/internal/report/queue/memq"
	"github.com/aussiebroadwan/printq/internal/report/service"
)

type failingReaper struct{}

func (failingReaper) Reap(context.Context) (int, error) { return 0, errors.New("redis gone") }

func TestLeaseReaperRequeuesExpired(t *testing.T) {
	var (
		mu  sync.Mutex
		now = time.Unix(1_700_000_000, 0)
	)
	q := memq.New(memq.Config{
		LockDuration:   time.Minute,
		MaxLockRenewal: time.Millisecond,
		ReceiveWait:    20 * time.Millisecond,
	}, memq.WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}))
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, []byte("job")))
	_, err := q.Receive(ctx)
	require.NoError(t, err)

	r, err := service.NewLeaseReaper(q, discard, "")
	require.NoError(t, err)
	require.Equal(t, service.DefaultReapSchedule, r.Schedule)

	n, err := r.ReapOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	n, err = r.ReapOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, q.Len())
}

func TestLeaseReaperSchedule(t *testing.T) {
	_, err := service.NewLeaseReaper(failingReaper{}, discard, "every now and then")
	require.Error(t, err)

	r, err := service.NewLeaseReaper(failingReaper{}, discard, "@every 1h")
	require.NoError(t, err)
	r.Start()
	r.Stop()

	_, err = r.ReapOnce(context.Background())
	require.Error(t, err)
}
