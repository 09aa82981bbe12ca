package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/store"
)

func TestBucket(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	b := NewBucket()
	b.SetClock(func() time.Time { return at })

	_, err := b.Stat(ctx, "k")
	require.ErrorIs(t, err, store.ErrNotFound)

	data := []byte("payload")
	require.NoError(t, b.Put(ctx, "k", data, "application/json"))
	data[0] = 'X'

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))

	info, err := b.Stat(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, at, info.LastModified)
	require.Equal(t, "application/json", info.ContentType)
	require.Equal(t, 1, b.Puts())
}

func TestAuditLog(t *testing.T) {
	ctx := context.Background()
	a := NewAuditLog()

	require.NoError(t, a.Record(ctx, domain.AuditRecord{RunID: "1"}))
	a.FailWith(errors.New("db down"))
	require.Error(t, a.Record(ctx, domain.AuditRecord{RunID: "2"}))

	require.Len(t, a.Records(), 1)
}
