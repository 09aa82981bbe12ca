// Package memory is an in-process object store for tests and single-node
// development.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/store"
)

type object struct {
	data []byte
	info store.ObjectInfo
}

// Bucket is a mutex-guarded map of objects.
type Bucket struct {
	mu   sync.RWMutex
	objs map[string]object
	now  func() time.Time

	puts int
}

var _ store.Bucket = (*Bucket)(nil)

func NewBucket() *Bucket {
	return &Bucket{objs: make(map[string]object), now: time.Now}
}

// SetClock replaces time.Now for LastModified stamps.
func (b *Bucket) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

func (b *Bucket) Put(_ context.Context, key string, data []byte, contentType string) error {
	cp := bytes.Clone(data)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objs[key] = object{
		data: cp,
		info: store.ObjectInfo{
			Key:          key,
			Size:         int64(len(cp)),
			ContentType:  contentType,
			LastModified: b.now(),
		},
	}
	b.puts++
	return nil
}

func (b *Bucket) Get(_ context.Context, key string) ([]byte, error) {
	o, err := b.load(key)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(o.data), nil
}

func (b *Bucket) Open(_ context.Context, key string) (io.ReadCloser, store.ObjectInfo, error) {
	o, err := b.load(key)
	if err != nil {
		return nil, store.ObjectInfo{}, err
	}
	return io.NopCloser(bytes.NewReader(o.data)), o.info, nil
}

func (b *Bucket) Stat(_ context.Context, key string) (store.ObjectInfo, error) {
	o, err := b.load(key)
	return o.info, err
}

func (b *Bucket) Ping(context.Context) error { return nil }

// Puts reports how many writes the bucket has accepted.
func (b *Bucket) Puts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.puts
}

func (b *Bucket) load(key string) (object, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.objs[key]
	if !ok {
		return object{}, fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	return o, nil
}

// AuditLog keeps records in memory.
type AuditLog struct {
	mu      sync.Mutex
	records []domain.AuditRecord
	err     error
}

var _ store.AuditLog = (*AuditLog)(nil)

func NewAuditLog() *AuditLog { return &AuditLog{} }

func (a *AuditLog) Record(_ context.Context, rec domain.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, rec)
	return nil
}

// FailWith makes subsequent Record calls return err.
func (a *AuditLog) FailWith(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

// Records returns a copy of everything recorded so far.
func (a *AuditLog) Records() []domain.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditRecord(nil), a.records...)
}

func (a *AuditLog) Ping(context.Context) error { return nil }
func (a *AuditLog) Close() error               { return nil }
