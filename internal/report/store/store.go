package store

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/aussiebroadwan/printq/internal/report/domain"
)

var ErrNotFound = errors.New("store: not found")

// ObjectInfo is the metadata of a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Bucket is one key-addressed container of blobs. The edge and the worker
// each hold two: staged payloads and rendered output.
//
// Every method returns ErrNotFound (possibly wrapped) for a missing key.
type Bucket interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	Get(ctx context.Context, key string) ([]byte, error)

	// Open streams an object. The caller must close the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	Stat(ctx context.Context, key string) (ObjectInfo, error)

	// Ping checks the bucket is reachable, for readiness probes.
	Ping(ctx context.Context) error
}

// AuditLog is the append-only record of render attempts.
type AuditLog interface {
	Record(ctx context.Context, rec domain.AuditRecord) error
	Ping(ctx context.Context) error
	Close() error
}
