// Package fs stores objects as plain files, one directory per container.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"

	"github.com/aussiebroadwan/printq/internal/report/store"
)

// Bucket is a directory of objects. Content types are not persisted; they
// are derived from the key's extension.
type Bucket struct {
	dir string
}

var _ store.Bucket = (*Bucket)(nil)

// NewBucket returns a Bucket rooted at root/container, creating it if needed.
func NewBucket(root, container string) (*Bucket, error) {
	dir := filepath.Join(root, container)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fs: creating %s: %w", dir, err)
	}
	return &Bucket{dir: dir}, nil
}

func (b *Bucket) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || filepath.Base(key) != key {
		return "", fmt.Errorf("fs: invalid key %q", key)
	}
	return filepath.Join(b.dir, key), nil
}

// Put writes to a temp file and renames it into place so readers never
// observe a partial object.
func (b *Bucket) Put(_ context.Context, key string, data []byte, _ string) error {
	final, err := b.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(b.dir, ".put-*")
	if err != nil {
		return fmt.Errorf("fs: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("fs: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fs: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("fs: renaming to %s: %w", final, err)
	}

	success = true
	return nil
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := b.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (b *Bucket) Open(_ context.Context, key string) (io.ReadCloser, store.ObjectInfo, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, store.ObjectInfo{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, store.ObjectInfo{}, mapErr(key, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, store.ObjectInfo{}, mapErr(key, err)
	}
	return f, info(key, st), nil
}

func (b *Bucket) Stat(_ context.Context, key string) (store.ObjectInfo, error) {
	p, err := b.path(key)
	if err != nil {
		return store.ObjectInfo{}, err
	}
	st, err := os.Stat(p)
	if err != nil {
		return store.ObjectInfo{}, mapErr(key, err)
	}
	return info(key, st), nil
}

func (b *Bucket) Ping(context.Context) error {
	st, err := os.Stat(b.dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("fs: %s is not a directory", b.dir)
	}
	return nil
}

func info(key string, st fs.FileInfo) store.ObjectInfo {
	ct := mime.TypeByExtension(filepath.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	return store.ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		ContentType:  ct,
		LastModified: st.ModTime(),
	}
}

func mapErr(key string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	return err
}
