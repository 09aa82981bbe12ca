package service_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/printq/internal/report/templates"
)

func writeTemplates(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func newLoader(t *testing.T, reg *templates.Registry, files map[string]string) *templates.Loader {
	t.Helper()
	l, err := templates.NewLoader(writeTemplates(t, files), reg)
	require.NoError(t, err)
	return l
}

// funcPlugin adapts a function to templates.DataPlugin.
type funcPlugin func(ctx context.Context) (map[string]any, error)

func (f funcPlugin) Fetch(ctx context.Context) (map[string]any, error) { return f(ctx) }

func registerFunc(t *testing.T, reg *templates.Registry, name string, fetch func(params map[string]any) (map[string]any, error)) {
	t.Helper()
	require.NoError(t, reg.Register(name, func(params map[string]any, _ *sql.DB) (templates.DataPlugin, error) {
		return funcPlugin(func(context.Context) (map[string]any, error) { return fetch(params) }), nil
	}))
}

// countingResolver records how often the loader is consulted.
type countingResolver struct {
	inner *templates.Loader
	mu    sync.Mutex
	calls int
}

func (r *countingResolver) Resolve(name string) (*templates.Template, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.inner.Resolve(name)
}

func (r *countingResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
