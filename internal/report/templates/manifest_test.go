package templates_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/printq/internal/report/domain"
	"github.com/aussiebroadwan/printq/internal/report/templates"
)

func TestParseManifestAuthValidation(t *testing.T) {
	cases := map[string]string{
		"no routes":  "auth:\n  bearer_env: X\n",
		"both":       "auth:\n  routes: [a]\n  bearer_env: X\n  oauth2: {token_url: u, client_id: c, client_secret_env: S}\n",
		"neither":    "auth:\n  routes: [a]\n",
		"incomplete": "auth:\n  routes: [a]\n  oauth2: {token_url: u}\n",
	}
	for name, doc := range cases {
		_, err := templates.ParseManifest([]byte(doc))
		require.ErrorIs(t, err, domain.ErrConfig, name)
	}

	m, err := templates.ParseManifest(nil)
	require.NoError(t, err)
	require.Nil(t, m.Auth)
}

func TestRequestHookBearerEnv(t *testing.T) {
	t.Setenv("PRINTQ_TEST_TOKEN", "tok-1")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.html"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"),
		[]byte("auth:\n  routes: ['https://*.blob.core.windows.net/*']\n  bearer_env: PRINTQ_TEST_TOKEN\n"), 0o644))

	l, err := templates.NewLoader(dir, nil)
	require.NoError(t, err)
	tpl, err := l.Resolve("b")
	require.NoError(t, err)

	patterns, hook, err := tpl.RequestHook()
	require.NoError(t, err)
	require.Equal(t, []string{"https://*.blob.core.windows.net/*"}, patterns)

	headers, err := hook(context.Background(), "https://acct.blob.core.windows.net/c/logo.png")
	require.NoError(t, err)
	require.Equal(t, "Bearer tok-1", headers["Authorization"])
}

func TestRequestHookMissingEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.html"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"),
		[]byte("auth:\n  routes: ['*']\n  bearer_env: PRINTQ_TEST_UNSET_TOKEN\n"), 0o644))

	l, err := templates.NewLoader(dir, nil)
	require.NoError(t, err)
	tpl, err := l.Resolve("b")
	require.NoError(t, err)

	_, _, err = tpl.RequestHook()
	require.ErrorIs(t, err, domain.ErrConfig)
}

func TestRequestHookClientCredentials(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	t.Setenv("PRINTQ_TEST_SECRET", "s3cret")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "o.html"), []byte("x"), 0o644))
	manifest := "auth:\n  routes: ['https://api.example.com/*']\n  oauth2:\n" +
		"    token_url: " + srv.URL + "\n    client_id: printq\n    client_secret_env: PRINTQ_TEST_SECRET\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "o.yaml"), []byte(manifest), 0o644))

	l, err := templates.NewLoader(dir, nil)
	require.NoError(t, err)

	for range 3 {
		tpl, err := l.Resolve("o")
		require.NoError(t, err)
		_, hook, err := tpl.RequestHook()
		require.NoError(t, err)

		headers, err := hook(context.Background(), "https://api.example.com/img")
		require.NoError(t, err)
		require.Equal(t, "Bearer cc-token", headers["Authorization"])
	}
	require.EqualValues(t, 1, hits.Load())
}
